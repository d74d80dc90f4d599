package compute

import (
	"math"
	"testing"
)

// almostEqual returns true if a and b are within epsilon of each other.
func almostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) <= epsilon
}

// recordWithDowns builds a record carrying n synthetic failures.
func recordWithDowns(id int, name string, n int) *ServiceRecord {
	r := NewServiceRecord(id, name)
	for i := 0; i < n; i++ {
		r.AddFailure(FailureEvent{Date: "01/03/2024 00:00", Error: "timeout", ResponseTime: "30"})
	}
	return r
}

func TestTotalTimeslots(t *testing.T) {
	tests := []struct {
		days int
		want int
	}{
		{1, 720},
		{7, 5040},
		{30, 21600},
		{31, 22320},
	}
	for _, tc := range tests {
		if got := TotalTimeslots(tc.days); got != tc.want {
			t.Errorf("TotalTimeslots(%d) = %d, want %d", tc.days, got, tc.want)
		}
	}
}

func TestUptime(t *testing.T) {
	tests := []struct {
		name  string
		days  int
		downs int
		want  float64
	}{
		{"no failures", 30, 0, 1.0},
		{"every slot failed", 30, 21600, 0.0},
		{"hundred failures", 30, 100, 21500.0 / 21600.0},
		{"one day one failure", 1, 1, 719.0 / 720.0},
		{"more failures than slots", 1, 1440, -1.0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Uptime(recordWithDowns(1, "svc", tc.downs), tc.days)
			if !almostEqual(got, tc.want, 1e-12) {
				t.Errorf("Uptime = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestUptimePercent(t *testing.T) {
	tests := []struct {
		name  string
		days  int
		downs int
		want  string
	}{
		{"perfect", 30, 0, "100.000"},
		{"hundred failures", 30, 100, "99.537"},
		{"all failed", 30, 21600, "0.000"},
		{"negative is kept", 1, 1440, "-100.000"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := UptimePercent(recordWithDowns(1, "svc", tc.downs), tc.days); got != tc.want {
				t.Errorf("UptimePercent = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFormatPercent(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{99.5370, "99.537"},
		{0, "0.000"},
		{5, "5.000"},
		{1e6, "1000000.000"},
		{-0.25, "-0.250"},
	}
	for _, tc := range tests {
		if got := FormatPercent(tc.in); got != tc.want {
			t.Errorf("FormatPercent(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
