package security

import (
	"context"
	"crypto/tls"
	"log/slog"
	"math"
	"net"
	"net/url"
	"time"

	"github.com/obsidianstack/siteuptime/reporter/internal/config"
	"github.com/obsidianstack/siteuptime/reporter/internal/metrics"
)

// Certificate states.
const (
	StatusValid       = "valid"
	StatusExpiring    = "expiring"
	StatusExpired     = "expired"
	StatusUnreachable = "unreachable"
)

// ExpiryWarning is how close to NotAfter a certificate is reported as expiring.
const ExpiryWarning = 30 * 24 * time.Hour

const dialTimeout = 10 * time.Second

// CertStatus describes the leaf certificate served by the dashboard.
type CertStatus struct {
	Endpoint string
	Status   string
	Issuer   string
	NotAfter time.Time
	DaysLeft int
}

// Check dials the dashboard and returns the state of its leaf certificate.
//
// Returns nil for non-HTTPS base URLs; there is no certificate to inspect.
func Check(ctx context.Context, site config.SiteConfig) *CertStatus {
	return checkAt(ctx, site, time.Now())
}

func checkAt(ctx context.Context, site config.SiteConfig, now time.Time) *CertStatus {
	u, err := url.Parse(site.BaseURL)
	if err != nil || u.Scheme != "https" {
		return nil
	}

	cs := &CertStatus{Endpoint: site.BaseURL}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "443")
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			InsecureSkipVerify: site.TLS.InsecureSkipVerify, //nolint:gosec
		},
	}

	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		slog.Debug("security: dial failed", "endpoint", site.BaseURL, "err", err)
		cs.Status = StatusUnreachable
		return cs
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peerCerts := conn.ConnectionState().PeerCertificates
	if len(peerCerts) == 0 {
		cs.Status = StatusUnreachable
		return cs
	}

	leaf := peerCerts[0]
	left := leaf.NotAfter.Sub(now)

	cs.NotAfter = leaf.NotAfter.UTC()
	cs.Issuer = leaf.Issuer.CommonName
	cs.DaysLeft = int(math.Floor(left.Hours() / 24))

	switch {
	case left <= 0:
		cs.Status = StatusExpired
	case left <= ExpiryWarning:
		cs.Status = StatusExpiring
	default:
		cs.Status = StatusValid
	}
	return cs
}

// Preflight runs Check, logs anything other than a valid certificate and
// records the days left. It never fails the run; the login request surfaces
// real connection problems.
func Preflight(ctx context.Context, site config.SiteConfig) *CertStatus {
	cs := Check(ctx, site)
	if cs == nil {
		return nil
	}

	attrs := []any{"endpoint", cs.Endpoint, "status", cs.Status}
	switch cs.Status {
	case StatusValid:
		metrics.SetCertDaysLeft(cs.DaysLeft)
		slog.Debug("security: dashboard certificate ok", append(attrs, "days_left", cs.DaysLeft)...)
	case StatusExpiring, StatusExpired:
		metrics.SetCertDaysLeft(cs.DaysLeft)
		slog.Warn("security: dashboard certificate needs attention",
			append(attrs, "days_left", cs.DaysLeft, "not_after", cs.NotAfter, "issuer", cs.Issuer)...)
	default:
		slog.Warn("security: could not inspect dashboard certificate", attrs...)
	}
	return cs
}
