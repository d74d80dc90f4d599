package shipper

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidianstack/siteuptime/reporter/internal/config"
	"github.com/obsidianstack/siteuptime/reporter/internal/retry"
)

var fastPolicy = retry.Policy{Retries: 3, Initial: time.Millisecond, Max: 5 * time.Millisecond}

var testMessage = Message{
	Title:  "Uptime 2024-03-01 to 2024-03-31",
	Text:   "Average uptime across 3 monitors: 99.800%",
	RunID:  "run-1",
	Fields: map[string]any{"monitors": 3},
}

// recorder is an httptest handler that answers with the scripted status codes
// in order and keeps the last request body.
type recorder struct {
	codes []int
	hits  atomic.Int32
	body  atomic.Value
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	n := int(r.hits.Add(1)) - 1
	data, _ := io.ReadAll(req.Body)
	r.body.Store(data)
	code := http.StatusOK
	if n < len(r.codes) {
		code = r.codes[n]
	}
	w.WriteHeader(code)
}

func (r *recorder) lastBody(t *testing.T) map[string]any {
	t.Helper()
	data, ok := r.body.Load().([]byte)
	require.True(t, ok, "no request received")
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func newTarget(t *testing.T, typ string, rec *recorder) config.WebhookConfig {
	t.Helper()
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)
	env := "TEST_WEBHOOK_" + typ
	t.Setenv(env, srv.URL)
	return config.WebhookConfig{Type: typ, URLEnv: env}
}

func TestShip_Payloads(t *testing.T) {
	tests := []struct {
		typ   string
		check func(t *testing.T, body map[string]any)
	}{
		{"slack", func(t *testing.T, body map[string]any) {
			assert.Contains(t, body["text"], testMessage.Title)
			assert.Contains(t, body["text"], testMessage.Text)
		}},
		{"teams", func(t *testing.T, body map[string]any) {
			assert.Equal(t, "MessageCard", body["@type"])
			assert.Equal(t, testMessage.Title, body["title"])
			assert.Equal(t, testMessage.Text, body["text"])
		}},
		{"http", func(t *testing.T, body map[string]any) {
			assert.Equal(t, testMessage.Title, body["title"])
			assert.Equal(t, "run-1", body["run_id"])
			fields, ok := body["fields"].(map[string]any)
			require.True(t, ok)
			assert.EqualValues(t, 3, fields["monitors"])
		}},
	}
	for _, tc := range tests {
		t.Run(tc.typ, func(t *testing.T) {
			rec := &recorder{}
			s := New([]config.WebhookConfig{newTarget(t, tc.typ, rec)}, WithRetryPolicy(fastPolicy))

			require.NoError(t, s.Ship(context.Background(), testMessage))
			assert.EqualValues(t, 1, rec.hits.Load())
			tc.check(t, rec.lastBody(t))
		})
	}
}

func TestShip_RetriesServerErrors(t *testing.T) {
	rec := &recorder{codes: []int{http.StatusBadGateway, http.StatusServiceUnavailable}}
	s := New([]config.WebhookConfig{newTarget(t, "slack", rec)}, WithRetryPolicy(fastPolicy))

	require.NoError(t, s.Ship(context.Background(), testMessage))
	assert.EqualValues(t, 3, rec.hits.Load())
}

func TestShip_RetriesTooManyRequests(t *testing.T) {
	rec := &recorder{codes: []int{http.StatusTooManyRequests}}
	s := New([]config.WebhookConfig{newTarget(t, "http", rec)}, WithRetryPolicy(fastPolicy))

	require.NoError(t, s.Ship(context.Background(), testMessage))
	assert.EqualValues(t, 2, rec.hits.Load())
}

func TestShip_ClientErrorNotRetried(t *testing.T) {
	rec := &recorder{codes: []int{http.StatusBadRequest, http.StatusBadRequest}}
	s := New([]config.WebhookConfig{newTarget(t, "teams", rec)}, WithRetryPolicy(fastPolicy))

	err := s.Ship(context.Background(), testMessage)
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))
	assert.Contains(t, err.Error(), "HTTP 400")
	assert.EqualValues(t, 1, rec.hits.Load())
}

func TestShip_GivesUpAfterRetries(t *testing.T) {
	rec := &recorder{codes: []int{500, 500, 500, 500, 500}}
	s := New([]config.WebhookConfig{newTarget(t, "slack", rec)}, WithRetryPolicy(fastPolicy))

	err := s.Ship(context.Background(), testMessage)
	require.Error(t, err)
	assert.EqualValues(t, fastPolicy.Retries+1, rec.hits.Load())
}

func TestShip_OneFailureDoesNotStopOthers(t *testing.T) {
	bad := &recorder{codes: []int{http.StatusNotFound}}
	good := &recorder{}
	s := New([]config.WebhookConfig{
		newTarget(t, "slack", bad),
		newTarget(t, "http", good),
	}, WithRetryPolicy(fastPolicy))

	err := s.Ship(context.Background(), testMessage)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slack")
	assert.EqualValues(t, 1, good.hits.Load())
}

func TestShip_UnsetURLIsSkipped(t *testing.T) {
	s := New([]config.WebhookConfig{{Type: "slack", URLEnv: "TEST_WEBHOOK_UNSET"}})
	assert.True(t, s.Enabled())
	assert.NoError(t, s.Ship(context.Background(), testMessage))
}

func TestShip_NoWebhooks(t *testing.T) {
	s := New(nil)
	assert.False(t, s.Enabled())
	assert.NoError(t, s.Ship(context.Background(), testMessage))
}

func TestEncode_UnknownType(t *testing.T) {
	_, err := encode("pager", testMessage)
	assert.Error(t, err)
}
