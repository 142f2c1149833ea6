package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miragesec/mirage/internal/config"
)

func testNotifyConfig(url string) *config.NotifyConfig {
	return &config.NotifyConfig{
		WebhookURL:        url,
		TimeoutSeconds:    5,
		RetryCount:        2,
		RetryDelaySeconds: 0,
	}
}

func TestDecoyServed_FiresWebhook(t *testing.T) {
	received := make(chan Event, 1)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var event Event
		require.NoError(t, json.Unmarshal(body, &event))
		received <- event
	}))
	defer ts.Close()

	n := NewWebhookNotifier(testNotifyConfig(ts.URL))
	n.DecoyServed("203.0.113.5", "GET", "/.env", "fake_env")

	select {
	case event := <-received:
		assert.Equal(t, "deception_served", event.Event)
		assert.Equal(t, "203.0.113.5", event.SourceIP)
		assert.Equal(t, "/.env", event.Endpoint)
		assert.Equal(t, "fake_env", event.ResponseType)
		assert.Equal(t, "GET", event.Method)
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was never delivered")
	}
}

func TestDecoyServed_AuthToken(t *testing.T) {
	received := make(chan string, 1)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.Header.Get("Authorization")
	}))
	defer ts.Close()

	cfg := testNotifyConfig(ts.URL)
	cfg.AuthToken = "s3cret"

	NewWebhookNotifier(cfg).DecoyServed("203.0.113.5", "GET", "/.env", "fake_env")

	select {
	case auth := <-received:
		assert.Equal(t, "Bearer s3cret", auth)
	case <-time.After(2 * time.Second):
		t.Fatal("webhook was never delivered")
	}
}

func TestDecoyServed_RetriesOnFailure(t *testing.T) {
	var calls atomic.Int32
	done := make(chan struct{})

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		close(done)
	}))
	defer ts.Close()

	NewWebhookNotifier(testNotifyConfig(ts.URL)).DecoyServed("203.0.113.5", "GET", "/.env", "fake_env")

	select {
	case <-done:
		assert.Equal(t, int32(2), calls.Load())
	case <-time.After(2 * time.Second):
		t.Fatal("webhook retry never arrived")
	}
}

func TestDisabledNotifier(t *testing.T) {
	n := NewWebhookNotifier(&config.NotifyConfig{})
	assert.False(t, n.Enabled())
	// Must be a no-op, not a panic.
	n.DecoyServed("203.0.113.5", "GET", "/.env", "fake_env")

	var nilNotifier *WebhookNotifier
	assert.False(t, nilNotifier.Enabled())
}
