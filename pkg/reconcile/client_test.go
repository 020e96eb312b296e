package reconcile

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestClient(url string, retries int) *Client {
	return NewClient(Config{
		OrderUpdateURL: url,
		InternalToken:  "tok",
		Timeout:        time.Second,
		MaxRetries:     retries,
		RetryInterval:  time.Millisecond,
	})
}

func TestClientSend(t *testing.T) {
	cases := []struct {
		name     string
		status   int
		body     string
		success  bool
		attempts int
	}{
		{"acknowledged", http.StatusOK, `{"code":200,"message":"ok"}`, true, 1},
		{"rejected by body code", http.StatusOK, `{"code":400,"message":"unknown order"}`, false, 3},
		{"http error", http.StatusBadGateway, `bad gateway`, false, 3},
		{"unparseable body", http.StatusOK, `ok`, false, 3},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				assert.Equal(t, "tok", r.Header.Get("X-Internal-Token"))
				assert.Equal(t, http.MethodPost, r.Method)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			d := newTestClient(srv.URL, 2).Send(context.Background(), StatusUpdate{OrderID: "ORD-1", Status: StatusPaid})
			assert.Equal(t, tc.success, d.Success)
			assert.Equal(t, tc.attempts, d.Attempts)
			assert.EqualValues(t, tc.attempts, hits.Load())
			assert.Equal(t, tc.body, d.Response)
			if tc.success {
				assert.NoError(t, d.Err)
			} else {
				assert.Error(t, d.Err)
			}
		})
	}
}

func TestClientRecoversOnRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"code":200}`))
	}))
	defer srv.Close()

	d := newTestClient(srv.URL, 3).Send(context.Background(), StatusUpdate{OrderID: "ORD-2", Status: StatusFailed})
	assert.True(t, d.Success)
	assert.Equal(t, 2, d.Attempts)
}

func TestClientStopsOnCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{OrderUpdateURL: srv.URL, MaxRetries: 5, RetryInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	d := c.Send(ctx, StatusUpdate{OrderID: "ORD-3"})
	assert.False(t, d.Success)
	assert.Equal(t, 1, d.Attempts)
	assert.ErrorIs(t, d.Err, context.Canceled)
}

func TestClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	d := newTestClient(url, 1).Send(context.Background(), StatusUpdate{OrderID: "ORD-4"})
	assert.False(t, d.Success)
	assert.Equal(t, 2, d.Attempts)
	assert.Error(t, d.Err)
	assert.Empty(t, d.Response)
}
