package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubSender struct {
	name  string
	err   error
	calls []string
}

func (s *stubSender) Send(_ context.Context, title, _ string) error {
	s.calls = append(s.calls, title)
	return s.err
}

func (s *stubSender) Name() string { return s.name }

func TestNotifierFiltersEvents(t *testing.T) {
	s := &stubSender{name: "stub"}
	n := NewNotifier([]Sender{s}, []string{" day_summary ", ""}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), "day_summary", "Day ended", "msg"))
	require.NoError(t, n.Notify(context.Background(), "watcher_restarted", "Restarted", "msg"))

	assert.Equal(t, []string{"Day ended"}, s.calls)
	assert.True(t, n.Enabled())
}

func TestNotifierEmptyFilterAllowsAll(t *testing.T) {
	s := &stubSender{name: "stub"}
	n := NewNotifier([]Sender{s}, nil, discardLogger())

	require.NoError(t, n.Notify(context.Background(), "anything", "t", "m"))
	assert.Len(t, s.calls, 1)

	assert.False(t, NewNotifier(nil, nil, discardLogger()).Enabled())
}

func TestNotifierKeepsGoingAfterFailure(t *testing.T) {
	boom := errors.New("boom")
	bad := &stubSender{name: "bad", err: boom}
	good := &stubSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), "clock_anomaly", "t", "m")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "1 sender(s) failed")
	assert.Len(t, good.calls, 1)
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewTelegramSender(srv.URL+"/", "TOKEN", "42")
	require.NoError(t, s.Send(context.Background(), "Day ended", "equity up"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Day ended*\nequity up", got["text"])
	assert.Equal(t, "telegram", s.Name())
}

func TestDiscordSenderStatus(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNoContent)
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		code := int(status.Load())
		w.WriteHeader(code)
		if code >= 300 {
			_, _ = w.Write([]byte("rate limited"))
		}
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	require.NoError(t, s.Send(context.Background(), "Watcher", "restarted 2 times"))
	assert.Equal(t, "**Watcher**\nrestarted 2 times", got["content"])

	status.Store(http.StatusTooManyRequests)
	err := s.Send(context.Background(), "Watcher", "again")
	require.Error(t, err)
	assert.Equal(t, "discord: unexpected status 429: rate limited", err.Error())
}
