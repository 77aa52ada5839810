package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rongwang/library-server/internal/config"
)

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(zerolog.New(&buf))

	require.NoError(t, n.Notify(context.Background(), "John", "Clean Code"))
	assert.Contains(t, buf.String(), `"user_name":"John"`)
	assert.Contains(t, buf.String(), `"book_title":"Clean Code"`)
	assert.Contains(t, buf.String(), `"component":"notify"`)
}

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	first := &Recorder{Err: boom}
	second := &Recorder{}

	err := Multi{first, second}.Notify(context.Background(), "Anna", "Refactoring")
	assert.ErrorIs(t, err, boom)
	assert.Len(t, first.Sent(), 1)
	assert.Len(t, second.Sent(), 1, "later sinks still run after a failure")
}

func TestWebhookNotifier(t *testing.T) {
	var (
		mu      sync.Mutex
		body    []byte
		header  http.Header
		counter int
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		counter++
		body, _ = io.ReadAll(r.Body)
		header = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	n := NewWebhookNotifier(server.URL, time.Second)
	n.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	require.NoError(t, n.Notify(context.Background(), "John", "Clean Code"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, counter)
	assert.Equal(t, "application/json", header.Get("Content-Type"))

	var payload WebhookPayload
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "John", payload.UserName)
	assert.Equal(t, "Clean Code", payload.BookTitle)
	assert.Equal(t, header.Get(DeliveryHeader), payload.DeliveryID)
	assert.NotEmpty(t, payload.DeliveryID)
	assert.True(t, payload.SentAt.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
}

func TestWebhookNotifierRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := NewWebhookNotifier(server.URL, time.Second).Notify(context.Background(), "John", "Clean Code")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestDispatcherDeliversInOrderAndDrains(t *testing.T) {
	rec := &Recorder{}
	d := NewDispatcher(rec, 4, zerolog.Nop())

	titles := []string{"A", "B", "C", "D", "E", "F"}
	for _, title := range titles {
		require.NoError(t, d.Notify(context.Background(), "John", title))
	}
	require.NoError(t, d.Close(context.Background()))

	sent := rec.Sent()
	require.Len(t, sent, len(titles))
	for i, title := range titles {
		assert.Equal(t, title, sent[i].BookTitle)
	}

	assert.ErrorIs(t, d.Notify(context.Background(), "John", "G"), ErrClosed)
	assert.NoError(t, d.Close(context.Background()), "close is idempotent")
}

func TestDispatcherIgnoresRequestCancellation(t *testing.T) {
	rec := &Recorder{}
	d := NewDispatcher(rec, 1, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, d.Notify(ctx, "Anna", "Refactoring"))
	cancel()

	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, []Notification{{UserName: "Anna", BookTitle: "Refactoring"}}, rec.Sent())
}

func TestDispatcherAcceptsCancelledContextWhileQueueHasRoom(t *testing.T) {
	rec := &Recorder{}
	d := NewDispatcher(rec, 8, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 50; i++ {
		require.NoError(t, d.Notify(ctx, "Anna", "Refactoring"))
		if i%4 == 3 {
			// keep the queue from filling up
			require.Eventually(t, func() bool { return len(rec.Sent()) == i+1 }, time.Second, time.Millisecond)
		}
	}

	require.NoError(t, d.Close(context.Background()))
	assert.Len(t, rec.Sent(), 50)
}

func TestDispatcherLogsFailures(t *testing.T) {
	var buf bytes.Buffer
	d := NewDispatcher(&Recorder{Err: errors.New("sink down")}, 1, zerolog.New(&buf))

	require.NoError(t, d.Notify(context.Background(), "John", "Clean Code"))
	require.NoError(t, d.Close(context.Background()))

	assert.Contains(t, buf.String(), "notification delivery failed")
	assert.Contains(t, buf.String(), "sink down")
}

func TestFromConfig(t *testing.T) {
	n, closeFn := FromConfig(config.NotifyConfig{Async: false}, zerolog.Nop())
	assert.IsType(t, &LogNotifier{}, n)
	assert.NoError(t, closeFn(context.Background()))

	n, closeFn = FromConfig(config.NotifyConfig{WebhookURL: "http://localhost:1", Async: true, QueueSize: 8}, zerolog.Nop())
	d, ok := n.(*Dispatcher)
	require.True(t, ok)
	assert.IsType(t, Multi{}, d.next)
	assert.NoError(t, closeFn(context.Background()))
}
