package hub

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/kitemc/verifyd/internal/models"
)

func testEvent(seq int) Event {
	return Event{
		Type:      EventApproved,
		AccountID: "acct-1",
		Username:  "alice",
		OldStatus: models.StatusPending,
		NewStatus: models.StatusApproved,
		Timestamp: time.Date(2025, 3, 1, 10, 0, seq, 0, time.UTC),
	}
}

func TestPublishReachesAllSessions(t *testing.T) {
	h := NewHub()
	first := h.Subscribe()
	second := h.Subscribe()
	require.Equal(t, 2, h.Len())

	h.Publish(testEvent(0))

	require.Equal(t, testEvent(0), <-first.Events())
	require.Equal(t, testEvent(0), <-second.Events())
}

func TestPublishPreservesOrderPerSession(t *testing.T) {
	h := NewHub()
	s := h.Subscribe()

	for i := 0; i < 10; i++ {
		h.Publish(testEvent(i))
	}

	for i := 0; i < 10; i++ {
		got := <-s.Events()
		require.Equal(t, i, got.Timestamp.Second())
	}
}

func TestSlowSessionDroppedWithoutBlockingOthers(t *testing.T) {
	h := NewHub(WithQueueSize(2))
	slow := h.Subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Never drained: the queue overflows on the third publish.
		for i := 0; i < 3; i++ {
			h.Publish(testEvent(i))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}

	require.Equal(t, 0, h.Len(), "slow session must be dropped")

	// The slow session's channel is closed after its buffered events.
	drained := 0
	for range slow.Events() {
		drained++
	}
	require.Equal(t, 2, drained)

	// Later subscribers keep receiving subsequent events.
	fast := h.Subscribe()
	h.Publish(testEvent(3))
	h.Publish(testEvent(4))
	require.Equal(t, 3, (<-fast.Events()).Timestamp.Second())
	require.Equal(t, 4, (<-fast.Events()).Timestamp.Second())
}

func TestUnsubscribeIdempotent(t *testing.T) {
	h := NewHub()
	s := h.Subscribe()

	h.Unsubscribe(s)
	h.Unsubscribe(s) // safe after the session is already gone
	h.Unsubscribe(nil)

	require.Equal(t, 0, h.Len())

	// Publishing after the drop skips the session without error.
	h.Publish(testEvent(0))

	_, open := <-s.Events()
	require.False(t, open)
}

func TestCloseDropsEverySession(t *testing.T) {
	h := NewHub()
	s := h.Subscribe()
	h.Close()

	require.Equal(t, 0, h.Len())
	_, open := <-s.Events()
	require.False(t, open)

	late := h.Subscribe()
	_, open = <-late.Events()
	require.False(t, open, "subscribe after close returns a drained session")
}

func TestServeWSDeliversEvents(t *testing.T) {
	h := NewHub()
	server := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, 10*time.Millisecond)

	h.Publish(testEvent(7))

	var got Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, EventApproved, got.Type)
	require.Equal(t, "alice", got.Username)
}

func TestServeWSDisconnectUnsubscribes(t *testing.T) {
	h := NewHub()
	server := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return h.Len() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return h.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
