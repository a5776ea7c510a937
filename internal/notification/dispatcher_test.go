package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olympic-platform/onboarding/internal/logging"
)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []Message
	err  error
	gate chan struct{}
}

func (n *recordingNotifier) Send(_ context.Context, msg Message) error {
	if n.gate != nil {
		<-n.gate
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.msgs)
}

func TestDispatcherDeliversAndDrainsOnClose(t *testing.T) {
	sink := &recordingNotifier{}
	d := NewDispatcher(sink, 8, logging.Discard())

	for i := 0; i < 5; i++ {
		require.NoError(t, d.Send(context.Background(), Message{Kind: KindUserLogin}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
	assert.Equal(t, 5, sink.count())

	assert.ErrorIs(t, d.Send(context.Background(), Message{}), ErrDispatcherClosed)
}

func TestDispatcherSinkFailureIsSwallowed(t *testing.T) {
	sink := &recordingNotifier{err: errors.New("smtp down")}
	d := NewDispatcher(sink, 1, logging.Discard())

	require.NoError(t, d.Send(context.Background(), Message{Kind: KindPINVerified}))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
	assert.Equal(t, 1, sink.count())
}

func TestDispatcherReportsFullQueue(t *testing.T) {
	sink := &recordingNotifier{gate: make(chan struct{})}
	d := NewDispatcher(sink, 1, logging.Discard())

	// first message is taken by the worker and parks on the gate, second fills the buffer
	require.NoError(t, d.Send(context.Background(), Message{Kind: "a"}))
	require.Eventually(t, func() bool {
		return d.Send(context.Background(), Message{Kind: "b"}) == nil
	}, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, d.Send(context.Background(), Message{Kind: "c"}), ErrQueueFull)

	close(sink.gate)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
	assert.Equal(t, 2, sink.count())
}

func TestBuildMessageHeaders(t *testing.T) {
	raw := string(buildMessage("ops@x.com", "admin@x.com", Message{Kind: KindUserRegistered, Subject: "New User Registration", Body: "line1\nline2"}))
	assert.Contains(t, raw, "From: ops@x.com\r\n")
	assert.Contains(t, raw, "To: admin@x.com\r\n")
	assert.Contains(t, raw, "Subject: New User Registration\r\n")
	assert.Contains(t, raw, "\r\n\r\nline1\r\nline2")
}

func TestNewSMTPNotifierRequiresRecipient(t *testing.T) {
	_, err := NewSMTPNotifier(SMTPConfig{Host: "smtp.example.com", Port: "587"})
	assert.Error(t, err)

	n, err := NewSMTPNotifier(SMTPConfig{Host: "smtp.example.com", Port: "587", Username: "bot@example.com", To: "admin@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "bot@example.com", n.cfg.From)
}
