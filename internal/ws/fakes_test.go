package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fathima-sithara/relay-service/internal/domain"
	"github.com/fathima-sithara/relay-service/internal/errs"
	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/require"
)

var errSocketClosed = errors.New("socket closed")

// fakeSocket feeds frames from in and records text frames written to out.
type fakeSocket struct {
	in        chan []byte
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (f *fakeSocket) ReadMessage() (int, []byte, error) {
	select {
	case b := <-f.in:
		return websocket.TextMessage, b, nil
	case <-f.closed:
		return 0, nil, errSocketClosed
	}
}

func (f *fakeSocket) WriteMessage(mt int, data []byte) error {
	select {
	case <-f.closed:
		return errSocketClosed
	default:
	}
	if mt == websocket.TextMessage {
		f.out <- data
	}
	return nil
}

func (f *fakeSocket) SetReadLimit(int64)                {}
func (f *fakeSocket) SetReadDeadline(time.Time) error   { return nil }
func (f *fakeSocket) SetWriteDeadline(time.Time) error  { return nil }
func (f *fakeSocket) SetPongHandler(func(string) error) {}

func (f *fakeSocket) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeSocket) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeSocket) push(t *testing.T, event string, data any) {
	t.Helper()
	frame, err := encode(event, data)
	require.NoError(t, err)
	f.in <- frame
}

func (f *fakeSocket) next(t *testing.T) Envelope {
	t.Helper()
	select {
	case b := <-f.out:
		var env Envelope
		require.NoError(t, json.Unmarshal(b, &env))
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return Envelope{}
	}
}

func (f *fakeSocket) quiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case b := <-f.out:
		t.Fatalf("unexpected frame %s", b)
	case <-time.After(d):
	}
}

// nextFrame reads a frame queued on a client without a running write loop.
func nextFrame(t *testing.T, c *Client) Envelope {
	t.Helper()
	select {
	case b := <-c.send:
		var env Envelope
		require.NoError(t, json.Unmarshal(b, &env))
		return env
	default:
		t.Fatal("no frame queued")
		return Envelope{}
	}
}

func messageOf(t *testing.T, env Envelope) domain.Message {
	t.Helper()
	require.Equal(t, EventMessageNew, env.Event)
	var m domain.Message
	require.NoError(t, json.Unmarshal(env.Data, &m))
	return m
}

// failingAppender fails every append the way a dead store does.
type failingAppender struct{}

func (failingAppender) Append(context.Context, string, string, string, domain.Kind) (*domain.Message, error) {
	return nil, errs.Store("append", errors.New("connection refused"))
}
