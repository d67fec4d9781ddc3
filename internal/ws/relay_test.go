package ws

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/fathima-sithara/relay-service/internal/domain"
	"github.com/fathima-sithara/relay-service/internal/metrics"
	"github.com/fathima-sithara/relay-service/internal/repository"
	"github.com/fathima-sithara/relay-service/internal/service"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type relayFixture struct {
	store    *repository.MemoryMessageStore
	registry *Registry
	relay    *Relay
	metrics  *metrics.Metrics
}

func newRelayFixture() *relayFixture {
	store := repository.NewMemoryMessageStore()
	users := repository.NewMemoryUserDirectory(
		domain.User{ID: "alice", Name: "Alice"},
		domain.User{ID: "bob", Name: "Bob"},
		domain.User{ID: "carol", Name: "Carol"},
	)
	reg := NewRegistry()
	m := metrics.New()
	svc := service.NewMessageService(store, users, nil, zap.NewNop())
	return &relayFixture{store: store, registry: reg, relay: NewRelay(svc, reg, m, zap.NewNop()), metrics: m}
}

func (f *relayFixture) connect(id, user string) *Client {
	c := newClient(id, user, nil, 8)
	f.registry.Register(c)
	return c
}

func TestOnSendFansOutToBothParticipants(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture()
	// Given alice on two tabs, bob on one, carol unrelated
	a1, a2 := f.connect("a1", "alice"), f.connect("a2", "alice")
	b1 := f.connect("b1", "bob")
	c1 := f.connect("c1", "carol")

	// When
	f.relay.OnSend(context.Background(), a1, SendEvent{To: "bob", Content: "hi", Kind: "sticker"})

	// Then every connection of both participants sees the same stored message
	history, err := f.store.History(context.Background(), "alice", "bob")
	req.NoError(err)
	req.Len(history, 1)
	for _, c := range []*Client{a1, a2, b1} {
		got := messageOf(t, nextFrame(t, c))
		req.Equal(history[0].ID, got.ID)
		req.Equal("alice", got.From)
		req.Equal("bob", got.To)
		req.Equal(domain.KindSticker, got.Kind)
		req.True(history[0].Timestamp.Equal(got.Timestamp))
	}
	req.Empty(c1.send)
	req.Equal(float64(3), testutil.ToFloat64(f.metrics.Deliveries))
}

func TestOnSendDropsEmptyEventsSilently(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture()
	a := f.connect("a", "alice")
	b := f.connect("b", "bob")

	f.relay.OnSend(context.Background(), a, SendEvent{To: "bob", Content: ""})
	f.relay.OnSend(context.Background(), a, SendEvent{To: "", Content: "hello"})

	latest, err := f.store.LatestPerContact(context.Background(), "alice")
	req.NoError(err)
	req.Empty(latest)
	req.Empty(a.send)
	req.Empty(b.send)
	req.Equal(float64(2), testutil.ToFloat64(f.metrics.SendsDropped.WithLabelValues(metrics.DropEmpty)))
}

func TestOnSendCoercesUnknownKindToText(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture()
	a := f.connect("a", "alice")

	for _, kind := range []string{"", "gif", "Sticker", "text"} {
		f.relay.OnSend(context.Background(), a, SendEvent{To: "bob", Content: "x", Kind: kind})
		req.Equal(domain.KindText, messageOf(t, nextFrame(t, a)).Kind)
	}

	history, err := f.store.History(context.Background(), "bob", "alice")
	req.NoError(err)
	req.Len(history, 4)
	for _, m := range history {
		req.Equal(domain.KindText, m.Kind)
	}
}

func TestOnSendFailureReportsToOriginOnly(t *testing.T) {
	req := require.New(t)
	reg := NewRegistry()
	m := metrics.New()
	relay := NewRelay(failingAppender{}, reg, m, zap.NewNop())
	a1 := newClient("a1", "alice", nil, 8)
	a2 := newClient("a2", "alice", nil, 8)
	b := newClient("b", "bob", nil, 8)
	for _, c := range []*Client{a1, a2, b} {
		reg.Register(c)
	}

	relay.OnSend(context.Background(), a1, SendEvent{To: "bob", Content: "hi"})

	env := nextFrame(t, a1)
	req.Equal(EventError, env.Event)
	var payload ErrorEvent
	req.NoError(json.Unmarshal(env.Data, &payload))
	req.Equal(sendFailedMessage, payload.Message)
	req.Empty(a2.send)
	req.Empty(b.send)
	req.Equal(float64(1), testutil.ToFloat64(m.SendFailures))
}

func TestOnSendSelfAddressedIsAnError(t *testing.T) {
	f := newRelayFixture()
	a := f.connect("a", "alice")

	f.relay.OnSend(context.Background(), a, SendEvent{To: "alice", Content: "note to self"})

	require.Equal(t, EventError, nextFrame(t, a).Event)
}

func TestBroadcastSkipsClosedConnections(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture()
	a := f.connect("a", "alice")
	b := f.connect("b", "bob")
	b.Close()

	var n int
	req.NotPanics(func() {
		n = f.relay.Broadcast(&domain.Message{ID: "1", From: "alice", To: "bob", Content: "x", Kind: domain.KindText})
	})

	req.Equal(1, n)
	req.Len(a.send, 1)
	req.Empty(b.send)
}

func TestOnSendRecipientOffline(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture()
	a := f.connect("a", "alice")

	f.relay.OnSend(context.Background(), a, SendEvent{To: "carol", Content: "are you there?"})

	req.Equal("are you there?", messageOf(t, nextFrame(t, a)).Content)
	history, err := f.store.History(context.Background(), "carol", "alice")
	req.NoError(err)
	req.Len(history, 1)
}

func TestDecodeSendEventIsLenient(t *testing.T) {
	req := require.New(t)

	ev, ok := decodeSendEvent(json.RawMessage(`{"to":"bob","content":"hi","kind":42}`))
	req.True(ok)
	req.Equal(SendEvent{To: "bob", Content: "hi"}, ev)

	ev, ok = decodeSendEvent(json.RawMessage(`{"to":7,"content":"hi"}`))
	req.True(ok)
	req.Empty(ev.To)

	_, ok = decodeSendEvent(json.RawMessage(`"just a string"`))
	req.False(ok)

	_, ok = decodeSendEvent(nil)
	req.False(ok)
}
