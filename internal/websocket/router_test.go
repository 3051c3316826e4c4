package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"chat-relay/internal/models"
	"chat-relay/internal/registry"
	"chat-relay/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rig struct {
	registry *registry.Registry
	hub      *Hub
	router   *Router
	store    store.MessageStore
}

func newRig(t *testing.T, messages store.MessageStore) *rig {
	t.Helper()
	if messages == nil {
		messages = store.NewMemoryStore()
	}
	reg := registry.New()
	hub := NewHub()
	return &rig{
		registry: reg,
		hub:      hub,
		router:   NewRouter(reg, messages, hub, time.Second),
		store:    messages,
	}
}

// connect attaches a pump-less client; tests read delivered frames
// straight off the send channel.
func (r *rig) connect(t *testing.T) *Client {
	t.Helper()
	c := NewClient(r.registry.Register(), nil, r.router)
	r.hub.Attach(c)
	return c
}

func (r *rig) dispatch(c *Client, format string, args ...any) {
	r.router.Dispatch(c, []byte(fmt.Sprintf(format, args...)))
}

func (r *rig) login(t *testing.T, c *Client, name string) {
	t.Helper()
	r.dispatch(c, `{"type":"login","username":%q}`, name)
	ev := recv(t, c)
	require.Equal(t, models.EventLogin, ev.Type)
	require.True(t, ev.Success)
	drainAll(r)
}

func recv(t *testing.T, c *Client) *models.ServerEvent {
	t.Helper()
	select {
	case data := <-c.send:
		ev := &models.ServerEvent{}
		require.NoError(t, json.Unmarshal(data, ev))
		return ev
	default:
		t.Fatal("expected a delivered event, got none")
		return nil
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("expected no delivery, got %s", data)
	default:
	}
}

func drain(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func drainAll(r *rig) {
	r.hub.mu.RLock()
	defer r.hub.mu.RUnlock()
	for _, c := range r.hub.clients {
		drain(c)
	}
}

type failingStore struct{}

func (failingStore) Append(context.Context, *models.Message) error { return errors.New("store down") }
func (failingStore) History(context.Context, string) ([]*models.Message, error) {
	return nil, errors.New("store down")
}
func (failingStore) Close() error { return nil }

func TestLoginSuccessAcksAndBroadcastsRoster(t *testing.T) {
	r := newRig(t, nil)
	alice := r.connect(t)
	observer := r.connect(t)

	r.dispatch(alice, `{"type":"login","username":"alice"}`)

	ack := recv(t, alice)
	assert.Equal(t, models.EventLogin, ack.Type)
	assert.True(t, ack.Success)

	roster := recv(t, observer)
	require.Equal(t, models.EventUserList, roster.Type)
	require.Len(t, roster.Users, 1)
	assert.Equal(t, "alice", roster.Users[0].Name)
	assert.Equal(t, models.StatusOnline, roster.Users[0].Status)
}

func TestLoginTrimsUsername(t *testing.T) {
	r := newRig(t, nil)
	c := r.connect(t)

	r.dispatch(c, `{"type":"login","username":"  alice  "}`)
	ev := recv(t, c)
	require.True(t, ev.Success)

	_, ok := r.registry.Resolve("alice")
	assert.True(t, ok)
}

func TestLoginCollisionErrorsSenderOnly(t *testing.T) {
	r := newRig(t, nil)
	first := r.connect(t)
	second := r.connect(t)
	r.login(t, first, "alice")

	r.dispatch(second, `{"type":"login","username":"alice"}`)

	ev := recv(t, second)
	assert.Equal(t, models.EventError, ev.Type)
	assert.Equal(t, "Username already taken", ev.Message)
	assertSilent(t, first)
}

func TestLoginRequiresUsername(t *testing.T) {
	r := newRig(t, nil)
	c := r.connect(t)

	r.dispatch(c, `{"type":"login","username":"   "}`)
	ev := recv(t, c)
	assert.Equal(t, models.EventError, ev.Type)
}

func TestSecondLoginOnSameConnectionRejected(t *testing.T) {
	r := newRig(t, nil)
	c := r.connect(t)
	r.login(t, c, "alice")

	r.dispatch(c, `{"type":"login","username":"alice2"}`)
	ev := recv(t, c)
	assert.Equal(t, models.EventError, ev.Type)

	_, ok := r.registry.Resolve("alice2")
	assert.False(t, ok)
}

func TestEventsBeforeLoginRejected(t *testing.T) {
	r := newRig(t, nil)
	c := r.connect(t)

	for _, frame := range []string{
		`{"type":"joinRoom","room":"general"}`,
		`{"type":"message","room":"general","text":"hi"}`,
		`{"type":"status","status":"online"}`,
	} {
		r.router.Dispatch(c, []byte(frame))
		ev := recv(t, c)
		assert.Equal(t, models.EventError, ev.Type, "frame %s", frame)
	}
}

func TestMalformedFrameDroppedWithoutResponse(t *testing.T) {
	r := newRig(t, nil)
	c := r.connect(t)

	r.router.Dispatch(c, []byte(`{not json`))
	assertSilent(t, c)

	// The connection keeps working afterwards.
	r.login(t, c, "alice")
}

func TestUnknownEventTypeDropped(t *testing.T) {
	r := newRig(t, nil)
	c := r.connect(t)
	r.login(t, c, "alice")

	r.dispatch(c, `{"type":"teleport"}`)
	assertSilent(t, c)
}

func TestJoinRoomAckThenHistory(t *testing.T) {
	r := newRig(t, nil)
	seed := []*models.Message{
		{Room: "general", Username: "zed", Text: "first", Timestamp: time.Now().UTC()},
		{Room: "general", Username: "zed", Text: "second", Timestamp: time.Now().UTC()},
	}
	for _, m := range seed {
		require.NoError(t, r.store.Append(context.Background(), m))
	}

	c := r.connect(t)
	r.login(t, c, "alice")

	r.dispatch(c, `{"type":"joinRoom","room":"general"}`)

	ack := recv(t, c)
	assert.Equal(t, models.EventJoinedRoom, ack.Type)
	assert.Equal(t, "general", ack.Room)

	history := recv(t, c)
	require.Equal(t, models.EventHistory, history.Type)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, "first", history.Messages[0].Text)
	assert.Equal(t, "second", history.Messages[1].Text)
}

func TestJoinRoomHistoryGoesToJoinerOnly(t *testing.T) {
	r := newRig(t, nil)
	alice := r.connect(t)
	bob := r.connect(t)
	r.login(t, alice, "alice")
	r.login(t, bob, "bob")

	r.dispatch(alice, `{"type":"joinRoom","room":"general"}`)
	recv(t, alice) // joinedRoom
	recv(t, alice) // history
	assertSilent(t, bob)
}

func TestJoinRoomStoreUnavailable(t *testing.T) {
	r := newRig(t, failingStore{})
	c := r.connect(t)
	r.login(t, c, "alice")

	r.dispatch(c, `{"type":"joinRoom","room":"general"}`)

	ev := recv(t, c)
	assert.Equal(t, models.EventError, ev.Type)
	// The failed join must not create membership.
	assert.Empty(t, r.registry.MembersOf("general"))
}

func TestRoomMessagePersistedAndBroadcastToEveryone(t *testing.T) {
	r := newRig(t, nil)
	alice := r.connect(t)
	bob := r.connect(t)
	r.login(t, alice, "alice")
	r.login(t, bob, "bob")
	r.dispatch(alice, `{"type":"joinRoom","room":"general"}`)
	drainAll(r)

	r.dispatch(alice, `{"type":"message","room":"general","text":"hi"}`)

	// bob never joined general, yet still receives the broadcast.
	for _, c := range []*Client{alice, bob} {
		ev := recv(t, c)
		assert.Equal(t, models.EventMessage, ev.Type)
		assert.Equal(t, "general", ev.Room)
		assert.Equal(t, "alice", ev.Username)
		assert.Equal(t, "hi", ev.Text)
		assert.NotEmpty(t, ev.Timestamp)
	}

	history, err := r.store.History(context.Background(), "general")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "alice", history[0].Username)
	assert.Equal(t, "hi", history[0].Text)
}

func TestEmptyMessageRejectedBeforeDispatch(t *testing.T) {
	r := newRig(t, nil)
	alice := r.connect(t)
	bob := r.connect(t)
	r.login(t, alice, "alice")
	r.login(t, bob, "bob")

	r.dispatch(alice, `{"type":"message","room":"general"}`)

	assertSilent(t, alice)
	assertSilent(t, bob)
	history, err := r.store.History(context.Background(), "general")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestFileOnlyMessageIsValid(t *testing.T) {
	r := newRig(t, nil)
	alice := r.connect(t)
	r.login(t, alice, "alice")

	r.dispatch(alice, `{"type":"message","room":"general","file":"aGVsbG8="}`)

	ev := recv(t, alice)
	assert.Equal(t, models.EventMessage, ev.Type)
	assert.Equal(t, "aGVsbG8=", ev.File)

	history, err := r.store.History(context.Background(), "general")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "aGVsbG8=", history[0].File)
}

func TestRoomMessageBroadcastSurvivesStoreFailure(t *testing.T) {
	r := newRig(t, failingStore{})
	alice := r.connect(t)
	r.login(t, alice, "alice")

	r.dispatch(alice, `{"type":"message","room":"general","text":"hi"}`)

	ev := recv(t, alice)
	assert.Equal(t, models.EventMessage, ev.Type)
	assert.Equal(t, "hi", ev.Text)
}

func TestPrivateMessageDeliveredAndMirrored(t *testing.T) {
	r := newRig(t, nil)
	alice := r.connect(t)
	bob := r.connect(t)
	carol := r.connect(t)
	r.login(t, alice, "alice")
	r.login(t, bob, "bob")
	r.login(t, carol, "carol")

	r.dispatch(alice, `{"type":"message","to":"bob","text":"psst"}`)

	delivered := recv(t, bob)
	assert.Equal(t, models.EventMessage, delivered.Type)
	assert.Equal(t, "alice", delivered.From)
	assert.Equal(t, "bob", delivered.To)
	assert.Equal(t, "psst", delivered.Text)

	// Sender's echo is labeled as if received from the target.
	echo := recv(t, alice)
	assert.Equal(t, "bob", echo.From)
	assert.Equal(t, "alice", echo.To)
	assert.Equal(t, delivered.Timestamp, echo.Timestamp)

	assertSilent(t, carol)

	// Private messages are never persisted.
	history, err := r.store.History(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestPrivateMessageToUnknownUserSilentlyDropped(t *testing.T) {
	r := newRig(t, nil)
	alice := r.connect(t)
	r.login(t, alice, "alice")

	r.dispatch(alice, `{"type":"message","to":"ghost","text":"hello?"}`)
	assertSilent(t, alice)
}

func TestStatusTriggersRosterBroadcast(t *testing.T) {
	r := newRig(t, nil)
	alice := r.connect(t)
	bob := r.connect(t)
	r.login(t, alice, "alice")
	r.login(t, bob, "bob")

	r.dispatch(alice, `{"type":"status","status":"offline"}`)

	for _, c := range []*Client{alice, bob} {
		ev := recv(t, c)
		require.Equal(t, models.EventUserList, ev.Type)
		require.Len(t, ev.Users, 2)
		// Liveness wins over the claimed value: both are still connected.
		assert.Equal(t, models.StatusOnline, ev.Users[0].Status)
		assert.Equal(t, models.StatusOnline, ev.Users[1].Status)
	}
}

func TestDisconnectFreesNameAndMarksOffline(t *testing.T) {
	r := newRig(t, nil)
	alice := r.connect(t)
	bob := r.connect(t)
	r.login(t, alice, "alice")
	r.login(t, bob, "bob")

	r.router.HandleDisconnect(alice)

	roster := recv(t, bob)
	require.Equal(t, models.EventUserList, roster.Type)
	require.Len(t, roster.Users, 2)
	assert.Equal(t, "alice", roster.Users[0].Name)
	assert.Equal(t, models.StatusOffline, roster.Users[0].Status)
	assert.Equal(t, "bob", roster.Users[1].Name)
	assert.Equal(t, models.StatusOnline, roster.Users[1].Status)

	// The name is immediately reclaimable by a new connection.
	alice2 := r.connect(t)
	r.dispatch(alice2, `{"type":"login","username":"alice"}`)
	ev := recv(t, alice2)
	assert.True(t, ev.Success)
}

// The alice/bob scenario: alice logs in, joins general, says hi; bob logs
// in and joins general, receiving that message as history before any new
// broadcast.
func TestNewJoinerSeesPersistedHistory(t *testing.T) {
	r := newRig(t, nil)
	alice := r.connect(t)
	r.login(t, alice, "alice")
	r.dispatch(alice, `{"type":"joinRoom","room":"general"}`)
	r.dispatch(alice, `{"type":"message","room":"general","text":"hi"}`)
	drainAll(r)

	bob := r.connect(t)
	r.login(t, bob, "bob")
	r.dispatch(bob, `{"type":"joinRoom","room":"general"}`)

	ack := recv(t, bob)
	require.Equal(t, models.EventJoinedRoom, ack.Type)

	history := recv(t, bob)
	require.Equal(t, models.EventHistory, history.Type)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "alice", history.Messages[0].Username)
	assert.Equal(t, "hi", history.Messages[0].Text)
}
