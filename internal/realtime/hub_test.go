package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twistedx/killfeed/internal/domain"
	"github.com/twistedx/killfeed/internal/overlay"
)

// --- Fakes ---

type fakeConn struct {
	id string

	mu           sync.Mutex
	received     []Envelope
	disconnected bool
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(data []byte) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	c.mu.Lock()
	c.received = append(c.received, env)
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) Disconnect() {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
}

func (c *fakeConn) events(name string) []json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []json.RawMessage
	for _, env := range c.received {
		if env.Event == name {
			out = append(out, env.Data)
		}
	}
	return out
}

func (c *fakeConn) last(t *testing.T, name string) json.RawMessage {
	t.Helper()
	evs := c.events(name)
	require.NotEmpty(t, evs, "no %s received by %s", name, c.id)
	return evs[len(evs)-1]
}

// fakeBroker delivers publications to every conn subscribed to a channel.
type fakeBroker struct {
	mu   sync.Mutex
	subs map[string][]*fakeConn
	log  []string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{subs: make(map[string][]*fakeConn)}
}

func (b *fakeBroker) subscribe(c *fakeConn, channels ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range channels {
		b.subs[ch] = append(b.subs[ch], c)
	}
}

func (b *fakeBroker) Publish(channel string, data []byte) error {
	b.mu.Lock()
	subs := append([]*fakeConn(nil), b.subs[channel]...)
	b.log = append(b.log, channel)
	b.mu.Unlock()
	for _, c := range subs {
		if err := c.Send(data); err != nil {
			return err
		}
	}
	return nil
}

func (b *fakeBroker) published() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.log...)
}

type nopConfigRepo struct{}

func (nopConfigRepo) Load(context.Context) (*domain.OverlayConfig, error) {
	return nil, domain.ErrConfigNotFound
}

func (nopConfigRepo) Save(context.Context, domain.OverlayConfig) error { return nil }

type fakeRecorder struct {
	mu   sync.Mutex
	seen []string
}

func (r *fakeRecorder) ObserveCommand(command, result string) {
	r.mu.Lock()
	r.seen = append(r.seen, command+"/"+result)
	r.mu.Unlock()
}

// --- Test helpers ---

type testHub struct {
	*Hub
	broker   *fakeBroker
	recorder *fakeRecorder
	clock    *clockwork.FakeClock
}

func newTestHub(t *testing.T, mode AccessMode) *testHub {
	t.Helper()
	broker := newFakeBroker()
	recorder := &fakeRecorder{}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	store := overlay.NewStore(context.Background(), nopConfigRepo{})
	return &testHub{
		Hub:      NewHub(store, broker, recorder, clock, mode),
		broker:   broker,
		recorder: recorder,
		clock:    clock,
	}
}

func (th *testHub) connect(id string, p Principal) *fakeConn {
	c := &fakeConn{id: id}
	th.broker.subscribe(c, ChannelOverlay)
	if p.Level.IsAdmin() {
		th.broker.subscribe(c, ChannelAdmin)
	}
	th.Register(c, p)
	th.clock.Advance(time.Second)
	return c
}

var (
	adminPrincipal = Principal{Name: "boss", DiscordID: "100", Level: domain.LevelAdmin}
	modPrincipal   = Principal{Name: "mod", DiscordID: "200", Level: domain.LevelModerator}
)

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

// --- Registration ---

func TestRegister_PushesSnapshot(t *testing.T) {
	th := newTestHub(t, AccessOAuth)

	c := th.connect("overlay-1", Principal{})

	assert.Equal(t, domain.DefaultOverlayConfig(), decode[domain.OverlayConfig](t, c.last(t, overlay.EventConfigUpdate)))
	assert.Equal(t, domain.Counters{}, decode[domain.Counters](t, c.last(t, overlay.EventCountersUpdate)))
	assert.Equal(t, domain.Message{}, decode[domain.Message](t, c.last(t, overlay.EventMessageUpdate)))
	assert.Empty(t, c.events(EventApprovedModeratorsUpdate))
	assert.Equal(t, Stats{Connections: 1}, th.Stats())
}

func TestRegister_ModeratorJoinsRosterAndAdminsAreNotified(t *testing.T) {
	th := newTestHub(t, AccessOAuth)
	admin := th.connect("a1", adminPrincipal)

	th.connect("m1", modPrincipal)

	roster := decode[[]domain.Participant](t, admin.last(t, EventApprovedModeratorsUpdate))
	require.Len(t, roster, 2)
	assert.Equal(t, "a1", roster[0].ConnID)
	assert.True(t, roster[0].IsAdmin)
	assert.Equal(t, domain.Participant{
		ConnID:      "m1",
		Name:        "mod",
		DiscordID:   "200",
		ConnectedAt: "2026-01-02T03:04:06Z",
	}, roster[1])
	assert.Equal(t, Stats{Connections: 2, Participants: 2, Admins: 1}, th.Stats())
}

func TestRegister_AdminReceivesRosterOnce(t *testing.T) {
	th := newTestHub(t, AccessOAuth)

	admin := th.connect("a1", adminPrincipal)

	require.Len(t, admin.events(EventApprovedModeratorsUpdate), 1)
	roster := decode[[]domain.Participant](t, admin.last(t, EventApprovedModeratorsUpdate))
	require.Len(t, roster, 1)
	assert.Equal(t, "a1", roster[0].ConnID)
	assert.Len(t, admin.events(EventPendingRequestsUpdate), 1)
}

func TestUnregister_UpdatesRoster(t *testing.T) {
	th := newTestHub(t, AccessOAuth)
	admin := th.connect("a1", adminPrincipal)
	th.connect("m1", modPrincipal)

	th.Unregister("m1")

	roster := decode[[]domain.Participant](t, admin.last(t, EventApprovedModeratorsUpdate))
	require.Len(t, roster, 1)
	assert.Equal(t, "a1", roster[0].ConnID)
	_, ok := th.Level("m1")
	assert.False(t, ok)
}

// --- Commands ---

func TestHandle_IncrementBroadcastsToEveryConnection(t *testing.T) {
	th := newTestHub(t, AccessOAuth)
	silent := th.connect("overlay-1", Principal{})
	mod := th.connect("m1", modPrincipal)
	admin := th.connect("a1", adminPrincipal)

	for range 3 {
		require.NoError(t, th.Handle(context.Background(), "m1", overlay.CmdIncrementCounter, json.RawMessage(`"kills"`)))
	}

	want := domain.Counters{Kills: 3}
	for _, c := range []*fakeConn{silent, mod, admin} {
		assert.Equal(t, want, decode[domain.Counters](t, c.last(t, overlay.EventCountersUpdate)), c.id)
	}
	assert.Contains(t, th.recorder.seen, "incrementCounter/ok")
}

func TestHandle_AnonymousCannotMutate(t *testing.T) {
	th := newTestHub(t, AccessOAuth)
	th.connect("overlay-1", Principal{})
	before := len(th.broker.published())

	err := th.Handle(context.Background(), "overlay-1", overlay.CmdIncrementCounter, json.RawMessage(`"kills"`))

	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Len(t, th.broker.published(), before)
	assert.Contains(t, th.recorder.seen, "incrementCounter/unauthorized")
}

func TestHandle_ModeratorCannotUpdateConfig(t *testing.T) {
	th := newTestHub(t, AccessOAuth)
	th.connect("m1", modPrincipal)

	err := th.Handle(context.Background(), "m1", overlay.CmdUpdateConfig, json.RawMessage(`{"message":{"fontSize":1}}`))

	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestHandle_RequestConfigGoesToCallerOnly(t *testing.T) {
	th := newTestHub(t, AccessOAuth)
	caller := th.connect("overlay-1", Principal{})
	other := th.connect("overlay-2", Principal{})
	before := len(other.events(overlay.EventConfigUpdate))

	require.NoError(t, th.Handle(context.Background(), "overlay-1", overlay.CmdRequestConfig, nil))

	assert.Len(t, caller.events(overlay.EventConfigUpdate), 2)
	assert.Len(t, other.events(overlay.EventConfigUpdate), before)
}

func TestHandle_UnknownConnection(t *testing.T) {
	th := newTestHub(t, AccessOAuth)

	err := th.Handle(context.Background(), "ghost", overlay.CmdResetCounters, nil)

	assert.ErrorIs(t, err, domain.ErrUnknownConn)
}

func TestHandle_UnknownCommand(t *testing.T) {
	th := newTestHub(t, AccessOAuth)
	th.connect("a1", adminPrincipal)

	err := th.Handle(context.Background(), "a1", "selfDestruct", nil)

	assert.ErrorIs(t, err, domain.ErrUnknownCommand)
	assert.Contains(t, th.recorder.seen, "unknown/unknown")
}

// --- Manual approval ---

func TestApprovalFlow_Approve(t *testing.T) {
	th := newTestHub(t, AccessApproval)
	admin := th.connect("a1", adminPrincipal)
	guest := th.connect("g1", Principal{})

	require.NoError(t, th.Handle(context.Background(), "g1", CmdRequestParticipantAccess, json.RawMessage(`{"name":"  Guest  "}`)))

	pending := decode[[]domain.PendingRequest](t, admin.last(t, EventPendingRequestsUpdate))
	require.Len(t, pending, 1)
	assert.Equal(t, "g1", pending[0].ConnID)
	assert.Equal(t, "Guest", pending[0].Name)

	require.NoError(t, th.Handle(context.Background(), "a1", CmdApproveParticipant, json.RawMessage(`"g1"`)))

	assert.Len(t, guest.events(EventAccessGranted), 1)
	assert.Empty(t, decode[[]domain.PendingRequest](t, admin.last(t, EventPendingRequestsUpdate)))
	roster := decode[[]domain.Participant](t, admin.last(t, EventApprovedModeratorsUpdate))
	assert.Len(t, roster, 2)

	level, _ := th.Level("g1")
	assert.Equal(t, domain.LevelModerator, level)
	assert.NoError(t, th.Handle(context.Background(), "g1", overlay.CmdIncrementCounter, json.RawMessage(`"kia"`)))
}

func TestApprovalFlow_Deny(t *testing.T) {
	th := newTestHub(t, AccessApproval)
	admin := th.connect("a1", adminPrincipal)
	guest := th.connect("g1", Principal{})
	require.NoError(t, th.Handle(context.Background(), "g1", CmdRequestParticipantAccess, json.RawMessage(`"Guest"`)))

	require.NoError(t, th.Handle(context.Background(), "a1", CmdDenyParticipant, json.RawMessage(`{"socketId":"g1"}`)))

	assert.Len(t, guest.events(EventAccessDenied), 1)
	assert.Empty(t, decode[[]domain.PendingRequest](t, admin.last(t, EventPendingRequestsUpdate)))
	level, _ := th.Level("g1")
	assert.Equal(t, domain.LevelNone, level)
}

func TestApprovalFlow_DefaultName(t *testing.T) {
	th := newTestHub(t, AccessApproval)
	admin := th.connect("a1", adminPrincipal)
	th.connect("g1", Principal{})

	require.NoError(t, th.Handle(context.Background(), "g1", CmdRequestParticipantAccess, nil))

	pending := decode[[]domain.PendingRequest](t, admin.last(t, EventPendingRequestsUpdate))
	require.Len(t, pending, 1)
	assert.Equal(t, "Anonymous", pending[0].Name)
}

func TestApprovalFlow_IgnoredInOAuthMode(t *testing.T) {
	th := newTestHub(t, AccessOAuth)
	th.connect("a1", adminPrincipal)
	th.connect("g1", Principal{})

	require.NoError(t, th.Handle(context.Background(), "g1", CmdRequestParticipantAccess, json.RawMessage(`"Guest"`)))

	assert.Zero(t, th.Stats().Pending)
}

func TestApprovalFlow_OnlyAdminsApprove(t *testing.T) {
	th := newTestHub(t, AccessApproval)
	th.connect("m1", modPrincipal)
	th.connect("g1", Principal{})
	require.NoError(t, th.Handle(context.Background(), "g1", CmdRequestParticipantAccess, json.RawMessage(`"Guest"`)))

	err := th.Handle(context.Background(), "m1", CmdApproveParticipant, json.RawMessage(`"g1"`))

	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	level, _ := th.Level("g1")
	assert.Equal(t, domain.LevelNone, level)
}

func TestUnregister_DropsPendingRequest(t *testing.T) {
	th := newTestHub(t, AccessApproval)
	admin := th.connect("a1", adminPrincipal)
	th.connect("g1", Principal{})
	require.NoError(t, th.Handle(context.Background(), "g1", CmdRequestParticipantAccess, json.RawMessage(`"Guest"`)))

	th.Unregister("g1")

	assert.Empty(t, decode[[]domain.PendingRequest](t, admin.last(t, EventPendingRequestsUpdate)))
}

// --- Kick ---

func TestKick_DisconnectsModerator(t *testing.T) {
	th := newTestHub(t, AccessOAuth)
	admin := th.connect("a1", adminPrincipal)
	mod := th.connect("m1", modPrincipal)

	require.NoError(t, th.Handle(context.Background(), "a1", CmdKickModerator, json.RawMessage(`"m1"`)))

	assert.True(t, mod.disconnected)
	assert.Len(t, mod.events(EventKicked), 1)
	roster := decode[[]domain.Participant](t, admin.last(t, EventApprovedModeratorsUpdate))
	require.Len(t, roster, 1)
	assert.Equal(t, "a1", roster[0].ConnID)

	err := th.Handle(context.Background(), "m1", overlay.CmdIncrementCounter, json.RawMessage(`"kills"`))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestKick_AdminsCannotBeKicked(t *testing.T) {
	th := newTestHub(t, AccessOAuth)
	th.connect("a1", adminPrincipal)
	other := th.connect("a2", adminPrincipal)

	require.NoError(t, th.Handle(context.Background(), "a1", CmdKickParticipant, json.RawMessage(`"a2"`)))

	assert.False(t, other.disconnected)
	assert.Equal(t, 2, th.Stats().Participants)
}

func TestKick_RequiresAdmin(t *testing.T) {
	th := newTestHub(t, AccessOAuth)
	th.connect("m1", modPrincipal)
	victim := th.connect("m2", modPrincipal)

	err := th.Handle(context.Background(), "m1", CmdKickParticipant, json.RawMessage(`"m2"`))

	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.False(t, victim.disconnected)
}

func TestParticipantName(t *testing.T) {
	assert.Equal(t, "Anonymous", participantName("   "))
	assert.Equal(t, "bob", participantName(" bob "))
	assert.Len(t, []rune(participantName(string(make([]rune, 80)))), maxParticipantName)
}
