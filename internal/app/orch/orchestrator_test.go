package orch

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/avelin/Parley/internal/app"
	"github.com/avelin/Parley/internal/core"
	"github.com/avelin/Parley/internal/domain"
)

// fakeConn records every frame the orchestrator pushes at it.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
	fail   bool
}

func (f *fakeConn) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errors.New("connection closed")
	}
	if f.fail {
		return errors.New("backpressure")
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeConn) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeConn) events(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.frames))
	for _, fr := range f.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(fr, &m))
		out = append(out, m)
	}
	return out
}

func (f *fakeConn) ofType(t *testing.T, typ string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, e := range f.events(t) {
		if e["type"] == typ {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	f.frames = nil
	f.mu.Unlock()
}

func newTestOrch() *Orchestrator {
	return &Orchestrator{
		Registry:   app.NewRegistry(),
		Rooms:      app.NewRoomStore(),
		Policy:     app.KickSlowPolicy{},
		RequestTTL: time.Minute,
	}
}

func connect(o *Orchestrator, sid core.SessionID, name string) *fakeConn {
	c := &fakeConn{}
	o.Connect(sid, c, name)
	return c
}

func boolPtr(b bool) *bool { return &b }

// assertHostInvariant checks host ∈ participants ∪ {none}.
func assertHostInvariant(t *testing.T, o *Orchestrator, roomID domain.RoomID) {
	t.Helper()
	host, ok := o.Rooms.Host(roomID)
	if !ok {
		return
	}
	for _, sid := range o.Rooms.Participants(roomID) {
		if sid == host {
			return
		}
	}
	t.Fatalf("host %s is not a participant of %s", host, roomID)
}

func TestRequestJoin_AutoHostOnUnknownRoom(t *testing.T) {
	req := require.New(t)
	o := newTestOrch()
	a := connect(o, "A", "alice")

	req.NoError(o.RequestJoin("A", "R1", "alice"))

	// Room id is normalized.
	req.Equal([]core.SessionID{"A"}, o.Rooms.Participants("r1"))
	host, ok := o.Rooms.Host("r1")
	req.True(ok)
	req.Equal(core.SessionID("A"), host)

	joined := a.ofType(t, EventRoomJoined)
	req.Len(joined, 1)
	req.Equal("r1", joined[0]["roomId"])
	req.True(joined[0]["isHost"].(bool))
	req.Empty(joined[0]["participants"])

	lists := a.ofType(t, EventParticipantList)
	req.Len(lists, 1)
	req.Len(lists[0]["participants"], 1)
	assertHostInvariant(t, o, "r1")
}

func TestRequestJoin_InvalidRoomID(t *testing.T) {
	o := newTestOrch()
	connect(o, "A", "alice")
	require.ErrorIs(t, o.RequestJoin("A", "   ", "alice"), domain.ErrRoomIDEmpty)
}

func TestRequestJoin_SecondConnectionWaits(t *testing.T) {
	req := require.New(t)
	o := newTestOrch()
	a := connect(o, "A", "alice")
	b := connect(o, "B", "bob")
	req.NoError(o.RequestJoin("A", "r1", "alice"))
	a.reset()

	req.NoError(o.RequestJoin("B", "r1", "bob"))
	req.NoError(o.RequestJoin("B", "r1", "bob"))
	req.NoError(o.RequestJoin("B", "r1", "bob"))

	waiting := b.ofType(t, EventWaitingForApproval)
	req.Len(waiting, 1, "duplicate requests are deduplicated")
	req.Equal("r1", waiting[0]["roomId"])

	notices := a.ofType(t, EventJoinRequest)
	req.Len(notices, 1, "host sees exactly one notice per distinct requester")
	req.Equal("B", notices[0]["userId"])
	req.Equal("bob", notices[0]["username"])

	req.Equal([]core.SessionID{"A"}, o.Rooms.Participants("r1"), "requester is not yet a participant")
}

func TestRequestJoin_ReJoinIsIdempotent(t *testing.T) {
	req := require.New(t)
	o := newTestOrch()
	a := connect(o, "A", "alice")
	req.NoError(o.RequestJoin("A", "r1", "alice"))
	a.reset()

	req.NoError(o.RequestJoin("A", "r1", "alice"))

	req.Equal([]core.SessionID{"A"}, o.Rooms.Participants("r1"))
	joined := a.ofType(t, EventRoomJoined)
	req.Len(joined, 1, "snapshot is re-emitted")
	req.True(joined[0]["isHost"].(bool))
	req.Empty(a.ofType(t, EventWaitingForApproval))
}

func TestApprove_ByNonHost_NoOp(t *testing.T) {
	req := require.New(t)
	o := newTestOrch()
	connect(o, "A", "alice")
	connect(o, "B", "bob")
	connect(o, "C", "carol")
	req.NoError(o.RequestJoin("A", "r1", "alice"))
	req.NoError(o.RequestJoin("B", "r1", "bob"))

	o.Approve("C", "r1", "B")
	o.Reject("C", "r1", "B")

	req.Equal([]core.SessionID{"A"}, o.Rooms.Participants("r1"))
	_, pending := o.Rooms.TakeRequest("r1", "B")
	req.True(pending, "waiting list unchanged by non-host calls")
}

func TestApprove_AdmitsRequester(t *testing.T) {
	req := require.New(t)
	o := newTestOrch()
	a := connect(o, "A", "alice")
	b := connect(o, "B", "bob")
	req.NoError(o.RequestJoin("A", "r1", "alice"))
	req.NoError(o.RequestJoin("B", "r1", "bob"))
	a.reset()
	b.reset()

	o.Approve("A", "r1", "B")

	req.Equal([]core.SessionID{"A", "B"}, o.Rooms.Participants("r1"))

	joined := b.ofType(t, EventRoomJoined)
	req.Len(joined, 1)
	req.False(joined[0]["isHost"].(bool))
	peers := joined[0]["participants"].([]any)
	req.Len(peers, 1, "snapshot excludes self")
	peer := peers[0].(map[string]any)
	req.Equal("A", peer["userId"])
	req.Equal("alice", peer["username"])
	req.True(peer["isHost"].(bool))

	userJoined := a.ofType(t, EventUserJoined)
	req.Len(userJoined, 1)
	req.Equal("B", userJoined[0]["userId"])

	for _, c := range []*fakeConn{a, b} {
		lists := c.ofType(t, EventParticipantList)
		req.NotEmpty(lists)
		req.Len(lists[len(lists)-1]["participants"], 2)
	}
	assertHostInvariant(t, o, "r1")
}

func TestReject_NotifiesRequesterOnly(t *testing.T) {
	req := require.New(t)
	o := newTestOrch()
	connect(o, "A", "alice")
	b := connect(o, "B", "bob")
	req.NoError(o.RequestJoin("A", "r1", "alice"))
	req.NoError(o.RequestJoin("B", "r1", "bob"))
	b.reset()

	o.Reject("A", "r1", "B")

	rejected := b.ofType(t, EventJoinRejected)
	req.Len(rejected, 1)
	req.Equal("r1", rejected[0]["roomId"])
	req.Equal([]core.SessionID{"A"}, o.Rooms.Participants("r1"), "rejected requester never joins")

	// A fresh request after rejection is allowed.
	b.reset()
	req.NoError(o.RequestJoin("B", "r1", "bob"))
	req.Len(b.ofType(t, EventWaitingForApproval), 1)
}

func TestHostDisconnect_MigratesAndRedelivers(t *testing.T) {
	req := require.New(t)
	o := newTestOrch()
	connect(o, "A", "alice")
	b := connect(o, "B", "bob")
	connect(o, "C", "carol")
	req.NoError(o.RequestJoin("A", "r1", "alice"))
	req.NoError(o.RequestJoin("B", "r1", "bob"))
	o.Approve("A", "r1", "B")
	req.NoError(o.RequestJoin("C", "r1", "carol"))
	b.reset()

	o.Disconnect("A")

	req.Equal([]core.SessionID{"B"}, o.Rooms.Participants("r1"))
	host, ok := o.Rooms.Host("r1")
	req.True(ok)
	req.Equal(core.SessionID("B"), host)

	req.Len(b.ofType(t, EventYouAreHost), 1)
	redelivered := b.ofType(t, EventJoinRequest)
	req.Len(redelivered, 1, "pending requests re-delivered to new host")
	req.Equal("C", redelivered[0]["userId"])
	left := b.ofType(t, EventUserLeft)
	req.Len(left, 1)
	req.Equal("A", left[0]["userId"])
	assertHostInvariant(t, o, "r1")
}

func TestDisconnect_LastParticipantDeletesRoom(t *testing.T) {
	req := require.New(t)
	o := newTestOrch()
	connect(o, "A", "alice")
	req.NoError(o.RequestJoin("A", "r1", "alice"))

	o.Disconnect("A")
	exists, _ := o.Rooms.Exists("r1")
	req.False(exists)

	// Fresh room, fresh auto-host.
	b := connect(o, "B", "bob")
	req.NoError(o.RequestJoin("B", "r1", "bob"))
	joined := b.ofType(t, EventRoomJoined)
	req.Len(joined, 1)
	req.True(joined[0]["isHost"].(bool))
}

func TestDisconnect_Idempotent(t *testing.T) {
	req := require.New(t)
	o := newTestOrch()
	connect(o, "A", "alice")
	req.NoError(o.RequestJoin("A", "r1", "alice"))

	o.Disconnect("A")
	o.Disconnect("A")
	req.Equal(0, o.Registry.LiveCount())
}

func TestDisconnect_PurgesWaitingEntry(t *testing.T) {
	req := require.New(t)
	o := newTestOrch()
	a := connect(o, "A", "alice")
	connect(o, "B", "bob")
	req.NoError(o.RequestJoin("A", "r1", "alice"))
	req.NoError(o.RequestJoin("B", "r1", "bob"))
	a.reset()

	o.Disconnect("B")

	// Stale approve of the vanished requester is a silent no-op.
	o.Approve("A", "r1", "B")
	req.Equal([]core.SessionID{"A"}, o.Rooms.Participants("r1"))
	req.Empty(a.ofType(t, EventUserJoined))
}

func TestMediaChanged_DeltaAndRoster(t *testing.T) {
	req := require.New(t)
	o := newTestOrch()
	a := connect(o, "A", "alice")
	b := connect(o, "B", "bob")
	req.NoError(o.RequestJoin("A", "r1", "alice"))
	req.NoError(o.RequestJoin("B", "r1", "bob"))
	o.Approve("A", "r1", "B")
	a.reset()
	b.reset()

	o.MediaChanged("A", domain.MediaDelta{Muted: boolPtr(true)})
	o.MediaChanged("A", domain.MediaDelta{VideoOff: boolPtr(true)})

	deltas := b.ofType(t, EventMediaStateChanged)
	req.Len(deltas, 2)
	req.Equal("A", deltas[0]["userId"])
	req.Equal(true, deltas[0]["muted"])
	_, hasVideo := deltas[0]["videoOff"]
	req.False(hasVideo, "delta carries only the changed keys")

	req.Empty(a.ofType(t, EventMediaStateChanged), "raw delta excludes the sender")

	lists := a.ofType(t, EventParticipantList)
	req.Len(lists, 2, "full roster follows every delta")
	last := lists[1]["participants"].([]any)
	for _, p := range last {
		entry := p.(map[string]any)
		if entry["userId"] == "A" {
			media := entry["mediaState"].(map[string]any)
			req.Equal(true, media["muted"], "merged, not replaced")
			req.Equal(true, media["videoOff"])
		}
	}
}

func TestMediaChanged_OutsideRoom_NoBroadcast(t *testing.T) {
	req := require.New(t)
	o := newTestOrch()
	a := connect(o, "A", "alice")

	o.MediaChanged("A", domain.MediaDelta{Muted: boolPtr(true)})
	req.Empty(a.events(t))

	u, _ := o.Registry.View("A")
	req.True(u.Media.Muted, "state still merged for later joins")
}

func TestChat_BroadcastIncludesSender(t *testing.T) {
	req := require.New(t)
	o := newTestOrch()
	a := connect(o, "A", "alice")
	b := connect(o, "B", "bob")
	req.NoError(o.RequestJoin("A", "r1", "alice"))
	req.NoError(o.RequestJoin("B", "r1", "bob"))
	o.Approve("A", "r1", "B")
	a.reset()
	b.reset()

	o.Chat("A", ChatInput{Message: "hello"})

	for _, c := range []*fakeConn{a, b} {
		msgs := c.ofType(t, EventChatMessage)
		req.Len(msgs, 1)
		req.Equal("hello", msgs[0]["message"])
		req.Equal("A", msgs[0]["userId"])
		req.Equal("alice", msgs[0]["username"])
		req.Equal("text", msgs[0]["messageType"])
		req.Equal("r1", msgs[0]["roomId"])
		req.NotEmpty(msgs[0]["timestamp"])
	}
}

func TestChat_ImagePassthrough(t *testing.T) {
	req := require.New(t)
	o := newTestOrch()
	a := connect(o, "A", "alice")
	req.NoError(o.RequestJoin("A", "r1", "alice"))
	a.reset()

	o.Chat("A", ChatInput{MessageType: "image", ImageURL: "data:image/png;base64,xyz"})

	msgs := a.ofType(t, EventChatMessage)
	req.Len(msgs, 1)
	req.Equal("image", msgs[0]["messageType"])
	req.Equal("data:image/png;base64,xyz", msgs[0]["imageUrl"])
}

func TestTyping_ExcludesSender(t *testing.T) {
	req := require.New(t)
	o := newTestOrch()
	a := connect(o, "A", "alice")
	b := connect(o, "B", "bob")
	req.NoError(o.RequestJoin("A", "r1", "alice"))
	req.NoError(o.RequestJoin("B", "r1", "bob"))
	o.Approve("A", "r1", "B")
	a.reset()
	b.reset()

	o.Typing("A")
	o.StopTyping("A")

	req.Empty(a.ofType(t, EventTyping))
	req.Empty(a.ofType(t, EventStopTyping))

	typing := b.ofType(t, EventTyping)
	req.Len(typing, 1)
	req.Equal("A", typing[0]["userId"])
	req.Equal("alice", typing[0]["username"])
	req.Len(b.ofType(t, EventStopTyping), 1)
}

func TestRelaySignal_InjectsSender(t *testing.T) {
	req := require.New(t)
	o := newTestOrch()
	connect(o, "A", "alice")
	b := connect(o, "B", "bob")

	o.RelaySignal("A", "B", SignalOffer, json.RawMessage(`{"sdp":"v=0"}`))

	offers := b.ofType(t, EventWebRTCOffer)
	req.Len(offers, 1)
	req.Equal("A", offers[0]["fromUserId"])
	offer := offers[0]["offer"].(map[string]any)
	req.Equal("v=0", offer["sdp"], "payload forwarded untouched")
}

func TestRelaySignal_DeadTargetDroppedSilently(t *testing.T) {
	req := require.New(t)
	o := newTestOrch()
	a := connect(o, "A", "alice")

	o.RelaySignal("A", "ghost", SignalAnswer, json.RawMessage(`{"sdp":"x"}`))
	o.RelaySignal("A", "", SignalCandidate, json.RawMessage(`{"c":1}`))
	o.RelaySignal("A", "A", SignalCandidate, nil)

	req.Empty(a.events(t), "no error surfaces to the sender")
}

func TestRelaySignal_CandidateField(t *testing.T) {
	req := require.New(t)
	o := newTestOrch()
	connect(o, "A", "alice")
	b := connect(o, "B", "bob")

	o.RelaySignal("A", "B", SignalCandidate, json.RawMessage(`{"candidate":"c0"}`))

	got := b.ofType(t, EventWebRTCCandidate)
	req.Len(got, 1)
	_, hasOffer := got[0]["offer"]
	req.False(hasOffer)
	req.NotNil(got[0]["candidate"])
}

func TestSweepWaiting_AutoRejectsStale(t *testing.T) {
	req := require.New(t)
	o := newTestOrch()
	connect(o, "A", "alice")
	b := connect(o, "B", "bob")
	req.NoError(o.RequestJoin("A", "r1", "alice"))
	req.NoError(o.RequestJoin("B", "r1", "bob"))
	b.reset()

	o.SweepWaiting(time.Now().Add(2 * o.RequestTTL))

	rejected := b.ofType(t, EventJoinRejected)
	req.Len(rejected, 1)
	req.Equal("r1", rejected[0]["roomId"])
	_, pending := o.Rooms.TakeRequest("r1", "B")
	req.False(pending)
}

func TestBackpressure_KicksSlowConnection(t *testing.T) {
	req := require.New(t)
	o := newTestOrch()
	connect(o, "A", "alice")
	b := connect(o, "B", "bob")
	req.NoError(o.RequestJoin("A", "r1", "alice"))
	req.NoError(o.RequestJoin("B", "r1", "bob"))
	o.Approve("A", "r1", "B")

	b.mu.Lock()
	b.fail = true
	b.mu.Unlock()

	o.Chat("A", ChatInput{Message: "hi"})

	req.True(b.isClosed(), "slow connection is closed, not waited on")
}

func TestMoveRooms_OnNewAdmission(t *testing.T) {
	req := require.New(t)
	o := newTestOrch()
	a := connect(o, "A", "alice")
	b := connect(o, "B", "bob")
	req.NoError(o.RequestJoin("A", "r1", "alice"))
	req.NoError(o.RequestJoin("B", "r1", "bob"))
	o.Approve("A", "r1", "B")
	a.reset()
	b.reset()

	// B starts its own room; it must leave r1 first.
	req.NoError(o.RequestJoin("B", "r2", "bob"))

	req.Equal([]core.SessionID{"A"}, o.Rooms.Participants("r1"))
	req.Equal([]core.SessionID{"B"}, o.Rooms.Participants("r2"))
	left := a.ofType(t, EventUserLeft)
	req.Len(left, 1)
	req.Equal("B", left[0]["userId"])
	joined := b.ofType(t, EventRoomJoined)
	req.Len(joined, 1)
	req.Equal("r2", joined[0]["roomId"])
	req.True(joined[0]["isHost"].(bool), "B hosts the room it founded")
	assertHostInvariant(t, o, "r1")
	assertHostInvariant(t, o, "r2")
}

// Approving into one room while the requester founds another must leave
// the session in exactly one room, whatever the interleaving.
func TestConcurrentApproveAndMove_SingleMembership(t *testing.T) {
	req := require.New(t)
	for i := 0; i < 200; i++ {
		o := newTestOrch()
		connect(o, "A", "alice")
		connect(o, "B", "bob")
		req.NoError(o.RequestJoin("A", "r1", "alice"))
		req.NoError(o.RequestJoin("B", "r1", "bob"))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			o.Approve("A", "r1", "B")
		}()
		go func() {
			defer wg.Done()
			_ = o.RequestJoin("B", "r2", "bob")
		}()
		wg.Wait()

		inR1 := o.Rooms.IsParticipant("r1", "B")
		inR2 := o.Rooms.IsParticipant("r2", "B")
		req.False(inR1 && inR2, "a session belongs to at most one room")
		req.True(inR1 || inR2)
		room, ok := o.Registry.RoomOf("B")
		req.True(ok)
		req.True(o.Rooms.IsParticipant(room, "B"), "registry pointer matches actual membership")
		assertHostInvariant(t, o, "r1")
		assertHostInvariant(t, o, "r2")
	}
}

func TestAdmit_FirstHostReceivesQueuedRequests(t *testing.T) {
	req := require.New(t)
	o := newTestOrch()
	b := connect(o, "B", "bob")
	o.Rooms.EnsureRoom("r1")
	o.Rooms.Enqueue("r1", domain.JoinRequest{UserID: "C", Username: "carol", RequestedAt: time.Now()})

	o.admit("B", "r1")

	joined := b.ofType(t, EventRoomJoined)
	req.Len(joined, 1)
	req.True(joined[0]["isHost"].(bool))
	notices := b.ofType(t, EventJoinRequest)
	req.Len(notices, 1, "requests queued before the room had a host land on the first one")
	req.Equal("C", notices[0]["userId"])
	req.Equal("carol", notices[0]["username"])
}

// Full walkthrough: A hosts, B approved, C waits, A leaves, B inherits.
func TestEndToEndScenario(t *testing.T) {
	req := require.New(t)
	o := newTestOrch()
	a := connect(o, "A", "alice")
	b := connect(o, "B", "bob")
	c := connect(o, "C", "carol")

	req.NoError(o.RequestJoin("A", "R1", "alice"))
	req.Equal([]core.SessionID{"A"}, o.Rooms.Participants("r1"))

	req.NoError(o.RequestJoin("B", "R1", "bob"))
	req.Len(b.ofType(t, EventWaitingForApproval), 1)
	req.Len(a.ofType(t, EventJoinRequest), 1)

	o.Approve("A", "R1", "B")
	req.Equal([]core.SessionID{"A", "B"}, o.Rooms.Participants("r1"))
	joined := b.ofType(t, EventRoomJoined)
	req.Len(joined, 1)
	req.False(joined[0]["isHost"].(bool))
	req.Len(joined[0]["participants"], 1)
	for _, fc := range []*fakeConn{a, b} {
		lists := fc.ofType(t, EventParticipantList)
		req.NotEmpty(lists)
		req.Len(lists[len(lists)-1]["participants"], 2)
	}

	req.NoError(o.RequestJoin("C", "R1", "carol"))
	req.Len(c.ofType(t, EventWaitingForApproval), 1)

	o.Disconnect("A")
	req.Equal([]core.SessionID{"B"}, o.Rooms.Participants("r1"))
	req.Len(b.ofType(t, EventYouAreHost), 1)
	redelivered := b.ofType(t, EventJoinRequest)
	req.Len(redelivered, 1)
	req.Equal("C", redelivered[0]["userId"])

	o.Approve("B", "r1", "C")
	req.Equal([]core.SessionID{"B", "C"}, o.Rooms.Participants("r1"))
	assertHostInvariant(t, o, "r1")
}
