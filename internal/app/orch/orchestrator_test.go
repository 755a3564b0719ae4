package orch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/app/analysis"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/dkeye/Meet/internal/mesh"
	"github.com/dkeye/Meet/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSDP = "v=0\r\n" +
	"o=- 4215775240449105457 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=rtpmap:96 VP8/90000\r\n"

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {}

type peerClient struct {
	t        *testing.T
	sid      core.SessionID
	conn     *fakeConn
	canceled bool
}

// take returns every message received since the last call.
func (p *peerClient) take() []protocol.Message {
	p.conn.mu.Lock()
	frames := p.conn.frames
	p.conn.frames = nil
	p.conn.mu.Unlock()

	out := make([]protocol.Message, 0, len(frames))
	for _, f := range frames {
		m, _, err := protocol.Decode(f)
		require.NoError(p.t, err)
		out = append(out, m)
	}
	return out
}

func (p *peerClient) kinds() []protocol.Kind {
	var out []protocol.Kind
	for _, m := range p.take() {
		out = append(out, m.Kind())
	}
	return out
}

type harness struct {
	t *testing.T
	o *Orchestrator
}

func newHarness(t *testing.T, opts Options) *harness {
	return &harness{t: t, o: New(app.NewRegistry(), app.SimplePolicy{}, opts)}
}

func (h *harness) connect(sid core.SessionID, name string) *peerClient {
	p := &peerClient{t: h.t, sid: sid, conn: &fakeConn{}}
	h.o.Handle(Connected{SID: sid, DisplayName: name, Conn: p.conn, Cancel: func() { p.canceled = true }})
	require.Equal(h.t, []protocol.Kind{protocol.KindConnectionSuccess}, p.kinds())
	return p
}

func (h *harness) send(p *peerClient, m protocol.Message) {
	h.o.Handle(Inbound{SID: p.sid, Msg: m})
}

func (h *harness) join(p *peerClient, room domain.RoomID, locked bool) {
	h.send(p, &protocol.JoinRoom{RoomID: room, CreateLocked: locked})
}

func lastError(t *testing.T, p *peerClient) *protocol.Error {
	msgs := p.take()
	require.NotEmpty(t, msgs)
	e, ok := msgs[len(msgs)-1].(*protocol.Error)
	require.True(t, ok, "got %T", msgs[len(msgs)-1])
	return e
}

func TestOpenRoomJoinAndRelay(t *testing.T) {
	h := newHarness(t, Options{})
	alice := h.connect("alice", "Alice")
	bob := h.connect("bob", "Bob")

	h.join(alice, "r1", false)
	msgs := alice.take()
	require.Len(t, msgs, 1)
	joined := msgs[0].(*protocol.RoomJoined)
	assert.Equal(t, domain.UserID("alice"), joined.HostID)
	assert.Equal(t, domain.UserID("alice"), joined.SelfID)

	h.join(bob, "r1", false)
	msgs = bob.take()
	require.Len(t, msgs, 2)
	joined = msgs[0].(*protocol.RoomJoined)
	assert.Equal(t, []domain.UserID{"alice", "bob"}, []domain.UserID{joined.Members[0].ID, joined.Members[1].ID})
	assert.Equal(t, protocol.KindNewMessage, msgs[1].Kind(), "system join message reaches everyone")

	msgs = alice.take()
	require.Len(t, msgs, 2)
	mj := msgs[0].(*protocol.MemberJoined)
	assert.Equal(t, "Bob", mj.Member.Username)
	assert.Equal(t, "Bob has joined the meeting.", msgs[1].(*protocol.NewMessage).Text)
	assert.Len(t, h.o.Links.Links("r1"), 2)

	// The newcomer never offers first.
	h.send(bob, &protocol.Offer{RoomID: "r1", TargetID: "alice", SDP: testSDP})
	assert.Empty(t, alice.take())

	h.send(alice, &protocol.Offer{RoomID: "r1", TargetID: "bob", SDP: "garbage"})
	assert.Empty(t, bob.take(), "invalid sdp is not relayed")

	h.send(alice, &protocol.Offer{RoomID: "r1", TargetID: "bob", SDP: testSDP})
	msgs = bob.take()
	require.Len(t, msgs, 1)
	offer := msgs[0].(*protocol.Offer)
	assert.Equal(t, domain.UserID("alice"), offer.FromID)
	assert.Empty(t, offer.TargetID)

	h.send(bob, &protocol.Candidate{RoomID: "r1", TargetID: "alice", Candidate: webrtc.ICECandidateInit{Candidate: "c1"}})
	h.send(bob, &protocol.Answer{RoomID: "r1", TargetID: "alice", SDP: testSDP})
	assert.Equal(t, []protocol.Kind{protocol.KindCandidate, protocol.KindAnswer}, alice.kinds())

	l, ok := h.o.Links.Get(mesh.PairKey{Room: "r1", Local: "alice", Remote: "bob"})
	require.True(t, ok)
	assert.Equal(t, mesh.AnswerExchanged, l.State)

	back, ok := h.o.Links.Get(mesh.PairKey{Room: "r1", Local: "bob", Remote: "alice"})
	require.True(t, ok)
	h.send(bob, &protocol.PeerState{RoomID: "r1", TargetID: "alice", State: protocol.PeerConnected})
	assert.Equal(t, mesh.Connected, back.State)
	assert.Equal(t, mesh.AnswerExchanged, l.State, "each side reports its own direction")
	h.send(bob, &protocol.PeerState{RoomID: "r1", TargetID: "alice", State: protocol.PeerFailed})
	assert.Equal(t, 0, h.o.Links.Len())

	// Relayed traffic to a non-member is dropped.
	h.send(alice, &protocol.Candidate{RoomID: "r1", TargetID: "ghost"})
	assert.Empty(t, alice.take())
}

func TestChatAndLeave(t *testing.T) {
	h := newHarness(t, Options{})
	alice := h.connect("alice", "Alice")
	bob := h.connect("bob", "Bob")
	h.join(alice, "r1", false)
	h.join(bob, "r1", false)
	alice.take()
	bob.take()

	h.send(bob, &protocol.SendMessage{RoomID: "r1", Text: "hello"})
	for _, p := range []*peerClient{alice, bob} {
		msgs := p.take()
		require.Len(t, msgs, 1)
		nm := msgs[0].(*protocol.NewMessage)
		assert.Equal(t, "hello", nm.Text)
		assert.Equal(t, "Bob", nm.SenderName)
	}

	h.send(bob, &protocol.SendMessage{RoomID: "other", Text: "hello"})
	assert.Equal(t, protocol.CodeNoSuchRoom, lastError(t, bob).Code)

	h.send(bob, &protocol.LeaveRoom{RoomID: "r1"})
	msgs := alice.take()
	require.Len(t, msgs, 2)
	left := msgs[0].(*protocol.MemberLeft)
	assert.Equal(t, domain.UserID("bob"), left.Member.ID)
	assert.Len(t, left.Members, 1)
	assert.Equal(t, "Bob has left the meeting.", msgs[1].(*protocol.NewMessage).Text)
	assert.Equal(t, 0, h.o.Links.Len())
}

func TestLockedRoomAdmission(t *testing.T) {
	h := newHarness(t, Options{})
	host := h.connect("host", "Host")
	guest := h.connect("guest", "Guest")
	other := h.connect("other", "Other")
	h.join(host, "r1", true)
	host.take()

	h.join(guest, "r1", false)
	assert.Equal(t, []protocol.Kind{protocol.KindWaitingForApproval}, guest.kinds())
	msgs := host.take()
	require.Len(t, msgs, 1)
	req := msgs[0].(*protocol.JoinRequestReceived)
	assert.Equal(t, "Guest", req.RequesterName)

	// A repeated request does not notify the host again.
	h.join(guest, "r1", false)
	assert.Equal(t, []protocol.Kind{protocol.KindWaitingForApproval}, guest.kinds())
	assert.Empty(t, host.take())

	h.send(other, &protocol.AdmissionDecision{RoomID: "r1", RequesterID: "guest", Decision: domain.DecisionAccept})
	assert.Equal(t, protocol.CodeNotHost, lastError(t, other).Code)

	h.send(host, &protocol.AdmissionDecision{RoomID: "r1", RequesterID: "guest", Decision: domain.DecisionAccept})
	assert.Equal(t, []protocol.Kind{protocol.KindJoinRequestProcessed, protocol.KindMemberJoined, protocol.KindNewMessage}, host.kinds())
	assert.Equal(t, []protocol.Kind{protocol.KindRoomJoined, protocol.KindNewMessage}, guest.kinds())
	assert.Equal(t, 2, h.o.Links.Len())

	h.send(host, &protocol.AdmissionDecision{RoomID: "r1", RequesterID: "guest", Decision: domain.DecisionAccept})
	assert.Equal(t, protocol.CodeNoSuchRequest, lastError(t, host).Code)

	h.join(other, "r1", false)
	other.take()
	host.take()
	h.send(host, &protocol.AdmissionDecision{RoomID: "r1", RequesterID: "other", Decision: domain.DecisionDeny})
	assert.Equal(t, []protocol.Kind{protocol.KindJoinRequestProcessed}, host.kinds())
	msgs = other.take()
	require.Len(t, msgs, 1)
	assert.IsType(t, &protocol.AdmissionDenied{}, msgs[0])
}

func TestPendingRequesterDisconnects(t *testing.T) {
	h := newHarness(t, Options{})
	host := h.connect("host", "Host")
	guest := h.connect("guest", "Guest")
	h.join(host, "r1", true)
	h.join(guest, "r1", false)
	host.take()

	h.o.Handle(Disconnected{SID: guest.sid})
	msgs := host.take()
	require.Len(t, msgs, 1)
	processed := msgs[0].(*protocol.JoinRequestProcessed)
	assert.Equal(t, domain.DecisionAbandoned, processed.Decision)
	assert.Empty(t, h.o.Registry.Pending("r1"))
}

func TestAcceptingVanishedRequesterReportsDenial(t *testing.T) {
	h := newHarness(t, Options{})
	host := h.connect("host", "Host")
	guest := h.connect("guest", "Guest")
	h.join(host, "r1", true)
	h.join(guest, "r1", false)
	host.take()
	guest.take()

	h.o.Registry.Unbind(guest.sid)
	h.send(host, &protocol.AdmissionDecision{RoomID: "r1", RequesterID: "guest", Decision: domain.DecisionAccept})
	msgs := host.take()
	require.Len(t, msgs, 1)
	processed := msgs[0].(*protocol.JoinRequestProcessed)
	assert.Equal(t, domain.DecisionDeny, processed.Decision)
	assert.False(t, h.o.Registry.IsMember("r1", guest.sid))
	assert.Empty(t, h.o.Registry.Pending("r1"))
}

func TestJoiningElsewhereAbandonsRequest(t *testing.T) {
	h := newHarness(t, Options{})
	host := h.connect("host", "Host")
	guest := h.connect("guest", "Guest")
	h.join(host, "locked", true)
	h.join(guest, "locked", false)
	host.take()

	h.join(guest, "open", false)
	assert.Equal(t, []protocol.Kind{protocol.KindJoinRequestProcessed}, host.kinds())
	assert.Equal(t, []protocol.Kind{protocol.KindRoomJoined}, guest.kinds())
}

func TestHostLeaveTerminatesRoom(t *testing.T) {
	h := newHarness(t, Options{})
	host := h.connect("host", "Host")
	member := h.connect("member", "")
	waiting := h.connect("waiting", "")
	h.join(host, "r1", false)
	h.join(member, "r1", false)
	member.take()

	h.o.Handle(Disconnected{SID: host.sid})
	msgs := member.take()
	require.Len(t, msgs, 1)
	assert.IsType(t, &protocol.HostLeft{}, msgs[0])
	_, ok := h.o.Registry.Room("r1")
	assert.False(t, ok)
	assert.Equal(t, 0, h.o.Links.Len())

	// A fresh room with the same id gets a new host.
	h.join(waiting, "r1", false)
	msgs = waiting.take()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.UserID("waiting"), msgs[0].(*protocol.RoomJoined).HostID)
}

func TestEndMeeting(t *testing.T) {
	h := newHarness(t, Options{})
	host := h.connect("host", "Host")
	member := h.connect("member", "")
	pending := h.connect("pending", "")
	h.join(host, "r1", true)
	h.send(host, &protocol.AdmissionDecision{RoomID: "r1", RequesterID: "nobody", Decision: domain.DecisionAccept})
	assert.Equal(t, protocol.CodeNoSuchRequest, lastError(t, host).Code)

	h.join(member, "r1", false)
	h.send(host, &protocol.AdmissionDecision{RoomID: "r1", RequesterID: "member", Decision: domain.DecisionAccept})
	h.join(pending, "r1", false)
	member.take()
	pending.take()

	h.send(member, &protocol.HostEndMeeting{RoomID: "r1"})
	assert.Equal(t, protocol.CodeNotHost, lastError(t, member).Code)

	h.send(host, &protocol.HostEndMeeting{RoomID: "r1"})
	assert.IsType(t, &protocol.MeetingEnded{}, member.take()[0])
	assert.IsType(t, &protocol.AdmissionDenied{}, pending.take()[0])
	assert.Empty(t, h.o.Registry.List())
}

func TestBackpressureKicksMember(t *testing.T) {
	h := newHarness(t, Options{})
	alice := h.connect("alice", "")
	bob := h.connect("bob", "")
	h.join(alice, "r1", false)
	h.join(bob, "r1", false)
	bob.conn.full = true

	h.send(alice, &protocol.SendMessage{RoomID: "r1", Text: "hi"})
	assert.True(t, bob.canceled)
	assert.False(t, alice.canceled)
}

func TestPingAndUnexpectedMessage(t *testing.T) {
	h := newHarness(t, Options{})
	alice := h.connect("alice", "")
	h.send(alice, &protocol.Ping{})
	assert.Equal(t, []protocol.Kind{protocol.KindPong}, alice.kinds())

	h.send(alice, &protocol.Pong{})
	e := lastError(t, alice)
	assert.Equal(t, protocol.CodeBadRequest, e.Code)
	assert.Equal(t, protocol.KindPong, e.Ref)
}

type stubBackend struct {
	started []core.SessionID
	stopped []core.SessionID
}

func (b *stubBackend) Start(target core.SessionID, _ string, _ func(analysis.Event)) (webrtc.SessionDescription, error) {
	b.started = append(b.started, target)
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: testSDP}, nil
}

func (b *stubBackend) Answer(core.SessionID, webrtc.SessionDescription) error { return nil }

func (b *stubBackend) AddCandidate(core.SessionID, webrtc.ICECandidateInit) error { return nil }

func (b *stubBackend) Stop(target core.SessionID) *domain.Conclusion {
	b.stopped = append(b.stopped, target)
	return nil
}

func TestAnalysisFlow(t *testing.T) {
	backend := &stubBackend{}
	h := newHarness(t, Options{Backend: backend})
	host := h.connect("host", "")
	bob := h.connect("bob", "")
	h.join(host, "r1", false)
	h.join(bob, "r1", false)
	host.take()
	bob.take()

	h.send(bob, &protocol.StartAnalysis{TargetID: "host"})
	assert.Equal(t, protocol.CodeNotHost, lastError(t, bob).Code)
	h.send(host, &protocol.StartAnalysis{TargetID: "bob", RequestingHostID: "bob"})
	assert.Equal(t, protocol.CodeNotHost, lastError(t, host).Code)

	h.send(host, &protocol.StartAnalysis{TargetID: "bob", RequestingHostID: "host"})
	msgs := bob.take()
	require.Len(t, msgs, 1)
	so := msgs[0].(*protocol.ServerOffer)
	assert.Equal(t, domain.UserID("bob"), so.TargetID)

	h.send(host, &protocol.StartAnalysis{TargetID: "bob"})
	assert.Equal(t, protocol.CodeAnalysisBusy, lastError(t, host).Code)

	h.send(bob, &protocol.ClientAnswer{Answer: webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: testSDP}, TargetID: "bob"})
	s, ok := h.o.Analysis.Session("bob")
	require.True(t, ok)
	assert.Equal(t, analysis.AnswerSent, s.State)

	h.o.Handle(Disconnected{SID: bob.sid})
	kinds := host.kinds()
	assert.Contains(t, kinds, protocol.KindAnalysisStoppedHost)
	assert.Contains(t, kinds, protocol.KindMemberLeft)
	assert.Equal(t, []core.SessionID{"bob"}, backend.stopped)
	assert.Equal(t, 0, h.o.Analysis.Len())
}

func TestAnalysisDisabled(t *testing.T) {
	h := newHarness(t, Options{})
	host := h.connect("host", "")
	h.join(host, "r1", false)
	host.take()
	h.send(host, &protocol.StartAnalysis{TargetID: "bob"})
	assert.Equal(t, protocol.CodeBadRequest, lastError(t, host).Code)
}

func TestRunLoop(t *testing.T) {
	o := New(app.NewRegistry(), app.SimplePolicy{}, Options{InboxSize: 4})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	conn := &fakeConn{}
	require.True(t, o.Submit(Connected{SID: "a", Conn: conn, Cancel: func() {}}))
	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return len(conn.frames) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
	assert.False(t, o.Submit(Disconnected{SID: "a"}))
}
