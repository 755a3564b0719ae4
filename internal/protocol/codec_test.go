package protocol

import (
	"testing"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeEnvelope(t *testing.T) {
	data, err := Encode(&MemberLeft{RoomID: "r1", Member: domain.User{ID: "u1", Username: "Alice"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"member_left","payload":{"room_id":"r1","member":{"id":"u1","name":"Alice"},"members":null}}`, string(data))
}

func TestDecodeClientMessages(t *testing.T) {
	m, kind, err := Decode([]byte(`{"type":"join_room","payload":{"room_id":"r1","display_name":"Bob","create_locked_room":true}}`))
	require.NoError(t, err)
	assert.Equal(t, KindJoinRoom, kind)
	join, ok := m.(*JoinRoom)
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("r1"), join.RoomID)
	assert.True(t, join.CreateLocked)

	m, _, err = Decode([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.IsType(t, &Ping{}, m)

	m, _, err = Decode([]byte(`{"type":"candidate","payload":{"room_id":"r1","target_id":"u2","candidate":{"candidate":"candidate:1 1 udp 1 1.2.3.4 5 typ host","sdpMid":"0"}}}`))
	require.NoError(t, err)
	c := m.(*Candidate)
	assert.Equal(t, "0", *c.Candidate.SDPMid)
}

func TestDecodeErrors(t *testing.T) {
	_, _, err := Decode([]byte(`{not json`))
	require.ErrorIs(t, err, ErrMalformed)

	_, kind, err := Decode([]byte(`{"type":"teleport","payload":{}}`))
	require.ErrorIs(t, err, ErrUnknownKind)
	assert.Equal(t, Kind("teleport"), kind)

	_, kind, err = Decode([]byte(`{"type":"join_room","payload":{"room_id":""}}`))
	require.ErrorIs(t, err, ErrInvalid)
	assert.Equal(t, KindJoinRoom, kind)

	_, _, err = Decode([]byte(`{"type":"admission_decision","payload":{"room_id":"r","requester_id":"u","decision":"maybe"}}`))
	require.ErrorIs(t, err, ErrInvalid)

	_, _, err = Decode([]byte(`{"type":"offer","payload":{"room_id":"r","sdp":"x"}}`))
	require.ErrorIs(t, err, ErrInvalid, "offer needs a target or a sender")

	_, _, err = Decode([]byte(`{"type":"send_message","payload":{"room_id":1}}`))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestServerMessagesDecode(t *testing.T) {
	for _, m := range []Message{
		&ConnectionSuccess{SID: "u1"},
		&RoomJoined{RoomID: "r", SelfID: "u1", HostID: "u1", Members: []domain.User{{ID: "u1"}}},
		&JoinRequestProcessed{RequesterID: "u2", RoomID: "r", Decision: domain.DecisionAbandoned},
		&Offer{RoomID: "r", FromID: "u2", SDP: "v=0"},
		&Error{Code: CodeNotHost, Message: "nope", Ref: KindHostEndMeeting},
	} {
		data, err := Encode(m)
		require.NoError(t, err)
		got, kind, err := Decode(data)
		require.NoError(t, err, m.Kind())
		assert.Equal(t, m.Kind(), kind)
		assert.Equal(t, m, got)
	}
}
