package mesh

import (
	"testing"

	"github.com/dkeye/Meet/internal/domain"
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

func key(local, remote domain.UserID) PairKey {
	return PairKey{Room: "r", Local: local, Remote: remote}
}

func TestLinkTransitions(t *testing.T) {
	l := NewLink(key("a", "b"), "a")
	require.NoError(t, l.Transition(OfferSent))
	require.NoError(t, l.Transition(OfferSent), "same state is a no-op")
	require.ErrorIs(t, l.Transition(Connected), ErrIllegalTransition)
	require.NoError(t, l.Transition(AnswerExchanged))
	assert.False(t, l.WasConnected())
	require.NoError(t, l.Transition(Connected))
	require.NoError(t, l.Transition(Reconnecting))
	require.NoError(t, l.Transition(Connected))
	assert.True(t, l.WasConnected())
	require.NoError(t, l.Transition(Closed))
	require.ErrorIs(t, l.Transition(Idle), ErrIllegalTransition)
	require.ErrorIs(t, l.Transition(Closed), ErrIllegalTransition)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, Idle.CanTransition(OfferReceived))
	assert.False(t, Idle.CanTransition(Connected))
	assert.False(t, Reconnecting.CanTransition(OfferSent))
	assert.True(t, Connected.CanTransition(OfferSent))
	assert.True(t, AnswerExchanged.CanTransition(Closed))
}

func TestTableOpenUsesExistingMemberAsOfferer(t *testing.T) {
	tb := NewTable()
	keys := tb.Open("r", "new", []domain.UserID{"a", "b", "new"})
	assert.Len(t, keys, 4)

	for _, k := range keys {
		l, ok := tb.Get(k)
		require.True(t, ok)
		assert.Equal(t, Idle, l.State)
		assert.NotEqual(t, domain.UserID("new"), l.Offerer)
	}
	assert.Empty(t, tb.Open("r", "new", []domain.UserID{"a"}), "live links are not reopened")
}

func TestTableOfferAnswerFlow(t *testing.T) {
	tb := NewTable()
	tb.Open("r", "n", []domain.UserID{"a"})

	require.ErrorIs(t, tb.Offer(key("n", "a")), ErrGlare)
	require.ErrorIs(t, tb.Answer(key("n", "a")), ErrUnexpectedAnswer)

	require.NoError(t, tb.Offer(key("a", "n")))
	l, _ := tb.Get(key("a", "n"))
	assert.Equal(t, OfferSent, l.State)
	r, _ := tb.Get(key("n", "a"))
	assert.Equal(t, OfferReceived, r.State)

	require.ErrorIs(t, tb.Answer(key("a", "n")), ErrUnexpectedAnswer)
	require.NoError(t, tb.Candidate(key("n", "a")))
	require.NoError(t, tb.Answer(key("n", "a")))
	assert.Equal(t, AnswerExchanged, l.State)
	assert.Equal(t, AnswerExchanged, r.State)

	require.NoError(t, tb.Report(key("a", "n"), Connected))
	require.NoError(t, tb.Report(key("n", "a"), Connected))
	require.NoError(t, tb.Report(key("n", "a"), Reconnecting))
	require.NoError(t, tb.Report(key("n", "a"), Connected))

	// Renegotiation from the newcomer is allowed once connected, and settles back to Connected.
	require.NoError(t, tb.Offer(key("n", "a")))
	require.NoError(t, tb.Answer(key("a", "n")))
	assert.Equal(t, Connected, l.State)
	assert.Equal(t, Connected, r.State)
}

func TestTableRenegotiationGlareFavorsOfferer(t *testing.T) {
	connected := func() (*Table, *Link, *Link) {
		tb := NewTable()
		tb.Open("r", "n", []domain.UserID{"a"})
		require.NoError(t, tb.Offer(key("a", "n")))
		require.NoError(t, tb.Answer(key("n", "a")))
		require.NoError(t, tb.Report(key("a", "n"), Connected))
		require.NoError(t, tb.Report(key("n", "a"), Connected))
		an, _ := tb.Get(key("a", "n"))
		na, _ := tb.Get(key("n", "a"))
		return tb, an, na
	}

	t.Run("offerer first", func(t *testing.T) {
		tb, an, na := connected()
		require.NoError(t, tb.Offer(key("a", "n")))
		require.ErrorIs(t, tb.Offer(key("n", "a")), ErrGlare)
		assert.Equal(t, OfferSent, an.State)
		assert.Equal(t, OfferReceived, na.State)
		require.NoError(t, tb.Answer(key("n", "a")))
		assert.Equal(t, Connected, an.State)
		assert.Equal(t, Connected, na.State)
	})

	t.Run("offerer second", func(t *testing.T) {
		tb, an, na := connected()
		require.NoError(t, tb.Offer(key("n", "a")))
		require.NoError(t, tb.Offer(key("a", "n")), "offerer supersedes the pending offer")
		assert.Equal(t, OfferSent, an.State)
		assert.Equal(t, OfferReceived, na.State)
		require.ErrorIs(t, tb.Answer(key("a", "n")), ErrUnexpectedAnswer, "the superseded offer gets no answer")
		require.NoError(t, tb.Answer(key("n", "a")))
		assert.Equal(t, Connected, an.State)

		// The newcomer offers again once settled.
		require.NoError(t, tb.Offer(key("n", "a")))
		require.NoError(t, tb.Answer(key("a", "n")))
		assert.Equal(t, Connected, na.State)
	})
}

func TestLinkRollback(t *testing.T) {
	l := NewLink(key("a", "b"), "a")
	require.ErrorIs(t, l.Rollback(), ErrIllegalTransition)
	require.NoError(t, l.Transition(OfferSent))
	require.NoError(t, l.Rollback())
	assert.Equal(t, Idle, l.State)
	require.NoError(t, l.Transition(OfferReceived))
	require.NoError(t, l.Transition(AnswerExchanged))
	require.NoError(t, l.Transition(Connected))
	require.NoError(t, l.Transition(OfferSent))
	require.NoError(t, l.Rollback())
	assert.Equal(t, Connected, l.State)
}

func TestTableReportClosedTearsDownPair(t *testing.T) {
	tb := NewTable()
	tb.Open("r", "n", []domain.UserID{"a"})
	require.NoError(t, tb.Report(key("n", "a"), Closed))
	assert.Equal(t, 0, tb.Len())
	require.ErrorIs(t, tb.Candidate(key("a", "n")), ErrNoSuchLink)
	require.ErrorIs(t, tb.Report(key("a", "n"), Connected), ErrNoSuchLink)
}

func TestTableCloseMemberAndRoom(t *testing.T) {
	tb := NewTable()
	tb.Open("r", "b", []domain.UserID{"a"})
	tb.Open("r", "c", []domain.UserID{"a", "b"})
	tb.Open("other", "y", []domain.UserID{"x"})
	assert.Equal(t, 8, tb.Len())

	closed := tb.CloseMember("r", "a")
	assert.Equal(t, []PairKey{key("a", "b"), key("a", "c"), key("b", "a"), key("c", "a")}, closed)
	assert.Len(t, tb.Links("r"), 2)

	assert.Len(t, tb.CloseRoom("r"), 2)
	assert.Empty(t, tb.Links("r"))
	assert.Len(t, tb.Links("other"), 2)
}

func TestValidateSDP(t *testing.T) {
	require.NoError(t, ValidateSDP(testSDP))
	require.ErrorIs(t, ValidateSDP("not sdp"), ErrBadSDP)
	require.ErrorIs(t, ValidateSDP("v=0\r\no=- 1 2 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"), ErrBadSDP)
}
