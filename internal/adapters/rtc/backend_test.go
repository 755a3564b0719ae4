package rtc

import (
	"testing"

	"github.com/dkeye/Meet/internal/analyzer"
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConn struct {
	answerErr  error
	answered   int
	candidates []string
	closed     bool
}

func (c *recordingConn) ApplyAnswer(webrtc.SessionDescription) error {
	if c.answerErr != nil {
		return c.answerErr
	}
	c.answered++
	return nil
}

func (c *recordingConn) AddICECandidate(ci webrtc.ICECandidateInit) error {
	c.candidates = append(c.candidates, ci.Candidate)
	return nil
}

func (c *recordingConn) Close() { c.closed = true }

func newTestBackend(conn analysisConn) *AnalysisBackend {
	b := NewAnalysisBackend(nil, webrtc.Configuration{}, nil)
	b.peers["t"] = &analysisPeer{conn: conn, monitor: analyzer.NewMonitor()}
	return b
}

func TestAnalysisCandidatesWaitForAnswer(t *testing.T) {
	conn := &recordingConn{}
	b := newTestBackend(conn)

	require.NoError(t, b.AddCandidate("t", webrtc.ICECandidateInit{Candidate: "c1"}))
	require.NoError(t, b.AddCandidate("t", webrtc.ICECandidateInit{Candidate: "c2"}))
	assert.Empty(t, conn.candidates, "nothing reaches the connection before the answer")

	require.NoError(t, b.Answer("t", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer}))
	assert.Equal(t, []string{"c1", "c2"}, conn.candidates)

	require.NoError(t, b.AddCandidate("t", webrtc.ICECandidateInit{Candidate: "c3"}))
	assert.Equal(t, []string{"c1", "c2", "c3"}, conn.candidates)
}

func TestAnalysisFailedAnswerKeepsCandidates(t *testing.T) {
	conn := &recordingConn{answerErr: errors.New("bad sdp")}
	b := newTestBackend(conn)

	require.NoError(t, b.AddCandidate("t", webrtc.ICECandidateInit{Candidate: "c1"}))
	require.Error(t, b.Answer("t", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer}))
	assert.Empty(t, conn.candidates)

	conn.answerErr = nil
	require.NoError(t, b.Answer("t", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer}))
	assert.Equal(t, []string{"c1"}, conn.candidates)
}

func TestAnalysisBackendUnknownTarget(t *testing.T) {
	b := newTestBackend(&recordingConn{})
	assert.Error(t, b.AddCandidate("other", webrtc.ICECandidateInit{Candidate: "c"}))
	assert.Error(t, b.Answer("other", webrtc.SessionDescription{}))
}

func TestAnalysisStopWithoutFrames(t *testing.T) {
	conn := &recordingConn{}
	b := newTestBackend(conn)
	assert.Nil(t, b.Stop("t"))
	assert.True(t, conn.closed)
	assert.Nil(t, b.Stop("t"))
}
