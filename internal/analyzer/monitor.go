// Package analyzer scores engagement from per-frame gaze and head-pose observations.
package analyzer

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/dkeye/Meet/internal/domain"
)

const (
	analysisFPS = 10

	GazeFramesLimit = 5 * analysisFPS
	HeadFramesLimit = 3 * analysisFPS
	YawThreshold    = 30.0
	// Pitch is reported around ±180 when facing the camera.
	PitchThreshold = 20.0

	highConcern     = 70
	moderateConcern = 35
	maxGazePoints   = 50.0
	maxHeadPoints   = 50.0
	counterDecay    = 2

	EventGaze = "Sustained Gaze Deflection"
	EventHead = "Sustained Head Turn Away"
)

type Gaze int

const (
	GazeCenter Gaze = iota
	GazeLeft
	GazeRight
)

// Observation is what a FrameObserver extracts from one video frame.
type Observation struct {
	FaceDetected bool
	Gaze         Gaze
	Yaw          float64
	Pitch        float64
}

// Monitor accumulates observations of one analysis session.
type Monitor struct {
	mu  sync.Mutex
	now func() time.Time

	startedAt time.Time
	frames    int
	gazeRun   int
	headRun   int
	gazeTotal int
	headTotal int
	events    []domain.KeyEvent
}

func NewMonitor() *Monitor {
	return newMonitorWithClock(time.Now)
}

func newMonitorWithClock(now func() time.Time) *Monitor {
	return &Monitor{now: now, startedAt: now()}
}

// Frames is the number of frames that carried a detected face.
func (m *Monitor) Frames() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frames
}

func (m *Monitor) Observe(obs Observation) {
	if !obs.FaceDetected {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames++

	if obs.Gaze == GazeLeft || obs.Gaze == GazeRight {
		m.gazeRun++
		m.gazeTotal++
		if m.gazeRun == GazeFramesLimit+1 {
			m.addEvent(EventGaze, fmt.Sprintf("Gaze deflected for approx. %.1fs", float64(GazeFramesLimit)/analysisFPS))
		}
	} else {
		m.gazeRun = max(0, m.gazeRun-counterDecay)
	}

	turned := math.Abs(obs.Yaw) > YawThreshold || math.Abs(obs.Pitch) < 180-PitchThreshold
	if turned {
		m.headRun++
		m.headTotal++
		if m.headRun == HeadFramesLimit+1 {
			m.addEvent(EventHead, fmt.Sprintf("Head turned for approx. %.1fs", float64(HeadFramesLimit)/analysisFPS))
		}
	} else {
		m.headRun = max(0, m.headRun-counterDecay)
	}
}

func (m *Monitor) addEvent(kind, details string) {
	m.events = append(m.events, domain.KeyEvent{
		Timestamp: float64(m.now().UnixMilli()) / 1000,
		Type:      kind,
		Details:   details,
	})
}

// Conclude computes the final conclusion of everything observed so far.
func (m *Monitor) Conclude() domain.Conclusion {
	m.mu.Lock()
	defer m.mu.Unlock()

	duration := m.now().Sub(m.startedAt).Seconds()
	d := domain.ConclusionDetails{
		DurationSeconds: round2(duration),
		TotalFrames:     m.frames,
		GazeDeflections: m.gazeTotal,
		HeadTurns:       m.headTotal,
		KeyEvents:       append([]domain.KeyEvent{}, m.events...),
	}
	if duration > 0 && m.frames > 0 {
		d.FPS = round2(float64(m.frames) / duration)
	}

	switch {
	case m.frames > 0:
		gazeRatio := float64(m.gazeTotal) / float64(m.frames)
		headRatio := float64(m.headTotal) / float64(m.frames)
		d.SuspicionScore = min(100, int(math.Round(gazeRatio*maxGazePoints+headRatio*maxHeadPoints)))
		d.TrustScore = max(0, int(math.Round(100-gazeRatio*maxGazePoints-headRatio*maxHeadPoints)))
	case duration > 0:
		d.TrustScore = 0
	default:
		d.TrustScore = 100
	}

	var status string
	switch {
	case d.SuspicionScore > highConcern:
		status = fmt.Sprintf("High Concern (Suspicion: %d).", d.SuspicionScore)
	case d.SuspicionScore > moderateConcern:
		status = fmt.Sprintf("Moderate Concern (Suspicion: %d).", d.SuspicionScore)
	case m.gazeTotal > 0 || m.headTotal > 0:
		status = fmt.Sprintf("Low Concern (Suspicion: %d). Some deviations noted.", d.SuspicionScore)
	default:
		status = fmt.Sprintf("Low Concern (Suspicion: %d). No significant deviations.", d.SuspicionScore)
	}
	return domain.Conclusion{StatusText: status, Details: d}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
