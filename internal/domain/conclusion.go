package domain

// KeyEvent is a sustained deviation detected during analysis.
type KeyEvent struct {
	Timestamp float64 `json:"timestamp"`
	Type      string  `json:"type"`
	Details   string  `json:"details"`
}

type ConclusionDetails struct {
	DurationSeconds float64    `json:"duration_analyzed_seconds"`
	TotalFrames     int        `json:"total_frames_analyzed"`
	SuspicionScore  int        `json:"suspicion_score_final"`
	TrustScore      int        `json:"trust_score"`
	FPS             float64    `json:"fps_analyzed"`
	GazeDeflections int        `json:"gaze_deflection_count"`
	HeadTurns       int        `json:"head_turn_count"`
	KeyEvents       []KeyEvent `json:"key_events_triggered"`
}

// Conclusion is the final result of an analysis session.
type Conclusion struct {
	StatusText string            `json:"status_text"`
	Details    ConclusionDetails `json:"details"`
}
