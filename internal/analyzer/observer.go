package analyzer

// Frame is one reassembled video frame.
type Frame struct {
	Timestamp uint32
	Payload   []byte
	Packets   int
}

// FrameObserver turns a frame into an observation. Face and pose detection live behind it.
type FrameObserver interface {
	Observe(Frame) Observation
}

// NeutralObserver reports a detected face looking straight at the camera for every frame.
type NeutralObserver struct{}

func (NeutralObserver) Observe(Frame) Observation {
	return Observation{FaceDetected: true, Gaze: GazeCenter, Yaw: 0, Pitch: 180}
}

type ObserverFunc func(Frame) Observation

func (f ObserverFunc) Observe(fr Frame) Observation { return f(fr) }
