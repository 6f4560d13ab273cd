package orchestration

import "errors"

var (
	// ErrDeviceUnavailable means capture or playback could not be opened.
	// Orchestrate stops when it sees it.
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrRecognitionStream is a recognizer failure. The next listen call
	// starts over.
	ErrRecognitionStream = errors.New("recognition stream error")
	// ErrBackendTransport is a failed call to the generation or synthesis
	// backend. The current turn is abandoned.
	ErrBackendTransport = errors.New("backend transport error")
)
