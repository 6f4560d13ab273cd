// Package speechtotext holds the contract between the voice pipeline and a
// streaming speech recognizer.
package speechtotext

// Recognizer is a stateful streaming recognizer. Frames are fed in order with
// Accept, which reports whether the recognizer detected the end of an
// utterance. Result returns the text recognized since the previous Result
// call and resets it.
type Recognizer interface {
	Accept(frame []byte) (endpoint bool, err error)
	Result() string
}
