package stt

// Event is a piece of recognizer output. A partial event is a best-guess
// transcription that later events may supersede; a final event is committed
// text for a completed utterance segment.
type Event struct {
	Text  string
	Final bool
}

// Recognizer is a stateful speech decoder fed one block of 16-bit mono PCM
// at a time. A recognizer serves exactly one recording session and must be
// created at the sample rate of the audio it will receive.
type Recognizer interface {
	// Feed hands the recognizer one block of samples. It returns the next
	// event if the engine has something new to report, nil otherwise.
	Feed(samples []int16) (*Event, error)

	// Finalize flushes trailing recognized text not yet reported as final.
	// Called exactly once, at session stop.
	Finalize() (*Event, error)

	Close() error
}
