// Package audio owns microphone capture and the per-block DSP stages that
// run ahead of speech recognition.
package audio

import "time"

// Block is one captured chunk of signed 16-bit mono PCM. A block is owned
// by exactly one pipeline stage at a time and handed forward, never shared.
type Block struct {
	Samples    []int16
	SampleRate int
	Timestamp  time.Time
}

// Source produces blocks from an input device. Open starts delivery of
// blocks to onBlock; the callback runs on the audio subsystem's own thread
// and must not be blocked. Close is idempotent and safe to call before any
// block has arrived.
type Source interface {
	Open(onBlock func(Block)) error
	SampleRate() int
	Close() error
}
