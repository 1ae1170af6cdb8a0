package audio

import "errors"

const (
	SampleRate = 16000
	Channels   = 1 // Mono
	BitDepth   = 16
)

var (
	// ErrMalformedEdit is returned when an edit list cannot be applied safely.
	ErrMalformedEdit = errors.New("malformed edit")

	// ErrUnsupportedFormat is returned for WAV files that are not 16-bit mono at SampleRate.
	ErrUnsupportedFormat = errors.New("unsupported wav format")
)

// Signal is one channel of 16-bit PCM samples at SampleRate.
// Corrections never modify a Signal in place; they return a new one.
type Signal []int16

// Duration returns the length of the signal in seconds.
func (s Signal) Duration() float64 {
	return float64(len(s)) / SampleRate
}
