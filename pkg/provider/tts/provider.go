// Package tts defines the Provider interface for speech synthesis backends.
//
// Providers operate in batch mode: one utterance in, one clip out. The clip
// carries the backend's MIME type unmodified; some backends return ready
// containers (audio/mpeg), others raw PCM (audio/L16;rate=24000) that the
// caller must wrap before serving. Providers are composed into a failover
// chain by the synthesis stage, so a returned error means "try the next one",
// not "abort the turn".
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrNoAudio is returned when the backend answered successfully but the
// response contained no audio data.
var ErrNoAudio = errors.New("tts: no audio in response")

// Clip is one synthesized utterance.
type Clip struct {
	// Data is the audio payload, either a complete container or raw PCM
	// depending on MIMEType.
	Data []byte

	// MIMEType is the payload type as reported by the backend, parameters
	// included (e.g. "audio/L16;rate=24000").
	MIMEType string
}

// Provider is the abstraction over any speech synthesis backend.
type Provider interface {
	// Name identifies the provider in logs, metrics, and failover config.
	Name() string

	// Synthesize converts text into speech.
	Synthesize(ctx context.Context, text string) (*Clip, error)
}
