// Package stt defines the Provider interface for speech-to-text backends.
//
// Providers operate in batch mode: one recorded utterance in, one transcript
// out. A transcript that is empty after trimming whitespace is treated as a
// recognition failure and reported as [ErrEmptyTranscript], so callers never
// have to distinguish "the API failed" from "the API heard nothing".
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrEmptyTranscript is returned when the backend answered successfully but
// produced no recognizable speech.
var ErrEmptyTranscript = errors.New("stt: empty transcript")

// Provider is the abstraction over any speech-to-text backend.
type Provider interface {
	// Transcribe converts a complete recorded utterance into text. filename
	// carries the original upload name so the backend can infer the container
	// format from its extension.
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}
