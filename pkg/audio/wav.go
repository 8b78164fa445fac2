// Package audio provides format handling for synthesized speech clips:
// tolerant MIME type parsing and WAV container synthesis for raw PCM.
package audio

import (
	"encoding/binary"
	"strconv"
	"strings"
)

// Format describes raw PCM audio as advertised by a synthesis provider.
type Format struct {
	BitsPerSample int
	Rate          int
}

// DefaultFormat is assumed when a MIME type carries no usable parameters.
// Matches what Gemini TTS emits for its default stream (audio/L16;rate=24000).
var DefaultFormat = Format{BitsPerSample: 16, Rate: 24000}

// ParseMIME extracts bits per sample and sample rate from an audio MIME type
// such as "audio/L16;rate=24000". It is deliberately lenient: unknown or
// malformed input falls back to DefaultFormat field by field, and it never
// fails.
func ParseMIME(mimeType string) Format {
	f := DefaultFormat

	parts := strings.Split(mimeType, ";")
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if i == 0 {
			// Main type, e.g. "audio/L24".
			if _, sub, ok := strings.Cut(part, "/"); ok {
				if rest, found := strings.CutPrefix(strings.ToUpper(sub), "L"); found {
					if bits, err := strconv.Atoi(rest); err == nil && bits > 0 {
						f.BitsPerSample = bits
					}
				}
			}
			continue
		}
		if rest, found := strings.CutPrefix(strings.ToLower(part), "rate="); found {
			if rate, err := strconv.Atoi(strings.TrimSpace(rest)); err == nil && rate > 0 {
				f.Rate = rate
			}
		}
	}
	return f
}

// WrapWAV prepends a canonical 44-byte RIFF/WAVE header to raw little-endian
// PCM data. Output is always mono PCM (format tag 1).
func WrapWAV(pcm []byte, f Format) []byte {
	const (
		numChannels = 1
		headerSize  = 44
	)
	bytesPerSample := f.BitsPerSample / 8
	byteRate := f.Rate * numChannels * bytesPerSample
	blockAlign := numChannels * bytesPerSample

	out := make([]byte, headerSize+len(pcm))
	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], uint32(36+len(pcm)))
	copy(out[8:12], "WAVE")
	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16) // PCM chunk size
	binary.LittleEndian.PutUint16(out[20:22], 1)  // PCM format
	binary.LittleEndian.PutUint16(out[22:24], numChannels)
	binary.LittleEndian.PutUint32(out[24:28], uint32(f.Rate))
	binary.LittleEndian.PutUint32(out[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:36], uint16(f.BitsPerSample))
	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(pcm)))
	copy(out[headerSize:], pcm)
	return out
}

// extensions maps synthesis MIME types to container file extensions. Raw PCM
// types (audio/L16 etc.) are intentionally absent: those clips need WrapWAV.
var extensions = map[string]string{
	"audio/mpeg": ".mp3",
	"audio/mp3":  ".mp3",
	"audio/wav":  ".wav",
	"audio/wave": ".wav",
	"audio/ogg":  ".ogg",
	"audio/webm": ".webm",
	"audio/flac": ".flac",
	"audio/aac":  ".aac",
}

// ExtensionForMIME maps a clip MIME type to a file extension. The second
// return is false when the type is unknown and the caller should treat the
// payload as raw PCM.
func ExtensionForMIME(mimeType string) (string, bool) {
	main := strings.TrimSpace(strings.ToLower(mimeType))
	if i := strings.IndexByte(main, ';'); i >= 0 {
		main = strings.TrimSpace(main[:i])
	}
	ext, ok := extensions[main]
	return ext, ok
}
