package audio_test

import (
	"encoding/binary"
	"testing"

	"github.com/wenjiez/shuoba/pkg/audio"
)

func TestParseMIME(t *testing.T) {
	f := audio.ParseMIME("audio/L16;rate=24000")
	if f.BitsPerSample != 16 || f.Rate != 24000 {
		t.Errorf("audio/L16;rate=24000: got %+v", f)
	}

	f = audio.ParseMIME("audio/L24")
	if f.BitsPerSample != 24 || f.Rate != 24000 {
		t.Errorf("audio/L24: got %+v", f)
	}

	f = audio.ParseMIME("audio/l16; rate=16000; codec=pcm")
	if f.BitsPerSample != 16 || f.Rate != 16000 {
		t.Errorf("lowercase with extra params: got %+v", f)
	}
}

func TestParseMIME_Garbage(t *testing.T) {
	for _, in := range []string{"garbage", "", "audio/Lxx;rate=abc", ";;;", "audio/L0;rate=-5"} {
		f := audio.ParseMIME(in)
		if f != audio.DefaultFormat {
			t.Errorf("%q: got %+v, want defaults", in, f)
		}
	}
}

func TestWrapWAV(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	out := audio.WrapWAV(pcm, audio.Format{BitsPerSample: 16, Rate: 24000})

	if len(out) != 44+len(pcm) {
		t.Fatalf("length: got %d, want %d", len(out), 44+len(pcm))
	}
	if string(out[0:4]) != "RIFF" || string(out[8:12]) != "WAVE" {
		t.Fatalf("bad container magic: % x", out[:12])
	}
	if got := binary.LittleEndian.Uint32(out[4:8]); got != uint32(36+len(pcm)) {
		t.Errorf("chunk size: got %d, want %d", got, 36+len(pcm))
	}
	if got := binary.LittleEndian.Uint16(out[22:24]); got != 1 {
		t.Errorf("channels: got %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint32(out[24:28]); got != 24000 {
		t.Errorf("sample rate: got %d, want 24000", got)
	}
	if got := binary.LittleEndian.Uint32(out[28:32]); got != 48000 {
		t.Errorf("byte rate: got %d, want 48000", got)
	}
	if got := binary.LittleEndian.Uint32(out[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data size: got %d, want %d", got, len(pcm))
	}
	if string(out[44:]) != string(pcm) {
		t.Errorf("payload not preserved")
	}
}

func TestExtensionForMIME(t *testing.T) {
	ext, ok := audio.ExtensionForMIME("audio/mpeg")
	if !ok || ext != ".mp3" {
		t.Errorf("audio/mpeg: got %q %v", ext, ok)
	}
	ext, ok = audio.ExtensionForMIME("Audio/WAV; codec=1")
	if !ok || ext != ".wav" {
		t.Errorf("audio/wav with params: got %q %v", ext, ok)
	}
	if _, ok := audio.ExtensionForMIME("audio/L16;rate=24000"); ok {
		t.Errorf("raw PCM type should not map to an extension")
	}
}
