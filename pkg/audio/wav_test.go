package audio

import (
	"bytes"
	"testing"
)

func TestNewWavBuffer(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	sampleRate := 44100
	wav := NewWavBuffer(pcm, sampleRate)

	if !bytes.HasPrefix(wav, []byte("RIFF")) {
		t.Errorf("Expected RIFF prefix")
	}

	if !bytes.Contains(wav, []byte("WAVE")) {
		t.Errorf("Expected WAVE format identifier")
	}

	expectedLen := 44 + len(pcm)
	if len(wav) != expectedLen {
		t.Errorf("Expected length %d, got %d", expectedLen, len(wav))
	}
}

func TestDecodeWavRoundTrip(t *testing.T) {
	pcm := make([]byte, 3200) // 100ms at 16kHz mono 16-bit
	for i := range pcm {
		pcm[i] = byte(i % 251)
	}

	wav := NewWavBuffer(pcm, 16000)

	got, info, err := DecodeWav(wav)
	if err != nil {
		t.Fatalf("DecodeWav returned error: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("round-tripped PCM does not match input")
	}
	if info.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", info.SampleRate)
	}
	if info.NumChannels != 1 {
		t.Errorf("NumChannels = %d, want 1", info.NumChannels)
	}
	if info.BitsPerSample != 16 {
		t.Errorf("BitsPerSample = %d, want 16", info.BitsPerSample)
	}
}

func TestDecodeWavRejectsNonWav(t *testing.T) {
	if _, _, err := DecodeWav([]byte("not a wav file")); err == nil {
		t.Errorf("expected error decoding non-WAV input")
	}
}

func TestDecodeWavOddSizedChunk(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03} // odd length, exercises chunk padding
	wav := NewWavBuffer(pcm, 8000)

	got, _, err := DecodeWav(wav)
	if err != nil {
		t.Fatalf("DecodeWav returned error: %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("round-tripped PCM does not match input for odd-length payload")
	}
}
