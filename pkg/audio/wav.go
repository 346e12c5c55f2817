// Package audio provides the PCM/WAV container helpers shared by the
// recorder, finalizer, and diarization backends. Audio throughout this
// module is mono, 16-bit signed little-endian PCM.
package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	bitsPerSample = 16
	numChannels   = 1
)

// NewWavBuffer wraps raw PCM samples in a minimal RIFF/WAVE container
// at the given sample rate.
func NewWavBuffer(pcm []byte, sampleRate int) []byte {
	buf := new(bytes.Buffer)
	buf.Grow(44 + len(pcm))

	byteRate := sampleRate * numChannels * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// WavInfo describes the format fields recovered from a WAVE container.
type WavInfo struct {
	SampleRate    int
	NumChannels   int
	BitsPerSample int
}

// DecodeWav extracts the raw PCM payload and format info from a
// RIFF/WAVE container produced by NewWavBuffer (or any canonical PCM
// WAVE file with a single "fmt " chunk preceding "data"). It does not
// attempt to support compressed WAVE encodings.
func DecodeWav(wav []byte) ([]byte, WavInfo, error) {
	var info WavInfo
	if len(wav) < 12 || !bytes.Equal(wav[0:4], []byte("RIFF")) || !bytes.Equal(wav[8:12], []byte("WAVE")) {
		return nil, info, fmt.Errorf("audio: not a RIFF/WAVE container")
	}

	pos := 12
	var pcm []byte
	sawFmt := false

	for pos+8 <= len(wav) {
		chunkID := wav[pos : pos+4]
		chunkSize := int(binary.LittleEndian.Uint32(wav[pos+4 : pos+8]))
		dataStart := pos + 8
		dataEnd := dataStart + chunkSize
		if dataEnd > len(wav) {
			return nil, info, fmt.Errorf("audio: truncated %q chunk", string(chunkID))
		}

		switch string(chunkID) {
		case "fmt ":
			if chunkSize < 16 {
				return nil, info, fmt.Errorf("audio: fmt chunk too small")
			}
			fmtChunk := wav[dataStart:dataEnd]
			info.NumChannels = int(binary.LittleEndian.Uint16(fmtChunk[2:4]))
			info.SampleRate = int(binary.LittleEndian.Uint32(fmtChunk[4:8]))
			info.BitsPerSample = int(binary.LittleEndian.Uint16(fmtChunk[14:16]))
			sawFmt = true
		case "data":
			pcm = wav[dataStart:dataEnd]
		}

		pos = dataEnd
		if chunkSize%2 == 1 {
			pos++ // chunks are word-aligned
		}
	}

	if !sawFmt {
		return nil, info, fmt.Errorf("audio: missing fmt chunk")
	}
	if pcm == nil {
		return nil, info, fmt.Errorf("audio: missing data chunk")
	}
	return pcm, info, nil
}
