package vad

import (
	"fmt"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

// nativeFrameSize is the sub-frame size, in samples, that the native
// backend evaluates a speech decision over at 16kHz.
const nativeFrameSize = 256

// NativeDetector wraps the WebRTC VAD C library binding. It is the
// first backend tried at manager construction; load failure (missing
// shared library, unsupported platform) falls through to the ML
// backend.
type NativeDetector struct {
	vad *webrtcvad.VAD
}

// NewNativeDetector loads the WebRTC VAD library at the given
// aggressiveness mode (0 = least aggressive, 3 = most aggressive
// about filtering non-speech).
func NewNativeDetector(mode int) (*NativeDetector, error) {
	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("vad: native backend unavailable: %w", err)
	}
	if err := v.SetMode(mode); err != nil {
		return nil, fmt.Errorf("vad: native backend rejected mode %d: %w", mode, err)
	}
	return &NativeDetector{vad: v}, nil
}

func (d *NativeDetector) Name() string { return "native" }

func (d *NativeDetector) IsSpeech(frame []int16) (bool, error) {
	for start := 0; start < len(frame); start += nativeFrameSize {
		end := start + nativeFrameSize
		sub := make([]int16, nativeFrameSize)
		if end > len(frame) {
			copy(sub, frame[start:])
		} else {
			copy(sub, frame[start:end])
		}
		speech, err := d.vad.Process(sampleRate, int16ToBytes(sub))
		if err != nil {
			return false, fmt.Errorf("vad: native process: %w", err)
		}
		if speech {
			return true, nil
		}
	}
	return false, nil
}

func (d *NativeDetector) GetSpeechSegments(audio []int16, minSpeechMs, minSilenceMs int) []Segment {
	const frameMs = nativeFrameSize * 1000 / sampleRate
	var decisions []bool
	for start := 0; start < len(audio); start += nativeFrameSize {
		end := start + nativeFrameSize
		sub := make([]int16, nativeFrameSize)
		if end > len(audio) {
			copy(sub, audio[start:])
		} else {
			copy(sub, audio[start:end])
		}
		speech, err := d.vad.Process(sampleRate, int16ToBytes(sub))
		if err != nil {
			speech = false
		}
		decisions = append(decisions, speech)
	}
	return segmentsFromFrameDecisions(decisions, frameMs, minSpeechMs, minSilenceMs)
}

func int16ToBytes(s []int16) []byte {
	b := make([]byte, len(s)*2)
	for i, v := range s {
		b[i*2] = byte(v)
		b[i*2+1] = byte(v >> 8)
	}
	return b
}
