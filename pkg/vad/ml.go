package vad

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// mlFrameSize is the sub-frame size, in samples, that the Silero-style
// ONNX model evaluates a speech probability over at 16kHz.
const mlFrameSize = 512

// DefaultMLThreshold is the speech-probability threshold applied to
// the model's output.
const DefaultMLThreshold = 0.3

var (
	ortInitOnce sync.Once
	ortInitErr  error
)

func ensureRuntime(libraryPath string) error {
	ortInitOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		ortInitErr = ort.InitializeEnvironment()
	})
	return ortInitErr
}

// MLDetector wraps an ONNX Runtime session running a Silero-style
// speech-probability model. Internal recurrent state (h/c tensors) is
// reset on every IsSpeech call per the "stateless across calls in the
// streaming path" invariant, trading a little accuracy for isolation
// between sessions that might share a detector instance.
type MLDetector struct {
	threshold float64
	session   *ort.DynamicAdvancedSession
}

// NewMLDetector loads the ONNX model at modelPath. libraryPath may be
// empty to use the runtime's default shared-library discovery.
func NewMLDetector(modelPath, libraryPath string, threshold float64) (*MLDetector, error) {
	if err := ensureRuntime(libraryPath); err != nil {
		return nil, fmt.Errorf("vad: ml backend unavailable: %w", err)
	}
	if threshold <= 0 {
		threshold = DefaultMLThreshold
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{"input", "sr", "h", "c"},
		[]string{"output", "hn", "cn"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("vad: ml backend failed to load model %q: %w", modelPath, err)
	}

	return &MLDetector{threshold: threshold, session: session}, nil
}

func (d *MLDetector) Name() string { return "ml" }

func (d *MLDetector) IsSpeech(frame []int16) (bool, error) {
	for start := 0; start < len(frame); start += mlFrameSize {
		end := start + mlFrameSize
		sub := make([]int16, mlFrameSize)
		if end > len(frame) {
			copy(sub, frame[start:])
		} else {
			copy(sub, frame[start:end])
		}
		prob, err := d.infer(sub)
		if err != nil {
			return false, err
		}
		if prob > d.threshold {
			return true, nil
		}
	}
	return false, nil
}

// infer runs one forward pass over a single mlFrameSize frame,
// starting from a fresh zeroed recurrent state each call.
func (d *MLDetector) infer(frame []int16) (float64, error) {
	input := make([]float32, len(frame))
	for i, s := range frame {
		input[i] = float32(s) / 32768.0
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(input))), input)
	if err != nil {
		return 0, fmt.Errorf("vad: ml input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{sampleRate})
	if err != nil {
		return 0, fmt.Errorf("vad: ml sample-rate tensor: %w", err)
	}
	defer srTensor.Destroy()

	zeroState := make([]float32, 2*1*64)
	hTensor, err := ort.NewTensor(ort.NewShape(2, 1, 64), zeroState)
	if err != nil {
		return 0, fmt.Errorf("vad: ml h-state tensor: %w", err)
	}
	defer hTensor.Destroy()

	cState := make([]float32, 2*1*64)
	cTensor, err := ort.NewTensor(ort.NewShape(2, 1, 64), cState)
	if err != nil {
		return 0, fmt.Errorf("vad: ml c-state tensor: %w", err)
	}
	defer cTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return 0, fmt.Errorf("vad: ml output tensor: %w", err)
	}
	defer outputTensor.Destroy()
	hnTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, 64))
	if err != nil {
		return 0, err
	}
	defer hnTensor.Destroy()
	cnTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, 64))
	if err != nil {
		return 0, err
	}
	defer cnTensor.Destroy()

	if err := d.session.Run(
		[]ort.Value{inputTensor, srTensor, hTensor, cTensor},
		[]ort.Value{outputTensor, hnTensor, cnTensor},
	); err != nil {
		return 0, fmt.Errorf("vad: ml inference: %w", err)
	}

	out := outputTensor.GetData()
	if len(out) == 0 {
		return 0, fmt.Errorf("vad: ml inference returned no output")
	}
	return float64(out[0]), nil
}

func (d *MLDetector) GetSpeechSegments(audio []int16, minSpeechMs, minSilenceMs int) []Segment {
	const frameMs = mlFrameSize * 1000 / sampleRate
	var decisions []bool
	for start := 0; start < len(audio); start += mlFrameSize {
		end := start + mlFrameSize
		sub := make([]int16, mlFrameSize)
		if end > len(audio) {
			copy(sub, audio[start:])
		} else {
			copy(sub, audio[start:end])
		}
		prob, err := d.infer(sub)
		decisions = append(decisions, err == nil && prob > d.threshold)
	}
	return segmentsFromFrameDecisions(decisions, frameMs, minSpeechMs, minSilenceMs)
}

// Close releases the underlying ONNX Runtime session.
func (d *MLDetector) Close() error {
	if d.session == nil {
		return nil
	}
	return d.session.Destroy()
}
