package vad

import "github.com/hashing-labs/meetscribe/pkg/observability"

// Config selects which backends to attempt and their parameters. Zero
// values mean "use this backend's own defaults"; a ModelPath left empty
// causes the ML tier to be skipped rather than attempted and failed.
// The native tier is always attempted, whatever NativeMode holds.
type Config struct {
	NativeMode         int
	ModelPath          string
	OnnxLibraryPath    string
	MLThreshold        float64
	AmplitudeThreshold float64
}

// Select tries the native backend, then the ML backend, then falls
// back to the amplitude heuristic, logging which backend ultimately
// won. The amplitude backend cannot fail to construct, so Select
// never returns an error — lack of VAD hardware/models never kills a
// session.
func Select(cfg Config, log observability.Logger) Detector {
	if log == nil {
		log = observability.NoOpLogger{}
	}

	if native, err := NewNativeDetector(cfg.NativeMode); err == nil {
		log.Info("vad backend selected", "backend", "native")
		return native
	} else {
		log.Warn("vad native backend failed to load, trying ml", "error", err.Error())
	}

	if cfg.ModelPath != "" {
		if ml, err := NewMLDetector(cfg.ModelPath, cfg.OnnxLibraryPath, cfg.MLThreshold); err == nil {
			log.Info("vad backend selected", "backend", "ml")
			return ml
		} else {
			log.Warn("vad ml backend failed to load, falling back to amplitude", "error", err.Error())
		}
	} else {
		log.Warn("vad ml backend skipped: no model path configured")
	}

	log.Info("vad backend selected", "backend", "amplitude")
	return NewAmplitudeDetector(cfg.AmplitudeThreshold)
}
