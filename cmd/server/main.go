package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hashing-labs/meetscribe/pkg/diarization"
	"github.com/hashing-labs/meetscribe/pkg/errs"
	"github.com/hashing-labs/meetscribe/pkg/finalizer"
	"github.com/hashing-labs/meetscribe/pkg/observability"
	"github.com/hashing-labs/meetscribe/pkg/recorder"
	"github.com/hashing-labs/meetscribe/pkg/runtime"
	"github.com/hashing-labs/meetscribe/pkg/session"
	"github.com/hashing-labs/meetscribe/pkg/storage"
	"github.com/hashing-labs/meetscribe/pkg/sttbackend"
	"github.com/hashing-labs/meetscribe/pkg/transcription"
	"github.com/hashing-labs/meetscribe/pkg/vad"
	"github.com/hashing-labs/meetscribe/pkg/versionstore"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, using system environment variables")
	}

	logger := observability.NewSlogLogger("server")

	ctx := context.Background()
	shutdownMetrics, err := observability.InitMeterProvider(ctx, observability.ProviderConfig{ServiceVersion: "dev"})
	if err != nil {
		log.Fatalf("init meter provider: %v", err)
	}
	defer shutdownMetrics(ctx)
	metrics := observability.DefaultMetrics()

	store, err := buildStorage(ctx)
	if err != nil {
		log.Fatalf("build storage backend: %v", err)
	}

	diarizeService := buildDiarizationService(store)
	versionStore := buildVersionStore(ctx)

	rt := runtime.New()

	srv := &server{
		runtime:      rt,
		store:        store,
		metrics:      metrics,
		log:          logger,
		diarize:      diarizeService,
		versionStore: versionStore,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/streaming-audio", srv.handleStreamingAudio)
	mux.Handle("/metrics", promhttp.Handler())

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	logger.Info("server listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("http server: %v", err)
	}
}

type server struct {
	runtime      *runtime.Runtime
	store        storage.Backend
	metrics      *observability.Metrics
	log          observability.Logger
	diarize      *diarization.Service
	versionStore versionstore.Store
}

// handleStreamingAudio upgrades a request to /ws/streaming-audio and
// runs a session to completion. Query parameters session_id,
// user_email, and meeting_id are all optional; a missing session_id
// or meeting_id is minted fresh rather than rejected, matching the
// "resume if known, otherwise create" contract.
func (s *server) handleStreamingAudio(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	meetingID := r.URL.Query().Get("meeting_id")
	if meetingID == "" {
		meetingID = sessionID
	}
	userEmail := r.URL.Query().Get("user_email")

	backend, err := s.buildTranscriptionBackend()
	if err != nil {
		conn, acceptErr := websocket.Accept(w, r, nil)
		if acceptErr != nil {
			return
		}
		code, _ := session.CredentialError(err)
		session.RejectWithError(r.Context(), conn, sessionID, code, err.Error())
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", "session_id", sessionID, "error", err.Error())
		return
	}

	detector := vad.Select(vad.Config{
		NativeMode:         3,
		ModelPath:          os.Getenv("VAD_MODEL_PATH"),
		OnnxLibraryPath:    os.Getenv("ONNX_RUNTIME_LIBRARY_PATH"),
		AmplitudeThreshold: envFloat("VAD_AMPLITUDE_THRESHOLD", 0),
	}, s.log)

	manager, resumed := s.runtime.OpenSession(sessionID, func() *transcription.Manager {
		return transcription.New(backend, detector, s.log, s.metrics)
	})
	s.log.Info("session opened", "session_id", sessionID, "meeting_id", meetingID, "user_email", userEmail, "resumed", resumed)
	s.metrics.ActiveSessions.Add(r.Context(), 1)
	defer s.metrics.ActiveSessions.Add(context.Background(), -1)

	rec := s.runtime.GetOrCreateRecorder(meetingID, func() *recorder.Recorder {
		return recorder.New(meetingID, s.store, 30, s.log, s.metrics)
	})

	sess := session.New(sessionID, meetingID, conn, manager, rec, s.persistFlushSegment, s.finalizeMeeting, s.log)

	if err := sess.Run(r.Context()); err != nil {
		s.log.Warn("session ended with error", "session_id", sessionID, "error", err.Error())
	}

	if destroyed := s.runtime.CloseSession(sessionID); destroyed {
		s.runtime.RemoveRecorder(meetingID)
	}
}

// persistFlushSegment durably stores the shutdown-time ForceFlush
// segment as a "live" transcript version, per spec §4.1 step 2 and the
// persistence row shape in §6.
func (s *server) persistFlushSegment(ctx context.Context, meetingID string, seg transcription.FinalSegment) error {
	if s.versionStore == nil {
		return nil
	}
	content := []versionstore.Segment{{
		Text:           seg.Text,
		AudioStartTime: seg.AudioStartTime,
		AudioEndTime:   seg.AudioEndTime,
	}}
	_, err := s.versionStore.SaveVersion(ctx, meetingID, versionstore.SourceLive, content, false, nil, "")
	return err
}

// finalizeMeeting runs the post-recording pipeline as a detached task
// once a session's recorder has stopped, per spec §4.6.
func (s *server) finalizeMeeting(meetingID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	opts := finalizer.Options{
		SampleRate:    16000,
		DeleteChunks:  envBool("DELETE_LOCAL_AFTER_UPLOAD", false),
		UploadToCloud: false,
	}
	if envBool("ENABLE_DIARIZATION", false) && s.diarize != nil {
		opts.DispatchDiarize = func(ctx context.Context, meetingID string, wav []byte) {
			result := s.diarize.Diarize(ctx, meetingID, wav, 16000)
			if result.Status != diarization.StatusCompleted || s.versionStore == nil {
				return
			}
			content := make([]versionstore.Segment, 0, len(result.Segments))
			for _, seg := range result.Segments {
				content = append(content, versionstore.Segment{
					Text:              seg.Text,
					AudioStartTime:    seg.Start,
					AudioEndTime:      seg.End,
					Speaker:           seg.Speaker,
					SpeakerConfidence: seg.Confidence,
				})
			}
			if _, err := s.versionStore.SaveVersion(ctx, meetingID, versionstore.SourceDiarized, content, true, nil, ""); err != nil {
				s.log.Error("save diarized version failed", "meeting_id", meetingID, "error", err.Error())
			}
		}
	}

	result := finalizer.Finalize(ctx, s.store, meetingID, opts, s.log)
	if result.Status != finalizer.StatusOK {
		s.log.Warn("finalize did not complete cleanly", "meeting_id", meetingID, "status", string(result.Status))
	}
}

// buildTranscriptionBackend selects the Groq or OpenAI Whisper-
// compatible backend per STT_PROVIDER.
func (s *server) buildTranscriptionBackend() (sttbackend.Backend, error) {
	provider := os.Getenv("STT_PROVIDER")
	if provider == "" {
		provider = "groq"
	}
	switch provider {
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, errs.NewBackendError(errs.InvalidCredential, errs.ErrNoCredential)
		}
		return sttbackend.NewOpenAI(key, os.Getenv("OPENAI_STT_MODEL")), nil
	case "groq":
		fallthrough
	default:
		key := os.Getenv("GROQ_API_KEY")
		if key == "" {
			return nil, errs.NewBackendError(errs.InvalidCredential, errs.ErrNoCredential)
		}
		return sttbackend.NewGroq(key, os.Getenv("GROQ_STT_MODEL")), nil
	}
}

func buildStorage(ctx context.Context) (storage.Backend, error) {
	switch os.Getenv("STORAGE_TYPE") {
	case "gcp":
		return storage.NewCloud(ctx, storage.CloudConfig{
			Endpoint:        os.Getenv("GCS_ENDPOINT"),
			AccessKeyID:     os.Getenv("GCS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("GCS_SECRET_ACCESS_KEY"),
			Bucket:          os.Getenv("GCS_BUCKET"),
			UseSSL:          true,
		})
	default:
		root := os.Getenv("RECORDINGS_STORAGE_PATH")
		if root == "" {
			root = "./data/recordings"
		}
		return storage.NewLocal(root)
	}
}

func buildDiarizationService(store storage.Backend) *diarization.Service {
	enabled := envBool("ENABLE_DIARIZATION", false)
	if !enabled {
		return diarization.NewService(false, nil, store)
	}

	provider := os.Getenv("DIARIZATION_PROVIDER")
	if provider == "" {
		provider = "deepgram"
	}
	switch provider {
	case "assemblyai":
		key := os.Getenv("ASSEMBLYAI_API_KEY")
		if key == "" {
			return diarization.NewService(false, nil, store)
		}
		return diarization.NewService(true, diarization.NewAssemblyAIProvider(key), store)
	default:
		key := os.Getenv("DEEPGRAM_API_KEY")
		if key == "" {
			return diarization.NewService(false, nil, store)
		}
		return diarization.NewService(true, diarization.NewDeepgramProvider(key, os.Getenv("DEEPGRAM_MODEL")), store)
	}
}

func buildVersionStore(ctx context.Context) versionstore.Store {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return nil
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		log.Printf("version store disabled: connect to database: %v", err)
		return nil
	}
	return versionstore.NewPostgresStore(pool)
}

func envBool(name string, def bool) bool {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envFloat(name string, def float64) float64 {
	v := os.Getenv(name)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
