// Command client is a microphone-capture demo: it dials a running
// server's /ws/streaming-audio endpoint, streams microphone-captured PCM
// frames with a client-timestamp prefix, and prints the transcript
// events as they arrive.
package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gen2brain/malgo"
	"github.com/joho/godotenv"

	"github.com/hashing-labs/meetscribe/pkg/session"
)

const (
	sampleRate = 16000
	channels   = 1
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, using system environment variables")
	}

	serverURL := os.Getenv("SERVER_URL")
	if serverURL == "" {
		serverURL = "ws://localhost:8080/ws/streaming-audio"
	}
	if meetingID := os.Getenv("MEETING_ID"); meetingID != "" {
		u, err := url.Parse(serverURL)
		if err != nil {
			log.Fatalf("parse SERVER_URL: %v", err)
		}
		q := u.Query()
		q.Set("meeting_id", meetingID)
		u.RawQuery = q.Encode()
		serverURL = u.String()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, _, err := websocket.Dial(ctx, serverURL, nil)
	if err != nil {
		log.Fatalf("dial %s: %v", serverURL, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "client exiting")

	var connected session.Outbound
	if err := wsjson.Read(ctx, conn, &connected); err != nil {
		log.Fatalf("read connected frame: %v", err)
	}
	fmt.Printf("connected: session_id=%s\n", connected.SessionID)

	sessionStart := time.Now()

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		log.Fatal(err)
	}
	defer mctx.Uninit()

	onSamples := func(pOutput, pInput []byte, frameCount uint32) {
		if pInput == nil || len(pInput) == 0 {
			return
		}
		elapsed := time.Since(sessionStart).Seconds()

		frame := make([]byte, 8+len(pInput))
		binary.LittleEndian.PutUint64(frame[:8], math.Float64bits(elapsed))
		copy(frame[8:], pInput)

		if err := conn.Write(ctx, websocket.MessageBinary, frame); err != nil {
			return
		}
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = channels
	deviceConfig.SampleRate = sampleRate
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSamples,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		log.Fatal(err)
	}

	go func() {
		for {
			var msg session.Outbound
			if err := wsjson.Read(ctx, conn, &msg); err != nil {
				return
			}
			switch msg.Type {
			case session.KindPartial:
				fmt.Printf("\r[partial] %s", msg.Text)
			case session.KindFinal:
				fmt.Printf("\r[final]   %s (reason=%s, confidence=%.2f)\n", msg.Text, msg.Reason, msg.Confidence)
			case session.KindError:
				fmt.Printf("\r[error]   code=%s %s\n", msg.Code, msg.Message)
			case session.KindPong:
				fmt.Printf("\r[pong]\n")
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			_ = wsjson.Write(ctx, conn, session.Inbound{Type: "ping"})
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	fmt.Println("\nshutting down...")
}
