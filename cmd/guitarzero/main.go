// guitarzero runs the accuracy-judging engine: it analyses a mono PCM stream
// from a capture process, judges plucks against a MIDI chart, and serves the
// per-frame game state over HTTP.
//
// Audio arrives as signed 16-bit little-endian mono PCM, either piped on
// stdin (e.g. from arecord or ffmpeg) or replayed from a fixture file in dev
// mode.
package main

import (
	"context"
	"encoding/binary"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/alexanderzliu/guitarzero/internal/api"
	"github.com/alexanderzliu/guitarzero/internal/audio"
	"github.com/alexanderzliu/guitarzero/internal/chart"
	"github.com/alexanderzliu/guitarzero/internal/config"
	"github.com/alexanderzliu/guitarzero/internal/engine"
	"github.com/alexanderzliu/guitarzero/internal/scoring"
	"github.com/alexanderzliu/guitarzero/internal/session"
	"github.com/alexanderzliu/guitarzero/internal/version"
)

var (
	listen     = flag.String("listen", ":8080", "Listen address")
	chartPath  = flag.String("chart", "", "MIDI chart to play (required)")
	configPath = flag.String("config", "", "Tuning config JSON (optional)")
	dbPath     = flag.String("db", "guitarzero.db", "Session database path ('' disables persistence)")
	fixture    = flag.String("fixture", "", "Raw PCM fixture file to replay instead of stdin")
	devMode    = flag.Bool("dev", false, "Pace fixture replay at real time instead of reading it at once")
	speed      = flag.Float64("speed", 1.0, "Initial playback speed")
	autoStart  = flag.Bool("start", false, "Start playback immediately")
)

func main() {
	flag.Parse()

	if *chartPath == "" {
		log.Fatal("a -chart MIDI file is required")
	}

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	ch, err := chart.Load(*chartPath)
	if err != nil {
		log.Fatalf("failed to load chart: %v", err)
	}
	if err := ch.Validate(); err != nil {
		log.Fatalf("invalid chart: %v", err)
	}
	log.Printf("loaded chart %q: %d notes, %.0f bpm, %.1fs (guitarzero %s)",
		ch.Title, len(ch.Notes), ch.BPM, ch.DurationSec, version.Version)

	pipeline, err := audio.NewPipeline(cfg)
	if err != nil {
		log.Fatalf("failed to build audio pipeline: %v", err)
	}

	eng, err := engine.New(cfg, engine.SongConfig{
		DurationSec:     ch.DurationSec,
		BeatDurationSec: ch.BeatDurationSec,
	}, ch.Notes, pipeline.Events(), pipeline.Clock())
	if err != nil {
		log.Fatalf("failed to build engine: %v", err)
	}

	var db *session.DB
	if *dbPath != "" {
		db, err = session.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("failed to open session database: %v", err)
		}
		defer db.Close()
		attachPersistence(eng, db, ch)
	}

	var input io.Reader
	if *fixture != "" {
		f, err := os.Open(*fixture)
		if err != nil {
			log.Fatalf("failed to open fixture: %v", err)
		}
		defer f.Close()
		input = f
	} else {
		input = os.Stdin
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// audio feed: read PCM blocks, run analysis, advance the sample clock
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := feedAudio(ctx, pipeline, input, cfg.GetSampleRate(), cfg.GetHopSize(), *devMode); err != nil {
			log.Printf("audio feed stopped: %v", err)
		}
		log.Print("audio feed terminated")
	}()

	// frame loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		eng.Run(ctx, time.Second/60)
		log.Print("frame loop terminated")
	}()

	if *speed != 1.0 {
		eng.SetSpeed(*speed)
	}
	if *autoStart {
		eng.Start()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := http.NewServeMux()
		apiMux := api.NewServer(eng, db, ch).ServeMux()
		mux.Handle("/api/", apiMux)

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	log.Printf("guitarzero listening on %s", *listen)
	wg.Wait()
}

// attachPersistence saves a session row whenever a run finishes or is
// stopped.
func attachPersistence(eng *engine.Engine, db *session.DB, ch *chart.Chart) {
	started := time.Now()
	eng.OnFinish = func(history []scoring.VerdictEvent, final scoring.ScoreState) {
		snap := eng.Snapshot()
		rec := session.Record{
			SessionID:   uuid.NewString(),
			ChartTitle:  ch.Title,
			StartedAt:   started,
			FinishedAt:  time.Now(),
			SongTimeSec: snap.SongTimeSec,
			Speed:       snap.Speed,
			Completed:   final.MissCount+final.PerfectCount+final.GoodCount+final.OkCount == len(ch.Notes),
			Score:       final,
		}
		if err := db.SaveSession(rec, history); err != nil {
			log.Printf("failed to save session: %v", err)
			return
		}
		log.Printf("saved session %s: score %d, max streak %d", rec.SessionID, final.Score, final.MaxStreak)
		started = time.Now()
	}
}

// feedAudio pushes hop-sized blocks of samples into the pipeline. In real
// time the reader itself paces us (the capture process delivers samples at
// the hardware rate); in dev mode fixture replay is throttled to roughly
// real time so transport timing stays meaningful.
func feedAudio(ctx context.Context, p *audio.Pipeline, r io.Reader, sampleRate, hopSize int, dev bool) error {
	raw := make([]byte, hopSize*2)
	samples := make([]float64, hopSize)
	hopDur := time.Duration(float64(hopSize) / float64(sampleRate) * float64(time.Second))

	var ticker *time.Ticker
	if dev {
		ticker = time.NewTicker(hopDur)
		defer ticker.Stop()
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := io.ReadFull(r, raw); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("read pcm: %w", err)
		}
		for i := range samples {
			samples[i] = float64(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768
		}
		p.ProcessBlock(samples)

		if dev {
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return nil
			}
		}
	}
}
