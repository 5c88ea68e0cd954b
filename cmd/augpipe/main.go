// Command augpipe runs the full augmentation pipeline: a producer pool
// loading batches (from the built-in simulator or a remote ZeroMQ feed), a
// background augmentation pool, and a monitoring HTTP server. Consumed
// batches can be recorded to a batch log for offline inspection with
// augpipe-decode.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"augpipe-go/internal/augmenter"
	"augpipe-go/internal/augmenters"
	"augpipe-go/internal/batch"
	"augpipe-go/internal/batchlog"
	"augpipe-go/internal/config"
	"augpipe-go/internal/loader"
	"augpipe-go/internal/metric"
	"augpipe-go/internal/monitor"
	"augpipe-go/internal/remote"
	"augpipe-go/internal/rng"
	"augpipe-go/internal/simulator"
)

func main() {
	var (
		configPath = pflag.String("config", "", "Path to a YAML configuration file")
		seed       = pflag.Int64("seed", -1, "Root random seed; negative seeds from entropy")
		mode       = pflag.String("mode", "", "Producer mode: threaded or isolated")
		loadW      = pflag.Int("load-workers", 0, "Producer pool size")
		augW       = pflag.Int("augment-workers", 0, "Augmentation pool size (0 = NumCPU-1)")
		endpoint   = pflag.String("endpoint", "", "ZeroMQ PULL endpoint for a remote feed (empty = simulator)")
		port       = pflag.Int("port", 0, "Monitoring HTTP port (0 = config default)")
		batchLog   = pflag.Bool("batch-log", false, "Record augmented batches to disk")
		debug      = pflag.Bool("debug", false, "Verbose logging")
	)
	pflag.Parse()

	log := newLogger(*debug)
	defer log.Sync()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.FromFile(*configPath)
		if err != nil {
			log.Fatal("config load failed", zap.Error(err))
		}
	}
	if *seed >= 0 {
		cfg.Seed = *seed
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if *loadW > 0 {
		cfg.LoadWorkers = *loadW
	}
	if *augW > 0 {
		cfg.AugmentWorkers = *augW
	}
	if *endpoint != "" {
		cfg.Endpoint = *endpoint
	}
	if *port > 0 {
		cfg.Port = *port
	}
	if *batchLog {
		cfg.BatchLogEnabled = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rctx *rng.Context
	if cfg.Seed >= 0 {
		rctx = rng.NewContext(uint64(cfg.Seed))
	} else {
		rctx = rng.NewRandomContext()
	}

	var gen loader.Generator
	if cfg.Endpoint != "" {
		frames, err := remote.Source(ctx, cfg.Endpoint, log)
		if err != nil {
			log.Fatal("remote source failed", zap.Error(err))
		}
		gen = remote.Generator(frames)
		log.Info("reading batches from remote feed", zap.String("endpoint", cfg.Endpoint))
	} else {
		gen = simulator.New(simulator.Config{
			Batches:   cfg.Simulator.Batches,
			BatchSize: cfg.Simulator.BatchSize,
			Width:     cfg.Simulator.Width,
			Height:    cfg.Simulator.Height,
			Keypoints: cfg.Simulator.Keypoints,
		}, rctx.NewState())
		log.Info("generating batches with the simulator",
			zap.Int("batches", cfg.Simulator.Batches),
			zap.Int("batch_size", cfg.Simulator.BatchSize))
	}

	loadMode := loader.Threaded
	if cfg.Mode == config.ModeIsolated {
		loadMode = loader.Isolated
	}

	metrics := metric.New()

	l, err := loader.New(loader.Config{
		Gen:       gen,
		QueueSize: cfg.QueueSize,
		Workers:   cfg.LoadWorkers,
		Mode:      loadMode,
		RNG:       rctx,
		Logger:    log,
		Metrics:   metrics,
	})
	if err != nil {
		log.Fatal("loader start failed", zap.Error(err))
	}
	defer l.Terminate()

	bg, err := augmenter.New(augmenter.Config{
		Loader:    l,
		Seq:       augmenters.NewFliplr(cfg.FlipProbability, 0),
		SeqImages: augmenters.NewAddBrightness(cfg.BrightnessMax, 0),
		QueueSize: cfg.QueueSize,
		Workers:   cfg.AugmentWorkers,
		RNG:       rctx,
		Logger:    log,
		Metrics:   metrics,
	})
	if err != nil {
		log.Fatal("augmenter start failed", zap.Error(err))
	}
	defer bg.Terminate()

	var recorder *batchlog.Writer
	if cfg.BatchLogEnabled {
		recorder, err = batchlog.NewWriter(cfg.BatchLogDir, "augmented")
		if err != nil {
			log.Fatal("batch log start failed", zap.Error(err))
		}
		defer recorder.Close()
		log.Info("recording augmented batches", zap.String("path", recorder.Path()))
	}

	runID := uuid.NewString()
	log.Info("pipeline starting", zap.String("run_id", runID), zap.String("mode", cfg.Mode))

	stats := monitor.NewStats()
	statusFn := func() map[string]any {
		snap := stats.Snapshot()
		snap["run_id"] = runID
		return snap
	}
	uiMessages := make(chan any, 16)
	if cfg.Port > 0 {
		go func() {
			if err := monitor.Run(ctx, cfg, log, metrics.Registry(), uiMessages, statusFn); err != nil {
				log.Warn("monitor stopped", zap.Error(err))
			}
		}()
		go func() {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					select {
					case uiMessages <- statusFn():
					default:
					}
				}
			}
		}()
	}

	// Consume loop. The pipeline shuts down when the generator is exhausted
	// or on the first interrupt.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			start := time.Now()
			b, err := bg.GetBatch()
			if err == io.EOF {
				log.Info("pipeline drained")
				return
			}
			if err != nil {
				log.Warn("consume stopped", zap.Error(err))
				return
			}
			stats.RecordBatch(len(b.Images), time.Since(start))
			if recorder != nil {
				frame, err := batch.Encode(b)
				if err == nil {
					err = recorder.Record(frame)
				}
				if err != nil {
					log.Error("batch record failed", zap.Error(err))
				}
			}
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		l.Terminate()
		bg.Terminate()
		<-done
	case <-done:
	}

	snap := stats.Snapshot()
	log.Info("run complete",
		zap.Any("batches_total", snap["batches_total"]),
		zap.Any("images_total", snap["images_total"]),
		zap.Any("batches_per_sec", snap["batches_per_sec"]))
}

func newLogger(debug bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	log, err := cfg.Build()
	if err != nil {
		os.Exit(1)
	}
	return log
}
