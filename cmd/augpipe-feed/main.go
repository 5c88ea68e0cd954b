// Command augpipe-feed runs the simulator in its own OS process and streams
// serialized batches to an augpipe instance over ZeroMQ, giving the producer
// side real process isolation.
package main

import (
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"augpipe-go/internal/batch"
	"augpipe-go/internal/remote"
	"augpipe-go/internal/rng"
	"augpipe-go/internal/simulator"
)

func main() {
	var (
		endpoint  = pflag.String("endpoint", "tcp://*:31001", "ZeroMQ PUSH endpoint to bind")
		seed      = pflag.Int64("seed", -1, "Random seed for the generated data; negative seeds from entropy")
		batches   = pflag.Int("batches", 64, "Number of batches to send")
		batchSize = pflag.Int("batch-size", 8, "Images per batch")
		width     = pflag.Int("width", 64, "Image width")
		height    = pflag.Int("height", 64, "Image height")
		keypoints = pflag.Int("keypoints", 4, "Keypoints per image")
		rate      = pflag.Float64("rate", 0, "Batches per second; 0 sends as fast as possible")
	)
	pflag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer log.Sync()

	var state *rng.State
	if *seed >= 0 {
		state = rng.New(uint64(*seed))
	} else {
		state = rng.NewFullyRandom()
	}

	gen := simulator.New(simulator.Config{
		Batches:   *batches,
		BatchSize: *batchSize,
		Width:     *width,
		Height:    *height,
		Keypoints: *keypoints,
	}, state)

	sink, err := remote.NewSink(*endpoint)
	if err != nil {
		log.Fatal("sink bind failed", zap.Error(err))
	}
	defer sink.Close()
	log.Info("feeding batches", zap.String("endpoint", *endpoint), zap.Int("batches", *batches))

	var interval time.Duration
	if *rate > 0 {
		interval = time.Duration(float64(time.Second) / *rate)
	}

	sent := 0
	start := time.Now()
	for {
		b, err := gen.Next(nil)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Fatal("batch generation failed", zap.Error(err))
		}
		frame, err := batch.Encode(b)
		if err != nil {
			log.Fatal("batch encode failed", zap.Error(err))
		}
		if err := sink.Send(frame); err != nil {
			log.Fatal("send failed", zap.Error(err))
		}
		sent++
		if interval > 0 {
			time.Sleep(interval)
		}
	}

	if err := sink.SendDone(); err != nil {
		log.Warn("terminal sentinel send failed", zap.Error(err))
	}
	log.Info("feed complete",
		zap.Int("batches", sent),
		zap.Duration("elapsed", time.Since(start)))
}
