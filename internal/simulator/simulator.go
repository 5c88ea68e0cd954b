// Package simulator generates synthetic batches for demos and tests: a
// Gaussian intensity blob with per-image noise, plus keypoints scattered
// uniformly over the image. Metadata identifying each batch rides along in
// the Batch's opaque data field.
package simulator

import (
	"io"
	"math"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"augpipe-go/internal/batch"
	"augpipe-go/internal/loader"
	"augpipe-go/internal/rng"
)

// Meta is the per-batch metadata carried in Batch.Data. Seq lets consumers
// restore submission order after out-of-order augmentation; ID re-associates
// results with their source.
type Meta struct {
	Seq int    `cbor:"seq"`
	ID  string `cbor:"id"`
}

// DecodeMeta parses a Batch.Data payload written by this generator.
func DecodeMeta(data []byte) (Meta, error) {
	var m Meta
	err := cbor.Unmarshal(data, &m)
	return m, err
}

// Config shapes the generated batches.
type Config struct {
	// Batches is the total number of batches before exhaustion.
	Batches int
	// BatchSize is the number of images per batch.
	BatchSize int
	// Width and Height of each generated image.
	Width  int
	Height int
	// Keypoints per image.
	Keypoints int
}

// Generator produces Config.Batches batches and then io.EOF. When the
// loader passes a worker stream (Isolated mode) that stream drives the
// noise and keypoint draws, making the data reproducible per worker slot;
// otherwise the fallback stream supplied at construction is used.
type Generator struct {
	cfg      Config
	base     []float64
	fallback *rng.State

	mu  sync.Mutex
	seq int
}

// New returns a Generator. fallback may be nil, in which case an
// entropy-seeded stream is used for Threaded-mode draws.
func New(cfg Config, fallback *rng.State) *Generator {
	if cfg.Batches <= 0 {
		cfg.Batches = 16
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 4
	}
	if cfg.Width <= 0 {
		cfg.Width = 64
	}
	if cfg.Height <= 0 {
		cfg.Height = 64
	}
	if cfg.Keypoints < 0 {
		cfg.Keypoints = 0
	}
	if fallback == nil {
		fallback = rng.NewFullyRandom()
	}

	// Base pattern: intensity falls off with distance from the center,
	// same shape for every image; noise is drawn per pixel later.
	base := make([]float64, cfg.Width*cfg.Height)
	centerX := float64(cfg.Width) / 2.0
	centerY := float64(cfg.Height) / 2.0
	scale := float64(cfg.Width*cfg.Height) / 20.0
	for i := range base {
		dx := float64(i%cfg.Width) - centerX
		dy := float64(i/cfg.Width) - centerY
		base[i] = 200 * math.Exp(-(dx*dx+dy*dy)/scale)
	}

	return &Generator{cfg: cfg, base: base, fallback: fallback}
}

// Next implements loader.Generator.
func (g *Generator) Next(r *rng.State) (*batch.Batch, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.seq >= g.cfg.Batches {
		return nil, io.EOF
	}
	g.seq++
	if r == nil {
		r = g.fallback
	}

	images := make([]batch.Image, g.cfg.BatchSize)
	keypoints := make([]batch.KeypointSet, g.cfg.BatchSize)
	for i := range images {
		images[i] = g.renderImage(r)
		keypoints[i] = g.scatterKeypoints(r)
	}

	data, err := cbor.Marshal(Meta{Seq: g.seq, ID: uuid.NewString()})
	if err != nil {
		return nil, err
	}

	return &batch.Batch{
		Images:    images,
		Keypoints: keypoints,
		Data:      data,
	}, nil
}

func (g *Generator) renderImage(r *rng.State) batch.Image {
	im := batch.Image{
		Height:   g.cfg.Height,
		Width:    g.cfg.Width,
		Channels: 1,
		Pix:      make([]byte, g.cfg.Width*g.cfg.Height),
	}
	for i, b := range g.base {
		v := b + r.NormFloat64()*math.Sqrt(b+1)
		if v < 0 {
			v = 0
		}
		if v > 255 {
			v = 255
		}
		im.Pix[i] = byte(v)
	}
	return im
}

func (g *Generator) scatterKeypoints(r *rng.State) batch.KeypointSet {
	ks := batch.KeypointSet{
		Height: g.cfg.Height,
		Width:  g.cfg.Width,
		Points: make([]batch.Keypoint, g.cfg.Keypoints),
	}
	for i := range ks.Points {
		ks.Points[i] = batch.Keypoint{
			X: float64(r.IntN(g.cfg.Width)),
			Y: float64(r.IntN(g.cfg.Height)),
		}
	}
	return ks
}

var _ loader.Generator = (*Generator)(nil)
