// Package augmenter implements the consumer stage: a pool of workers that
// pull serialized batches from the loading stage, apply the augmentation
// pipelines consistently across the correlated streams of each batch, and
// republish the results for the caller's training loop.
package augmenter

import (
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"augpipe-go/internal/augmenters"
	"augpipe-go/internal/batch"
	"augpipe-go/internal/loader"
	"augpipe-go/internal/metric"
	"augpipe-go/internal/queue"
	"augpipe-go/internal/rng"
)

const (
	defaultQueueSize = 50

	// pollTimeout bounds each source pull so workers periodically re-check
	// producer completion.
	pollTimeout = 100 * time.Millisecond
)

// Config configures a Background augmenter.
type Config struct {
	// Loader is the producer stage feeding this one. Required.
	Loader *loader.Loader
	// Seq is the shared pipeline applied to every batch. Required.
	Seq augmenters.Pipeline
	// SeqImages is optionally applied to the already-augmented raw-image
	// stream only (after Seq, in the ground-truth branch).
	SeqImages augmenters.Pipeline
	// SeqGT is optionally applied to the ground-truth image and mask
	// streams only, frozen once per batch.
	SeqGT augmenters.Pipeline
	// QueueSize bounds the result queue. Defaults to 50.
	QueueSize int
	// Workers is the pool size; 0 means NumCPU-1 (minimum 1).
	Workers int
	// RNG supplies the root stream worker streams are derived from.
	// Defaults to an entropy-seeded context (not reproducible).
	RNG *rng.Context
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
	// Metrics may be nil.
	Metrics *metric.Metrics
}

// Background runs the augmentation worker pool.
//
// Each worker owns private copies of the configured pipelines, reseeded at
// startup from streams derived from the root, so worker randomness is
// reproducible for a fixed root seed and worker count. Batches are processed
// in arbitrary interleaving across workers; order is preserved only within a
// single worker's sequence.
type Background struct {
	source         *queue.Queue
	sourceFinished []*atomic.Bool
	result         *queue.Queue
	workers        int
	stop           atomic.Bool
	termOnce       sync.Once

	// workersFinished counts sentinels observed by GetBatch. Only the
	// consuming side touches it; GetBatch is not safe for concurrent use.
	workersFinished int

	log     *zap.Logger
	metrics *metric.Metrics
}

// New starts the worker pool immediately.
func New(cfg Config) (*Background, error) {
	if cfg.Loader == nil {
		return nil, errors.New("augmenter: loader is required")
	}
	if cfg.Seq == nil {
		return nil, errors.New("augmenter: shared pipeline is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Workers <= 0 {
		// Leave one core for the consuming (training) loop.
		cfg.Workers = runtime.NumCPU() - 1
		if cfg.Workers < 1 {
			cfg.Workers = 1
		}
	}
	if cfg.RNG == nil {
		cfg.RNG = rng.NewRandomContext()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	b := &Background{
		source:         cfg.Loader.Queue(),
		sourceFinished: cfg.Loader.FinishedFlags(),
		result:         queue.New(cfg.QueueSize),
		workers:        cfg.Workers,
		log:            cfg.Logger.Named("augmenter"),
		metrics:        cfg.Metrics,
	}

	states := rng.Derive(cfg.RNG.Root(), cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		w := &worker{
			id:   i,
			pool: b,
			seq:  cfg.Seq.Copy(),
		}
		if cfg.SeqImages != nil {
			w.seqImages = cfg.SeqImages.Copy()
		}
		if cfg.SeqGT != nil {
			w.seqGT = cfg.SeqGT.Copy()
		}
		w.reseed(states[i])
		go w.run()
	}
	return b, nil
}

// Queue returns the result queue. Mostly useful for monitoring depth.
func (b *Background) Queue() *queue.Queue { return b.result }

// GetBatch blocks until the next augmented batch is available and returns
// it. Once every worker has emitted its terminal sentinel, GetBatch returns
// io.EOF; the caller then owns the complete union of produced batches. Not
// safe for concurrent use.
func (b *Background) GetBatch() (*batch.Batch, error) {
	for {
		frame, err := b.result.Get()
		if err != nil {
			return nil, err
		}
		if batch.IsDone(frame) {
			b.workersFinished++
			if b.workersFinished >= b.workers {
				return nil, io.EOF
			}
			continue
		}
		return batch.Decode(frame)
	}
}

// Terminate stops the pool immediately: no grace period, since augmentation
// is stateless per batch and safely abandonable. Workers blocked on the
// result queue are released by the close and exit without sentinels.
func (b *Background) Terminate() {
	b.termOnce.Do(func() {
		b.stop.Store(true)
		b.result.Close()
		b.log.Debug("augmenter terminated")
	})
}

type worker struct {
	id        int
	pool      *Background
	seq       augmenters.Pipeline
	seqImages augmenters.Pipeline
	seqGT     augmenters.Pipeline
}

// reseed derives one child stream per pipeline from the worker's stream, so
// the three pipelines are seeded independently of each other yet fully
// determined by the worker's slot.
func (w *worker) reseed(state *rng.State) {
	sub := rng.Derive(state, 3)
	w.seq.Reseed(sub[0].SeedDraw())
	if w.seqImages != nil {
		w.seqImages.Reseed(sub[1].SeedDraw())
	}
	if w.seqGT != nil {
		w.seqGT.Reseed(sub[2].SeedDraw())
	}
}

func (w *worker) run() {
	p := w.pool
	for !p.stop.Load() {
		frame, err := p.source.GetTimeout(pollTimeout)
		if err != nil {
			if errors.Is(err, queue.ErrEmpty) && !loader.AllSet(p.sourceFinished) {
				continue
			}
			// Source exhausted (or closed by loader termination):
			// announce completion exactly once and leave.
			if putErr := p.result.Put(batch.EncodeDone(), 0); putErr != nil {
				p.log.Debug("result queue closed before sentinel", zap.Int("worker", w.id))
			}
			return
		}

		out, err := w.augment(frame)
		if err != nil {
			// Pipeline failures are fatal to this worker and are not
			// converted into a sentinel: the finished flag of a dead
			// worker stays unset and a caller blocked in GetBatch may
			// wait forever. This mirrors the platform's asymmetric
			// error policy; see DESIGN.md.
			p.log.Error("augmentation failed, worker dying", zap.Int("worker", w.id), zap.Error(err))
			p.metrics.IncAugmentError()
			return
		}

		if err := p.result.Put(out, 0); err != nil {
			return
		}
		p.metrics.IncAugmented()
		p.metrics.SetQueueDepth(metric.StageAugmenter, p.result.Len())
	}
}

// augment decodes one frame, applies the configured pipelines to whichever
// stream combination the batch carries, and re-encodes the result.
func (w *worker) augment(frame []byte) ([]byte, error) {
	start := time.Now()
	b, err := batch.Decode(frame)
	if err != nil {
		return nil, err
	}

	hasImages := len(b.Images) > 0
	hasGT := len(b.ImagesGT) > 0
	hasKeypoints := len(b.Keypoints) > 0

	switch {
	case hasImages && hasKeypoints:
		// One frozen instance for both streams keeps image content and
		// keypoint coordinates spatially consistent.
		det := w.deterministic(w.seq)
		if b.ImagesAug, err = det.AugmentImages(b.Images); err != nil {
			return nil, err
		}
		if b.KeypointsAug, err = det.AugmentKeypoints(b.Keypoints); err != nil {
			return nil, err
		}

	case hasImages && hasGT:
		det := w.deterministic(w.seq)
		if b.ImagesAug, err = det.AugmentImages(b.Images); err != nil {
			return nil, err
		}
		if b.ImagesGTAug, err = det.AugmentImages(b.ImagesGT); err != nil {
			return nil, err
		}
		if len(b.MaskGT) > 0 {
			if b.MaskGTAug, err = det.AugmentImages(b.MaskGT); err != nil {
				return nil, err
			}
		}
		if w.seqImages != nil {
			if b.ImagesAug, err = w.seqImages.AugmentImages(b.ImagesAug); err != nil {
				return nil, err
			}
		}
		if w.seqGT != nil {
			detGT := w.deterministic(w.seqGT)
			if b.ImagesGTAug, err = detGT.AugmentImages(b.ImagesGTAug); err != nil {
				return nil, err
			}
			if len(b.MaskGTAug) > 0 {
				if b.MaskGTAug, err = detGT.AugmentImages(b.MaskGTAug); err != nil {
					return nil, err
				}
			}
		}

	case hasImages:
		if b.ImagesAug, err = w.seq.AugmentImages(b.Images); err != nil {
			return nil, err
		}

	case hasKeypoints:
		if b.KeypointsAug, err = w.seq.AugmentKeypoints(b.Keypoints); err != nil {
			return nil, err
		}
	}

	out, err := batch.Encode(b)
	if err != nil {
		return nil, err
	}
	w.pool.metrics.ObserveAugment(time.Since(start))
	return out, nil
}

func (w *worker) deterministic(p augmenters.Pipeline) augmenters.Pipeline {
	if p.Deterministic() {
		return p
	}
	return p.ToDeterministic()
}
