// Package loader implements the producer stage: a pool of workers that pull
// batches from a user-supplied generator, serialize them and push them into
// a bounded queue for the augmentation stage.
package loader

import (
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"augpipe-go/internal/batch"
	"augpipe-go/internal/metric"
	"augpipe-go/internal/queue"
	"augpipe-go/internal/rng"
)

// Mode selects how much isolation workers get.
type Mode int

const (
	// Threaded workers share the host's randomness and receive a nil
	// stream; they are expected to read from an external source rather
	// than generate random values themselves.
	Threaded Mode = iota
	// Isolated workers each receive their own stream derived from the
	// root at construction time, so generator randomness stays
	// reproducible per worker slot.
	Isolated
)

// Generator produces the batches the pipeline consumes. One instance is
// shared by all workers and called under a loader-held lock, so a generator
// yielding K batches yields exactly K pipeline-wide regardless of worker
// count. Next returns io.EOF when the sequence is exhausted; any other error
// stops the calling worker only.
//
// In Isolated mode r is the calling worker's private stream; in Threaded
// mode it is nil.
type Generator interface {
	Next(r *rng.State) (*batch.Batch, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(r *rng.State) (*batch.Batch, error)

// Next implements Generator.
func (f GeneratorFunc) Next(r *rng.State) (*batch.Batch, error) { return f(r) }

const (
	defaultQueueSize = 50

	// putRetryTimeout bounds each push attempt so a worker blocked on a
	// full queue keeps observing the stop flag.
	putRetryTimeout = time.Millisecond

	// terminateGrace lets an in-flight push complete or time out before
	// the queue is drained.
	terminateGrace = 2 * time.Millisecond
)

// Config configures a Loader.
type Config struct {
	// Gen is the batch source. Required.
	Gen Generator
	// QueueSize bounds the output queue. Defaults to 50.
	QueueSize int
	// Workers is the producer pool size. Defaults to 1.
	Workers int
	// Mode selects Threaded or Isolated workers.
	Mode Mode
	// RNG supplies the root stream worker streams are derived from.
	// Defaults to an entropy-seeded context (not reproducible).
	RNG *rng.Context
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
	// Metrics may be nil.
	Metrics *metric.Metrics
}

// Loader runs the producer worker pool.
type Loader struct {
	out      *queue.Queue
	gen      Generator
	genMu    sync.Mutex
	stop     atomic.Bool
	finished []*atomic.Bool
	wg       sync.WaitGroup
	termOnce sync.Once

	log     *zap.Logger
	metrics *metric.Metrics
}

// New starts the worker pool immediately.
func New(cfg Config) (*Loader, error) {
	if cfg.Gen == nil {
		return nil, errors.New("loader: generator is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RNG == nil {
		cfg.RNG = rng.NewRandomContext()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	l := &Loader{
		out:      queue.New(cfg.QueueSize),
		gen:      cfg.Gen,
		finished: make([]*atomic.Bool, cfg.Workers),
		log:      cfg.Logger.Named("loader"),
		metrics:  cfg.Metrics,
	}
	for i := range l.finished {
		l.finished[i] = &atomic.Bool{}
	}

	// Worker streams are derived from the root once, here; after this no
	// randomness state is shared across workers.
	var states []*rng.State
	if cfg.Mode == Isolated {
		states = rng.Derive(cfg.RNG.Root(), cfg.Workers)
	} else {
		states = make([]*rng.State, cfg.Workers)
	}

	l.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go l.worker(i, states[i])
	}
	return l, nil
}

// Queue returns the output queue the augmentation stage reads from.
func (l *Loader) Queue() *queue.Queue { return l.out }

// FinishedFlags exposes the per-worker finished flags for the consumer
// stage's completion checks.
func (l *Loader) FinishedFlags() []*atomic.Bool { return l.finished }

// AllFinished reports whether every worker has set its finished flag.
func (l *Loader) AllFinished() bool {
	return AllSet(l.finished)
}

// AllSet reports whether every flag in the set is true.
func AllSet(flags []*atomic.Bool) bool {
	for _, f := range flags {
		if !f.Load() {
			return false
		}
	}
	return true
}

func (l *Loader) worker(id int, state *rng.State) {
	defer l.wg.Done()
	// The flag is set only once the worker will emit no further payloads.
	defer l.finished[id].Store(true)

	for !l.stop.Load() {
		start := time.Now()
		b, err := l.next(state)
		if errors.Is(err, io.EOF) {
			l.log.Debug("generator exhausted", zap.Int("worker", id))
			return
		}
		if err != nil {
			// Generator failures are local: log, count, mark this
			// worker finished. Sibling workers and the consumer are
			// not notified; the pipeline simply yields fewer batches.
			l.log.Error("batch generator failed", zap.Int("worker", id), zap.Error(err))
			l.metrics.IncLoaderError()
			return
		}
		l.metrics.ObserveLoad(time.Since(start))

		frame, err := batch.Encode(b)
		if err != nil {
			l.log.Error("batch encode failed", zap.Int("worker", id), zap.Error(err))
			l.metrics.IncLoaderError()
			return
		}

		for !l.stop.Load() {
			err := l.out.Put(frame, putRetryTimeout)
			if err == nil {
				l.metrics.IncLoaded()
				l.metrics.SetQueueDepth(metric.StageLoader, l.out.Len())
				break
			}
			if errors.Is(err, queue.ErrFull) {
				l.metrics.IncPutRetry()
				continue
			}
			// Queue closed under us; nothing left to deliver to.
			return
		}
	}
}

func (l *Loader) next(state *rng.State) (*batch.Batch, error) {
	l.genMu.Lock()
	defer l.genMu.Unlock()
	return l.gen.Next(state)
}

// Terminate stops the pool: it raises the stop flag, grants in-flight pushes
// a short grace period, drains the queue, joins the workers, marks every
// finished flag and closes the queue. Idempotent. Latency is bounded as long
// as the generator itself does not block indefinitely, since every queue
// operation a worker performs carries a timeout.
func (l *Loader) Terminate() {
	l.termOnce.Do(func() {
		l.stop.Store(true)
		time.Sleep(terminateGrace)
		l.out.Drain()
		l.wg.Wait()
		for _, f := range l.finished {
			f.Store(true)
		}
		l.out.Close()
		l.log.Debug("loader terminated")
	})
}
