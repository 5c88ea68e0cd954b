package augmenter

import (
	"io"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"augpipe-go/internal/augmenters"
	"augpipe-go/internal/batch"
	"augpipe-go/internal/loader"
	"augpipe-go/internal/queue"
	"augpipe-go/internal/rng"
)

func gradientImage(w, h int) batch.Image {
	im := batch.Image{Height: h, Width: w, Channels: 1, Pix: make([]byte, w*h)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			im.Set(x, y, 0, byte(y*w+x))
		}
	}
	return im
}

// keypointBatches yields n batches, each with two 6x4 images and matching
// keypoint sets. Data carries the batch's sequence number.
func keypointBatches(n int) loader.Generator {
	seq := 0
	return loader.GeneratorFunc(func(_ *rng.State) (*batch.Batch, error) {
		if seq >= n {
			return nil, io.EOF
		}
		seq++
		return &batch.Batch{
			Images: []batch.Image{gradientImage(6, 4), gradientImage(6, 4)},
			Keypoints: []batch.KeypointSet{
				{Height: 4, Width: 6, Points: []batch.Keypoint{{X: 1, Y: 2}, {X: 5, Y: 0}}},
				{Height: 4, Width: 6, Points: []batch.Keypoint{{X: 0, Y: 3}}},
			},
			Data: []byte{byte(seq)},
		}, nil
	})
}

func newPool(t *testing.T, cfg Config) *Background {
	t.Helper()
	b, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(b.Terminate)
	return b
}

func TestEndToEndSeed42(t *testing.T) {
	ctx := rng.NewContext(42)
	l, err := loader.New(loader.Config{Gen: keypointBatches(5), Workers: 1, RNG: ctx})
	require.NoError(t, err)
	defer l.Terminate()

	b := newPool(t, Config{
		Loader:  l,
		Seq:     augmenters.NewFliplr(0.5, 0),
		Workers: 1,
		RNG:     ctx,
	})

	for i := 1; i <= 5; i++ {
		got, err := b.GetBatch()
		require.NoError(t, err)
		// W1=W2=1 preserves producer order.
		require.Equal(t, []byte{byte(i)}, got.Data)
		require.Len(t, got.ImagesAug, 2)
		require.Len(t, got.KeypointsAug, 2)

		// The pre-augmentation fields are retained.
		require.Equal(t, gradientImage(6, 4), got.Images[0])

		// Spatial consistency: an image was flipped iff its keypoints
		// were projected, and projection is x' = W-1-x.
		for j := range got.ImagesAug {
			flipped := got.ImagesAug[j].At(0, 0, 0) != got.Images[j].At(0, 0, 0)
			for k, p := range got.Keypoints[j].Points {
				want := p
				if flipped {
					want.X = float64(got.Keypoints[j].Width-1) - p.X
				}
				require.Equal(t, want, got.KeypointsAug[j].Points[k], "batch %d image %d", i, j)
			}
		}
	}

	_, err = b.GetBatch()
	require.ErrorIs(t, err, io.EOF)
}

func TestRunsReproduceWithFixedSeed(t *testing.T) {
	run := func() [][]byte {
		ctx := rng.NewContext(1234)
		l, err := loader.New(loader.Config{Gen: keypointBatches(6), Workers: 1, RNG: ctx})
		require.NoError(t, err)
		defer l.Terminate()
		b := newPool(t, Config{Loader: l, Seq: augmenters.NewFliplr(0.5, 0), Workers: 1, RNG: ctx})

		var payloads [][]byte
		for {
			got, err := b.GetBatch()
			if errors.Is(err, io.EOF) {
				return payloads
			}
			require.NoError(t, err)
			frame, err := batch.Encode(got)
			require.NoError(t, err)
			payloads = append(payloads, frame)
		}
	}

	require.Equal(t, run(), run(), "fixed root seed and worker counts must reproduce byte-identical payloads")
}

func TestSentinelCountManyWorkers(t *testing.T) {
	ctx := rng.NewContext(7)
	l, err := loader.New(loader.Config{Gen: keypointBatches(9), Workers: 2, RNG: ctx})
	require.NoError(t, err)
	defer l.Terminate()

	b := newPool(t, Config{Loader: l, Seq: augmenters.NewFliplr(0.5, 0), Workers: 3, RNG: ctx})

	seen := 0
	for {
		_, err := b.GetBatch()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		seen++
	}
	// Exactly K non-terminal results before the single terminal signal,
	// regardless of either pool's size.
	require.Equal(t, 9, seen)
}

func TestGroundTruthBranch(t *testing.T) {
	gen := loader.GeneratorFunc(func(_ *rng.State) (*batch.Batch, error) {
		return nil, io.EOF
	})
	done := false
	gtGen := loader.GeneratorFunc(func(_ *rng.State) (*batch.Batch, error) {
		if done {
			return gen.Next(nil)
		}
		done = true
		return &batch.Batch{
			Images:   []batch.Image{gradientImage(6, 4)},
			ImagesGT: []batch.Image{gradientImage(6, 4)},
			MaskGT:   []batch.Image{gradientImage(6, 4)},
		}, nil
	})

	ctx := rng.NewContext(42)
	l, err := loader.New(loader.Config{Gen: gtGen, Workers: 1, RNG: ctx})
	require.NoError(t, err)
	defer l.Terminate()

	b := newPool(t, Config{
		Loader:    l,
		Seq:       augmenters.NewFliplr(1.0, 0),
		SeqImages: augmenters.NewAddBrightness(20, 0),
		SeqGT:     augmenters.NewFliplr(0.0, 0),
		Workers:   1,
		RNG:       ctx,
	})

	got, err := b.GetBatch()
	require.NoError(t, err)

	// Shared pipeline at p=1 flips images, ground truth and mask alike.
	flippedRef := gradientImage(6, 4)
	for y := 0; y < 4; y++ {
		for x := 0; x < 6; x++ {
			flippedRef.Set(5-x, y, 0, byte(y*6+x))
		}
	}
	require.Equal(t, flippedRef, got.ImagesGTAug[0])
	require.Equal(t, flippedRef, got.MaskGTAug[0])

	// The image-only pipeline shifted brightness on top of the flip; the
	// geometry must still match the ground truth. Pixel (0,3) holds 23,
	// far enough from both clamp bounds for a +/-20 shift.
	delta := int(got.ImagesAug[0].At(0, 3, 0)) - int(flippedRef.At(0, 3, 0))
	require.NotZero(t, len(got.ImagesAug))
	for y := 0; y < 4; y++ {
		for x := 0; x < 6; x++ {
			want := int(flippedRef.At(x, y, 0)) + delta
			if want < 0 {
				want = 0
			}
			if want > 255 {
				want = 255
			}
			require.Equal(t, byte(want), got.ImagesAug[0].At(x, y, 0))
		}
	}

	_, err = b.GetBatch()
	require.ErrorIs(t, err, io.EOF)
}

func TestKeypointsOnlyBatch(t *testing.T) {
	sent := false
	gen := loader.GeneratorFunc(func(_ *rng.State) (*batch.Batch, error) {
		if sent {
			return nil, io.EOF
		}
		sent = true
		return &batch.Batch{
			Keypoints: []batch.KeypointSet{{Height: 2, Width: 4, Points: []batch.Keypoint{{X: 1, Y: 0}}}},
		}, nil
	})

	ctx := rng.NewContext(3)
	l, err := loader.New(loader.Config{Gen: gen, Workers: 1, RNG: ctx})
	require.NoError(t, err)
	defer l.Terminate()

	b := newPool(t, Config{Loader: l, Seq: augmenters.NewFliplr(1.0, 0), Workers: 1, RNG: ctx})

	got, err := b.GetBatch()
	require.NoError(t, err)
	require.Nil(t, got.ImagesAug)
	require.Equal(t, 2.0, got.KeypointsAug[0].Points[0].X)
}

// failingPipeline reports an error on every image call.
type failingPipeline struct{ augmenters.Pipeline }

func (f *failingPipeline) AugmentImages([]batch.Image) ([]batch.Image, error) {
	return nil, errors.New("boom")
}
func (f *failingPipeline) Copy() augmenters.Pipeline            { return f }
func (f *failingPipeline) ToDeterministic() augmenters.Pipeline { return f }
func (f *failingPipeline) Deterministic() bool                  { return true }
func (f *failingPipeline) Reseed(uint64)                        {}

func TestPipelineFailureKillsWorkerSilently(t *testing.T) {
	ctx := rng.NewContext(5)
	l, err := loader.New(loader.Config{Gen: keypointBatches(1), Workers: 1, RNG: ctx})
	require.NoError(t, err)
	defer l.Terminate()

	b := newPool(t, Config{
		Loader:  l,
		Seq:     &failingPipeline{Pipeline: augmenters.NewFliplr(1.0, 0)},
		Workers: 1,
		RNG:     ctx,
	})

	// The dead worker never emits a sentinel: GetBatch stays blocked.
	// This is the platform's documented propagation gap.
	result := make(chan error, 1)
	go func() {
		_, err := b.GetBatch()
		result <- err
	}()
	select {
	case err := <-result:
		t.Fatalf("GetBatch returned (%v); expected it to hang", err)
	case <-time.After(300 * time.Millisecond):
	}

	// Terminate is the only way out; it releases the blocked caller.
	b.Terminate()
	require.ErrorIs(t, <-result, queue.ErrClosed)
}

func TestTerminateImmediate(t *testing.T) {
	ctx := rng.NewContext(11)
	endless := loader.GeneratorFunc(func(_ *rng.State) (*batch.Batch, error) {
		return &batch.Batch{Images: []batch.Image{gradientImage(6, 4)}}, nil
	})
	l, err := loader.New(loader.Config{Gen: endless, Workers: 2, QueueSize: 4, RNG: ctx})
	require.NoError(t, err)
	defer l.Terminate()

	b, err := New(Config{Loader: l, Seq: augmenters.NewFliplr(0.5, 0), Workers: 2, QueueSize: 2, RNG: ctx})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	b.Terminate()
	b.Terminate() // idempotent
	require.Less(t, time.Since(start), time.Second)
}
