package augmenters

import (
	"augpipe-go/internal/batch"
	"augpipe-go/internal/rng"
)

// Fliplr flips each image horizontally with probability P. Keypoints are
// projected accordingly (x' = W-1-x), so a deterministic Fliplr applied to
// both streams keeps them consistent.
type Fliplr struct {
	P             float64
	state         *rng.State
	deterministic bool
}

// NewFliplr returns a Fliplr flipping with probability p, seeded with seed.
func NewFliplr(p float64, seed uint64) *Fliplr {
	return &Fliplr{P: p, state: rng.New(seed)}
}

// drawState returns the stream augmentation draws come from. A frozen
// pipeline draws from a clone so that every call replays the same
// parameters; a live one mutates its own stream.
func (f *Fliplr) drawState() *rng.State {
	if f.deterministic {
		return f.state.Clone()
	}
	return f.state
}

// AugmentImages implements Pipeline.
func (f *Fliplr) AugmentImages(images []batch.Image) ([]batch.Image, error) {
	st := f.drawState()
	out := make([]batch.Image, len(images))
	for i, im := range images {
		if st.Float64() < f.P {
			out[i] = flipImage(im)
		} else {
			out[i] = im.Clone()
		}
	}
	return out, nil
}

// AugmentKeypoints implements Pipeline.
func (f *Fliplr) AugmentKeypoints(keypoints []batch.KeypointSet) ([]batch.KeypointSet, error) {
	st := f.drawState()
	out := make([]batch.KeypointSet, len(keypoints))
	for i, ks := range keypoints {
		if st.Float64() < f.P {
			out[i] = flipKeypoints(ks)
		} else {
			out[i] = ks.Clone()
		}
	}
	return out, nil
}

// ToDeterministic implements Pipeline.
func (f *Fliplr) ToDeterministic() Pipeline {
	if f.deterministic {
		return f
	}
	det := &Fliplr{P: f.P, state: f.state.Clone(), deterministic: true}
	f.state.Advance()
	return det
}

// Deterministic implements Pipeline.
func (f *Fliplr) Deterministic() bool { return f.deterministic }

// Copy implements Pipeline.
func (f *Fliplr) Copy() Pipeline {
	return &Fliplr{P: f.P, state: f.state.Clone(), deterministic: f.deterministic}
}

// Reseed implements Pipeline.
func (f *Fliplr) Reseed(seed uint64) {
	f.state = rng.New(seed)
}

func flipImage(im batch.Image) batch.Image {
	out := im.Clone()
	for y := 0; y < im.Height; y++ {
		for x := 0; x < im.Width; x++ {
			for c := 0; c < im.Channels; c++ {
				out.Set(im.Width-1-x, y, c, im.At(x, y, c))
			}
		}
	}
	return out
}

func flipKeypoints(ks batch.KeypointSet) batch.KeypointSet {
	out := ks.Clone()
	for i, p := range out.Points {
		out.Points[i] = batch.Keypoint{X: float64(ks.Width-1) - p.X, Y: p.Y}
	}
	return out
}
