package augmenters

import (
	"augpipe-go/internal/batch"
	"augpipe-go/internal/rng"
)

// AddBrightness shifts every pixel of each image by a value drawn uniformly
// from [-Max, +Max], clamped to [0, 255]. It is a pixel-level transform:
// keypoints pass through unchanged, which makes it suitable as the optional
// image-only pipeline of the background stage.
type AddBrightness struct {
	Max           int
	state         *rng.State
	deterministic bool
}

// NewAddBrightness returns an AddBrightness with the given maximum shift.
func NewAddBrightness(max int, seed uint64) *AddBrightness {
	return &AddBrightness{Max: max, state: rng.New(seed)}
}

func (a *AddBrightness) drawState() *rng.State {
	if a.deterministic {
		return a.state.Clone()
	}
	return a.state
}

// AugmentImages implements Pipeline.
func (a *AddBrightness) AugmentImages(images []batch.Image) ([]batch.Image, error) {
	st := a.drawState()
	out := make([]batch.Image, len(images))
	for i, im := range images {
		delta := st.IntN(2*a.Max+1) - a.Max
		shifted := im.Clone()
		for j, v := range shifted.Pix {
			shifted.Pix[j] = clampByte(int(v) + delta)
		}
		out[i] = shifted
	}
	return out, nil
}

// AugmentKeypoints implements Pipeline. Pixel-level transform: coordinates
// are returned unchanged.
func (a *AddBrightness) AugmentKeypoints(keypoints []batch.KeypointSet) ([]batch.KeypointSet, error) {
	out := make([]batch.KeypointSet, len(keypoints))
	for i, ks := range keypoints {
		out[i] = ks.Clone()
	}
	return out, nil
}

// ToDeterministic implements Pipeline.
func (a *AddBrightness) ToDeterministic() Pipeline {
	if a.deterministic {
		return a
	}
	det := &AddBrightness{Max: a.Max, state: a.state.Clone(), deterministic: true}
	a.state.Advance()
	return det
}

// Deterministic implements Pipeline.
func (a *AddBrightness) Deterministic() bool { return a.deterministic }

// Copy implements Pipeline.
func (a *AddBrightness) Copy() Pipeline {
	return &AddBrightness{Max: a.Max, state: a.state.Clone(), deterministic: a.deterministic}
}

// Reseed implements Pipeline.
func (a *AddBrightness) Reseed(seed uint64) {
	a.state = rng.New(seed)
}

func clampByte(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
