// Package augmenters defines the augmentation-pipeline capability consumed
// by the background stage, plus two small reference pipelines used by the
// demo and the tests. The full operator catalog lives outside this system;
// anything implementing Pipeline can be plugged in.
package augmenters

import "augpipe-go/internal/batch"

// Pipeline applies a randomized transform to correlated data streams.
//
// A deterministic pipeline (ToDeterministic) has its random parameters
// frozen: within one deterministic instance, AugmentImages and
// AugmentKeypoints draw identical parameter sequences, which is what keeps
// an image stream and its annotations spatially consistent. Reseed
// reinitializes the pipeline's randomness from an integer; Copy returns an
// independent pipeline a worker can own privately.
type Pipeline interface {
	AugmentImages(images []batch.Image) ([]batch.Image, error)
	AugmentKeypoints(keypoints []batch.KeypointSet) ([]batch.KeypointSet, error)

	// ToDeterministic returns a frozen copy of the pipeline's current
	// parameters. The receiver's stream is advanced so that later calls
	// produce fresh parameters.
	ToDeterministic() Pipeline

	// Deterministic reports whether the pipeline is already frozen.
	Deterministic() bool

	Copy() Pipeline
	Reseed(seed uint64)
}
