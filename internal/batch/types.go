// Package batch defines the unit of correlated data moved through the
// pipeline and its wire format. A Batch carries images together with the
// annotations that must receive the same spatial transforms (keypoints,
// ground-truth images, masks) plus opaque caller metadata.
package batch

// Image is a dense HWC uint8 image. Pix holds Height*Width*Channels bytes
// in row-major order.
type Image struct {
	Height   int    `cbor:"height"`
	Width    int    `cbor:"width"`
	Channels int    `cbor:"channels"`
	Pix      []byte `cbor:"pix"`
}

// At returns the pixel value at (x, y, c). No bounds checking.
func (im Image) At(x, y, c int) byte {
	return im.Pix[(y*im.Width+x)*im.Channels+c]
}

// Set writes the pixel value at (x, y, c). No bounds checking.
func (im Image) Set(x, y, c int, v byte) {
	im.Pix[(y*im.Width+x)*im.Channels+c] = v
}

// Clone returns a deep copy.
func (im Image) Clone() Image {
	pix := make([]byte, len(im.Pix))
	copy(pix, im.Pix)
	return Image{Height: im.Height, Width: im.Width, Channels: im.Channels, Pix: pix}
}

// Keypoint is one annotated coordinate in pixel space.
type Keypoint struct {
	X float64 `cbor:"x"`
	Y float64 `cbor:"y"`
}

// KeypointSet holds the keypoints of one image together with that image's
// shape, which spatial transforms need to project coordinates.
type KeypointSet struct {
	Height int        `cbor:"height"`
	Width  int        `cbor:"width"`
	Points []Keypoint `cbor:"points"`
}

// Clone returns a deep copy.
func (ks KeypointSet) Clone() KeypointSet {
	points := make([]Keypoint, len(ks.Points))
	copy(points, ks.Points)
	return KeypointSet{Height: ks.Height, Width: ks.Width, Points: points}
}

// Batch is one unit of correlated data. Fields left nil are not part of the
// batch. The *Aug fields are populated by the augmentation stage; the
// pre-augmentation fields are retained.
//
// Data is opaque caller metadata carried through the pipeline untouched.
// Because batches may be returned out of submission order, callers that need
// to re-associate results (or reorder them) put file paths or sequence
// numbers here.
//
// Every field is plain data: a Batch is fully self-describing and can cross
// process boundaries without referencing runtime state.
type Batch struct {
	Images    []Image       `cbor:"images,omitempty"`
	ImagesAug []Image       `cbor:"images_aug,omitempty"`

	ImagesGT    []Image `cbor:"images_gt,omitempty"`
	ImagesGTAug []Image `cbor:"images_gt_aug,omitempty"`

	MaskGT    []Image `cbor:"mask_gt,omitempty"`
	MaskGTAug []Image `cbor:"mask_gt_aug,omitempty"`

	Keypoints    []KeypointSet `cbor:"keypoints,omitempty"`
	KeypointsAug []KeypointSet `cbor:"keypoints_aug,omitempty"`

	Data []byte `cbor:"data,omitempty"`
}
