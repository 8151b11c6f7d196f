// Package recognizer turns probe images into face embedding vectors using
// an external extraction service.
package recognizer

import (
	"context"
	"errors"
)

var (
	// ErrNoFace means the extractor found no face in the image.
	ErrNoFace = errors.New("no face detected in image")

	// ErrDecode means the payload is not a decodable image.
	ErrDecode = errors.New("image could not be decoded")
)

// Extractor computes the embedding of the most prominent face in an image.
type Extractor interface {
	ExtractFace(ctx context.Context, imageData []byte) ([]float32, error)
}
