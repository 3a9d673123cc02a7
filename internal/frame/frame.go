// Package frame turns raw request bytes into decoded raster frames
package frame

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	_ "image/gif"
	_ "image/png"
)

var (
	// ErrEmptyInput is returned when the request body carried no bytes.
	ErrEmptyInput = errors.New("no image data received")

	// ErrUndecodable is returned when the bytes are not a decodable image.
	ErrUndecodable = errors.New("failed to decode image")
)

// Frame is a decoded image plus the raw bytes it came from
type Frame struct {
	Image  image.Image
	Data   []byte
	Width  int
	Height int
	Format string // "jpeg", "png", "gif"
}

// Decode decodes an opaque byte buffer into a Frame.
// Empty and undecodable input are distinct errors for diagnostics,
// both map to the same client-error outcome at the API layer.
func Decode(data []byte) (*Frame, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	bounds := img.Bounds()
	return &Frame{
		Image:  img,
		Data:   data,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Format: format,
	}, nil
}

// Bounds returns the frame's pixel rectangle.
func (f *Frame) Bounds() image.Rectangle {
	return f.Image.Bounds()
}

// Crop returns a private copy of the region r, clipped to the frame.
// Returns nil when the clipped region is empty.
func (f *Frame) Crop(r image.Rectangle) image.Image {
	r = r.Intersect(f.Image.Bounds())
	if r.Empty() {
		return nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), f.Image, r.Min, draw.Src)
	return dst
}

// EncodeJPEG encodes an image as JPEG bytes with the given quality
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = 85
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
