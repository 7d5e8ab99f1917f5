// Package imageprocessor turns uploaded image bytes into the input tensor the classifier
// expects: a single 48x48 grayscale frame scaled to [0,1], laid out as NHWC.
package imageprocessor

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	// Size is the edge length, in pixels, of the square frame fed to the model.
	Size = 48
	// Channels is the number of color channels in the frame.
	Channels = 1
	// DefaultMaxPixels is the largest width*height accepted before decoding, the same
	// bound Pillow applies to guard against decompression bombs.
	DefaultMaxPixels = 89478485
)

// ErrDecode is returned when the uploaded bytes are not a supported image.
var ErrDecode = errors.New("image could not be decoded")

// Tensor is a dense float32 buffer in row-major order with the given shape.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// InputShape is the (batch, height, width, channels) shape produced by Process.
func InputShape() []int64 {
	return []int64{1, Size, Size, Channels}
}

// Preprocessor exposes the subset of functionality used by the prediction flow.
type Preprocessor interface {
	Process(data []byte) (*Tensor, error)
}

// Processor decodes, converts and resizes images with a fixed resampling filter.
type Processor struct {
	filter    imaging.ResampleFilter
	maxPixels int64
}

// New returns a Processor using the named resampling filter. Known names are
// catmullrom, linear, lanczos, box and nearest; an empty name selects catmullrom.
// Images with more than maxPixels pixels are rejected without being decoded; a
// non-positive maxPixels selects DefaultMaxPixels.
func New(filterName string, maxPixels int64) (*Processor, error) {
	filter, err := ParseFilter(filterName)
	if err != nil {
		return nil, err
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &Processor{filter: filter, maxPixels: maxPixels}, nil
}

// ParseFilter maps a configuration name onto an imaging resampling filter.
func ParseFilter(name string) (imaging.ResampleFilter, error) {
	switch name {
	case "", "catmullrom", "bicubic":
		return imaging.CatmullRom, nil
	case "linear", "bilinear":
		return imaging.Linear, nil
	case "lanczos":
		return imaging.Lanczos, nil
	case "box":
		return imaging.Box, nil
	case "nearest":
		return imaging.NearestNeighbor, nil
	default:
		return imaging.ResampleFilter{}, fmt.Errorf("unknown resize filter %q", name)
	}
}

// Process decodes data and returns the normalized (1, 48, 48, 1) tensor.
func (p *Processor) Process(data []byte) (*Tensor, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrDecode)
	}
	if err := p.checkDimensions(data); err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: image has no pixels", ErrDecode)
	}
	return &Tensor{Shape: InputShape(), Data: p.toFrame(img)}, nil
}

// checkDimensions reads only the image header so oversized frames are refused
// before any pixel buffer is allocated.
func (p *Processor) checkDimensions(data []byte) error {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > p.maxPixels {
		return fmt.Errorf("%w: %s image is %dx%d, limit is %d pixels", ErrDecode, format, cfg.Width, cfg.Height, p.maxPixels)
	}
	return nil
}

// toFrame converts to luma before resampling so the filter works on a single channel.
func (p *Processor) toFrame(img image.Image) []float32 {
	gray := imaging.Grayscale(img)
	frame := imaging.Resize(gray, Size, Size, p.filter)

	out := make([]float32, Size*Size*Channels)
	for y := 0; y < Size; y++ {
		row := frame.Pix[y*frame.Stride:]
		for x := 0; x < Size; x++ {
			// R, G and B are equal after Grayscale.
			out[y*Size+x] = float32(row[x*4]) / 255.0
		}
	}
	return out
}
