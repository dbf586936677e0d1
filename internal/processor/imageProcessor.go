package processor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/trunov/freshconnect-images/internal/entities"
)

// MaxPixels caps the total raster size handed to the encoders.
const MaxPixels = 1_000_000

// Source rasters are checked against these before any pixel is decoded. A
// few hundred KB of compressed PNG can declare gigabytes of pixels.
const (
	DefaultMaxSourcePixels = 50_000_000
	DefaultMaxSourceSide   = 16_384
)

var (
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrSourceTooLarge    = errors.New("source image dimensions exceed limit")
)

// ImageModifier defines an image modifier
type ImageModifier interface {
	Modify(img image.Image) image.Image
}

// ImageResizer fits an image inside a transform budget.
type ImageResizer struct {
	Budget    entities.TransformBudget
	MaxPixels int
}

// Modify to implement ImageModifier interface
func (r *ImageResizer) Modify(img image.Image) image.Image {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	tw, th := r.Target(w, h)

	// Nothing to do - return original image
	if tw == w && th == h {
		return img
	}

	return imaging.Resize(img, tw, th, imaging.Lanczos)
}

// Target returns the dimensions img would be resized to.
func (r *ImageResizer) Target(w, h int) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}
	w, h = ScaledDimensions(w, h, r.Budget.MaxDimensionPx)
	return ClampPixels(w, h, r.MaxPixels)
}

// ScaledDimensions clamps the larger side to maxDim and scales the other
// side proportionally, rounding to the nearest pixel.
func ScaledDimensions(w, h, maxDim int) (int, int) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	if w >= h {
		return maxDim, max(int(math.Round(float64(h)*float64(maxDim)/float64(w))), 1)
	}
	return max(int(math.Round(float64(w)*float64(maxDim)/float64(h))), 1), maxDim
}

// ClampPixels scales w×h down uniformly so that w*h <= maxPixels.
func ClampPixels(w, h, maxPixels int) (int, int) {
	if maxPixels <= 0 || w*h <= maxPixels {
		return w, h
	}
	scale := math.Sqrt(float64(maxPixels) / float64(w*h))
	return max(int(float64(w)*scale), 1), max(int(float64(h)*scale), 1)
}

// Load images, apply actions on them and then encode
type ImageProcessor struct {
	// Zero values mean DefaultMaxSourcePixels / DefaultMaxSourceSide.
	MaxSourcePixels int64
	MaxSourceSide   int

	img    image.Image
	format string
}

// Load sniffs the real format from the bytes and decodes accordingly. The
// header is read first and oversized rasters are refused undecoded.
func (i *ImageProcessor) Load(data []byte) error {
	format := mimetype.Detect(data).String()

	if err := i.checkDimensions(format, data); err != nil {
		return err
	}

	r := bytes.NewReader(data)
	var err error
	switch format {
	case "image/png":
		err = i.LoadPNG(r)
	case "image/jpeg":
		err = i.LoadJPEG(r)
	case "image/webp":
		err = i.LoadWEBP(r)
	case "image/gif":
		i.img, err = gif.Decode(r)
	case "image/bmp":
		i.img, err = bmp.Decode(r)
	case "image/tiff":
		i.img, err = tiff.Decode(r)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", format, err)
	}
	if i.img == nil || i.img.Bounds().Empty() {
		return fmt.Errorf("decode %s: empty raster", format)
	}

	i.format = format
	return nil
}

func (i *ImageProcessor) checkDimensions(format string, data []byte) error {
	r := bytes.NewReader(data)

	var (
		cfg image.Config
		err error
	)
	switch format {
	case "image/png":
		cfg, err = png.DecodeConfig(r)
	case "image/jpeg":
		cfg, err = jpeg.DecodeConfig(r)
	case "image/webp":
		cfg, err = webp.DecodeConfig(r)
	case "image/gif":
		cfg, err = gif.DecodeConfig(r)
	case "image/bmp":
		cfg, err = bmp.DecodeConfig(r)
	case "image/tiff":
		cfg, err = tiff.DecodeConfig(r)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return fmt.Errorf("decode %s config: %w", format, err)
	}

	maxPixels, maxSide := i.MaxSourcePixels, i.MaxSourceSide
	if maxPixels <= 0 {
		maxPixels = DefaultMaxSourcePixels
	}
	if maxSide <= 0 {
		maxSide = DefaultMaxSourceSide
	}

	if cfg.Width > maxSide || cfg.Height > maxSide {
		return fmt.Errorf("%w: %dx%d (max side %d)", ErrSourceTooLarge, cfg.Width, cfg.Height, maxSide)
	}
	if total := int64(cfg.Width) * int64(cfg.Height); total > maxPixels {
		return fmt.Errorf("%w: %d pixels (max %d)", ErrSourceTooLarge, total, maxPixels)
	}
	return nil
}

func (i *ImageProcessor) LoadPNG(r *bytes.Reader) error {
	img, err := png.Decode(r)
	i.img = img
	return err
}

func (i *ImageProcessor) LoadJPEG(r *bytes.Reader) error {
	img, err := jpeg.Decode(r)
	i.img = img
	return err
}

func (i *ImageProcessor) LoadWEBP(r *bytes.Reader) error {
	img, err := webp.Decode(r)
	i.img = img
	return err
}

func (i *ImageProcessor) Format() string { return i.format }

func (i *ImageProcessor) GetBounds() (int, int) {
	return i.img.Bounds().Size().X, i.img.Bounds().Size().Y
}

// Apply runs modifiers over the decoded image without replacing it, so a
// second pass can start again from the source raster.
func (i *ImageProcessor) Apply(modifiers ...ImageModifier) image.Image {
	img := i.img
	for _, modifier := range modifiers {
		img = modifier.Modify(img)
	}
	return img
}

// HasTransparency reports whether any pixel of the decoded source is not
// fully opaque.
func (i *ImageProcessor) HasTransparency() bool {
	return hasTransparency(i.img)
}

func GetPNG(img image.Image) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	err := enc.Encode(buf, img)
	return buf.Bytes(), err
}

func GetJPEG(img image.Image, quality int) ([]byte, error) {
	buf := new(bytes.Buffer)
	err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality})
	return buf.Bytes(), err
}

func GetWEBP(img image.Image, quality int) ([]byte, error) {
	buf := new(bytes.Buffer)
	err := webp.Encode(buf, img, &webp.Options{
		Lossless: false,
		Quality:  float32(quality),
		Exact:    true,
	})
	return buf.Bytes(), err
}

// alphaSampleGrid bounds the number of pixels sampled per axis when the image
// type cannot report opacity itself.
const alphaSampleGrid = 256

func hasTransparency(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}

	b := img.Bounds()
	stepX := max(b.Dx()/alphaSampleGrid, 1)
	stepY := max(b.Dy()/alphaSampleGrid, 1)
	for y := b.Min.Y; y < b.Max.Y; y += stepY {
		for x := b.Min.X; x < b.Max.X; x += stepX {
			if _, _, _, a := img.At(x, y).RGBA(); a < 0xffff {
				return true
			}
		}
	}
	return false
}
