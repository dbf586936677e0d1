package processor

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/trunov/freshconnect-images/internal/encoder"
	"github.com/trunov/freshconnect-images/internal/entities"
	"github.com/trunov/freshconnect-images/internal/validation"
)

// Tier applies Budget to inputs strictly larger than Above bytes.
type Tier struct {
	Above  int64
	Budget entities.TransformBudget
}

// DefaultTiers is ordered from the largest breakpoint down.
var DefaultTiers = []Tier{
	{Above: 5 * entities.MiB, Budget: entities.TransformBudget{MaxDimensionPx: 600, QualityFactor: 0.5}},
	{Above: 2 * entities.MiB, Budget: entities.TransformBudget{MaxDimensionPx: 800, QualityFactor: 0.6}},
	{Above: 1 * entities.MiB, Budget: entities.TransformBudget{MaxDimensionPx: 1000, QualityFactor: 0.7}},
	{Above: 0, Budget: entities.TransformBudget{MaxDimensionPx: 1200, QualityFactor: 0.85}},
}

// SecondPassBudget is used once when the first encode does not fit inline.
var SecondPassBudget = entities.TransformBudget{MaxDimensionPx: 500, QualityFactor: 0.5}

// TransparentQuality (0.9) is used for the alpha-preserving formats.
const TransparentQuality = 90

// SelectBudget picks the budget tier for an input size.
func SelectBudget(byteLength int64) entities.TransformBudget {
	for _, t := range DefaultTiers {
		if byteLength > t.Above {
			return t.Budget
		}
	}
	return DefaultTiers[len(DefaultTiers)-1].Budget
}

var alphaFormats = map[string]struct{}{
	"image/png":  {},
	"image/gif":  {},
	"image/webp": {},
	"image/tiff": {},
}

// webFormats can be shown by browsers as-is.
var webFormats = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
	"image/gif":  {},
	"image/webp": {},
}

var errEmptyInput = errors.New("empty image data")

type Transformer struct {
	// MaxSourcePixels bounds what gets decoded; larger sources pass through
	// untouched.
	MaxSourcePixels int64

	log *zap.Logger
}

func NewTransformer(log *zap.Logger) *Transformer {
	return &Transformer{MaxSourcePixels: DefaultMaxSourcePixels, log: log}
}

// Transform downsizes and re-encodes an image. It never fails: on any
// error, including a panic inside a codec, the original bytes come back with
// WasTransformed=false.
func (t *Transformer) Transform(input entities.ImageInput) (out entities.TransformedImage) {
	original := entities.TransformedImage{
		Data:      input.Data,
		MediaType: validation.BaseMediaType(input.MediaType),
		Budget:    SelectBudget(input.ByteLength),
	}

	defer func() {
		if r := recover(); r != nil {
			t.log.Error("image transform panicked",
				zap.String("filename", input.Filename),
				zap.Any("panic", r))
			out = original
		}
	}()

	res, err := t.transform(input, original)
	if err != nil {
		t.log.Warn("image transform skipped, keeping original bytes",
			zap.String("filename", input.Filename),
			zap.String("media_type", input.MediaType),
			zap.Int64("size", input.ByteLength),
			zap.Error(err))
		return original
	}
	return res
}

func (t *Transformer) transform(input entities.ImageInput, original entities.TransformedImage) (entities.TransformedImage, error) {
	if original.MediaType == "image/svg+xml" {
		return original, nil
	}
	if len(input.Data) == 0 {
		return original, errEmptyInput
	}

	proc := &ImageProcessor{MaxSourcePixels: t.MaxSourcePixels}
	if err := proc.Load(input.Data); err != nil {
		return original, err
	}

	w, h := proc.GetBounds()
	original.Width, original.Height = w, h
	original.MediaType = proc.Format()

	budget := original.Budget
	_, displayable := webFormats[proc.Format()]
	if displayable && input.ByteLength <= smallestBreakpoint() && w <= budget.MaxDimensionPx && h <= budget.MaxDimensionPx {
		return original, nil
	}

	transparent := false
	if _, ok := alphaFormats[proc.Format()]; ok {
		transparent = proc.HasTransparency()
	}

	out, err := t.render(proc, budget, transparent, original)
	if err != nil {
		return original, err
	}

	if !encoder.FitsInline(out.MediaType, len(out.Data)) {
		t.log.Debug("first pass too large for inline, retrying with second-pass budget",
			zap.String("filename", input.Filename),
			zap.Int("size", len(out.Data)))
		second, err := t.render(proc, SecondPassBudget, transparent, original)
		if err != nil {
			return out, nil
		}
		out = second
	}

	t.log.Debug("image transformed",
		zap.String("filename", input.Filename),
		zap.Int("width", w), zap.Int("height", h),
		zap.Int("out_width", out.Width), zap.Int("out_height", out.Height),
		zap.Int64("in_size", input.ByteLength), zap.Int("out_size", len(out.Data)),
		zap.String("out_type", out.MediaType))

	return out, nil
}

func (t *Transformer) render(proc *ImageProcessor, budget entities.TransformBudget, transparent bool, original entities.TransformedImage) (entities.TransformedImage, error) {
	if !budget.Valid() {
		return original, fmt.Errorf("invalid transform budget %+v", budget)
	}

	resizer := &ImageResizer{Budget: budget, MaxPixels: MaxPixels}
	img := proc.Apply(resizer)
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	resized := w != original.Width || h != original.Height

	var (
		data      []byte
		mediaType string
		err       error
	)
	switch {
	case transparent && proc.Format() == "image/webp":
		mediaType = "image/webp"
		data, err = GetWEBP(img, TransparentQuality)
	case transparent:
		mediaType = "image/png"
		data, err = GetPNG(img)
	default:
		mediaType = "image/jpeg"
		data, err = GetJPEG(img, budget.Quality())
	}
	if err != nil {
		return original, fmt.Errorf("encode %s: %w", mediaType, err)
	}

	_, displayable := webFormats[original.MediaType]
	if !resized && displayable && len(data) >= len(original.Data) {
		return original, nil
	}

	return entities.TransformedImage{
		Data:           data,
		MediaType:      mediaType,
		Width:          w,
		Height:         h,
		WasTransformed: true,
		Budget:         budget,
	}, nil
}

func smallestBreakpoint() int64 {
	return DefaultTiers[len(DefaultTiers)-2].Above
}
