package entities

const (
	KiB = 1 << 10
	MiB = 1 << 20
)

// ImageInput is a client-supplied file as received from the file picker.
// It is owned by a single pipeline invocation and never mutated.
type ImageInput struct {
	Data       []byte
	MediaType  string
	ByteLength int64
	Filename   string
}

func NewImageInput(data []byte, mediaType, filename string) ImageInput {
	return ImageInput{
		Data:       data,
		MediaType:  mediaType,
		ByteLength: int64(len(data)),
		Filename:   filename,
	}
}

// TransformBudget is the (max dimension, quality) pair picked for a size tier.
type TransformBudget struct {
	MaxDimensionPx int     `json:"max_dimension_px"`
	QualityFactor  float64 `json:"quality_factor"`
}

func (b TransformBudget) Valid() bool {
	return b.MaxDimensionPx > 0 && b.QualityFactor > 0 && b.QualityFactor <= 1
}

// Quality maps the factor onto the 1..100 scale used by the encoders.
func (b TransformBudget) Quality() int {
	q := int(b.QualityFactor*100 + 0.5)
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}

type TransformedImage struct {
	Data           []byte
	MediaType      string
	Width          int
	Height         int
	WasTransformed bool
	Budget         TransformBudget
}

func (t TransformedImage) ByteLength() int64 { return int64(len(t.Data)) }
