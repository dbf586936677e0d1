package entities

import "fmt"

// Kind tags the variant held by a Representation.
type Kind int

const (
	KindUnknown Kind = iota
	KindInline
	KindRemote
	KindEphemeral
	KindServerPath
	KindPlaceholder
)

func (k Kind) String() string {
	switch k {
	case KindInline:
		return "inline"
	case KindRemote:
		return "remote"
	case KindEphemeral:
		return "ephemeral"
	case KindServerPath:
		return "server_path"
	case KindPlaceholder:
		return "placeholder"
	default:
		return "unknown"
	}
}

type PlaceholderReason string

const (
	ReasonTooLargeForInline PlaceholderReason = "TooLargeForInline"
	ReasonInvalidImage      PlaceholderReason = "InvalidImage"
	ReasonProcessingError   PlaceholderReason = "ProcessingError"
	ReasonCorrupt           PlaceholderReason = "Corrupt"
	ReasonUnrecognized      PlaceholderReason = "Unrecognized"
	ReasonExpired           PlaceholderReason = "Expired"
)

// Representation is the canonical value stored wherever an image is
// referenced. Only the fields of the active Kind are set.
type Representation struct {
	Kind Kind

	// KindInline, and the rendered graphic of KindPlaceholder.
	MediaType string
	Data      string

	URL    string
	Handle string
	Path   string

	Reason  PlaceholderReason
	Caption string
}

func Inline(mediaType, base64Data string) Representation {
	return Representation{Kind: KindInline, MediaType: mediaType, Data: base64Data}
}

func Remote(url string) Representation {
	return Representation{Kind: KindRemote, URL: url}
}

func Ephemeral(handle string) Representation {
	return Representation{Kind: KindEphemeral, Handle: handle}
}

func ServerPath(path string) Representation {
	return Representation{Kind: KindServerPath, Path: path}
}

// String returns the serialized form persisted in records and form state.
func (r Representation) String() string {
	switch r.Kind {
	case KindInline, KindPlaceholder:
		if r.MediaType == "" {
			return ""
		}
		return DataURI(r.MediaType, r.Data)
	case KindRemote:
		return r.URL
	case KindEphemeral:
		return r.Handle
	case KindServerPath:
		return r.Path
	default:
		return ""
	}
}

func (r Representation) IsPlaceholder() bool { return r.Kind == KindPlaceholder }

func (r Representation) GoString() string {
	switch r.Kind {
	case KindInline:
		return fmt.Sprintf("Inline{%s, %d chars}", r.MediaType, len(r.Data))
	case KindPlaceholder:
		return fmt.Sprintf("Placeholder{%s}", r.Reason)
	default:
		return fmt.Sprintf("%s{%s}", r.Kind, r.String())
	}
}

func DataURI(mediaType, base64Data string) string {
	return "data:" + mediaType + ";base64," + base64Data
}
