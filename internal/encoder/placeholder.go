package encoder

import (
	"bytes"
	"encoding/base64"
	"encoding/xml"
	"fmt"

	"github.com/trunov/freshconnect-images/internal/entities"
)

const (
	placeholderMediaType = "image/svg+xml"
	maxCaptionRunes      = 48
)

var captions = map[entities.PlaceholderReason]string{
	entities.ReasonTooLargeForInline: "Image Too Large",
	entities.ReasonInvalidImage:      "Invalid Image",
	entities.ReasonCorrupt:           "Image Unavailable",
	entities.ReasonUnrecognized:      "Image Not Found",
	entities.ReasonExpired:           "No Longer Available",
}

const placeholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="320" height="240" viewBox="0 0 320 240">` +
	`<rect width="320" height="240" fill="#f3f4f6"/>` +
	`<path d="M130 90h60v44h-60z" fill="none" stroke="#9ca3af" stroke-width="4"/>` +
	`<circle cx="146" cy="104" r="6" fill="#9ca3af"/>` +
	`<text x="160" y="170" font-family="Arial, sans-serif" font-size="16" fill="#6b7280" text-anchor="middle">%s</text>` +
	`</svg>`

// Placeholder builds a static vector graphic with a caption for reason.
// message is only used by ReasonProcessingError.
func Placeholder(reason entities.PlaceholderReason, message string) entities.Representation {
	caption, ok := captions[reason]
	if reason == entities.ReasonProcessingError || !ok {
		if message == "" {
			message = "unknown"
		}
		caption = "Error: " + message
	}
	caption = truncate(caption, maxCaptionRunes)

	var escaped bytes.Buffer
	// EscapeText only fails on writer errors; bytes.Buffer has none.
	_ = xml.EscapeText(&escaped, []byte(caption))

	svg := fmt.Sprintf(placeholderSVG, escaped.String())

	return entities.Representation{
		Kind:      entities.KindPlaceholder,
		Reason:    reason,
		Caption:   caption,
		MediaType: placeholderMediaType,
		Data:      base64.StdEncoding.EncodeToString([]byte(svg)),
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
