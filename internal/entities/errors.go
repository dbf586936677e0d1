package entities

import "fmt"

type ValidationErrorKind string

const (
	NotAnImage ValidationErrorKind = "NotAnImage"
	TooLarge   ValidationErrorKind = "TooLarge"
)

// ValidationError is the only pipeline error that reaches callers.
type ValidationError struct {
	Kind       ValidationErrorKind
	MediaType  string
	SizeMB     float64
	CeilingMiB int64
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case NotAnImage:
		if e.MediaType == "" {
			return "selected file is not an image"
		}
		return fmt.Sprintf("selected file is not an image (type %q)", e.MediaType)
	case TooLarge:
		return fmt.Sprintf("image is too large (%.2fMB); maximum allowed size is %dMB", e.SizeMB, e.CeilingMiB)
	default:
		return "invalid image"
	}
}

type UploadErrorKind string

const (
	UploadErrNone              UploadErrorKind = ""
	UploadErrTimeout           UploadErrorKind = "timeout"
	UploadErrNetwork           UploadErrorKind = "network"
	UploadErrServerRejected    UploadErrorKind = "server_rejected"
	UploadErrMalformedResponse UploadErrorKind = "malformed_response"
	UploadErrValidation        UploadErrorKind = "validation"
)

// UploadOutcome always carries a usable Representation.
type UploadOutcome struct {
	Succeeded      bool
	IsDegraded     bool
	Representation Representation
	ErrorKind      UploadErrorKind
	Error          string
}
