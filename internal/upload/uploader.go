package upload

import (
	"context"
	"errors"
	"fmt"

	"github.com/trunov/freshconnect-images/internal/entities"
)

var (
	ErrTimeout           = errors.New("upload timed out")
	ErrNetwork           = errors.New("upload network error")
	ErrServerRejected    = errors.New("upload rejected by server")
	ErrMalformedResponse = errors.New("malformed upload response")
)

// Request is a single upload of already transformed bytes.
type Request struct {
	Token     string
	Filename  string
	MediaType string
	Payload   []byte
}

// Uploader stores a payload remotely and returns a durable reference.
type Uploader interface {
	Upload(ctx context.Context, req Request) (string, error)
}

// Classify maps an upload error onto the advisory error kinds. Anything not
// recognised counts as a network failure.
func Classify(err error) entities.UploadErrorKind {
	switch {
	case err == nil:
		return entities.UploadErrNone
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return entities.UploadErrTimeout
	case errors.Is(err, ErrServerRejected):
		return entities.UploadErrServerRejected
	case errors.Is(err, ErrMalformedResponse):
		return entities.UploadErrMalformedResponse
	default:
		return entities.UploadErrNetwork
	}
}

// ContextError wraps a finished ctx's error. Only an expired deadline is a
// timeout; a caller that went away is reported as a network failure.
func ContextError(ctx context.Context, detail string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrTimeout, detail)
	}
	return fmt.Errorf("%w: request cancelled: %s", ErrNetwork, detail)
}

func retryable(err error) bool {
	switch Classify(err) {
	case entities.UploadErrNetwork, entities.UploadErrServerRejected:
		return true
	default:
		return false
	}
}
