package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

type uploadResponse struct {
	URL string `json:"url"`
}

// HTTPUploader posts multipart image data to the backend's authenticated
// upload endpoint and expects {"url": "..."} back.
type HTTPUploader struct {
	client   *resty.Client
	endpoint string
	field    string
}

func NewHTTPUploader(endpoint string) *HTTPUploader {
	client := resty.New().
		SetHeader("Accept", "application/json").
		SetRetryCount(0)

	return &HTTPUploader{
		client:   client,
		endpoint: endpoint,
		field:    "image",
	}
}

func (u *HTTPUploader) Upload(ctx context.Context, req Request) (string, error) {
	resp, err := u.client.R().
		SetContext(ctx).
		SetAuthToken(req.Token).
		SetMultipartField(u.field, req.Filename, req.MediaType, bytes.NewReader(req.Payload)).
		Post(u.endpoint)
	if err != nil {
		if ctx.Err() != nil {
			return "", ContextError(ctx, err.Error())
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if !resp.IsSuccess() {
		return "", fmt.Errorf("%w: status %d", ErrServerRejected, resp.StatusCode())
	}

	var body uploadResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if strings.TrimSpace(body.URL) == "" {
		return "", fmt.Errorf("%w: missing url field", ErrMalformedResponse)
	}

	return strings.TrimSpace(body.URL), nil
}
