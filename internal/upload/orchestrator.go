package upload

import (
	"context"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/trunov/freshconnect-images/internal/encoder"
	"github.com/trunov/freshconnect-images/internal/entities"
	"github.com/trunov/freshconnect-images/internal/normalizer"
	"github.com/trunov/freshconnect-images/internal/validation"
)

type State string

const (
	StateStart                State = "start"
	StateValidated            State = "validated"
	StateTransformed          State = "transformed"
	StateEncodedFallbackReady State = "encoded_fallback_ready"
	StateUploadAttempted      State = "upload_attempted"
	StateUploadSucceeded      State = "upload_succeeded"
	StateUploadFailed         State = "upload_failed"
	StateResolved             State = "resolved"
)

type Config struct {
	ShortTimeout time.Duration
	LongTimeout  time.Duration
	// Inputs larger than this get LongTimeout.
	LongTimeoutAbove int64
	MaxRetries       int
	RetryBaseDelay   time.Duration
}

func DefaultConfig() Config {
	return Config{
		ShortTimeout:     15 * time.Second,
		LongTimeout:      30 * time.Second,
		LongTimeoutAbove: 2 * entities.MiB,
		MaxRetries:       0,
		RetryBaseDelay:   300 * time.Millisecond,
	}
}

func (c Config) timeoutFor(byteLength int64) time.Duration {
	if byteLength > c.LongTimeoutAbove {
		return c.LongTimeout
	}
	return c.ShortTimeout
}

type Transformer interface {
	Transform(input entities.ImageInput) entities.TransformedImage
}

// Orchestrator runs one pipeline per call. The encoded fallback is always
// computed before the network is touched, so an upload failure only ever
// degrades the result.
type Orchestrator struct {
	uploader    Uploader
	transformer Transformer
	cfg         Config
	log         *zap.Logger
}

// New accepts a nil uploader; every call then resolves to the local fallback.
func New(uploader Uploader, transformer Transformer, cfg Config, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		uploader:    uploader,
		transformer: transformer,
		cfg:         cfg,
		log:         log,
	}
}

func (o *Orchestrator) UploadOrIngest(ctx context.Context, input entities.ImageInput, token string) entities.UploadOutcome {
	log := o.log.With(zap.String("filename", input.Filename), zap.Int64("size", input.ByteLength))
	step := func(s State) { log.Debug("upload pipeline", zap.String("state", string(s))) }

	step(StateStart)
	if err := validation.Validate(input); err != nil {
		step(StateResolved)
		return entities.UploadOutcome{
			Representation: encoder.Placeholder(entities.ReasonInvalidImage, ""),
			ErrorKind:      entities.UploadErrValidation,
			Error:          err.Error(),
		}
	}
	step(StateValidated)

	transformed := o.transformer.Transform(input)
	step(StateTransformed)

	fallback := encodeFallback(transformed)
	step(StateEncodedFallbackReady)

	if token == "" || o.uploader == nil {
		step(StateResolved)
		return entities.UploadOutcome{Representation: fallback}
	}

	step(StateUploadAttempted)
	rep, err := o.attempt(ctx, input.ByteLength, Request{
		Token:     token,
		Filename:  filenameFor(input.Filename, transformed.MediaType),
		MediaType: transformed.MediaType,
		Payload:   transformed.Data,
	})
	if err != nil {
		step(StateUploadFailed)
		log.Warn("upload failed, using local fallback",
			zap.String("fallback", fallback.Kind.String()),
			zap.Error(err))
		step(StateResolved)
		return entities.UploadOutcome{
			IsDegraded:     true,
			Representation: fallback,
			ErrorKind:      Classify(err),
			Error:          err.Error(),
		}
	}

	step(StateUploadSucceeded)
	step(StateResolved)
	return entities.UploadOutcome{Succeeded: true, Representation: rep}
}

func (o *Orchestrator) attempt(ctx context.Context, byteLength int64, req Request) (entities.Representation, error) {
	timeout := o.cfg.timeoutFor(byteLength)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt <= o.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(o.backoffDelay(attempt))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return entities.Representation{}, ContextError(ctx, fmt.Sprintf("after %s: %v", timeout, lastErr))
			}
		}

		url, err := o.once(ctx, req, timeout)
		if err == nil {
			rep := normalizer.Normalize(url)
			if rep.Kind == entities.KindRemote || rep.Kind == entities.KindServerPath {
				return rep, nil
			}
			return entities.Representation{}, fmt.Errorf("%w: unusable url %q", ErrMalformedResponse, url)
		}

		if ctx.Err() != nil {
			return entities.Representation{}, ContextError(ctx, err.Error())
		}
		lastErr = err
		if !retryable(err) {
			break
		}
	}
	return entities.Representation{}, lastErr
}

type result struct {
	url string
	err error
}

// once abandons the in-flight attempt when ctx expires; the goroutine is
// left to finish against a cancelled context.
func (o *Orchestrator) once(ctx context.Context, req Request, timeout time.Duration) (string, error) {
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("%w: uploader panic: %v", ErrNetwork, r)}
			}
		}()
		url, err := o.uploader.Upload(ctx, req)
		done <- result{url: url, err: err}
	}()

	select {
	case r := <-done:
		return r.url, r.err
	case <-ctx.Done():
		return "", ContextError(ctx, fmt.Sprintf("after %s", timeout))
	}
}

func (o *Orchestrator) backoffDelay(attempt int) time.Duration {
	delay := o.cfg.RetryBaseDelay << (attempt - 1)
	jitter := delay / 10
	if jitter <= 0 {
		return delay
	}
	return delay - jitter/2 + rand.N(jitter)
}

// encodeFallback turns an encoder panic into a captioned placeholder.
func encodeFallback(img entities.TransformedImage) (rep entities.Representation) {
	defer func() {
		if r := recover(); r != nil {
			rep = encoder.ProcessingError(fmt.Errorf("encode: %v", r))
		}
	}()
	return encoder.Encode(img)
}

func filenameFor(name, mediaType string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "image"
	}
	ext := ""
	if m := mimetype.Lookup(mediaType); m != nil {
		ext = m.Extension()
	}
	return base + ext
}
