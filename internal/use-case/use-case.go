package use_case

import (
	"context"
	"errors"
	"fmt"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/trunov/freshconnect-images/internal/entities"
	"github.com/trunov/freshconnect-images/internal/normalizer"
	"github.com/trunov/freshconnect-images/internal/validation"
)

type Pipeline interface {
	UploadOrIngest(ctx context.Context, input entities.ImageInput, token string) entities.UploadOutcome
}

type Transformer interface {
	Transform(input entities.ImageInput) entities.TransformedImage
}

type Tracker interface {
	RecordIssued(ctx context.Context, handle, ownerContext string) error
	SweepOnStartup(ctx context.Context) ([]string, error)
	IsExpired(ctx context.Context, handle string) (bool, error)
}

type BlobRegistry interface {
	Issue(data []byte, mediaType string) string
	Resolve(handleOrID string) ([]byte, string, bool)
}

type ListingCache interface {
	Save(ctx context.Context, listings []entities.Listing) error
	Load(ctx context.Context) ([]entities.ListingView, error)
}

type useCase struct {
	pipeline    Pipeline
	transformer Transformer
	tracker     Tracker
	blobs       BlobRegistry
	listings    ListingCache
	log         *zap.Logger
}

func New(pipeline Pipeline, transformer Transformer, tracker Tracker, blobs BlobRegistry, listings ListingCache, log *zap.Logger) *useCase {
	return &useCase{
		pipeline:    pipeline,
		transformer: transformer,
		tracker:     tracker,
		blobs:       blobs,
		listings:    listings,
		log:         log,
	}
}

func (c *useCase) ValidateImage(input entities.ImageInput) entities.ValidationResult {
	if err := validation.Validate(input); err != nil {
		return entities.ValidationResult{Error: err.Error()}
	}
	return entities.ValidationResult{Valid: true}
}

func (c *useCase) UploadImage(ctx context.Context, input entities.ImageInput, token string) entities.UploadResult {
	out := c.pipeline.UploadOrIngest(ctx, input, token)

	if out.IsDegraded {
		c.report(ctx, fmt.Errorf("upload %q degraded (%s): %s", input.Filename, out.ErrorKind, out.Error))
	}

	return entities.UploadResult{
		Representation: out.Representation,
		IsDegraded:     out.IsDegraded,
		ErrorKind:      out.ErrorKind,
		Error:          out.Error,
	}
}

func (c *useCase) CleanReference(raw string) entities.Representation {
	return normalizer.Normalize(raw)
}

// ReviveReferencesOnStartup returns the handles invalidated by the restart.
// Store failures are logged and yield an empty list.
func (c *useCase) ReviveReferencesOnStartup(ctx context.Context) []string {
	expired, err := c.tracker.SweepOnStartup(ctx)
	if err != nil {
		c.report(ctx, fmt.Errorf("reference sweep: %w", err))
		return []string{}
	}
	if expired == nil {
		return []string{}
	}
	return expired
}

func (c *useCase) IsExpiredReference(ctx context.Context, handle string) bool {
	expired, err := c.tracker.IsExpired(ctx, handle)
	if err != nil {
		c.report(ctx, fmt.Errorf("expiry lookup %q: %w", handle, err))
		return false
	}
	return expired
}

// PreviewImage keeps the transformed bytes in process memory and hands out an
// ephemeral reference to them. Only validation errors are returned.
func (c *useCase) PreviewImage(ctx context.Context, input entities.ImageInput, ownerContext string) (entities.Representation, error) {
	if err := validation.Validate(input); err != nil {
		return entities.Representation{}, err
	}

	img := c.transformer.Transform(input)
	handle := c.blobs.Issue(img.Data, img.MediaType)

	if err := c.tracker.RecordIssued(ctx, handle, ownerContext); err != nil {
		c.report(ctx, fmt.Errorf("record preview %q: %w", handle, err))
	}

	return entities.Ephemeral(handle), nil
}

func (c *useCase) Blob(id string) ([]byte, string, bool) {
	return c.blobs.Resolve(id)
}

func (c *useCase) SaveListings(ctx context.Context, listings []entities.Listing) error {
	return c.listings.Save(ctx, listings)
}

func (c *useCase) LoadListings(ctx context.Context) ([]entities.ListingView, error) {
	views, err := c.listings.Load(ctx)
	if err != nil {
		c.report(ctx, fmt.Errorf("load listings: %w", err))
		return nil, err
	}
	return views, nil
}

func (c *useCase) report(ctx context.Context, err error) {
	var verr *entities.ValidationError
	if errors.As(err, &verr) {
		return
	}

	c.log.Warn("absorbed error", zap.Error(err))

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.CaptureException(err)
}
