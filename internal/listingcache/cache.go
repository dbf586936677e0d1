package listingcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/trunov/freshconnect-images/internal/encoder"
	"github.com/trunov/freshconnect-images/internal/entities"
	"github.com/trunov/freshconnect-images/internal/kvstore"
	"github.com/trunov/freshconnect-images/internal/normalizer"
)

// Key holds the JSON array of cached listings.
const Key = "leftover_food_listings"

type ExpiryChecker interface {
	IsExpired(ctx context.Context, handle string) (bool, error)
}

// Cache keeps the last known listings for offline display. Image strings are
// stored in their cleaned form and repaired in place whenever they are read.
type Cache struct {
	store    kvstore.Store
	expiry   ExpiryChecker
	baseURL  string
	validate *validator.Validate
	log      *zap.Logger
}

func New(store kvstore.Store, expiry ExpiryChecker, baseURL string, log *zap.Logger) *Cache {
	return &Cache{
		store:    store,
		expiry:   expiry,
		baseURL:  baseURL,
		validate: validator.New(),
		log:      log,
	}
}

func (c *Cache) Save(ctx context.Context, listings []entities.Listing) error {
	cleaned := make([]entities.Listing, 0, len(listings))
	for _, l := range listings {
		if err := c.validate.Struct(l); err != nil {
			return fmt.Errorf("listing %q: %w", l.ID, err)
		}
		cleaned = append(cleaned, cleanListing(l))
	}

	data, err := json.Marshal(cleaned)
	if err != nil {
		return fmt.Errorf("marshal listings: %w", err)
	}
	if err := c.store.Set(ctx, Key, string(data)); err != nil {
		return fmt.Errorf("save listings: %w", err)
	}
	return nil
}

// Load returns display views. Stored values that no longer match their
// normalized form are written back.
func (c *Cache) Load(ctx context.Context) ([]entities.ListingView, error) {
	var listings []entities.Listing
	err := c.store.Update(ctx, Key, func(cur string, found bool) (string, error) {
		listings = nil
		if !found || cur == "" {
			return "", errUnchanged
		}
		if err := json.Unmarshal([]byte(cur), &listings); err != nil {
			return "", fmt.Errorf("decode listings: %w", err)
		}

		changed := false
		for i, l := range listings {
			repaired := cleanListing(l)
			if !slices.Equal(repaired.Images, l.Images) {
				changed = true
			}
			listings[i] = repaired
		}
		if !changed {
			return "", errUnchanged
		}

		data, err := json.Marshal(listings)
		if err != nil {
			return "", err
		}
		c.log.Info("repaired cached listing images", zap.Int("listings", len(listings)))
		return string(data), nil
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		return nil, err
	}

	views := make([]entities.ListingView, 0, len(listings))
	for _, l := range listings {
		views = append(views, c.view(ctx, l))
	}
	return views, nil
}

var errUnchanged = errors.New("listings unchanged")

func (c *Cache) view(ctx context.Context, l entities.Listing) entities.ListingView {
	v := entities.ListingView{ID: l.ID, Title: l.Title, Images: make([]entities.ImageView, 0, len(l.Images))}
	for _, stored := range l.Images {
		rep := normalizer.Normalize(stored)
		img := entities.ImageView{Kind: rep.Kind.String(), Stored: stored}

		if rep.Kind == entities.KindEphemeral && c.isExpired(ctx, rep.Handle) {
			rep = encoder.Placeholder(entities.ReasonExpired, "")
			img.Expired = true
		}
		img.Src = normalizer.Resolve(rep, c.baseURL)
		v.Images = append(v.Images, img)
	}
	return v
}

func (c *Cache) isExpired(ctx context.Context, handle string) bool {
	if c.expiry == nil {
		return false
	}
	expired, err := c.expiry.IsExpired(ctx, handle)
	if err != nil {
		c.log.Warn("expiry lookup failed, treating reference as live",
			zap.String("handle", handle), zap.Error(err))
		return false
	}
	return expired
}

func cleanListing(l entities.Listing) entities.Listing {
	images := make([]string, 0, len(l.Images))
	for _, raw := range l.Images {
		images = append(images, normalizer.Clean(raw))
	}
	l.Images = images
	return l
}
