package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trunov/freshconnect-images/internal/entities"
	"github.com/trunov/freshconnect-images/internal/kvstore"
)

// Namespace is the persisted key prefix for reference records.
const Namespace = "blob_url_references"

var (
	errUnchanged = errors.New("record unchanged")
	errVanished  = errors.New("record vanished")
)

// Tracker remembers every ephemeral local reference handed out so that,
// after a restart, references from the previous process can be reported as
// expired instead of rendering broken.
type Tracker struct {
	store kvstore.Store
	log   *zap.Logger
	now   func() time.Time

	mu      sync.Mutex
	swept   bool
	expired []string
}

func New(store kvstore.Store, log *zap.Logger) *Tracker {
	return &Tracker{
		store: store,
		log:   log,
		now:   time.Now,
	}
}

func recordKey(handle string) string {
	return Namespace + ":" + handle
}

// RecordIssued persists a fresh record for handle. The startup sweep always
// runs first so records from this process are never expired by it.
func (t *Tracker) RecordIssued(ctx context.Context, handle, ownerContext string) error {
	if _, err := t.SweepOnStartup(ctx); err != nil {
		return err
	}

	rec := entities.ReferenceRecord{
		Handle:           handle,
		CreatedAtEpochMs: t.now().UnixMilli(),
		OwnerContext:     ownerContext,
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	err = t.store.Update(ctx, recordKey(handle), func(string, bool) (string, error) {
		return string(raw), nil
	})
	if err != nil {
		return fmt.Errorf("record reference %q: %w", handle, err)
	}
	return nil
}

// SweepOnStartup marks every recorded reference expired and returns the
// handles that flipped. The sweep runs once per process; later calls return
// the same handles. A failed sweep is retried on the next call.
func (t *Tracker) SweepOnStartup(ctx context.Context) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.swept {
		return slices.Clone(t.expired), nil
	}

	keys, err := t.store.Scan(ctx, Namespace+":")
	if err != nil {
		return nil, fmt.Errorf("list references: %w", err)
	}

	for _, key := range keys {
		var handle string
		err := t.store.Update(ctx, key, func(cur string, found bool) (string, error) {
			if !found {
				return "", errVanished
			}
			var rec entities.ReferenceRecord
			if err := json.Unmarshal([]byte(cur), &rec); err != nil {
				return "", fmt.Errorf("decode record: %w", err)
			}
			if rec.Expired {
				return "", errUnchanged
			}
			rec.Expired = true
			if rec.Handle == "" {
				rec.Handle = strings.TrimPrefix(key, Namespace+":")
			}
			handle = rec.Handle

			raw, err := json.Marshal(rec)
			return string(raw), err
		})
		switch {
		case err == nil:
			t.expired = append(t.expired, handle)
		case errors.Is(err, errUnchanged), errors.Is(err, errVanished):
		default:
			// One bad record must not block the rest of the sweep.
			t.log.Warn("skipping reference record during sweep", zap.String("key", key), zap.Error(err))
		}
	}

	slices.Sort(t.expired)
	t.swept = true

	t.log.Info("ephemeral reference sweep complete",
		zap.Int("records", len(keys)),
		zap.Int("newly_expired", len(t.expired)))

	return slices.Clone(t.expired), nil
}

// IsExpired is a lookup against persisted state. Unknown handles are not
// expired.
func (t *Tracker) IsExpired(ctx context.Context, handle string) (bool, error) {
	rec, ok, err := t.Lookup(ctx, handle)
	if err != nil || !ok {
		return false, err
	}
	return rec.Expired, nil
}

func (t *Tracker) Lookup(ctx context.Context, handle string) (entities.ReferenceRecord, bool, error) {
	if _, err := t.SweepOnStartup(ctx); err != nil {
		return entities.ReferenceRecord{}, false, err
	}

	raw, err := t.store.Get(ctx, recordKey(handle))
	if errors.Is(err, kvstore.ErrNotFound) {
		return entities.ReferenceRecord{}, false, nil
	}
	if err != nil {
		return entities.ReferenceRecord{}, false, fmt.Errorf("lookup reference %q: %w", handle, err)
	}

	var rec entities.ReferenceRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return entities.ReferenceRecord{}, false, fmt.Errorf("decode reference %q: %w", handle, err)
	}
	return rec, true, nil
}
