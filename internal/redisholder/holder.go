package redisholder

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

var errNoClient = errors.New("redis client not initialised")

// Holder lets the health loop swap in a fresh client while stores keep
// calling Get.
type Holder struct {
	v      atomic.Value // stores redis.UniversalClient
	closed atomic.Bool
}

func NewHolder(initial redis.UniversalClient) *Holder {
	h := &Holder{}
	if initial != nil {
		h.v.Store(initial)
	}
	return h
}

func (h *Holder) Get() redis.UniversalClient {
	c, _ := h.v.Load().(redis.UniversalClient)
	return c
}

func (h *Holder) swap(newc redis.UniversalClient) (old redis.UniversalClient) {
	old, _ = h.v.Load().(redis.UniversalClient)
	h.v.Store(newc)
	return old
}

// Ping checks the current client; used by the health endpoint.
func (h *Holder) Ping(ctx context.Context) error {
	c := h.Get()
	if c == nil {
		return errNoClient
	}
	return c.Ping(ctx).Err()
}

// Close closes the current client once. Later calls are no-ops and the
// health loop stops reconnecting.
func (h *Holder) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	if c := h.Get(); c != nil {
		return c.Close()
	}
	return nil
}

func (h *Holder) Closed() bool {
	return h.closed.Load()
}
