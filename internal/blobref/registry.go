package blobref

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

const scheme = "blob:"

type blob struct {
	data      []byte
	mediaType string
}

// Registry holds preview bytes for the lifetime of the process. Handles it
// issues are meaningless after a restart.
type Registry struct {
	origin string

	mu    sync.RWMutex
	blobs map[string]blob
}

// NewRegistry issues handles of the form blob:<origin>/<id>.
func NewRegistry(origin string) *Registry {
	return &Registry{
		origin: strings.TrimRight(origin, "/"),
		blobs:  make(map[string]blob),
	}
}

func (r *Registry) Issue(data []byte, mediaType string) string {
	id := uuid.NewString()

	r.mu.Lock()
	r.blobs[id] = blob{data: data, mediaType: mediaType}
	r.mu.Unlock()

	return scheme + r.origin + "/" + id
}

// Resolve accepts either a full handle or the bare id.
func (r *Registry) Resolve(handleOrID string) ([]byte, string, bool) {
	id := ID(handleOrID)

	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.blobs[id]
	return b.data, b.mediaType, ok
}

func (r *Registry) Revoke(handleOrID string) {
	r.mu.Lock()
	delete(r.blobs, ID(handleOrID))
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobs)
}

// ID extracts the trailing id segment of a handle.
func ID(handle string) string {
	handle = strings.TrimPrefix(handle, scheme)
	if i := strings.LastIndexByte(handle, '/'); i >= 0 {
		return handle[i+1:]
	}
	return handle
}
