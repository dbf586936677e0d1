package blobref

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryIssueResolve(t *testing.T) {
	r := NewRegistry("http://localhost:8080/")

	h := r.Issue([]byte("abc"), "image/png")
	require.True(t, strings.HasPrefix(h, "blob:http://localhost:8080/"))

	data, mt, ok := r.Resolve(h)
	require.True(t, ok)
	assert.Equal(t, []byte("abc"), data)
	assert.Equal(t, "image/png", mt)

	_, _, ok = r.Resolve(ID(h))
	assert.True(t, ok)

	r.Revoke(h)
	_, _, ok = r.Resolve(h)
	assert.False(t, ok)
	assert.Zero(t, r.Len())
}

func TestRegistryDoesNotSurviveRestart(t *testing.T) {
	h := NewRegistry("http://localhost:8080").Issue([]byte("x"), "image/jpeg")

	_, _, ok := NewRegistry("http://localhost:8080").Resolve(h)
	assert.False(t, ok)
}

func TestID(t *testing.T) {
	assert.Equal(t, "abcd-1234", ID("blob:abcd-1234"))
	assert.Equal(t, "9b2e", ID("blob:http://localhost:8080/9b2e"))
}
