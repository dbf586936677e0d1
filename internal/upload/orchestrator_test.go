package upload

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trunov/freshconnect-images/internal/entities"
	"github.com/trunov/freshconnect-images/internal/processor"
)

type fakeUploader struct {
	calls atomic.Int32
	fn    func(ctx context.Context, req Request) (string, error)
}

func (f *fakeUploader) Upload(ctx context.Context, req Request) (string, error) {
	f.calls.Add(1)
	return f.fn(ctx, req)
}

func smallPNG(t *testing.T) entities.ImageInput {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 4), G: uint8(y * 5), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return entities.NewImageInput(buf.Bytes(), "image/png", "dish.png")
}

func newOrchestrator(u Uploader, cfg Config) *Orchestrator {
	return New(u, processor.NewTransformer(zap.NewNop()), cfg, zap.NewNop())
}

func TestUploadSucceeds(t *testing.T) {
	u := &fakeUploader{fn: func(_ context.Context, req Request) (string, error) {
		assert.Equal(t, "secret", req.Token)
		assert.Equal(t, "image/png", req.MediaType)
		assert.Equal(t, "dish.png", req.Filename)
		return "https://cdn.example.com/images/dish.png", nil
	}}

	out := newOrchestrator(u, DefaultConfig()).UploadOrIngest(context.Background(), smallPNG(t), "secret")

	assert.True(t, out.Succeeded)
	assert.False(t, out.IsDegraded)
	assert.Equal(t, entities.Remote("https://cdn.example.com/images/dish.png"), out.Representation)
	assert.Empty(t, out.Error)
}

func TestNoTokenSkipsUpload(t *testing.T) {
	u := &fakeUploader{fn: func(context.Context, Request) (string, error) {
		t.Fatal("uploader must not be called without a token")
		return "", nil
	}}

	out := newOrchestrator(u, DefaultConfig()).UploadOrIngest(context.Background(), smallPNG(t), "")

	assert.False(t, out.Succeeded)
	assert.False(t, out.IsDegraded)
	assert.Equal(t, entities.KindInline, out.Representation.Kind)
	assert.Equal(t, "image/png", out.Representation.MediaType)
	assert.Zero(t, u.calls.Load())
}

func TestValidationFailureStopsPipeline(t *testing.T) {
	u := &fakeUploader{fn: func(context.Context, Request) (string, error) { return "https://x/y", nil }}
	input := entities.NewImageInput(make([]byte, 12*entities.MiB), "image/jpeg", "huge.jpg")

	out := newOrchestrator(u, DefaultConfig()).UploadOrIngest(context.Background(), input, "secret")

	assert.Equal(t, entities.UploadErrValidation, out.ErrorKind)
	assert.Contains(t, out.Error, "10MB")
	assert.Equal(t, entities.ReasonInvalidImage, out.Representation.Reason)
	assert.Zero(t, u.calls.Load())
}

func TestServerErrorDegradesToInline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	out := newOrchestrator(NewHTTPUploader(srv.URL), DefaultConfig()).
		UploadOrIngest(context.Background(), smallPNG(t), "secret")

	assert.False(t, out.Succeeded)
	assert.True(t, out.IsDegraded)
	assert.Equal(t, entities.UploadErrServerRejected, out.ErrorKind)
	assert.Equal(t, entities.KindInline, out.Representation.Kind)
	assert.NotEmpty(t, out.Error)
}

func TestTimeoutAbandonsUpload(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	u := &fakeUploader{fn: func(context.Context, Request) (string, error) {
		// Ignores ctx on purpose, like a client without cancellation.
		<-release
		return "https://late.example.com/x.png", nil
	}}
	cfg := DefaultConfig()
	cfg.ShortTimeout = 50 * time.Millisecond

	start := time.Now()
	out := newOrchestrator(u, cfg).UploadOrIngest(context.Background(), smallPNG(t), "secret")

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, out.IsDegraded)
	assert.Equal(t, entities.UploadErrTimeout, out.ErrorKind)
	assert.Equal(t, entities.KindInline, out.Representation.Kind)
}

func TestMalformedURLDegrades(t *testing.T) {
	u := &fakeUploader{fn: func(context.Context, Request) (string, error) { return "javascript:alert(1)", nil }}

	out := newOrchestrator(u, DefaultConfig()).UploadOrIngest(context.Background(), smallPNG(t), "secret")

	assert.True(t, out.IsDegraded)
	assert.Equal(t, entities.UploadErrMalformedResponse, out.ErrorKind)
}

func TestServerRelativeURLAccepted(t *testing.T) {
	u := &fakeUploader{fn: func(context.Context, Request) (string, error) { return "/uploads/dish.png", nil }}

	out := newOrchestrator(u, DefaultConfig()).UploadOrIngest(context.Background(), smallPNG(t), "secret")

	assert.True(t, out.Succeeded)
	assert.Equal(t, entities.ServerPath("/uploads/dish.png"), out.Representation)
}

func TestSingleAttemptByDefault(t *testing.T) {
	u := &fakeUploader{fn: func(context.Context, Request) (string, error) {
		return "", ErrNetwork
	}}

	out := newOrchestrator(u, DefaultConfig()).UploadOrIngest(context.Background(), smallPNG(t), "secret")

	assert.True(t, out.IsDegraded)
	assert.Equal(t, entities.UploadErrNetwork, out.ErrorKind)
	assert.Equal(t, int32(1), u.calls.Load())
}

func TestBoundedRetry(t *testing.T) {
	u := &fakeUploader{}
	u.fn = func(context.Context, Request) (string, error) {
		if u.calls.Load() < 3 {
			return "", ErrServerRejected
		}
		return "https://cdn.example.com/ok.png", nil
	}
	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	cfg.RetryBaseDelay = time.Millisecond

	out := newOrchestrator(u, cfg).UploadOrIngest(context.Background(), smallPNG(t), "secret")

	assert.True(t, out.Succeeded)
	assert.Equal(t, int32(3), u.calls.Load())
}

func TestUploaderPanicIsAbsorbed(t *testing.T) {
	u := &fakeUploader{fn: func(context.Context, Request) (string, error) { panic("boom") }}

	var out entities.UploadOutcome
	require.NotPanics(t, func() {
		out = newOrchestrator(u, DefaultConfig()).UploadOrIngest(context.Background(), smallPNG(t), "secret")
	})
	assert.True(t, out.IsDegraded)
}

func TestUploadNeverFailsOnGarbage(t *testing.T) {
	u := &fakeUploader{fn: func(context.Context, Request) (string, error) { return "", errors.New("nope") }}
	o := newOrchestrator(u, DefaultConfig())

	for _, data := range [][]byte{nil, []byte("xx"), {0xFF, 0xD8, 0xFF}} {
		out := o.UploadOrIngest(context.Background(), entities.NewImageInput(data, "image/jpeg", "x.jpg"), "secret")
		assert.NotEqual(t, entities.KindUnknown, out.Representation.Kind)
		assert.NotEmpty(t, out.Representation.String())
	}
}

func TestTimeoutScalesWithSize(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 15*time.Second, cfg.timeoutFor(entities.MiB))
	assert.Equal(t, 15*time.Second, cfg.timeoutFor(2*entities.MiB))
	assert.Equal(t, 30*time.Second, cfg.timeoutFor(2*entities.MiB+1))
}

func TestFilenameFor(t *testing.T) {
	assert.Equal(t, "dish.jpg", filenameFor("dish.png", "image/jpeg"))
	assert.Equal(t, "image.png", filenameFor("", "image/png"))
	assert.Equal(t, "photo.webp", filenameFor("/tmp/photo.heic", "image/webp"))
}

func TestCallerCancellationIsNetwork(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	u := &fakeUploader{fn: func(ctx context.Context, _ Request) (string, error) {
		cancel()
		<-ctx.Done()
		return "", ctx.Err()
	}}
	cfg := DefaultConfig()
	cfg.MaxRetries = 3
	cfg.RetryBaseDelay = time.Millisecond

	out := newOrchestrator(u, cfg).UploadOrIngest(ctx, smallPNG(t), "secret")

	assert.True(t, out.IsDegraded)
	assert.Equal(t, entities.UploadErrNetwork, out.ErrorKind)
	assert.Contains(t, out.Error, "cancelled")
	assert.Equal(t, int32(1), u.calls.Load())
	assert.Equal(t, entities.KindInline, out.Representation.Kind)
}

func TestContextError(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, entities.UploadErrNetwork, Classify(ContextError(cancelled, "x")))

	expired, cancel2 := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel2()
	assert.Equal(t, entities.UploadErrTimeout, Classify(ContextError(expired, "x")))
}
