package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/trunov/freshconnect-images/cmd/migrate"
	"github.com/trunov/freshconnect-images/internal/blobref"
	"github.com/trunov/freshconnect-images/internal/config"
	"github.com/trunov/freshconnect-images/internal/kvstore"
	"github.com/trunov/freshconnect-images/internal/listingcache"
	"github.com/trunov/freshconnect-images/internal/processor"
	"github.com/trunov/freshconnect-images/internal/r2"
	"github.com/trunov/freshconnect-images/internal/redisholder"
	"github.com/trunov/freshconnect-images/internal/tracker"
	"github.com/trunov/freshconnect-images/internal/transport/handler"
	"github.com/trunov/freshconnect-images/internal/transport/router"
	"github.com/trunov/freshconnect-images/internal/upload"
	use_case "github.com/trunov/freshconnect-images/internal/use-case"
)

// storeNamespace prefixes every persisted key of this service.
const storeNamespace = "freshconnect"

type App struct {
	HttpServer *http.Server

	store  kvstore.Store
	holder *redisholder.Holder // nil unless the store is redis
	log    *zap.Logger
}

func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	store, holder, ping, err := newStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	uploader, err := newUploader(ctx, cfg, log)
	if err != nil {
		_ = store.Close()
		if holder != nil {
			_ = holder.Close()
		}
		return nil, err
	}

	transformer := processor.NewTransformer(log.Named("transformer"))
	if cfg.Pipeline.MaxSourcePixels > 0 {
		transformer.MaxSourcePixels = cfg.Pipeline.MaxSourcePixels
	}
	pipeline := upload.New(uploader, transformer, pipelineConfig(&cfg.Pipeline), log.Named("upload"))

	refs := tracker.New(store, log.Named("tracker"))
	blobs := blobref.NewRegistry(cfg.Server.PublicOrigin)
	listings := listingcache.New(store, refs, cfg.Server.BaseURL, log.Named("listings"))

	uc := use_case.New(pipeline, transformer, refs, blobs, listings, log)

	expired := uc.ReviveReferencesOnStartup(ctx)
	log.Info("startup reference sweep done", zap.Int("expired", len(expired)))

	h := handler.New(uc, cfg, ping, log.Named("http"))
	r := router.NewRouter(h)

	s := &http.Server{
		Handler:      r,
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		ReadTimeout:  cfg.Server.ReadTimeout * time.Second,
		WriteTimeout: cfg.Server.WriteTimeout * time.Second,
	}

	return &App{
		HttpServer: s,
		store:      store,
		holder:     holder,
		log:        log,
	}, nil
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("starting server", zap.String("addr", a.HttpServer.Addr))
		errCh <- a.HttpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		a.closeStore()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := a.HttpServer.Shutdown(shutdownCtx)
	a.closeStore()
	if err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	a.log.Info("server stopped")
	return nil
}

func (a *App) closeStore() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("closing store", zap.Error(err))
	}
	if a.holder != nil {
		if err := a.holder.Close(); err != nil {
			a.log.Warn("closing redis client", zap.Error(err))
		}
	}
}

// newStore returns the redis holder as well when the store borrows its
// client, since the store itself does not own it.
func newStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (kvstore.Store, *redisholder.Holder, handler.Pinger, error) {
	switch cfg.Store.Backend {
	case config.StoreMemory:
		log.Warn("using in-memory store; references will not survive a restart")
		return kvstore.NewMemory(), nil, nil, nil

	case config.StoreRedis:
		holder, err := redisholder.Build(ctx, &cfg.Redis, log.Named("redis"))
		if err != nil {
			return nil, nil, nil, err
		}
		return kvstore.NewRedisWithSource(storeNamespace, holder.Get), holder, holder.Ping, nil

	case config.StorePostgres:
		if err := migrate.Migrate(ctx, cfg.Database.DSN, migrate.Migrations); err != nil {
			return nil, nil, nil, err
		}
		pg, err := kvstore.NewPostgres(ctx, cfg.Database.DSN, storeNamespace)
		if err != nil {
			return nil, nil, nil, err
		}
		return pg, nil, pg.Ping, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func newUploader(ctx context.Context, cfg *config.Config, log *zap.Logger) (upload.Uploader, error) {
	switch cfg.Pipeline.Backend {
	case config.BackendHTTP:
		if cfg.Pipeline.Endpoint == "" {
			log.Warn("no upload endpoint configured; images stay inline")
			return nil, nil
		}
		return upload.NewHTTPUploader(cfg.Pipeline.Endpoint), nil

	case config.BackendR2:
		s, err := r2.NewStorage(ctx, &cfg.R2, log.Named("r2"))
		if err != nil {
			return nil, err
		}
		return s, nil

	case config.BackendNone:
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown upload backend %q", cfg.Pipeline.Backend)
	}
}

func pipelineConfig(c *config.PipelineConfig) upload.Config {
	return upload.Config{
		ShortTimeout:     c.ShortTimeout * time.Second,
		LongTimeout:      c.LongTimeout * time.Second,
		LongTimeoutAbove: c.LongTimeoutAbove,
		MaxRetries:       c.MaxRetries,
		RetryBaseDelay:   c.RetryBaseDelay * time.Millisecond,
	}
}
