package engine

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/angelmondragon/storyblok-sync/internal/assets"
	"github.com/angelmondragon/storyblok-sync/internal/commerce"
	"github.com/angelmondragon/storyblok-sync/internal/gallery"
	"github.com/angelmondragon/storyblok-sync/internal/imagediff"
	"github.com/angelmondragon/storyblok-sync/internal/links"
	"github.com/angelmondragon/storyblok-sync/internal/reconcile"
	"github.com/angelmondragon/storyblok-sync/internal/stories"
	"github.com/angelmondragon/storyblok-sync/internal/storyblok"
	"github.com/angelmondragon/storyblok-sync/pkg/config"
	"github.com/angelmondragon/storyblok-sync/pkg/httpclient"
	"github.com/angelmondragon/storyblok-sync/pkg/logger"
	"github.com/angelmondragon/storyblok-sync/pkg/metrics"
)

// Params carries the process-level dependencies shared by api and worker.
type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *gorm.DB
	Locks      assets.LockStore
	Registerer prometheus.Registerer
}

// Engine is the assembled sync stack.
type Engine struct {
	Commerce  *commerce.Client
	Stories   stories.Service
	Links     *links.Repository
	Workflows *reconcile.Workflows
	Metrics   *metrics.SyncMetrics
}

// New builds the Storyblok and commerce clients and every layer on top of
// them, down to the reconciliation workflows.
func New(p Params) (*Engine, error) {
	if p.Config == nil {
		return nil, errors.New("config required")
	}
	if p.Logger == nil {
		return nil, errors.New("logger required")
	}
	if p.DB == nil {
		return nil, errors.New("database required")
	}
	cfg, logg := p.Config, p.Logger

	sbHTTP := httpclient.New(cfg.Storyblok.HTTPTimeout, httpclient.Options{
		RetryMax:     cfg.Storyblok.RetryMax,
		DefaultLimit: httpclient.Limit{RPS: cfg.Storyblok.RateLimitRPS, Burst: cfg.Storyblok.RateLimitBurst},
		Metrics:      metrics.NewHTTPClientMetrics(p.Registerer, "storyblok"),
	})
	sbClient := storyblok.NewClient(cfg.Storyblok, sbHTTP, logg)

	commerceHTTP := httpclient.New(cfg.Commerce.Timeout, httpclient.Options{
		RetryMax: cfg.Storyblok.RetryMax,
		Metrics:  metrics.NewHTTPClientMetrics(p.Registerer, "commerce"),
	})
	commerceClient := commerce.NewClient(cfg.Commerce, commerceHTTP, logg)

	store, err := assets.NewStore(sbClient, p.Locks, cfg.Storyblok.FolderLockTTL, logg)
	if err != nil {
		return nil, err
	}
	fetchHTTP := httpclient.New(cfg.Images.FetchTimeout, httpclient.Options{
		RetryMax: cfg.Storyblok.RetryMax,
		Metrics:  metrics.NewHTTPClientMetrics(p.Registerer, "image_fetch"),
	})
	uploader, err := assets.NewUploader(store, fetchHTTP, cfg.Images.MaxBytes, logg)
	if err != nil {
		return nil, err
	}
	builder, err := gallery.NewBuilder(store, uploader, cfg.Images.UploadConcurrency, logg)
	if err != nil {
		return nil, err
	}

	linkRepo := links.NewRepository(p.DB)
	storySvc, err := stories.NewService(stories.ServiceParams{
		API:            sbClient,
		Folders:        store,
		Gallery:        builder,
		Links:          linkRepo,
		SpaceID:        cfg.Storyblok.SpaceID,
		ParentFolderID: cfg.Storyblok.ProductsFolderID,
		Logger:         logg,
	})
	if err != nil {
		return nil, err
	}

	syncMetrics := metrics.NewSyncMetrics(p.Registerer)
	workflows, err := reconcile.New(reconcile.Params{
		Commerce: commerceClient,
		Stories:  storySvc,
		Links:    linkRepo,
		Metrics:  syncMetrics,
		Sync:     cfg.Sync,
		Images: imagediff.Optimization{
			Width:    cfg.Images.Width,
			Quality:  cfg.Images.Quality,
			Template: cfg.Images.URLTemplate,
		},
		DeleteProductOnStoryDelete: cfg.Storyblok.DeleteProductOnStoryDelete,
		Logger:                     logg,
	})
	if err != nil {
		return nil, err
	}

	return &Engine{
		Commerce:  commerceClient,
		Stories:   storySvc,
		Links:     linkRepo,
		Workflows: workflows,
		Metrics:   syncMetrics,
	}, nil
}
