package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rakunlabs/into"
	"github.com/rakunlabs/logi"

	"github.com/rakunlabs/datahub/internal/bufferstore"
	"github.com/rakunlabs/datahub/internal/cluster"
	"github.com/rakunlabs/datahub/internal/config"
	"github.com/rakunlabs/datahub/internal/hub"
	"github.com/rakunlabs/datahub/internal/scheduler"
	transporthttp "github.com/rakunlabs/datahub/internal/transport/http"
)

var (
	name    = "datahub"
	version = "v0.0.0"
)

func main() {
	config.Service = name + "/" + version

	into.Init(run,
		into.WithLogger(logi.InitializeLog(logi.WithCaller(false))),
		into.WithMsgf("%s [%s]", name, version),
	)
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	var store bufferstore.StorerClose
	if cfg.Buffer.Store.SQLite != nil || cfg.Buffer.Store.Postgres != nil {
		store, err = bufferstore.New(ctx, cfg.Buffer.Store)
		if err != nil {
			return fmt.Errorf("failed to open buffer store: %w", err)
		}
		defer store.Close()
	}

	h := hub.New(func() float64 {
		return float64(time.Now().UnixNano()) / 1e9
	}, store)

	cl, err := cluster.New(cfg.Server.Alan)
	if err != nil {
		return fmt.Errorf("failed to create cluster: %w", err)
	}

	sched := scheduler.New(h, cl, cfg.Buffer.GCInterval)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	srv := transporthttp.New(cfg.Server, h)
	return srv.Start(ctx)
}
