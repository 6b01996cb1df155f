package config

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rakunlabs/alan"
	"github.com/rakunlabs/chu/loader/loaderenv"
	"github.com/rakunlabs/logi"

	mforwardauth "github.com/rakunlabs/ada/middleware/forwardauth"
	"github.com/rakunlabs/chu"
	"github.com/rakunlabs/tell"

	"github.com/rakunlabs/datahub/internal/bufferstore"
)

var Service = ""

type Config struct {
	LogLevel string `cfg:"log_level,no_prefix" default:"info"`

	Server    Server      `cfg:"server"`
	Buffer    Buffer      `cfg:"buffer"`
	Telemetry tell.Config `cfg:"telemetry,noprefix"`
}

type Server struct {
	BasePath string `cfg:"base_path"`

	Port string `cfg:"port" default:"8080"`
	Host string `cfg:"host"`

	// ForwardAuth, if set, forwards authentication to an external service
	// before the hub's IO/admin/query surfaces are reachable.
	ForwardAuth *mforwardauth.ForwardAuth `cfg:"forward_auth"`

	// AdminToken is loaded from configuration but not read by the HTTP
	// transport: the admin JSON-RPC methods (SetSource, SetOverride,
	// transform/limit configuration, resource deletion) are reachable by
	// any session whether or not it is set.
	AdminToken string `cfg:"admin_token" log:"-"`

	UserHeader string `cfg:"user_header" default:"X-User"`

	// Alan, if set, enables UDP peer discovery so multiple hub instances
	// can coordinate leader election for backup garbage collection.
	Alan *alan.Config `cfg:"alan"`
}

// Buffer configures the durable observation buffer backup (BufferStore)
// and the periodic backup/garbage-collection cadence applied on top of it.
type Buffer struct {
	Store bufferstore.Config `cfg:"store"`

	// BackupPeriod is loaded from configuration but not read by the hub;
	// an observation backs up only when its own backup period is set.
	BackupPeriod time.Duration `cfg:"backup_period" default:"5m"`

	// GCInterval is how often the scheduler scans for and purges buffer
	// backups belonging to observations no longer present in the tree.
	GCInterval time.Duration `cfg:"gc_interval" default:"30m"`
}

func Load(ctx context.Context, path string) (*Config, error) {
	var cfg Config
	if err := chu.Load(ctx, path, &cfg, chu.WithLoaderOption(loaderenv.New(loaderenv.WithPrefix("DATAHUB_")))); err != nil {
		return nil, err
	}

	if err := logi.SetLogLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("set log level %s: %w", cfg.LogLevel, err)
	}

	slog.Info("loaded configuration", "config", chu.MarshalMap(cfg))

	return &cfg, nil
}
