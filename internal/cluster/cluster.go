// Package cluster provides distributed coordination for multiple hub
// instances sharing one BufferStore, using the alan UDP peer discovery
// library. It wraps alan to provide leader election for the periodic
// buffer-backup garbage collection pass, so only one instance in a
// cluster purges stale backups at a time.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/rakunlabs/alan"
)

const (
	// lockGC is the distributed lock name for the backup garbage collector.
	lockGC = "buffer-backup-gc"
)

// Cluster wraps an alan instance with hub-specific distributed coordination.
type Cluster struct {
	alan *alan.Alan
}

// New creates a Cluster from the server's alan configuration.
// Returns nil, nil if cfg is nil (clustering disabled).
func New(cfg *alan.Config) (*Cluster, error) {
	if cfg == nil {
		return nil, nil
	}

	a, err := alan.New(*cfg)
	if err != nil {
		return nil, fmt.Errorf("create alan instance: %w", err)
	}

	return &Cluster{alan: a}, nil
}

// Start begins the alan peer discovery system in the background. Start
// blocks until the context is cancelled. It should be run in a goroutine.
func (c *Cluster) Start(ctx context.Context) error {
	c.alan.OnPeerJoin(func(addr *net.UDPAddr) {
		slog.Info("cluster peer joined", "addr", addr.String())
	})

	c.alan.OnPeerLeave(func(addr *net.UDPAddr) {
		slog.Info("cluster peer left", "addr", addr.String())
	})

	handler := func(_ context.Context, msg alan.Message) {
		slog.Debug("cluster: unsolicited message received", "from", msg.Addr)
	}

	return c.alan.Start(ctx, handler)
}

// Stop gracefully leaves the cluster.
func (c *Cluster) Stop() error {
	return c.alan.Stop()
}

// LockGC acquires the distributed lock guarding the backup garbage
// collection pass. Blocks until acquired or the context is cancelled.
func (c *Cluster) LockGC(ctx context.Context) error {
	return c.alan.Lock(ctx, lockGC)
}

// UnlockGC releases the backup garbage collection lock.
func (c *Cluster) UnlockGC() error {
	return c.alan.Unlock(lockGC)
}

// WithGCLock runs fn while holding the GC lock, bounded by timeout.
func (c *Cluster) WithGCLock(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := c.LockGC(lockCtx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			slog.Debug("cluster: another peer holds the GC lock")
			return nil
		}
		return err
	}
	defer c.UnlockGC() //nolint:errcheck

	return fn(ctx)
}

// Ready returns a channel that is closed when the cluster is ready.
func (c *Cluster) Ready() <-chan struct{} {
	return c.alan.Ready()
}
