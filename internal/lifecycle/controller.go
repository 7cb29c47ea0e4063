// Package lifecycle drives the worker through its install and activate
// transitions: shell population on install, stale-partition garbage
// collection and client claiming on activate.
package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/urbanpack/offsync/internal/clients"
	"github.com/urbanpack/offsync/internal/logger"
	"github.com/urbanpack/offsync/internal/metrics"
	"github.com/urbanpack/offsync/internal/partition"
	"github.com/urbanpack/offsync/internal/shell"
)

// State is the worker's lifecycle phase.
type State string

const (
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActive     State = "active"
)

// Controller owns the install/activate transitions. Each transition runs
// as an awaited task: callers block until the phase's work finishes, never
// fire-and-forget.
type Controller struct {
	registry     *partition.Registry
	shell        *shell.Manager
	hub          *clients.Hub
	prefix       string
	shellVersion string
	log          logger.Logger
	metrics      *metrics.Metrics

	mu    sync.Mutex
	state State
}

// NewController creates a Controller in the installing state.
func NewController(registry *partition.Registry, sh *shell.Manager, hub *clients.Hub, prefix, shellVersion string, log logger.Logger, m *metrics.Metrics) *Controller {
	return &Controller{
		registry:     registry,
		shell:        sh,
		hub:          hub,
		prefix:       prefix,
		shellVersion: shellVersion,
		log:          log,
		metrics:      m,
		state:        StateInstalling,
	}
}

// State returns the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.log.Info("lifecycle transition", logger.String("state", string(s)))
}

// Install populates the shell partition. Optional asset failures are
// tolerated inside the shell manager; only a missing boot set fails the
// install. A worker with a half-populated shell is worse than one serving
// briefly alongside an older instance, so Install does not wait for any
// previous worker to wind down before proceeding.
func (c *Controller) Install(ctx context.Context) error {
	c.setState(StateInstalling)
	if err := c.shell.EnsureCurrent(ctx); err != nil {
		return fmt.Errorf("install failed: %w", err)
	}
	c.setState(StateInstalled)
	return nil
}

// Activate sweeps every shell-scoped partition whose embedded version
// differs from the current one, then claims all open page clients. Entity
// partitions follow their own longer-lived naming rule and are never
// touched here; they persist until the user explicitly forgets them.
func (c *Controller) Activate(ctx context.Context) error {
	c.setState(StateActivating)

	names, err := c.registry.List(ctx)
	if err != nil {
		return fmt.Errorf("activate failed to enumerate partitions: %w", err)
	}
	var swept int
	for _, name := range names {
		if !partition.IsShellScoped(name, c.prefix) {
			continue
		}
		if partition.ShellScopedVersion(name, c.prefix) == c.shellVersion {
			continue
		}
		if _, err := c.registry.Drop(ctx, name); err != nil {
			return fmt.Errorf("activate failed to drop stale partition %s: %w", name, err)
		}
		swept++
		c.metrics.PartitionSweep.Inc()
	}
	if swept > 0 {
		c.log.Info("stale partitions swept",
			logger.Int("count", swept),
			logger.String("version", c.shellVersion))
	}

	c.hub.Claim(c.shellVersion)
	c.setState(StateActive)
	return nil
}

// Run performs install then activate as one awaited sequence.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.Install(ctx); err != nil {
		return err
	}
	return c.Activate(ctx)
}
