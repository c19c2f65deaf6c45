// Package supervisor runs the server's long-lived components under a
// suture supervisor tree.
//
// The tree has two layers:
//   - protocol: the protocol engine loop
//   - api: the WebSocket/HTTP transport
//
// A crash in one layer restarts only that layer. On shutdown the api layer
// is stopped first so close events of the remaining connections still reach
// the engine.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds supervisor tree configuration.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay in seconds.
	FailureDecay float64

	// FailureBackoff is the duration to wait when threshold is exceeded.
	FailureBackoff time.Duration

	// ShutdownTimeout bounds how long each layer may take to stop.
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns suture's own defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is the supervisor hierarchy of the server.
type Tree struct {
	root     *suture.Supervisor
	protocol *suture.Supervisor
	api      *suture.Supervisor
	apiToken suture.ServiceToken
	logger   *slog.Logger
	config   TreeConfig
}

// NewTree builds the tree. Zero config values take their defaults.
func NewTree(logger *slog.Logger, config TreeConfig) *Tree {
	defaults := DefaultTreeConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = defaults.FailureDecay
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = defaults.FailureBackoff
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	// MustHook has a pointer receiver.
	handler := &sutureslog.Handler{Logger: logger}

	rootSpec := suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	// Children inherit the event hook from the root.
	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	root := suture.New("fiftysocket", rootSpec)
	protocol := suture.New("protocol-layer", childSpec)
	api := suture.New("api-layer", childSpec)

	root.Add(protocol)
	apiToken := root.Add(api)

	return &Tree{
		root:     root,
		protocol: protocol,
		api:      api,
		apiToken: apiToken,
		logger:   logger,
		config:   config,
	}
}

// AddProtocolService adds a service to the protocol layer.
func (t *Tree) AddProtocolService(svc suture.Service) suture.ServiceToken {
	return t.protocol.Add(svc)
}

// AddAPIService adds a service to the api layer.
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Root returns the root supervisor.
func (t *Tree) Root() *suture.Supervisor {
	return t.root
}

// Serve runs the tree until ctx is cancelled, then stops the api layer
// before the protocol layer. It returns ctx.Err() after a requested
// shutdown, or the root supervisor's error if the tree terminated itself.
func (t *Tree) Serve(ctx context.Context) error {
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := t.root.ServeBackground(rootCtx)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if err := t.root.RemoveAndWait(t.apiToken, t.config.ShutdownTimeout); err != nil &&
		!errors.Is(err, suture.ErrSupervisorNotRunning) {
		t.logger.Warn("api layer did not stop in time", "error", err)
	}

	cancel()
	<-errCh
	return ctx.Err()
}

// UnstoppedServiceReport lists services that did not stop within the
// shutdown timeout.
func (t *Tree) UnstoppedServiceReport() (suture.UnstoppedServiceReport, error) {
	return t.root.UnstoppedServiceReport()
}
