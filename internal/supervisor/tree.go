// Package supervisor runs the long lived services of crewbot under a
// suture tree, restarting them when they fail.
package supervisor

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/thejerf/suture/v4"
)

type TreeConfig struct {
	// Failures before the supervisor backs off
	FailureThreshold float64
	// Rate at which failures decay, in seconds
	FailureDecay    float64
	FailureBackoff  time.Duration
	ShutdownTimeout time.Duration
}

func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// The tree has two layers. The core layer runs the presence tracker and
// the edge layer the discord bot and the HTTP server, so a bot that keeps
// failing to connect never restarts the tracker
type Tree struct {
	root *suture.Supervisor
	core *suture.Supervisor
	edge *suture.Supervisor
}

func NewTree(config TreeConfig) *Tree {
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

	spec := suture.Spec{
		EventHook:        logEvent,
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	root := suture.New("crewbot", spec)
	core := suture.New("core", spec)
	edge := suture.New("edge", spec)
	root.Add(core)
	root.Add(edge)

	return &Tree{root: root, core: core, edge: edge}
}

func (t *Tree) AddCore(svc suture.Service) suture.ServiceToken {
	return t.core.Add(svc)
}

func (t *Tree) AddEdge(svc suture.Service) suture.ServiceToken {
	return t.edge.Add(svc)
}

// Serve blocks until the context is cancelled
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

func logEvent(event suture.Event) {
	var entry *zerolog.Event
	switch event.Type() {
	case suture.EventTypeServicePanic:
		entry = log.Error()
	case suture.EventTypeServiceTerminate, suture.EventTypeStopTimeout, suture.EventTypeBackoff:
		entry = log.Warn()
	default:
		entry = log.Info()
	}
	entry.Fields(event.Map()).Msg(event.String())
}
