package reaper

import (
	"agentboxBackend/config"
	"agentboxBackend/domain/instance"
	"context"
	"time"

	"github.com/charmbracelet/log"
)

type (
	// Reaper periodically tears down instances whose lifetime has elapsed.
	Reaper interface {
		// Run sweeps in an interval until the context is cancelled. One sweep
		// runs immediately on start so restarts don't delay overdue teardowns.
		Run(ctx context.Context)
	}

	instanceReaper struct {
		config          *config.AgentboxConfig
		instanceService instance.Service
	}
)

func CreateReaper(config *config.AgentboxConfig, instanceService instance.Service) Reaper {
	return &instanceReaper{
		config:          config,
		instanceService: instanceService,
	}
}

func (r *instanceReaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.config.Expiry.SweepInterval)
	defer ticker.Stop()

	r.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info("[REAPER] Shutting down")
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *instanceReaper) sweep(ctx context.Context) {
	reaped, err := r.instanceService.SweepExpired(ctx)
	if err != nil {
		log.Errorf("[REAPER] Sweep failed: %s", err.Error())
		return
	}

	if reaped > 0 {
		log.Info("[REAPER] Swept expired instances", "count", reaped)
	}
}
