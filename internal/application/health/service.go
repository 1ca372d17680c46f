package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	corehealth "github.com/3tcapital/facturador/internal/core/health"
)

const defaultCheckTimeout = 5 * time.Second

// Metadata contains immutable metadata about the running service.
type Metadata struct {
	Service     string
	Version     string
	Environment string
}

// Check probes one dependency, such as the authority's FEDummy endpoint or
// the database.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Service exposes health-check use cases to adapters.
type Service struct {
	meta      Metadata
	checks    []Check
	timeout   time.Duration
	log       *slog.Logger
	startedAt time.Time
}

func NewService(meta Metadata, log *slog.Logger, checks ...Check) *Service {
	return &Service{
		meta:      meta,
		checks:    checks,
		timeout:   defaultCheckTimeout,
		log:       log,
		startedAt: time.Now().UTC(),
	}
}

// Status returns the current availability snapshot. Dependencies are probed
// in parallel; any failure marks the service DEGRADED.
func (s *Service) Status(ctx context.Context) corehealth.Status {
	uptime := time.Since(s.startedAt)
	status := corehealth.Status{
		Service:     s.meta.Service,
		Version:     s.meta.Version,
		Environment: s.meta.Environment,
		Status:      corehealth.StatusUp,
		StartedAt:   s.startedAt,
		Uptime:      uptime.String(),
		UptimeSecs:  int64(uptime.Seconds()),
	}
	if len(s.checks) == 0 {
		return status
	}

	results := make([]corehealth.DependencyCheck, len(s.checks))
	var wg sync.WaitGroup
	for i, c := range s.checks {
		wg.Add(1)
		go func(i int, c Check) {
			defer wg.Done()
			results[i] = s.probe(ctx, c)
		}(i, c)
	}
	wg.Wait()

	for _, r := range results {
		if r.Status != corehealth.StatusUp {
			status.Status = corehealth.StatusDegraded
		}
	}
	status.Dependencies = results
	return status
}

func (s *Service) probe(ctx context.Context, c Check) corehealth.DependencyCheck {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := c.Probe(ctx)
	out := corehealth.DependencyCheck{
		Name:      c.Name,
		Status:    corehealth.StatusUp,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		out.Status = corehealth.StatusDown
		out.Error = err.Error()
		s.log.Warn("Dependency check failed", "dependency", c.Name, "error", err)
	}
	return out
}
