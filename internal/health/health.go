// Package health tracks the liveness of the ingress fabric process and the
// readiness of the channel adapters and webhook sinks it depends on.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Status is the health status of a single registered dependency (a Slack or
// Mattermost adapter, typically).
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// CheckFunc probes one dependency and reports its current status.
type CheckFunc func(ctx context.Context) Status

// checkTimeout bounds how long a single registered CheckFunc may run before
// RunAll gives up and moves on; a hung adapter health check must not stall
// the whole /readyz response.
const checkTimeout = 5 * time.Second

// Checker aggregates named CheckFunc probes — one per configured channel
// adapter — into a single readiness verdict for the webhook server's
// /readyz route.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc
	cache  map[string]Status
	logger zerolog.Logger
}

// NewChecker creates a Checker with no registered dependencies.
func NewChecker(logger zerolog.Logger) *Checker {
	return &Checker{
		checks: make(map[string]CheckFunc),
		cache:  make(map[string]Status),
		logger: logger.With().Str("component", "health").Logger(),
	}
}

// Register adds a named dependency check, replacing any prior check
// registered under the same name. Adapters register themselves once at
// startup (see cmd/chatmesh/main.go); name collisions are a wiring bug, not
// a runtime condition, so this does not error.
func (c *Checker) Register(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = fn
}

// RunAll probes every registered dependency concurrently, logs a warning for
// each one that comes back down, caches the result set, and returns it.
func (c *Checker) RunAll(ctx context.Context) map[string]Status {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for k, v := range c.checks {
		checks[k] = v
	}
	c.mu.RUnlock()

	results := make(map[string]Status, len(checks))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, fn := range checks {
		wg.Add(1)
		go func(n string, f CheckFunc) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			s := f(checkCtx)
			if s == StatusDown {
				c.logger.Warn().Str("dependency", n).Msg("dependency health check reports down")
			}
			mu.Lock()
			results[n] = s
			mu.Unlock()
		}(name, fn)
	}

	wg.Wait()

	c.mu.Lock()
	c.cache = results
	c.mu.Unlock()

	return results
}

// IsReady runs every registered check and reports whether the fabric is
// ready to ingress traffic. A StatusDegraded dependency (e.g. an adapter
// that fell back from WebSocket to REST polling) does not flip readiness —
// only StatusDown does.
func (c *Checker) IsReady(ctx context.Context) bool {
	results := c.RunAll(ctx)
	for _, s := range results {
		if s == StatusDown {
			return false
		}
	}
	return true
}

// livenessBody is the fixed response body for the liveness probe: reaching
// this handler at all proves the process is alive and its event loop is
// scheduling HTTP handlers, independent of any adapter's state.
type livenessBody struct {
	Status string `json:"status"`
}

// LivenessHandler answers the process-liveness probe. Unlike readiness it
// never touches Checker or any registered dependency — an orchestrator
// should restart the process only when it has stopped scheduling work at
// all, not because Slack or Mattermost is unreachable.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(livenessBody{Status: "ok"})
	}
}

// readinessBody reports overall status plus the per-dependency breakdown
// behind it, so an operator can tell which adapter tripped readiness.
type readinessBody struct {
	Status string            `json:"status"`
	Checks map[string]Status `json:"checks"`
}

// ReadinessHandler answers the traffic-readiness probe by running every
// registered dependency check and reporting both the aggregate verdict and
// the per-dependency detail behind it.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		results := c.RunAll(r.Context())

		resp := readinessBody{Status: "ready", Checks: results}
		status := http.StatusOK
		for _, s := range results {
			if s == StatusDown {
				resp.Status = "not_ready"
				status = http.StatusServiceUnavailable
				break
			}
		}

		w.WriteHeader(status)
		json.NewEncoder(w).Encode(resp)
	}
}
