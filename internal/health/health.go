// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jensholdgaard/art-auction/internal/clock"
)

// Status represents a health check result.
type Status struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// Checker defines a named health check function.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Handler provides the probe endpoints.
type Handler struct {
	mu       sync.RWMutex
	ready    bool
	checkers []Checker
	clock    clock.Clock
	timeout  time.Duration
}

// NewHandler creates a new health handler with the given checkers.
func NewHandler(clk clock.Clock, checkers ...Checker) *Handler {
	return &Handler{checkers: checkers, clock: clk, timeout: 5 * time.Second}
}

// SetReady marks the service as ready to receive traffic.
func (h *Handler) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

// Ready reports the flag set by SetReady.
func (h *Handler) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ready
}

// Liveness answers 200 while the process is up.
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, Status{Status: "ok", Timestamp: h.now()})
}

// Readiness answers 200 once SetReady(true) was called and every checker
// passes.
func (h *Handler) Readiness(c *gin.Context) {
	if !h.Ready() {
		c.JSON(http.StatusServiceUnavailable, Status{Status: "not_ready", Timestamp: h.now()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	checks := make(map[string]string, len(h.checkers))
	allOK := true
	for _, chk := range h.checkers {
		if err := chk.Check(ctx); err != nil {
			checks[chk.Name] = err.Error()
			allOK = false
		} else {
			checks[chk.Name] = "ok"
		}
	}

	status := "ready"
	code := http.StatusOK
	if !allOK {
		status = "not_ready"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, Status{Status: status, Checks: checks, Timestamp: h.now()})
}

func (h *Handler) now() string {
	return h.clock.Now().UTC().Format(time.RFC3339)
}
