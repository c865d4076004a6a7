package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// All probes share one deadline; a probe that cannot answer in time counts
// as down.
const healthCheckTimeout = 2 * time.Second

// HealthProbe is a subsystem liveness check (database, queue). Check must
// respect the context deadline.
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

type probeResult struct {
	name string
	err  error
}

// HandleHealth answers 200 when every registered probe passes and 503 when
// any fails, with a per-component breakdown. Probes run concurrently and a
// panicking probe is reported as unhealthy rather than killing the request.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if len(s.HealthProbes) == 0 {
		JSON(w, r, http.StatusOK, healthResponse{Status: "healthy"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	results := make(chan probeResult, len(s.HealthProbes))
	var wg sync.WaitGroup
	for _, probe := range s.HealthProbes {
		wg.Add(1)
		go func(p HealthProbe) {
			defer wg.Done()
			results <- probeResult{name: p.Name(), err: runProbe(ctx, p)}
		}(probe)
	}
	wg.Wait()
	close(results)

	resp := healthResponse{
		Status:     "healthy",
		Components: make(map[string]componentStatus, len(s.HealthProbes)),
	}
	status := http.StatusOK
	for res := range results {
		if res.err != nil {
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			resp.Components[res.name] = componentStatus{Status: "unhealthy", Message: res.err.Error()}
			continue
		}
		resp.Components[res.name] = componentStatus{Status: "healthy"}
	}
	JSON(w, r, status, resp)
}

func runProbe(ctx context.Context, p HealthProbe) (err error) {
	defer func() {
		if rvr := recover(); rvr != nil {
			err = fmt.Errorf("probe panicked: %v", rvr)
		}
	}()
	return p.Check(ctx)
}
