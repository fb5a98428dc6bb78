package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// healthStatus is the body served by the health endpoint in watch mode.
type healthStatus struct {
	Status   string `json:"status"`
	Mode     string `json:"mode"`
	Cycle    int64  `json:"cycle"`
	WorkerID string `json:"workerId,omitempty"`
}

func (a *App) health() healthStatus {
	st := healthStatus{Status: "ok", Mode: a.request().Mode.String(), Cycle: a.cycle.Load()}
	if sup := a.sup.Load(); sup != nil {
		if h := sup.Current(); h != nil {
			st.WorkerID = h.ID()
		}
	}
	return st
}

// healthHandler reports the current cycle and live worker as JSON.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remoteAddr", r.RemoteAddr, "path", r.URL.Path)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(a.health()); err != nil {
		a.logger.Warn("Failed to write health status.", "error", err)
	}
}

// startHealthcheckServer serves /health until ctx is done.
func (a *App) startHealthcheckServer(ctx context.Context, port int) {
	a.logger.Debug("Configuring health check server.")
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.logger.Info("🩺 Health check server starting", "address", fmt.Sprintf("http://localhost%s/health", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Health check server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
