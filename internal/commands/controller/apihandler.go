package controller

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/switchboard-io/switchboard/internal/core"
	internalcontroller "github.com/switchboard-io/switchboard/internal/controller"
	"github.com/switchboard-io/switchboard/internal/serde"
)

// newAPIHandler builds the controller's resource-apply HTTP API: a
// small net/http.ServeMux rather than a third-party router, since
// go-chi isn't wired into this module's dependency set. Routes:
//
//	GET  /healthz                report liveness
//	GET  /kernels                snapshot of every known kernel's core.KernelState
//	POST /kernels/{id}/config    push a tagged-JSON core.ServiceConfig to one kernel
func newAPIHandler(ctl *internalcontroller.Controller, states *internalcontroller.StateCache, logger hclog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/kernels", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(states.Snapshot()); err != nil {
			logger.Warn("encoding kernel state snapshot", "error", err)
		}
	})

	mux.HandleFunc("/kernels/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/config") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		kernelID := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/kernels/"), "/config")
		if kernelID == "" {
			http.Error(w, "missing kernel id", http.StatusBadRequest)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		value, err := (serde.JSONCodec{}).DecodeValue(body)
		if err != nil {
			http.Error(w, "decoding config: "+err.Error(), http.StatusBadRequest)
			return
		}
		cfg, err := core.ServiceConfigFromValue(value)
		if err != nil {
			http.Error(w, "decoding config: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := ctl.ResolveAndValidate(r.Context(), cfg); err != nil {
			http.Error(w, "invalid config: "+err.Error(), http.StatusUnprocessableEntity)
			return
		}

		if err := ctl.PushToKernel(r.Context(), kernelID, cfg); err != nil {
			logger.Warn("pushing config", "kernel", kernelID, "error", err)
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	return mux
}
