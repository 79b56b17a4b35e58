package utils

import (
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
)

// RunPerfEndpoint serves pprof on the port, returns at once when port is not set
func RunPerfEndpoint(port int) error {
	if port <= 0 {
		goapp.Log.Info().Msg("no debug.port, pprof disabled")
		return nil
	}
	goapp.Log.Info().Msgf("Starting Debug http endpoint at [::]:%d", port)
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: perfMux(), ReadHeaderTimeout: 10 * time.Second}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("can't start debug endpoint: %w", err)
	}
	return nil
}

func perfMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}
