package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tradedocs-cli/internal/monitoring"
	"github.com/sells-group/tradedocs-cli/internal/trace"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve extraction status over HTTP",
	Long:  "Exposes the persisted trace for dashboards: session status, step timeline, and any saved partial data.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		tracer := trace.New(st)
		mux := newStatusMux(tracer)

		go monitoring.NewWatchdog(tracer, 30*time.Second).Run(ctx)

		// Mirror display-state changes into the server log.
		subID := tracer.Subscribe(func(state trace.DisplayState) {
			if state.Session == nil {
				return
			}
			zap.L().Info("display state changed",
				zap.String("session", state.Session.ID),
				zap.String("status", string(state.Session.Status)),
				zap.String("step", string(state.Session.CurrentStep)),
				zap.Bool("live", state.Live),
			)
		})
		defer tracer.Unsubscribe(subID)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting status server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newStatusMux builds the read-only status routes.
func newStatusMux(tracer *trace.Tracer) *http.ServeMux {
	mux := http.NewServeMux()

	writeJSON := func(w http.ResponseWriter, status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(v)
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /status", func(w http.ResponseWriter, r *http.Request) {
		state := tracer.DisplayState()
		summary := map[string]any{
			"live":       state.Live,
			"hasPartial": state.HasPartial,
		}
		if state.Session != nil {
			summary["session"] = state.Session.ID
			summary["status"] = state.Session.Status
			summary["step"] = state.Session.CurrentStep
			summary["metrics"] = state.Session.Metrics
		}
		writeJSON(w, http.StatusOK, summary)
	})

	mux.HandleFunc("GET /trace", func(w http.ResponseWriter, r *http.Request) {
		state := tracer.DisplayState()
		if state.Session == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no sessions recorded"})
			return
		}
		writeJSON(w, http.StatusOK, state.Session)
	})

	mux.HandleFunc("GET /partial", func(w http.ResponseWriter, r *http.Request) {
		partial, ok := tracer.Partial()
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no partial data saved"})
			return
		}
		writeJSON(w, http.StatusOK, partial)
	})

	return mux
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
