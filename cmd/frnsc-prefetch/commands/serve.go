package commands

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ForensicRS/frnsc-prefetch/internal/cli/output"
	"github.com/ForensicRS/frnsc-prefetch/internal/logger"
	"github.com/ForensicRS/frnsc-prefetch/pkg/metrics"
	"github.com/ForensicRS/frnsc-prefetch/pkg/notify"
	"github.com/ForensicRS/frnsc-prefetch/pkg/prefetch"
	"github.com/ForensicRS/frnsc-prefetch/pkg/prefetch/vfs"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve parsed prefetch records over HTTP",
	Long: `Serve parsed prefetch records over HTTP.

GET /api/v1/prefetch?root=<dir> parses the prefetch directory of an
extracted image root and returns the records as JSON. Parsing counters
are exposed on /metrics in Prometheus format.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	addr := serveAddr
	if addr == "" {
		addr = cfg.Serve.Addr
	}

	registry := prometheus.NewRegistry()
	recorder := metrics.NewRecorder(registry)
	parser := prefetch.New(
		prefetch.WithMetrics(recorder),
		prefetch.WithNotifier(notify.Multi(notify.LogSink{}, recorder)),
	)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}).ServeHTTP)
	r.Get("/api/v1/prefetch", handlePrefetch(parser))

	logger.Info("serving prefetch API", "addr", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func handlePrefetch(parser *prefetch.Parser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		root := r.URL.Query().Get("root")
		if root == "" {
			root = cfg.Serve.Root
		}

		var fs vfs.FileSystem
		if root != "" {
			fs = vfs.NewChroot(root)
		} else {
			fs = vfs.NewOS()
		}

		records, err := parser.ReadDirectory(fs)
		if err != nil {
			logger.Error("prefetch directory read failed", "root", root, "error", err)
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := output.PrintJSON(w, records); err != nil {
			logger.Error("response encoding failed", "error", err)
		}
	}
}
