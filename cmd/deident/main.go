// Command deident anonymizes a tabular dataset using full-domain
// generalization and writes the released records as CSV. Jobs are described
// by a YAML file; run outcomes can be persisted to a run store.
package main

import (
	"context"
	"encoding/csv"
	"expvar"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"deident/internal/blob"
	"deident/internal/config"
	"deident/internal/core"
	"deident/internal/dataset"
	"deident/internal/hierarchy"
	"deident/internal/infra/persistence/memory"
	"deident/internal/infra/persistence/postgres"
	"deident/internal/infra/persistence/sqlite"
	"deident/pkg/domain"
)

var (
	configPath  = flag.String("config", "", "Job configuration file (required)")
	outPath     = flag.String("out", "", "Release output path, blob://<key>, or - for stdout (overrides config)")
	storeDriver = flag.String("store", "", "Run store driver: memory|sqlite|postgres (overrides config)")
	sqlitePath  = flag.String("sqlite-path", "deident.db", "SQLite database path when -store=sqlite")
	postgresDSN = flag.String("postgres-dsn", "", "PostgreSQL DSN when -store=postgres (default from driver)")
	metricsAddr = flag.String("metrics-addr", "", "Serve /metrics and /debug/vars on this address")

	exitFunc = os.Exit
)

func main() {
	flag.Parse()
	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "error: -config is required")
		flag.Usage()
		exitFunc(2)
		return
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		exitFunc(1)
	}
}

func run(ctx context.Context) error {
	logger := slog.Default()
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	store, closeStore, err := openRunStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	recorder, err := startMetrics(logger)
	if err != nil {
		return err
	}

	job, err := loadJob(ctx, cfg)
	if err != nil {
		return err
	}

	svc := core.NewService(store,
		core.WithLogger(logger),
		core.WithMetricsRecorder(recorder),
	)
	result, err := svc.Anonymize(ctx, job)
	if err != nil {
		return err
	}
	if result.Optimum == nil {
		return fmt.Errorf("no anonymous transformation exists for k=%d, suppression_limit=%g", cfg.K, cfg.SuppressionLimit)
	}

	release, err := core.BuildRelease(job, result.Optimum)
	if err != nil {
		return err
	}
	out := cfg.Output
	if *outPath != "" {
		out = *outPath
	}
	if err := writeRelease(ctx, out, release); err != nil {
		return err
	}

	fmt.Printf("optimum %v loss %.4f, released %d records (%d suppressed), checked %d/%d nodes (%d tagged) in %s\n",
		[]int(result.Optimum), result.OptimumLoss,
		len(release.Records), release.Suppressed,
		result.CheckedNodes, result.LatticeSize, result.TaggedNodes,
		result.Duration.Round(time.Millisecond))
	return nil
}

// openRunStore resolves the run store driver, preferring the -store flag over
// the config file and defaulting to memory.
func openRunStore(cfg *config.JobFile) (domain.RunStore, func(), error) {
	driver := cfg.Store
	if *storeDriver != "" {
		driver = *storeDriver
	}
	switch driver {
	case "", "memory":
		return memory.NewStore(), func() {}, nil
	case "sqlite":
		st, err := sqlite.NewStore(*sqlitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, func() { _ = st.Close() }, nil
	case "postgres":
		st, err := postgres.NewStore(*postgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		return st, func() { _ = st.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown run store driver %q", driver)
	}
}

// startMetrics picks the metrics recorder. Without -metrics-addr runs record
// into an expvar snapshot only; with it a prometheus registry is served.
func startMetrics(logger *slog.Logger) (domain.MetricsRecorder, error) {
	if *metricsAddr == "" {
		return core.NewExpvarMetricsRecorder("deident"), nil
	}
	registry := prometheus.NewRegistry()
	recorder, err := core.NewPrometheusMetricsRecorder(registry)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", expvar.Handler())
	go func() {
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	return recorder, nil
}

// loadJob reads the dataset and hierarchy files named by the config.
// References of the form blob://<key> are fetched from the configured blob
// store, anything else is a local path.
func loadJob(ctx context.Context, cfg *config.JobFile) (core.Job, error) {
	rc, err := openInput(ctx, cfg.Dataset)
	if err != nil {
		return core.Job{}, fmt.Errorf("open dataset: %w", err)
	}
	ds, err := dataset.ReadCSV(rc)
	_ = rc.Close()
	if err != nil {
		return core.Job{}, fmt.Errorf("read dataset %s: %w", cfg.Dataset, err)
	}
	hierarchies := make(map[string]*hierarchy.Hierarchy, len(cfg.Hierarchies))
	for attr, path := range cfg.Hierarchies {
		hrc, err := openInput(ctx, path)
		if err != nil {
			return core.Job{}, fmt.Errorf("open hierarchy %s: %w", attr, err)
		}
		h, err := hierarchy.ReadCSV(attr, hrc)
		_ = hrc.Close()
		if err != nil {
			return core.Job{}, fmt.Errorf("read hierarchy %s: %w", attr, err)
		}
		hierarchies[attr] = h
	}
	return core.Job{
		Name:             cfg.Name,
		Dataset:          ds,
		DatasetRef:       cfg.Dataset,
		QuasiIdentifiers: cfg.QuasiIdentifiers,
		Hierarchies:      hierarchies,
		Privacy: domain.PrivacyConfig{
			K:                  cfg.K,
			SuppressionLimit:   cfg.SuppressionLimit,
			CriterionMonotonic: true,
		},
		Metric: cfg.Metric,
	}, nil
}

const blobScheme = "blob://"

func openInput(ctx context.Context, ref string) (io.ReadCloser, error) {
	if key, ok := strings.CutPrefix(ref, blobScheme); ok {
		store, err := blob.Open(ctx)
		if err != nil {
			return nil, err
		}
		_, rc, err := store.Get(ctx, key)
		return rc, err
	}
	return os.Open(ref)
}

// writeRelease emits the released records as CSV to a local file, the blob
// store, or stdout.
func writeRelease(ctx context.Context, out string, release *core.Release) error {
	if key, ok := strings.CutPrefix(out, blobScheme); ok {
		var sb strings.Builder
		if err := encodeRelease(&sb, release); err != nil {
			return err
		}
		store, err := blob.Open(ctx)
		if err != nil {
			return err
		}
		_, err = store.Put(ctx, key, strings.NewReader(sb.String()), blob.PutOptions{ContentType: "text/csv"})
		return err
	}
	if out == "" || out == "-" {
		return encodeRelease(os.Stdout, release)
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := encodeRelease(f, release); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func encodeRelease(w io.Writer, release *core.Release) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(release.Header); err != nil {
		return err
	}
	for _, rec := range release.Records {
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
