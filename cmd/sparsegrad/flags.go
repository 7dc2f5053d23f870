package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v3"

	"github.com/born-ml/sparsegrad/adagrad"
	"github.com/born-ml/sparsegrad/internal/backend/webgpu"
	"github.com/born-ml/sparsegrad/internal/logger"
	"github.com/born-ml/sparsegrad/internal/metrics"
	"github.com/born-ml/sparsegrad/internal/parallel"
)

var (
	configPath  string
	logLevel    string
	logFormat   string
	metricsAddr string

	fileConfig Config
	collector  *metrics.Collector
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to YAML config file; flags override its values",
			Destination: &configPath,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (text, json)",
			Value:       "text",
			Destination: &logFormat,
		},
		&cli.StringFlag{
			Name:        "metrics-addr",
			Usage:       "serve Prometheus metrics on this address (e.g. :9090)",
			Destination: &metricsAddr,
		},
	}
}

// setup loads the config file, installs the logger in ctx and starts the
// metrics endpoint.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return ctx, err
	}
	fileConfig = cfg
	applyGlobalConfig(cmd.IsSet, cfg)

	var log logger.Logger
	switch strings.ToLower(logFormat) {
	case "json":
		log = logger.JSON(os.Stderr, logger.ParseLevel(logLevel))
	case "text", "":
		log = logger.Text(os.Stderr, logger.ParseLevel(logLevel))
	default:
		return ctx, cli.Exit(fmt.Sprintf("unknown log format %q", logFormat), 2)
	}

	if metricsAddr != "" {
		if err := serveMetrics(ctx, log, metricsAddr); err != nil {
			return ctx, err
		}
	}
	return logger.WithContext(ctx, log), nil
}

func serveMetrics(ctx context.Context, log logger.Logger, addr string) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	c, err := metrics.New(reg)
	if err != nil {
		return err
	}
	collector = c

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	log.Info("serving metrics", "addr", ln.Addr().String())
	return nil
}

// optimizerOptions are the flags shared by train and verify.
type optimizerOptions struct {
	dtype        string
	epsilon      float64
	weightDecay  float64
	rowwise      bool
	weighted     bool
	strictUnique bool
	backend      string
	workers      int64
}

func optimizerFlags(o *optimizerOptions) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "dtype",
			Usage:       "table storage type (f32, f16)",
			Value:       "f32",
			Destination: &o.dtype,
		},
		&cli.Float64Flag{
			Name:        "epsilon",
			Aliases:     []string{"eps"},
			Usage:       "Adagrad epsilon",
			Value:       1e-5,
			Destination: &o.epsilon,
		},
		&cli.Float64Flag{
			Name:        "weight-decay",
			Aliases:     []string{"wd"},
			Usage:       "L2 weight decay folded into the gradient",
			Destination: &o.weightDecay,
		},
		&cli.BoolFlag{
			Name:        "rowwise",
			Usage:       "keep one accumulator scalar per row",
			Destination: &o.rowwise,
		},
		&cli.BoolFlag{
			Name:        "weighted",
			Usage:       "use per-member weights and report weight gradients",
			Destination: &o.weighted,
		},
		&cli.BoolFlag{
			Name:        "strict-unique",
			Usage:       "reject batches that reference a row more than once",
			Destination: &o.strictUnique,
		},
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "execution backend (cpu, webgpu)",
			Value:       "cpu",
			Destination: &o.backend,
		},
		&cli.Int64Flag{
			Name:        "workers",
			Usage:       "worker goroutines (0 = number of CPUs)",
			Destination: &o.workers,
		},
	}
}

// config converts the flags to an operator Config. The returned release
// function frees the device, if any.
func (o *optimizerOptions) config(log logger.Logger) (adagrad.Config, func(), error) {
	// A zero epsilon would silently become the default in the operator.
	if !(o.epsilon > 0) {
		return adagrad.Config{}, nil, fmt.Errorf("--epsilon %g must be positive: %w", o.epsilon, adagrad.ErrInvalidHyperparameter)
	}
	cfg := adagrad.Config{
		Epsilon:      float32(o.epsilon),
		WeightDecay:  float32(o.weightDecay),
		Rowwise:      o.rowwise,
		StrictUnique: o.strictUnique,
		Logger:       log,
		Metrics:      collector,
	}
	if o.workers > 0 {
		cfg.Parallel = parallel.Config{
			Enabled:      o.workers > 1,
			NumWorkers:   int(o.workers),
			MinChunkSize: parallel.DefaultConfig().MinChunkSize,
		}
	} else {
		cfg.Parallel = parallel.DefaultConfig()
		cfg.Parallel.NumWorkers = runtime.GOMAXPROCS(0)
	}

	switch strings.ToLower(o.backend) {
	case "cpu", "":
		return cfg, func() {}, nil
	case "webgpu":
		dev, err := webgpu.New()
		if err != nil {
			return cfg, nil, err
		}
		log.Info("using webgpu", "adapter", dev.Name())
		cfg.Backend = adagrad.BackendWebGPU
		cfg.Accelerator = dev
		return cfg, dev.Release, nil
	default:
		return cfg, nil, cli.Exit(fmt.Sprintf("unknown backend %q", o.backend), 2)
	}
}
