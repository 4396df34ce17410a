package main

import (
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/nicelabs/nice-gpu/internal/config"
	"github.com/nicelabs/nice-gpu/internal/device"
	"github.com/nicelabs/nice-gpu/internal/gpu"
	"github.com/nicelabs/nice-gpu/internal/linalg"
	"github.com/nicelabs/nice-gpu/internal/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

func main() {
	app := &cli.App{
		Name:  "nicegpu",
		Usage: "Verify and benchmark the matrix-vector multiply backends",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config.yaml",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "verify",
				Usage:  "cross-check all backends against the CPU reference",
				Action: runVerify,
			},
			{
				Name:   "bench",
				Usage:  "measure backend throughput",
				Action: runBench,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) (*config.Config, *zap.Logger, *device.Device, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		cfg, err = config.LoadConfig(path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	zapLogger, err := logger.New(cfg.Logger.Verbosity)
	if err != nil {
		return nil, nil, nil, err
	}
	log := zapLogger.Named("nicegpu")

	var opts []device.Option
	if cfg.Compute.DeviceMemoryBytes > 0 {
		opts = append(opts, device.WithCapacity(cfg.Compute.DeviceMemoryBytes))
	}
	dev := device.New(log, opts...)

	if addr := cfg.Metrics.ListenAddress; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			log.Info("serving metrics", zap.String("address", addr))
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	return cfg, log, dev, nil
}

func backends(cfg *config.Config, dev *device.Device, log *zap.Logger) ([]gpu.Backend[float32], error) {
	tiled, err := gpu.NewTiledBackend[float32](dev, cfg.Compute.TileWidth, log)
	if err != nil {
		return nil, err
	}
	return []gpu.Backend[float32]{
		gpu.NewNaiveBackend[float32](dev, log),
		tiled,
		gpu.NewBlasBackend[float32](dev, log),
	}, nil
}

func runVerify(c *cli.Context) error {
	cfg, log, dev, err := setup(c)
	if err != nil {
		return err
	}

	all, err := backends(cfg, dev, log)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	scenarios := []struct {
		name string
		a    *linalg.Dense[float32]
		x    *linalg.Vector[float32]
	}{
		{"ones_16x16", linalg.Ones[float32](16, 16), linalg.OnesVector[float32](16)},
		{"random_1000x1000", linalg.RandomDense[float32](rng, 1000, 1000), linalg.RandomVector[float32](rng, 1000)},
		{"random_4096x1000", linalg.RandomDense[float32](rng, 4096, 1000), linalg.RandomVector[float32](rng, 1000)},
	}

	failed := false
	for _, sc := range scenarios {
		want, err := linalg.MulVec(sc.a, sc.x)
		if err != nil {
			return err
		}
		// Second opinion on the oracle itself.
		ref := gonumReference(sc.a, sc.x)

		for _, backend := range all {
			mgr, err := gpu.NewManager(backend, log)
			if err != nil {
				return err
			}
			got, err := mgr.MulVec(sc.a, sc.x)
			if err != nil {
				return err
			}
			maxErr := maxAbsDiff(got.Data(), want.Data())
			refErr := maxAbsDiffF64(gpu.Float32ToFloat64(got.Data()), ref)
			ok := maxErr < 1e-3 && refErr < 1e-3
			status := "PASS"
			if !ok {
				status = "FAIL"
				failed = true
			}
			fmt.Printf("%-6s %-8s %-18s max_err=%.2e gonum_err=%.2e leaks=%d\n",
				status, backend.Name(), sc.name, maxErr, refErr, dev.LiveAllocations())
		}
	}
	if failed {
		return fmt.Errorf("backend verification failed")
	}
	if live := dev.LiveAllocations(); live != 0 {
		return fmt.Errorf("%d device buffers leaked", live)
	}
	fmt.Println("all backends agree")
	return nil
}

func runBench(c *cli.Context) error {
	cfg, log, dev, err := setup(c)
	if err != nil {
		return err
	}

	all, err := backends(cfg, dev, log)
	if err != nil {
		return err
	}

	m, k := cfg.Bench.Rows, cfg.Bench.Cols
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	a := linalg.RandomDense[float32](rng, m, k)
	x := linalg.RandomVector[float32](rng, k)
	flops := 2 * float64(m) * float64(k)

	for _, backend := range all {
		mgr, err := gpu.NewManager(backend, log)
		if err != nil {
			return err
		}
		// Warm up
		if _, err := mgr.MulVec(a, x); err != nil {
			return err
		}

		const iters = 10
		start := time.Now()
		for i := 0; i < iters; i++ {
			if _, err := mgr.MulVec(a, x); err != nil {
				return err
			}
		}
		elapsed := time.Since(start)
		gflops := flops * iters / elapsed.Seconds() / 1e9
		fmt.Printf("%-8s %dx%d  %8.3fms/op  %7.3f GFLOPS\n",
			backend.Name(), m, k, elapsed.Seconds()*1000/iters, gflops)
	}
	return nil
}

// gonumReference computes A*x in float64 with gonum's dense types.
func gonumReference(a *linalg.Dense[float32], x *linalg.Vector[float32]) []float64 {
	m, k := a.Rows(), a.Cols()
	ad := make([]float64, m*k)
	for i := 0; i < m; i++ {
		for j := 0; j < k; j++ {
			ad[i*k+j] = float64(a.At(i, j))
		}
	}
	am := mat.NewDense(m, k, ad)
	xv := mat.NewVecDense(k, gpu.Float32ToFloat64(x.Data()))
	var y mat.VecDense
	y.MulVec(am, xv)
	out := make([]float64, m)
	for i := 0; i < m; i++ {
		out[i] = y.AtVec(i)
	}
	return out
}

func maxAbsDiff(a, b []float32) float64 {
	var max float64
	for i := range a {
		d := float64(a[i] - b[i])
		if d < 0 {
			d = -d
		}
		if d > max {
			max = d
		}
	}
	return max
}

func maxAbsDiffF64(a, b []float64) float64 {
	var max float64
	for i := range a {
		d := a[i] - b[i]
		if d < 0 {
			d = -d
		}
		if d > max {
			max = d
		}
	}
	return max
}
