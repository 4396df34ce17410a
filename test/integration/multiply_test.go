//go:build integration
// +build integration

package integration

import (
	"testing"

	"github.com/nicelabs/nice-gpu/internal/config"
	"github.com/nicelabs/nice-gpu/internal/device"
	"github.com/nicelabs/nice-gpu/internal/gpu"
	"github.com/nicelabs/nice-gpu/internal/linalg"
	"github.com/nicelabs/nice-gpu/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func TestMultiply_EndToEnd(t *testing.T) {
	var mgr *gpu.Manager[float32]
	var dev *device.Device

	app := fxtest.New(t,
		fx.Provide(
			func() *config.Config {
				cfg := config.Default()
				cfg.Logger.Verbosity = "debug"
				cfg.Compute.Backend = "tiled"
				cfg.Compute.TileWidth = 32
				return cfg
			},
			func(cfg *config.Config) (*zap.Logger, error) {
				return logger.New(cfg.Logger.Verbosity)
			},
			func(log *zap.Logger) *device.Device {
				return device.New(log)
			},
			func(cfg *config.Config, d *device.Device, log *zap.Logger) (*gpu.Manager[float32], error) {
				return gpu.NewManagerFromConfig[float32](cfg, d, log)
			},
		),
		fx.Populate(&mgr, &dev),
	)

	app.RequireStart()
	defer app.RequireStop()

	a := linalg.Ones[float32](16, 16)
	x := linalg.OnesVector[float32](16)

	y, err := mgr.MulVec(a, x)
	require.NoError(t, err)
	require.Equal(t, 16, y.Len())
	for i := 0; i < 16; i++ {
		assert.InDelta(t, float32(16), y.At(i), 0.01)
	}

	// Contract violations surface as errors, not process aborts.
	bad := linalg.OnesVector[float32](15)
	_, err = mgr.MulVec(a, bad)
	assert.ErrorIs(t, err, gpu.ErrShapeMismatch)

	assert.Equal(t, 0, dev.LiveAllocations())
}
