package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Device Memory Metrics
	DeviceAllocatedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "device_allocated_bytes",
		Help: "Device memory currently allocated in bytes",
	})

	DeviceLiveAllocations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "device_live_allocations",
		Help: "Number of device buffers currently allocated",
	})

	DeviceTransferBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "device_transfer_bytes_total",
		Help: "Total bytes transferred between host and device",
	}, []string{"direction"})

	// Kernel Metrics
	KernelLaunches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kernel_launches_total",
		Help: "Total number of kernel launches by backend",
	}, []string{"backend"})

	// Matrix-Vector Multiply Metrics
	MultiplyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "multiply_duration_ms",
		Help:    "Duration of matrix-vector multiplication in milliseconds",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 16), // 0.1ms to ~3s
	})

	MultiplyGFLOPS = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "multiply_gflops",
		Help: "Performance of the last matrix-vector multiplication in GFLOPS",
	})

	MultiplyErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "multiply_errors_total",
		Help: "Total number of failed multiplications by reason",
	}, []string{"reason"})
)
