package device

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/nicelabs/nice-gpu/internal/linalg"
	"github.com/nicelabs/nice-gpu/internal/metrics"
	"go.uber.org/zap"
)

var (
	// ErrOutOfDeviceMemory is returned when an allocation exceeds the device capacity.
	ErrOutOfDeviceMemory = errors.New("out of device memory")
	// ErrTransferFailure is returned when a host/device copy cannot be performed.
	ErrTransferFailure = errors.New("transfer failure")
	// ErrKernelLaunchFailure is returned when a kernel cannot be launched.
	ErrKernelLaunchFailure = errors.New("kernel launch failure")
)

// Device emulates an accelerator with explicitly managed memory. Buffers are
// allocated and freed per operation; the device tracks live allocations so
// leaks on any control-flow path are detectable. All transfers are synchronous:
// when CopyIn or CopyOut returns, the data is resident on the target side.
//
// A Device is safe for concurrent use. Buffers are never shared between
// operations; each caller owns the buffers it allocates.
type Device struct {
	log      *zap.Logger
	capacity int64 // 0 means unlimited

	mu          sync.Mutex
	liveBytes   int64
	live        map[uint64]int64
	nextID      uint64
	totalAllocs uint64
	totalFrees  uint64
}

// Option configures a Device.
type Option func(*Device)

// WithCapacity limits total live device memory to the given byte count.
func WithCapacity(bytes int64) Option {
	return func(d *Device) { d.capacity = bytes }
}

// New creates a device. With no options the device has unlimited capacity.
func New(log *zap.Logger, opts ...Option) *Device {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Device{
		log:  log,
		live: make(map[uint64]int64),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// LiveAllocations returns the number of buffers currently allocated.
func (d *Device) LiveAllocations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.live)
}

// LiveBytes returns the total bytes currently allocated.
func (d *Device) LiveBytes() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.liveBytes
}

// TotalAllocs returns the number of allocations performed over the device lifetime.
func (d *Device) TotalAllocs() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.totalAllocs
}

// TotalFrees returns the number of frees performed over the device lifetime.
func (d *Device) TotalFrees() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.totalFrees
}

// Buffer is a handle to a contiguous region of device memory holding n
// elements of type T. The operation that allocated it owns it exclusively and
// must call Free exactly once, on every exit path.
type Buffer[T linalg.Float] struct {
	dev   *Device
	id    uint64
	data  []T
	freed bool
}

// Malloc allocates a device buffer for n elements of type T.
func Malloc[T linalg.Float](d *Device, n int) (*Buffer[T], error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative element count %d", ErrTransferFailure, n)
	}
	var zero T
	bytes := int64(n) * int64(unsafe.Sizeof(zero))

	d.mu.Lock()
	if d.capacity > 0 && d.liveBytes+bytes > d.capacity {
		avail := d.capacity - d.liveBytes
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: requested %d bytes, %d available", ErrOutOfDeviceMemory, bytes, avail)
	}
	d.nextID++
	id := d.nextID
	d.live[id] = bytes
	d.liveBytes += bytes
	d.totalAllocs++
	liveBytes := d.liveBytes
	d.mu.Unlock()

	metrics.DeviceAllocatedBytes.Set(float64(liveBytes))
	metrics.DeviceLiveAllocations.Inc()
	d.log.Debug("device malloc",
		zap.Uint64("buffer", id),
		zap.Int64("bytes", bytes),
		zap.Int64("live_bytes", liveBytes))

	return &Buffer[T]{dev: d, id: id, data: make([]T, n)}, nil
}

// Free releases the buffer. It must be called exactly once per allocation;
// calling it again is an error but leaves the accounting intact.
func (b *Buffer[T]) Free() error {
	d := b.dev
	d.mu.Lock()
	if b.freed {
		d.mu.Unlock()
		d.log.Error("double free of device buffer", zap.Uint64("buffer", b.id))
		return fmt.Errorf("%w: buffer %d already freed", ErrTransferFailure, b.id)
	}
	bytes := d.live[b.id]
	delete(d.live, b.id)
	d.liveBytes -= bytes
	d.totalFrees++
	b.freed = true
	liveBytes := d.liveBytes
	d.mu.Unlock()

	b.data = nil
	metrics.DeviceAllocatedBytes.Set(float64(liveBytes))
	metrics.DeviceLiveAllocations.Dec()
	return nil
}

// Len returns the element count of the buffer.
func (b *Buffer[T]) Len() int { return len(b.data) }

// Data exposes the device-resident storage to kernels. Host code must go
// through CopyIn/CopyOut instead.
func (b *Buffer[T]) Data() []T { return b.data }

// CopyIn transfers src from host to device. The transfer is synchronous and
// the lengths must match exactly.
func CopyIn[T linalg.Float](b *Buffer[T], src []T) error {
	if b.freed {
		return fmt.Errorf("%w: copy to freed buffer %d", ErrTransferFailure, b.id)
	}
	if len(src) != len(b.data) {
		return fmt.Errorf("%w: host size %d, device size %d", ErrTransferFailure, len(src), len(b.data))
	}
	copy(b.data, src)
	var zero T
	metrics.DeviceTransferBytes.WithLabelValues("in").Add(float64(len(src)) * float64(unsafe.Sizeof(zero)))
	return nil
}

// CopyOut transfers the buffer contents from device to host. The transfer is
// synchronous; when it returns, dst holds the device data.
func CopyOut[T linalg.Float](dst []T, b *Buffer[T]) error {
	if b.freed {
		return fmt.Errorf("%w: copy from freed buffer %d", ErrTransferFailure, b.id)
	}
	if len(dst) != len(b.data) {
		return fmt.Errorf("%w: host size %d, device size %d", ErrTransferFailure, len(dst), len(b.data))
	}
	copy(dst, b.data)
	var zero T
	metrics.DeviceTransferBytes.WithLabelValues("out").Add(float64(len(dst)) * float64(unsafe.Sizeof(zero)))
	return nil
}
