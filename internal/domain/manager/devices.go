package manager

import (
	"context"
	"sync"

	"github.com/GriffinCanCode/gazeflow/internal/domain/device"
	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
)

// sharedDevice counts the streams currently holding a device. The device is
// started by the first holder and stopped by the last.
type sharedDevice struct {
	inner device.Device

	mu   sync.Mutex
	refs int
}

func (s *sharedDevice) acquire(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs == 0 && !s.inner.IsStarted() {
		if err := s.inner.Start(ctx); err != nil {
			return err
		}
	}
	s.refs++
	return nil
}

func (s *sharedDevice) release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs == 0 {
		return nil
	}
	s.refs--
	if s.refs == 0 && s.inner.IsStarted() {
		return s.inner.Stop()
	}
	return nil
}

// view is one stream's handle on a shared device. Start and Stop only
// affect this holder.
type view struct {
	shared *sharedDevice

	mu      sync.Mutex
	started bool
}

var _ device.Device = (*view)(nil)

func (v *view) UID() string               { return v.shared.inner.UID() }
func (v *view) Kind() device.Kind         { return v.shared.inner.Kind() }
func (v *view) Timebase() packet.Timebase { return v.shared.inner.Timebase() }

// Unwrap returns the underlying device.
func (v *view) Unwrap() device.Device { return v.shared.inner }

func (v *view) Start(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.started {
		return nil
	}
	if err := v.shared.acquire(ctx); err != nil {
		return err
	}
	v.started = true
	return nil
}

func (v *view) Stop() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.started {
		return nil
	}
	v.started = false
	return v.shared.release()
}

func (v *view) IsStarted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.started
}

func (v *view) Read(ctx context.Context, mode device.Mode) (device.Reading, error) {
	return v.shared.inner.Read(ctx, mode)
}

type resettableView struct {
	*view
	resetter device.Resetter
}

func (v resettableView) Reset() error { return v.resetter.Reset() }

// shareDevice returns n handles on d. A single holder gets d itself.
func shareDevice(d device.Device, n int) []device.Device {
	if n <= 1 {
		return []device.Device{d}
	}
	shared := &sharedDevice{inner: d}
	out := make([]device.Device, n)
	for i := range out {
		v := &view{shared: shared}
		if r, ok := d.(device.Resetter); ok {
			out[i] = resettableView{view: v, resetter: r}
		} else {
			out[i] = v
		}
	}
	return out
}
