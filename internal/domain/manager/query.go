package manager

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
	"github.com/GriffinCanCode/gazeflow/internal/shared/codec"
)

// waiter is a pending AwaitStatus call.
type waiter struct {
	stream string
	path   string
	want   gjson.Result
	done   chan struct{}

	// matched is the status that released the waiter.
	matched packet.Status
}

// Lookup resolves a dotted path such as "pupil.confidence" in a status.
func Lookup(st packet.Status, path string) (gjson.Result, error) {
	data, err := codec.Marshal(st)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("encode status: %w", err)
	}
	return gjson.GetBytes(data, path), nil
}

func matches(got, want gjson.Result) bool {
	if !got.Exists() || got.Type != want.Type {
		return false
	}
	switch got.Type {
	case gjson.Number:
		return got.Float() == want.Float()
	case gjson.JSON:
		return got.Raw == want.Raw
	default:
		return got.String() == want.String()
	}
}

// Value resolves a dotted path in a stream's cached status.
func (m *Manager) Value(stream, path string) (gjson.Result, error) {
	st, ok := m.StatusOf(stream)
	if !ok {
		return gjson.Result{}, fmt.Errorf("%w: %s", ErrUnknownStream, stream)
	}
	return Lookup(st, path)
}

// AwaitStatus blocks until the stream publishes a status whose value at
// path equals value, or ctx ends. The cached status is checked first; after
// that every drained status is checked, so values that appear for a single
// cycle are not missed. Update must be running for this to return.
func (m *Manager) AwaitStatus(ctx context.Context, stream, path string, value any) error {
	_, err := m.WaitForStatus(ctx, stream, path, value)
	return err
}

// WaitForStatus is AwaitStatus returning the matching status itself, which
// also holds the fields broadcast in the same cycle.
func (m *Manager) WaitForStatus(ctx context.Context, stream, path string, value any) (packet.Status, error) {
	if _, ok := m.streams[stream]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStream, stream)
	}
	raw, err := codec.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode expected value: %w", err)
	}
	w := &waiter{stream: stream, path: path, want: gjson.ParseBytes(raw), done: make(chan struct{})}

	m.waitMu.Lock()
	m.waiters = append(m.waiters, w)
	m.waitMu.Unlock()
	defer m.removeWaiter(w)

	if st, ok := m.StatusOf(stream); ok {
		if got, err := Lookup(st, path); err == nil && matches(got, w.want) {
			return st, nil
		}
	}

	select {
	case <-w.done:
		return w.matched, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("await %s %s=%s: %w", stream, path, raw, ctx.Err())
	}
}

func (m *Manager) removeWaiter(w *waiter) {
	m.waitMu.Lock()
	defer m.waitMu.Unlock()
	for i, o := range m.waiters {
		if o == w {
			m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
			return
		}
	}
}

// checkWaiters releases the waiters satisfied by a fresh status.
func (m *Manager) checkWaiters(stream string, st packet.Status) {
	m.waitMu.Lock()
	defer m.waitMu.Unlock()

	pending := false
	for _, w := range m.waiters {
		pending = pending || w.stream == stream
	}
	if !pending {
		return
	}
	data, err := codec.Marshal(st)
	if err != nil {
		m.logger.Warn("Failed to encode status", zap.String("stream", stream), zap.Error(err))
		return
	}

	kept := m.waiters[:0]
	for _, w := range m.waiters {
		if w.stream == stream && matches(gjson.GetBytes(data, w.path), w.want) {
			w.matched = st.Copy()
			close(w.done)
			continue
		}
		kept = append(kept, w)
	}
	m.waiters = kept
}

// FormatStatus renders one value from every stream's status, e.g.
// "eye0: 0.98, world: no data" for "pupil.confidence".
func (m *Manager) FormatStatus(path string) string {
	parts := make([]string, 0, len(m.order))
	for _, name := range m.order {
		got, err := m.Value(name, path)
		parts = append(parts, name+": "+formatValue(got, err))
	}
	return strings.Join(parts, ", ")
}

func formatValue(v gjson.Result, err error) string {
	switch {
	case err != nil || !v.Exists() || v.Type == gjson.Null:
		return "no data"
	case v.Type == gjson.Number:
		return fmt.Sprintf("%.2f", v.Float())
	default:
		return v.String()
	}
}
