// Package metrics collects sync engine counters in a VictoriaMetrics set.
package metrics

import (
	"fmt"
	"io"

	vm "github.com/VictoriaMetrics/metrics"
)

// Metrics is safe for concurrent use. A nil *Metrics records nothing.
type Metrics struct {
	set *vm.Set
}

func New() *Metrics {
	return &Metrics{set: vm.NewSet()}
}

// Request counts one transport outcome by envelope or error code.
func (m *Metrics) Request(path, code string) {
	if m == nil {
		return
	}
	m.set.GetOrCreateCounter(fmt.Sprintf(`liusync_requests_total{path=%q,code=%q}`, path, code)).Inc()
}

// UploadFlush records one sync-set call carrying n tasks.
func (m *Metrics) UploadFlush(n int) {
	if m == nil {
		return
	}
	m.set.GetOrCreateCounter(`liusync_upload_flushes_total`).Inc()
	m.set.GetOrCreateHistogram(`liusync_upload_batch_size`).Update(float64(n))
}

// UploadResult counts per-task outcomes: acked, retry, rejected.
func (m *Metrics) UploadResult(outcome string) {
	if m == nil {
		return
	}
	m.set.GetOrCreateCounter(fmt.Sprintf(`liusync_upload_tasks_total{outcome=%q}`, outcome)).Inc()
}

// MergeBatch records one sync-get call carrying n atoms.
func (m *Metrics) MergeBatch(n int) {
	if m == nil {
		return
	}
	m.set.GetOrCreateCounter(`liusync_merge_batches_total`).Inc()
	m.set.GetOrCreateHistogram(`liusync_merge_batch_size`).Update(float64(n))
}

// MergeUnknown counts callers resolved as unknown.
func (m *Metrics) MergeUnknown() {
	if m == nil {
		return
	}
	m.set.GetOrCreateCounter(`liusync_merge_unknown_total`).Inc()
}

// Counter returns the current value of a counter by its full name.
func (m *Metrics) Counter(name string) uint64 {
	if m == nil {
		return 0
	}
	return m.set.GetOrCreateCounter(name).Get()
}

func (m *Metrics) WritePrometheus(w io.Writer) {
	if m == nil {
		return
	}
	m.set.WritePrometheus(w)
}
