// Package metrics defines the minimal metrics surface the transfer core
// emits to. Core code depends only on Backend; concrete backends (Datadog)
// live in subpackages so their SDKs never leak into the core.
package metrics

// Backend receives counters from the transfer core.
//
// Implementations must be safe for concurrent use: transfers from multiple
// callers may report at any time.
type Backend interface {
	// IncCounter adds delta to the named counter, segmented by tags
	// ("direction:store_to_file", ...).
	IncCounter(name string, delta float64, tags ...string)

	// Flush submits whatever is buffered.
	Flush() error

	// Close flushes one final time and releases resources. Call once.
	Close() error
}

// Nop returns a backend that drops everything, the default when no metrics
// destination is configured.
func Nop() Backend { return nopBackend{} }

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, ...string) {}
func (nopBackend) Flush() error                          { return nil }
func (nopBackend) Close() error                          { return nil }
