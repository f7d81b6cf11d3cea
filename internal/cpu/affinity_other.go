//go:build !linux

package cpu

// pinWorker is a no-op where thread affinity is not available; the
// goroutine is still locked to its OS thread.
func pinWorker(int) error {
	return nil
}
