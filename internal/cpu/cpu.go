// Package cpu binds worker goroutines to OS threads and, where the
// platform allows it, to individual CPU cores.
package cpu

import "runtime"

// Count returns the number of logical CPUs usable by the process,
// never less than 1.
func Count() int {
	return max(runtime.NumCPU(), 1)
}

// LockThread wires the calling goroutine to its current OS thread.
// The returned function undoes it and must run on the same goroutine.
func LockThread() func() {
	runtime.LockOSThread()
	return runtime.UnlockOSThread
}

// Pin locks the calling goroutine to an OS thread and pins that thread to
// one of the CPUs the process may run on, chosen by workerID modulo their
// count. On failure the thread is unlocked
// again before returning.
//
// The returned release keeps the thread locked: when the goroutine exits
// the runtime terminates the pinned thread instead of reusing it.
func Pin(workerID int) (release func(), err error) {
	unlock := LockThread()
	if err := pinWorker(workerID); err != nil {
		unlock()
		return nil, err
	}
	return func() {}, nil
}
