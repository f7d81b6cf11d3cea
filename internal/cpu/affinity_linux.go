//go:build linux

package cpu

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// pinWorker pins the current OS thread to the slot-th CPU, modulo the
// number of CPUs, in the thread's allowed set. Under taskset or a cpuset
// the allowed CPUs need not start at 0.
// Must be called after runtime.LockOSThread().
func pinWorker(slot int) error {
	var allowed unix.CPUSet
	// 0 = current thread
	if err := unix.SchedGetaffinity(0, &allowed); err != nil {
		return fmt.Errorf("reading CPU affinity: %w", err)
	}

	cpuID, ok := allowedCPU(&allowed, slot)
	if !ok {
		return errors.New("no CPU in the affinity mask")
	}

	var mask unix.CPUSet
	mask.Zero()
	mask.Set(cpuID)
	if err := unix.SchedSetaffinity(0, &mask); err != nil {
		return fmt.Errorf("pinning to CPU %d: %w", cpuID, err)
	}
	return nil
}

// allowedCPU returns the CPU number of the (slot mod count)-th CPU set in
// allowed.
func allowedCPU(allowed *unix.CPUSet, slot int) (int, bool) {
	n := allowed.Count()
	if n == 0 {
		return 0, false
	}
	want := slot % n
	if want < 0 {
		want += n
	}
	for cpuID, seen := 0, 0; cpuID < len(allowed)*64; cpuID++ {
		if !allowed.IsSet(cpuID) {
			continue
		}
		if seen == want {
			return cpuID, true
		}
		seen++
	}
	return 0, false
}
