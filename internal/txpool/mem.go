package txpool

import "github.com/shirou/gopsutil/mem"

// SystemFreeMemory reports available system memory in bytes, the production FreeMemoryFn
// backing the 4x promotion gate in spec.md §4.B.
func SystemFreeMemory() (uint64, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return v.Available, nil
}
