package diagnostics

import (
	"context"
	"errors"
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"
)

// ResourcePreflight refuses local spawns when the host is short of memory.
// It satisfies the local executor's Preflight interface.
type ResourcePreflight struct {
	minFreeMemoryMB int
	// virtualMemory is replaced in tests.
	virtualMemory func(context.Context) (*mem.VirtualMemoryStat, error)
}

// NewResourcePreflight creates a preflight requiring minFreeMemoryMB of
// available memory. Zero disables the check.
func NewResourcePreflight(minFreeMemoryMB int) *ResourcePreflight {
	return &ResourcePreflight{
		minFreeMemoryMB: minFreeMemoryMB,
		virtualMemory:   mem.VirtualMemoryWithContext,
	}
}

// ErrInsufficientMemory is wrapped by Check when available memory is below
// the configured minimum.
var ErrInsufficientMemory = errors.New("insufficient free memory")

// Check returns an error when a spawn should not proceed. A host whose
// memory cannot be read is not blocked.
func (p *ResourcePreflight) Check() error {
	if p == nil || p.minFreeMemoryMB <= 0 {
		return nil
	}
	vm, err := p.virtualMemory(context.Background())
	if err != nil {
		return nil
	}
	freeMB := vm.Available / 1024 / 1024
	if freeMB < uint64(p.minFreeMemoryMB) {
		return fmt.Errorf("%w: %d MB available (minimum: %d MB)", ErrInsufficientMemory, freeMB, p.minFreeMemoryMB)
	}
	return nil
}
