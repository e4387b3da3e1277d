package sandbox

import (
	"errors"
	"fmt"
	"time"
)

// Limits bounds one plugin execution. All three ceilings are mandatory:
// an unbounded sandbox is a configuration error, not a permissive default.
type Limits struct {
	MaxMemoryBytes      int64   `yaml:"max_memory_bytes"`
	MaxCPUSeconds       float64 `yaml:"max_cpu_seconds"`
	MaxWallClockSeconds float64 `yaml:"max_wall_clock_seconds"`
}

// DefaultLimits returns the host's stock per-call budget.
func DefaultLimits() Limits {
	return Limits{
		MaxMemoryBytes:      256 << 20,
		MaxCPUSeconds:       10,
		MaxWallClockSeconds: 30,
	}
}

func (l Limits) WallClock() time.Duration {
	return time.Duration(l.MaxWallClockSeconds * float64(time.Second))
}

func (l Limits) CPUBudget() time.Duration {
	return time.Duration(l.MaxCPUSeconds * float64(time.Second))
}

func (l Limits) Validate() error {
	var errs []error
	if l.MaxMemoryBytes <= 0 {
		errs = append(errs, fmt.Errorf("max_memory_bytes must be positive, got %d", l.MaxMemoryBytes))
	}
	if l.MaxCPUSeconds <= 0 {
		errs = append(errs, fmt.Errorf("max_cpu_seconds must be positive, got %g", l.MaxCPUSeconds))
	}
	if l.MaxWallClockSeconds <= 0 {
		errs = append(errs, fmt.Errorf("max_wall_clock_seconds must be positive, got %g", l.MaxWallClockSeconds))
	}
	return errors.Join(errs...)
}
