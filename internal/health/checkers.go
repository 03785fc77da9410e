// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"fmt"

	"github.com/ManuGH/mudcore/internal/task/memwatch"
)

// FuncChecker adapts a check function. A failing check reports onFail.
type FuncChecker struct {
	name   string
	fn     func(ctx context.Context) error
	onFail Status
}

// NewFuncChecker creates a checker around fn, e.g. a store or redis ping.
func NewFuncChecker(name string, onFail Status, fn func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, fn: fn, onFail: onFail}
}

func (c *FuncChecker) Name() string { return c.name }

func (c *FuncChecker) Check(ctx context.Context) CheckResult {
	if c.fn == nil {
		return CheckResult{Status: StatusHealthy, Message: "not configured (optional)"}
	}
	if err := c.fn(ctx); err != nil {
		return CheckResult{Status: c.onFail, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// TaskLedger is the part of the task registry the registry checker reads.
type TaskLedger interface {
	Len() int
	ShuttingDown() bool
}

// RegistryChecker reports unhealthy while the registry refuses new units.
type RegistryChecker struct {
	reg TaskLedger
}

func NewRegistryChecker(reg TaskLedger) *RegistryChecker { return &RegistryChecker{reg: reg} }

func (c *RegistryChecker) Name() string { return "task_registry" }

func (c *RegistryChecker) Check(context.Context) CheckResult {
	if c.reg.ShuttingDown() {
		return CheckResult{Status: StatusUnhealthy, Message: "shutdown in progress"}
	}
	return CheckResult{Status: StatusHealthy, Message: fmt.Sprintf("%d live units", c.reg.Len())}
}

// MemorySampler is the part of the memory monitor the memory checker reads.
type MemorySampler interface {
	Sample() memwatch.Sample
}

// MemoryChecker reports degraded while a cleanup threshold is exceeded.
type MemoryChecker struct {
	mon MemorySampler
}

func NewMemoryChecker(mon MemorySampler) *MemoryChecker { return &MemoryChecker{mon: mon} }

func (c *MemoryChecker) Name() string { return "memory" }

func (c *MemoryChecker) Check(context.Context) CheckResult {
	s := c.mon.Sample()
	msg := fmt.Sprintf("%d bytes (%s), %d tasks", s.MemoryBytes, s.Source, s.ActiveTasks)
	if s.Exceeded {
		return CheckResult{Status: StatusDegraded, Message: "threshold exceeded: " + msg}
	}
	return CheckResult{Status: StatusHealthy, Message: msg}
}

// LoopChecker reports unhealthy when a background loop is not running.
type LoopChecker struct {
	name    string
	running func() bool
}

func NewLoopChecker(name string, running func() bool) *LoopChecker {
	return &LoopChecker{name: name, running: running}
}

func (c *LoopChecker) Name() string { return c.name }

func (c *LoopChecker) Check(context.Context) CheckResult {
	if !c.running() {
		return CheckResult{Status: StatusUnhealthy, Message: "not running"}
	}
	return CheckResult{Status: StatusHealthy}
}
