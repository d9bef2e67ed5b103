// Package health reports gateway and host vitals for GET {api}/health.
package health

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/salio-edge/gateway/internal/timeutil"
	"github.com/salio-edge/gateway/internal/version"
)

const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
)

// Probes are the host measurements a Checker takes. Tests replace them.
type Probes struct {
	VirtualMemory func(context.Context) (*mem.VirtualMemoryStat, error)
	HostUptime    func(context.Context) (uint64, error)
	LoadAvg       func(context.Context) (*load.AvgStat, error)
	ProcessRSS    func(context.Context) (uint64, error)
}

// DefaultProbes measures the running host through gopsutil.
func DefaultProbes() Probes {
	return Probes{
		VirtualMemory: mem.VirtualMemoryWithContext,
		HostUptime:    host.UptimeWithContext,
		LoadAvg:       load.AvgWithContext,
		ProcessRSS: func(ctx context.Context) (uint64, error) {
			p, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
			if err != nil {
				return 0, err
			}
			info, err := p.MemoryInfoWithContext(ctx)
			if err != nil {
				return 0, err
			}
			return info.RSS, nil
		},
	}
}

type Memory struct {
	TotalBytes     uint64  `json:"totalBytes"`
	AvailableBytes uint64  `json:"availableBytes"`
	UsedPercent    float64 `json:"usedPercent"`
}

type Load struct {
	Load1  float64 `json:"load1"`
	Load5  float64 `json:"load5"`
	Load15 float64 `json:"load15"`
}

// Report is the health response body. Probe failures make the report
// degraded rather than failing the request.
type Report struct {
	Status            string       `json:"status"`
	Version           version.Info `json:"version"`
	UptimeSeconds     float64      `json:"uptimeSeconds"`
	HostUptimeSeconds uint64       `json:"hostUptimeSeconds"`
	Goroutines        int          `json:"goroutines"`
	ProcessRSSBytes   uint64       `json:"processRssBytes"`
	Memory            *Memory      `json:"memory,omitempty"`
	Load              *Load        `json:"load,omitempty"`
	Errors            []string     `json:"errors,omitempty"`
}

// Checker builds health reports.
type Checker struct {
	probes  Probes
	clock   timeutil.Clock
	started time.Time
}

func NewChecker(probes Probes, clock timeutil.Clock) *Checker {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Checker{probes: probes, clock: clock, started: clock.Now()}
}

// Report samples every probe. Unset probes are skipped.
func (c *Checker) Report(ctx context.Context) Report {
	r := Report{
		Status:        StatusOK,
		Version:       version.Current(),
		UptimeSeconds: c.clock.Now().Sub(c.started).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
	}
	fail := func(what string, err error) {
		r.Status = StatusDegraded
		r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", what, err))
	}

	if c.probes.VirtualMemory != nil {
		if vm, err := c.probes.VirtualMemory(ctx); err != nil {
			fail("memory", err)
		} else {
			r.Memory = &Memory{TotalBytes: vm.Total, AvailableBytes: vm.Available, UsedPercent: vm.UsedPercent}
		}
	}
	if c.probes.HostUptime != nil {
		if up, err := c.probes.HostUptime(ctx); err != nil {
			fail("host uptime", err)
		} else {
			r.HostUptimeSeconds = up
		}
	}
	if c.probes.LoadAvg != nil {
		if avg, err := c.probes.LoadAvg(ctx); err != nil {
			fail("load", err)
		} else {
			r.Load = &Load{Load1: avg.Load1, Load5: avg.Load5, Load15: avg.Load15}
		}
	}
	if c.probes.ProcessRSS != nil {
		if rss, err := c.probes.ProcessRSS(ctx); err != nil {
			fail("process", err)
		} else {
			r.ProcessRSSBytes = rss
		}
	}
	return r
}
