package diagnostics

import (
	"context"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostMetrics holds a point-in-time view of host resources. Fields that
// could not be read are left zero.
type HostMetrics struct {
	OS         string  `json:"os" yaml:"os"`
	CPUModel   string  `json:"cpu_model,omitempty" yaml:"cpu_model,omitempty"`
	CPUCores   int     `json:"cpu_cores" yaml:"cpu_cores"`
	CPUThreads int     `json:"cpu_threads" yaml:"cpu_threads"`
	CPUPercent float64 `json:"cpu_percent" yaml:"cpu_percent"`

	MemTotalMB     float64 `json:"mem_total_mb" yaml:"mem_total_mb"`
	MemAvailableMB float64 `json:"mem_available_mb" yaml:"mem_available_mb"`
	MemPercent     float64 `json:"mem_percent" yaml:"mem_percent"`

	DiskPath    string  `json:"disk_path" yaml:"disk_path"`
	DiskFreeGB  float64 `json:"disk_free_gb" yaml:"disk_free_gb"`
	DiskPercent float64 `json:"disk_percent" yaml:"disk_percent"`
	LoadAvg1    float64 `json:"load_avg_1" yaml:"load_avg_1"`
	LoadAvg5    float64 `json:"load_avg_5" yaml:"load_avg_5"`
	LoadAvg15   float64 `json:"load_avg_15" yaml:"load_avg_15"`
	LoadPerCPU  float64 `json:"load_per_cpu" yaml:"load_per_cpu"`
}

// HostCollector reads host metrics. CPU usage is the delta between two
// consecutive Collect calls, so the first call reports 0.
type HostCollector struct {
	mu           sync.Mutex
	diskPath     string
	lastCPUTotal float64
	lastCPUIdle  float64

	infoCollected bool
	cpuModel      string
	cpuCores      int
	cpuThreads    int
}

// NewHostCollector creates a collector that reports disk usage for
// diskPath, typically the heap dump directory. Empty means the root volume.
func NewHostCollector(diskPath string) *HostCollector {
	if diskPath == "" {
		diskPath = rootDiskPath()
	}
	return &HostCollector{diskPath: diskPath}
}

// Collect gathers current host statistics.
func (c *HostCollector) Collect(ctx context.Context) HostMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := HostMetrics{OS: runtime.GOOS + "/" + runtime.GOARCH, DiskPath: c.diskPath}
	c.collectHardwareInfo(ctx, &m)
	collectMemory(ctx, &m)
	c.collectCPU(ctx, &m)
	c.collectDisk(ctx, &m)
	collectLoad(ctx, &m)
	return m
}

func (c *HostCollector) collectHardwareInfo(ctx context.Context, m *HostMetrics) {
	if !c.infoCollected {
		if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 {
			c.cpuModel = strings.TrimSpace(infos[0].ModelName)
		}
		if cores, err := cpu.CountsWithContext(ctx, false); err == nil && cores > 0 {
			c.cpuCores = cores
		}
		if threads, err := cpu.CountsWithContext(ctx, true); err == nil && threads > 0 {
			c.cpuThreads = threads
		}
		c.infoCollected = true
	}
	m.CPUModel = c.cpuModel
	m.CPUCores = c.cpuCores
	m.CPUThreads = c.cpuThreads
}

func collectMemory(ctx context.Context, m *HostMetrics) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return
	}
	m.MemTotalMB = float64(vm.Total) / 1024 / 1024
	m.MemAvailableMB = float64(vm.Available) / 1024 / 1024
	m.MemPercent = vm.UsedPercent
}

func (c *HostCollector) collectCPU(ctx context.Context, m *HostMetrics) {
	times, err := cpu.TimesWithContext(ctx, false)
	if err != nil || len(times) == 0 {
		return
	}
	t := times[0]
	total := t.User + t.Nice + t.System + t.Idle + t.Iowait + t.Irq + t.Softirq + t.Steal
	idle := t.Idle + t.Iowait

	if c.lastCPUTotal > 0 {
		if delta := total - c.lastCPUTotal; delta > 0 {
			m.CPUPercent = (1 - (idle-c.lastCPUIdle)/delta) * 100
		}
	}
	c.lastCPUTotal = total
	c.lastCPUIdle = idle
}

func (c *HostCollector) collectDisk(ctx context.Context, m *HostMetrics) {
	usage, err := disk.UsageWithContext(ctx, c.diskPath)
	if err != nil {
		return
	}
	m.DiskFreeGB = float64(usage.Free) / 1024 / 1024 / 1024
	m.DiskPercent = usage.UsedPercent
}

func collectLoad(ctx context.Context, m *HostMetrics) {
	avg, err := load.AvgWithContext(ctx)
	if err != nil {
		return
	}
	m.LoadAvg1 = avg.Load1
	m.LoadAvg5 = avg.Load5
	m.LoadAvg15 = avg.Load15
	if m.CPUThreads > 0 {
		m.LoadPerCPU = avg.Load1 / float64(m.CPUThreads)
	}
}

func rootDiskPath() string {
	if runtime.GOOS == "windows" {
		drive := os.Getenv("SystemDrive")
		if drive == "" {
			drive = "C:"
		}
		return drive + "\\"
	}
	return "/"
}
