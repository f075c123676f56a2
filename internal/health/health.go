package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dairy-billing/internal/cache"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// MinFreeBytes is the free space below which the data volume is reported unhealthy.
const MinFreeBytes = 50 << 20

type HealthChecker struct {
	dataDir      string
	minFreeBytes uint64
	diskUsage    func(path string) (*disk.UsageStat, error)
}

type HealthStatus struct {
	Status  string        `json:"status"`
	DataDir DataDirHealth `json:"data_dir"`
	Disk    DiskHealth    `json:"disk"`
	Cache   CacheHealth   `json:"cache"`
	Memory  *MemoryHealth `json:"memory,omitempty"`
}

type DataDirHealth struct {
	Status       string `json:"status"`
	Path         string `json:"path"`
	Error        string `json:"error,omitempty"`
	ResponseTime int64  `json:"response_time_ms"`
}

type DiskHealth struct {
	Status      string  `json:"status"`
	UsedPercent float64 `json:"used_percent"`
	Free        string  `json:"free"`
	Total       string  `json:"total"`
}

// CacheHealth never makes the service unhealthy; the cache is optional.
type CacheHealth struct {
	Status string `json:"status"`
}

type MemoryHealth struct {
	UsedPercent float64 `json:"used_percent"`
	Used        string  `json:"used"`
	Total       string  `json:"total"`
}

func NewHealthChecker(dataDir string) *HealthChecker {
	return &HealthChecker{dataDir: dataDir, minFreeBytes: MinFreeBytes, diskUsage: disk.Usage}
}

func (h *HealthChecker) CheckBasic(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:  "healthy",
		DataDir: h.checkDataDir(),
		Disk:    h.checkDisk(),
		Cache:   checkCache(ctx),
	}
	if status.DataDir.Status != "healthy" || status.Disk.Status != "healthy" {
		status.Status = "unhealthy"
	}
	return status
}

// CheckDetailed adds host memory figures.
func (h *HealthChecker) CheckDetailed(ctx context.Context) HealthStatus {
	status := h.CheckBasic(ctx)
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		status.Memory = &MemoryHealth{
			UsedPercent: vm.UsedPercent,
			Used:        formatBytes(vm.Used),
			Total:       formatBytes(vm.Total),
		}
	}
	return status
}

func (h *HealthChecker) checkDataDir() DataDirHealth {
	start := time.Now()
	res := DataDirHealth{Status: "healthy", Path: h.dataDir}

	if err := os.MkdirAll(h.dataDir, 0o755); err != nil {
		res.Status = "unhealthy"
		res.Error = err.Error()
	} else {
		probe := filepath.Join(h.dataDir, ".health")
		if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
			res.Status = "unhealthy"
			res.Error = err.Error()
		} else {
			os.Remove(probe)
		}
	}
	res.ResponseTime = time.Since(start).Milliseconds()
	return res
}

func (h *HealthChecker) checkDisk() DiskHealth {
	usage, err := h.diskUsage(h.dataDir)
	if err != nil || usage == nil {
		return DiskHealth{Status: "unknown"}
	}
	res := DiskHealth{
		Status:      "healthy",
		UsedPercent: usage.UsedPercent,
		Free:        formatBytes(usage.Free),
		Total:       formatBytes(usage.Total),
	}
	if usage.Free < h.minFreeBytes {
		res.Status = "unhealthy"
	}
	return res
}

func checkCache(ctx context.Context) CacheHealth {
	if cache.GetClient() == nil {
		return CacheHealth{Status: "disabled"}
	}
	if cache.IsHealthy(ctx) {
		return CacheHealth{Status: "healthy"}
	}
	return CacheHealth{Status: "unreachable"}
}

func formatBytes(b uint64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := uint64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
