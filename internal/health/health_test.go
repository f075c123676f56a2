package health

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
)

func TestCheckBasicHealthy(t *testing.T) {
	h := NewHealthChecker(t.TempDir())
	h.diskUsage = func(string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Total: 10 << 30, Free: 5 << 30, UsedPercent: 50}, nil
	}

	st := h.CheckBasic(context.Background())
	assert.Equal(t, "healthy", st.Status)
	assert.Equal(t, "5.0 GB", st.Disk.Free)
	assert.Equal(t, "disabled", st.Cache.Status)
}

func TestCheckBasicLowDisk(t *testing.T) {
	h := NewHealthChecker(t.TempDir())
	h.diskUsage = func(string) (*disk.UsageStat, error) {
		return &disk.UsageStat{Total: 10 << 30, Free: 1 << 20, UsedPercent: 99.9}, nil
	}
	assert.Equal(t, "unhealthy", h.CheckBasic(context.Background()).Status)
}

func TestCheckBasicDiskUnknownStaysHealthy(t *testing.T) {
	h := NewHealthChecker(filepath.Join(t.TempDir(), "data"))
	h.diskUsage = func(string) (*disk.UsageStat, error) { return nil, errors.New("unsupported") }

	st := h.CheckBasic(context.Background())
	assert.Equal(t, "unknown", st.Disk.Status)
	assert.Equal(t, "healthy", st.Status)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "2.0 MB", formatBytes(2<<20))
}
