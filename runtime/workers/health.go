package workers

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

// HealthWorker periodically logs self metrics: RSS and CPU from the OS,
// heap and GC counters from the Go runtime.
type HealthWorker struct {
	log      *slog.Logger
	interval time.Duration
}

func NewHealthWorker(log *slog.Logger, interval time.Duration) *HealthWorker {
	return &HealthWorker{log: log, interval: interval}
}

func (w *HealthWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)

			var rss uint64
			if mem, err := p.MemoryInfo(); err == nil {
				rss = mem.RSS
			}
			cpu, _ := p.CPUPercent()

			w.log.Info("health",
				"rss_mb", rss/1024/1024,
				"cpu_percent", cpu,
				"heap_alloc_mb", m.Alloc/1024/1024,
				"num_gc", m.NumGC,
				"goroutines", runtime.NumGoroutine(),
			)
		}
	}
}
