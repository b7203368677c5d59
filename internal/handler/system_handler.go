package handler

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizrunner/internal/config"
	"github.com/stemsi/quizrunner/internal/model"
	"github.com/stemsi/quizrunner/internal/service"
)

const metricsInterval = 7 * time.Second

// SystemHandler streams gateway health to staff via SSE: host load, Go
// runtime, live sessions on this replica and the ledger queue backlog.
type SystemHandler struct {
	sessions  *service.SessionService
	rdb       *redis.Client
	startTime time.Time
	log       zerolog.Logger

	// CPU delta state, shared by every connected dashboard.
	cpuMu     sync.Mutex
	prevIdle  uint64
	prevTotal uint64
}

func NewSystemHandler(sessions *service.SessionService, rdb *redis.Client, log zerolog.Logger) *SystemHandler {
	h := &SystemHandler{
		sessions:  sessions,
		rdb:       rdb,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
	// Seed initial CPU reading so the first tick gets a real delta
	h.prevIdle, h.prevTotal, _ = readCPUStat()
	return h
}

type systemMetrics struct {
	Timestamp int64  `json:"timestamp"`
	Uptime    string `json:"uptime"`

	// Host
	CPUPercent    float64 `json:"cpu_percent"`
	MemUsedBytes  uint64  `json:"mem_used_bytes"`
	MemTotalBytes uint64  `json:"mem_total_bytes"`
	LoadAvg1      float64 `json:"load_avg_1"`

	// Go runtime
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	NumGC      uint32 `json:"num_gc"`
	GoVersion  string `json:"go_version"`

	// Gateway
	Sessions    map[model.SessionPhase]int `json:"sessions"`
	LedgerQueue int64                      `json:"ledger_queue"`
	RedisUp     bool                       `json:"redis_up"`
}

// SystemMetricsSSE godoc
// GET /api/v1/staff/system/metrics
func (h *SystemHandler) SystemMetricsSSE(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.log.Info().Msg("Staff connected to system metrics SSE")

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	// Send immediately on connect, then every tick
	h.writeMetrics(c)

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Staff disconnected from system metrics SSE")
			return
		case <-ticker.C:
			h.writeMetrics(c)
		}
	}
}

func (h *SystemHandler) writeMetrics(c *gin.Context) {
	c.SSEvent("metrics", h.collect(c.Request.Context()))
	c.Writer.Flush()
}

func (h *SystemHandler) collect(ctx context.Context) systemMetrics {
	m := systemMetrics{
		Timestamp: time.Now().Unix(),
		Uptime:    formatDuration(time.Since(h.startTime)),
		GoVersion: runtime.Version(),
		Sessions:  h.sessions.Counts(),
	}

	m.CPUPercent = h.cpuPercent()
	if total, avail, err := readMemInfo(); err == nil && total > 0 {
		m.MemTotalBytes = total
		m.MemUsedBytes = total - avail
	}
	m.LoadAvg1, _ = readLoadAvg()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.Goroutines = runtime.NumGoroutine()
	m.HeapAlloc = ms.HeapAlloc
	m.NumGC = ms.NumGC

	if h.rdb != nil {
		qctx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if n, err := h.rdb.LLen(qctx, config.WorkerKey.PersistAttemptsQueue).Result(); err == nil {
			m.LedgerQueue = n
			m.RedisUp = true
		}
	}
	return m
}

func (h *SystemHandler) cpuPercent() float64 {
	idle, total, err := readCPUStat()
	if err != nil {
		return 0
	}

	h.cpuMu.Lock()
	defer h.cpuMu.Unlock()
	if total <= h.prevTotal {
		return 0
	}
	idleDelta := float64(idle - h.prevIdle)
	totalDelta := float64(total - h.prevTotal)
	h.prevIdle, h.prevTotal = idle, total
	return (1 - idleDelta/totalDelta) * 100
}

// readCPUStat parses the aggregate line of /proc/stat.
func readCPUStat() (idle, total uint64, err error) {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 0, 0, err
	}
	// cpu  user nice system idle iowait irq softirq steal ...
	fields := strings.Fields(strings.SplitN(string(data), "\n", 2)[0])
	if len(fields) < 5 || fields[0] != "cpu" {
		return 0, 0, fmt.Errorf("unexpected /proc/stat format")
	}
	for i, f := range fields[1:] {
		val, _ := strconv.ParseUint(f, 10, 64)
		total += val
		if i == 3 {
			idle = val
		}
	}
	return idle, total, nil
}

// readMemInfo returns MemTotal and MemAvailable in bytes.
func readMemInfo() (total, available uint64, err error) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() && (total == 0 || available == 0) {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "MemTotal:"):
			total = parseKB(line)
		case strings.HasPrefix(line, "MemAvailable:"):
			available = parseKB(line)
		}
	}
	return total, available, scanner.Err()
}

// parseKB reads lines such as "MemTotal:       16384000 kB".
func parseKB(line string) uint64 {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 0
	}
	val, _ := strconv.ParseUint(fields[1], 10, 64)
	return val * 1024
}

func readLoadAvg() (float64, error) {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0, err
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return 0, fmt.Errorf("unexpected /proc/loadavg format")
	}
	return strconv.ParseFloat(fields[0], 64)
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
