package crawlers

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceMonitor 系统资源监控器
// 职责: 根据CPU核数和可用内存推导标签页池默认容量,为健康检查提供资源快照
type ResourceMonitor struct {
	config ResourceMonitorConfig

	// 可替换的采样函数,测试时注入
	numCPU    func() int
	virtualMB func() (total, available uint64, err error)
	cpuUsage  func() (float64, error)

	// 缓存的CalculateCapacity结果(每秒更新一次)
	cachedCapacity int
	lastCacheTime  time.Time
	cacheMu        sync.Mutex

	// 最近一次采样
	lastSample ResourceSample
	sampleMu   sync.RWMutex

	mu         sync.Mutex
	cancelFunc context.CancelFunc
	isRunning  bool
}

// ResourceMonitorConfig 资源监控器配置
type ResourceMonitorConfig struct {
	MaxTabsLimit        int    // 自动容量上限 (默认:4)
	TabMemoryMB         uint64 // 单个标签页平均内存消耗 (默认:150MB)
	SafetyReserveMB     uint64 // 留给系统的内存 (默认:512MB)
	MemoryPressureLimit uint64 // 低于此可用内存视为紧张 (默认:500MB)
}

// ResourceSample 资源快照
type ResourceSample struct {
	NumCPU            int       `json:"num_cpu"`
	TotalMemoryMB     uint64    `json:"total_memory_mb"`
	AvailableMemoryMB uint64    `json:"available_memory_mb"`
	CPUPercent        float64   `json:"cpu_percent"`
	MemoryPressure    string    `json:"memory_pressure"`
	SampledAt         time.Time `json:"sampled_at"`
}

// NewResourceMonitor 创建资源监控器实例
func NewResourceMonitor(config ResourceMonitorConfig) *ResourceMonitor {
	if config.MaxTabsLimit < 1 {
		config.MaxTabsLimit = 4
	}
	if config.TabMemoryMB == 0 {
		config.TabMemoryMB = 150
	}
	if config.SafetyReserveMB == 0 {
		config.SafetyReserveMB = 512
	}
	if config.MemoryPressureLimit == 0 {
		config.MemoryPressureLimit = 500
	}

	return &ResourceMonitor{
		config:    config,
		numCPU:    runtime.NumCPU,
		virtualMB: systemMemoryMB,
		cpuUsage:  systemCPUPercent,
	}
}

// systemMemoryMB 使用gopsutil读取系统内存
func systemMemoryMB() (total, available uint64, err error) {
	vmStat, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, err
	}
	return vmStat.Total / (1024 * 1024), vmStat.Available / (1024 * 1024), nil
}

// systemCPUPercent 所有核心的平均使用率(100毫秒采样)
func systemCPUPercent() (float64, error) {
	percentages, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		return 0, err
	}
	if len(percentages) == 0 {
		return 0, nil
	}
	return percentages[0], nil
}

// CalculateCapacity 计算默认标签页池容量
// 取CPU核数与可用内存可承载标签页数的较小值,再限制在[1, MaxTabsLimit]
func (rm *ResourceMonitor) CalculateCapacity() int {
	rm.cacheMu.Lock()
	defer rm.cacheMu.Unlock()

	if time.Since(rm.lastCacheTime) < time.Second && rm.cachedCapacity > 0 {
		return rm.cachedCapacity
	}

	result := rm.numCPU()

	_, available, err := rm.virtualMB()
	if err != nil {
		log.Warn().Err(err).Msg("获取系统内存失败,仅按CPU核数计算容量")
	} else {
		byMemory := 1
		if available > rm.config.SafetyReserveMB {
			byMemory = int((available - rm.config.SafetyReserveMB) / rm.config.TabMemoryMB)
		}
		if byMemory < result {
			result = byMemory
		}
	}

	result = clampCapacity(result, rm.config.MaxTabsLimit)

	rm.cachedCapacity = result
	rm.lastCacheTime = time.Now()
	return result
}

// clampCapacity 将容量限制在[1, max]
func clampCapacity(n, max int) int {
	if max < 1 {
		max = 1
	}
	if n < 1 {
		return 1
	}
	if n > max {
		return max
	}
	return n
}

// Sample 立即采样一次
func (rm *ResourceMonitor) Sample() ResourceSample {
	sample := ResourceSample{
		NumCPU:    rm.numCPU(),
		SampledAt: time.Now(),
	}

	total, available, err := rm.virtualMB()
	if err != nil {
		log.Warn().Err(err).Msg("获取系统内存失败")
	} else {
		sample.TotalMemoryMB = total
		sample.AvailableMemoryMB = available
	}
	sample.MemoryPressure = rm.pressure(sample.AvailableMemoryMB, err == nil)

	if usage, err := rm.cpuUsage(); err != nil {
		log.Warn().Err(err).Msg("获取CPU使用率失败")
	} else {
		sample.CPUPercent = usage
	}

	rm.sampleMu.Lock()
	rm.lastSample = sample
	rm.sampleMu.Unlock()

	return sample
}

// pressure 内存压力等级
func (rm *ResourceMonitor) pressure(availableMB uint64, known bool) string {
	switch {
	case !known:
		return "unknown"
	case availableMB < rm.config.MemoryPressureLimit*2/5:
		return "emergency"
	case availableMB < rm.config.MemoryPressureLimit*3/5:
		return "critical"
	case availableMB < rm.config.MemoryPressureLimit:
		return "warning"
	default:
		return "normal"
	}
}

// LastSample 最近一次采样,从未采样时返回零值
func (rm *ResourceMonitor) LastSample() ResourceSample {
	rm.sampleMu.RLock()
	defer rm.sampleMu.RUnlock()
	return rm.lastSample
}

// StartMonitoring 启动后台周期采样(幂等)
func (rm *ResourceMonitor) StartMonitoring(interval time.Duration) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.isRunning {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rm.cancelFunc = cancel
	rm.isRunning = true

	go rm.monitoringLoop(ctx, interval)
}

// monitoringLoop 后台监控循环
func (rm *ResourceMonitor) monitoringLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	rm.Sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample := rm.Sample()
			if sample.MemoryPressure == "critical" || sample.MemoryPressure == "emergency" {
				log.Warn().Msgf("可用内存不足(当前%dMB),内存压力: %s", sample.AvailableMemoryMB, sample.MemoryPressure)
			}
		}
	}
}

// StopMonitoring 停止资源监控
func (rm *ResourceMonitor) StopMonitoring() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.isRunning && rm.cancelFunc != nil {
		rm.cancelFunc()
		rm.isRunning = false
		rm.cancelFunc = nil
	}
}
