package core

import (
	"time"

	"github.com/RecoveryAshes/GalleryScraper/internal/models"
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "galleryscraper"

// Metrics Prometheus指标
// 同时实现 crawlers.PoolObserver,由标签页池回调
type Metrics struct {
	registry *prometheus.Registry

	jobs         *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	cacheLookups *prometheus.CounterVec
	acquireWait  prometheus.Histogram
	saturated    prometheus.Counter
	discards     *prometheus.CounterVec
	disconnects  prometheus.Counter
}

// NewMetrics 创建指标并注册到独立的Registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "jobs_total",
			Help:      "按类型和结果统计的抓取任务数",
		}, []string{"kind", "result"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "job_duration_seconds",
			Help:      "抓取任务耗时",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 45, 90},
		}, []string{"kind"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cache_lookups_total",
			Help:      "结果缓存查询次数",
		}, []string{"result"}),
		acquireWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "pool",
			Name:      "acquire_wait_seconds",
			Help:      "获取标签页的等待时间",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 9),
		}),
		saturated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pool",
			Name:      "saturated_total",
			Help:      "因等待队列已满被拒绝的请求数",
		}),
		discards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pool",
			Name:      "discards_total",
			Help:      "被强制销毁的标签页数",
		}, []string{"reason"}),
		disconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "pool",
			Name:      "browser_disconnects_total",
			Help:      "浏览器断开次数",
		}),
	}

	m.registry.MustRegister(
		m.jobs,
		m.jobDuration,
		m.cacheLookups,
		m.acquireWait,
		m.saturated,
		m.discards,
		m.disconnects,
	)
	return m
}

// Registry 供 /metrics 使用
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterPoolStats 以GaugeFunc形式导出标签页池快照
func (m *Metrics) RegisterPoolStats(stats func() models.PoolStats) {
	gauge := func(name, help string, value func(models.PoolStats) int) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(value(stats())) })
	}
	m.registry.MustRegister(
		gauge("capacity", "标签页池容量", func(s models.PoolStats) int { return s.Capacity }),
		gauge("idle", "空闲标签页数", func(s models.PoolStats) int { return s.Idle }),
		gauge("in_use", "借出中的标签页数", func(s models.PoolStats) int { return s.InUse }),
		gauge("recycling", "后台重置中的标签页数", func(s models.PoolStats) int { return s.Recycling }),
		gauge("waiting", "等待队列长度", func(s models.PoolStats) int { return s.Waiting }),
	)
}

// ObserveJob 记录一次任务结果
func (m *Metrics) ObserveJob(kind models.TargetKind, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = string(models.KindOf(err))
	}
	m.jobs.WithLabelValues(string(kind), result).Inc()
	m.jobDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())
}

// ObserveCache 记录缓存命中情况
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
}

// ObserveAcquire 实现 crawlers.PoolObserver
func (m *Metrics) ObserveAcquire(wait time.Duration) {
	m.acquireWait.Observe(wait.Seconds())
}

// ObserveSaturated 实现 crawlers.PoolObserver
func (m *Metrics) ObserveSaturated() {
	m.saturated.Inc()
}

// ObserveDiscard 实现 crawlers.PoolObserver
func (m *Metrics) ObserveDiscard(reason string) {
	m.discards.WithLabelValues(reason).Inc()
}

// ObserveDisconnect 实现 crawlers.PoolObserver
func (m *Metrics) ObserveDisconnect() {
	m.disconnects.Inc()
}
