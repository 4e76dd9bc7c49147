package main

import (
	"fmt"

	"github.com/RecoveryAshes/GalleryScraper/internal/core"
	"github.com/RecoveryAshes/GalleryScraper/internal/crawlers"
	"github.com/RecoveryAshes/GalleryScraper/internal/models"
	"github.com/RecoveryAshes/GalleryScraper/internal/utils"
)

// appRuntime 组装好的运行时组件
type appRuntime struct {
	config    *core.Config
	monitor   *crawlers.ResourceMonitor
	pool      *crawlers.PagePool
	headers   *core.HeaderManager
	metrics   *core.Metrics
	scheduler *core.Scheduler
}

// newRuntime 按配置创建页面引擎、标签页池、缓存和调度器
func newRuntime(config *core.Config, cliHeaders []string) (*appRuntime, error) {
	site, err := core.NewSiteProfile(config.Site)
	if err != nil {
		return nil, fmt.Errorf("站点配置无效: %w", err)
	}

	headerManager, err := core.NewHeaderManager(config.Browser, site.HomeURL(), cliHeaders)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP头部管理器失败: %w", err)
	}
	if err := headerManager.Validate(); err != nil {
		return nil, fmt.Errorf("HTTP头部验证失败: %w", err)
	}

	monitor := newMonitor(config)
	capacity := config.Pool.Capacity
	if capacity == 0 {
		capacity = monitor.CalculateCapacity()
		utils.Infof("标签页池容量自动计算为 %d (上限 %d)", capacity, config.Pool.MaxCapacity)
	}

	factory := newFactory(config)
	metrics := core.NewMetrics()
	pool := crawlers.NewPagePool(factory, crawlers.PagePoolConfig{
		Capacity:      capacity,
		WaitlistLimit: config.Pool.WaitlistLimit,
		Observer:      metrics,
	})
	metrics.RegisterPoolStats(pool.Stats)

	var cache *core.ResultCache
	if config.Cache.Enabled {
		cache = core.NewResultCache(config.Cache.Size, config.Cache.TTL)
	}

	scheduler, err := core.NewScheduler(pool, core.SchedulerOptions{
		Scrape:  config.Scrape,
		Site:    site,
		Headers: headerManager,
		Cache:   cache,
		Metrics: metrics,
	})
	if err != nil {
		_ = pool.Close()
		return nil, fmt.Errorf("创建调度器失败: %w", err)
	}

	utils.Infof("✅ 运行时就绪: 引擎=%s 容量=%d 等待队列=%d 缓存=%v",
		config.Scrape.Engine, capacity, config.Pool.WaitlistLimit, config.Cache.Enabled)

	return &appRuntime{
		config:    config,
		monitor:   monitor,
		pool:      pool,
		headers:   headerManager,
		metrics:   metrics,
		scheduler: scheduler,
	}, nil
}

// newFactory 按引擎选择页面工厂
func newFactory(config *core.Config) crawlers.PageFactory {
	if config.Scrape.Engine == models.EngineStatic {
		userAgent := config.Browser.UserAgent
		if userAgent == "" {
			userAgent = core.DefaultUserAgent
		}
		return crawlers.NewStaticFactory(userAgent)
	}
	return crawlers.NewBrowserManager(config.Browser)
}

// Close 停止资源监控并关闭标签页池,池会一并关闭页面引擎
func (rt *appRuntime) Close() error {
	rt.monitor.StopMonitoring()
	return rt.pool.Close()
}

// newMonitor 按池配置创建资源监控器
func newMonitor(config *core.Config) *crawlers.ResourceMonitor {
	return crawlers.NewResourceMonitor(crawlers.ResourceMonitorConfig{
		MaxTabsLimit: config.Pool.MaxCapacity,
	})
}
