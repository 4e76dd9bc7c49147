package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/RecoveryAshes/GalleryScraper/internal/models"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

// ErrBrowserClosed 浏览器管理器已关闭
var ErrBrowserClosed = errors.New("浏览器已关闭")

// BrowserManager 无头浏览器生命周期管理
// 第一次创建标签页时启动浏览器;连接意外断开时通知订阅者并丢弃实例,下一次创建时重新启动
type BrowserManager struct {
	config models.BrowserConfig

	mu         sync.Mutex
	browser    *rod.Browser
	launcher   *launcher.Launcher
	generation int64
	closed     bool

	handlersMu sync.RWMutex
	handlers   []func(err error)
}

// NewBrowserManager 创建浏览器管理器,不会立即启动浏览器
func NewBrowserManager(config models.BrowserConfig) *BrowserManager {
	return &BrowserManager{config: config}
}

// OnDisconnect 实现DisconnectNotifier接口
func (bm *BrowserManager) OnDisconnect(fn func(err error)) {
	bm.handlersMu.Lock()
	defer bm.handlersMu.Unlock()
	bm.handlers = append(bm.handlers, fn)
}

// NewPage 实现PageFactory接口
func (bm *BrowserManager) NewPage(ctx context.Context) (PageHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	browser, err := bm.ensureBrowser()
	if err != nil {
		return nil, err
	}

	session, err := browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("创建无痕上下文失败: %w", err)
	}

	page, err := session.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = session.Close()
		return nil, fmt.Errorf("创建标签页失败: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             bm.config.ViewportWidth,
		Height:            bm.config.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		log.Warn().Err(err).Msg("设置视口失败")
	}

	if bm.config.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: bm.config.UserAgent}); err != nil {
			log.Warn().Err(err).Msg("设置User-Agent失败")
		}
	}

	return newRodPage(page, session), nil
}

// ensureBrowser 返回当前浏览器,不存在时启动
func (bm *BrowserManager) ensureBrowser() (*rod.Browser, error) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	if bm.closed {
		return nil, ErrBrowserClosed
	}
	if bm.browser != nil {
		return bm.browser, nil
	}

	controlURL, l, err := bm.resolveControlURL()
	if err != nil {
		return nil, err
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		if l != nil {
			l.Kill()
		}
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}

	bm.browser = browser
	bm.launcher = l
	bm.generation++
	go bm.watch(browser, bm.generation)

	log.Info().Msgf("浏览器已启动 (第%d代): %s", bm.generation, controlURL)
	return browser, nil
}

// resolveControlURL 连接远程浏览器,或在本地启动一个
func (bm *BrowserManager) resolveControlURL() (string, *launcher.Launcher, error) {
	if bm.config.RemoteURL != "" {
		u, err := launcher.ResolveURL(bm.config.RemoteURL)
		if err != nil {
			return "", nil, fmt.Errorf("解析远程浏览器地址失败: %w", err)
		}
		return u, nil, nil
	}

	l := launcher.New().
		Headless(bm.config.Headless).
		Set("ignore-certificate-errors").
		Set("window-size", fmt.Sprintf("%d,%d", bm.config.ViewportWidth, bm.config.ViewportHeight))
	if bm.config.Bin != "" {
		l = l.Bin(bm.config.Bin)
	}
	if bm.config.NoSandbox {
		l = l.NoSandbox(true)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return "", nil, fmt.Errorf("启动浏览器失败: %w", err)
	}
	return controlURL, l, nil
}

// watch 监听CDP事件流,事件流结束即视为连接断开
func (bm *BrowserManager) watch(browser *rod.Browser, gen int64) {
	for range browser.Event() {
	}

	bm.mu.Lock()
	if bm.closed || bm.browser != browser {
		bm.mu.Unlock()
		return
	}
	bm.browser = nil
	l := bm.launcher
	bm.launcher = nil
	bm.mu.Unlock()

	if l != nil {
		l.Kill()
	}

	err := fmt.Errorf("第%d代浏览器事件流已结束", gen)
	log.Error().Err(err).Msg("浏览器连接意外断开")

	bm.handlersMu.RLock()
	handlers := append([]func(error){}, bm.handlers...)
	bm.handlersMu.RUnlock()
	for _, fn := range handlers {
		fn(err)
	}
}

// Generation 已启动过的浏览器数量
func (bm *BrowserManager) Generation() int64 {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	return bm.generation
}

// Close 关闭浏览器
func (bm *BrowserManager) Close() error {
	bm.mu.Lock()
	if bm.closed {
		bm.mu.Unlock()
		return nil
	}
	bm.closed = true
	browser, l := bm.browser, bm.launcher
	bm.browser, bm.launcher = nil, nil
	bm.mu.Unlock()

	var err error
	if browser != nil {
		err = browser.Close()
	}
	if l != nil {
		l.Kill()
		l.Cleanup()
	}

	log.Debug().Msg("浏览器已关闭")
	return err
}
