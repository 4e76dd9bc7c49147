// Package crawlertest 提供内存中的PageFactory/PageHandle实现,用于不启动浏览器的测试
package crawlertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/GalleryScraper/internal/crawlers"
)

// ErrNotFound 导航到未注册的URL
var ErrNotFound = errors.New("HTTP 404")

// Fixture 一个假页面
type Fixture struct {
	HTML         string        // 加载后的HTML
	ScrolledHTML string        // 滚动到底部后的HTML,为空表示滚动不改变内容
	Delay        time.Duration // 导航耗时,期间响应ctx取消
	Err          error         // 导航直接失败
}

// Factory 假标签页工厂
type Factory struct {
	mu       sync.Mutex
	fixtures map[string]Fixture
	pages    []*Page
	failNext []error
	handlers []func(error)
	closed   bool

	// ResetErr 新建标签页的Reset返回值
	ResetErr error

	created atomic.Int64
	active  atomic.Int64
	peak    atomic.Int64
}

// NewFactory 创建假工厂
func NewFactory() *Factory {
	return &Factory{fixtures: make(map[string]Fixture)}
}

// Serve 注册页面
func (f *Factory) Serve(url string, fixture Fixture) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fixtures[url] = fixture
}

// FailNextCreate 让接下来的一次NewPage返回err
func (f *Factory) FailNextCreate(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = append(f.failNext, err)
}

// NewPage 实现crawlers.PageFactory接口
func (f *Factory) NewPage(ctx context.Context) (crawlers.PageHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil, errors.New("工厂已关闭")
	}
	if len(f.failNext) > 0 {
		err := f.failNext[0]
		f.failNext = f.failNext[1:]
		return nil, err
	}

	n := f.created.Add(1)
	page := &Page{
		id:       fmt.Sprintf("fake-%d", n),
		factory:  f,
		resetErr: f.ResetErr,
	}
	f.pages = append(f.pages, page)
	return page, nil
}

// Close 实现crawlers.PageFactory接口
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// OnDisconnect 实现crawlers.DisconnectNotifier接口
func (f *Factory) OnDisconnect(fn func(err error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, fn)
}

// Disconnect 模拟浏览器断开
func (f *Factory) Disconnect(cause error) {
	f.mu.Lock()
	handlers := append([]func(error){}, f.handlers...)
	f.mu.Unlock()
	for _, fn := range handlers {
		fn(cause)
	}
}

// Created 已创建的标签页数
func (f *Factory) Created() int {
	return int(f.created.Load())
}

// Pages 已创建的全部标签页
func (f *Factory) Pages() []*Page {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Page{}, f.pages...)
}

// PeakActive 同时处于导航/提取中的标签页峰值
func (f *Factory) PeakActive() int {
	return int(f.peak.Load())
}

// OpenPages 未关闭的标签页数
func (f *Factory) OpenPages() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	open := 0
	for _, p := range f.pages {
		if !p.IsClosed() {
			open++
		}
	}
	return open
}

func (f *Factory) fixture(url string) (Fixture, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fx, ok := f.fixtures[url]
	return fx, ok
}

func (f *Factory) enter() {
	n := f.active.Add(1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			return
		}
	}
}

func (f *Factory) leave() {
	f.active.Add(-1)
}

// Page 假标签页
type Page struct {
	id      string
	factory *Factory

	mu          sync.Mutex
	url         string
	html        string
	fixture     Fixture
	scrolled    bool
	busy        bool
	closed      bool
	resetErr    error
	resetDelay  time.Duration
	navigations int
	resets      int
	policies    []crawlers.NavigationPolicy
}

// ID 实现crawlers.PageHandle接口
func (p *Page) ID() string { return p.id }

// Navigate 实现crawlers.PageHandle接口
func (p *Page) Navigate(ctx context.Context, url string, policy crawlers.NavigationPolicy) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return errors.New("标签页已关闭")
	}
	if p.busy {
		p.mu.Unlock()
		return errors.New("标签页被并发使用")
	}
	p.busy = true
	p.navigations++
	p.policies = append(p.policies, policy)
	p.mu.Unlock()

	p.factory.enter()
	defer func() {
		p.factory.leave()
		p.mu.Lock()
		p.busy = false
		p.mu.Unlock()
	}()

	fx, ok := p.factory.fixture(url)
	if !ok {
		return fmt.Errorf("导航失败 %s: %w", url, ErrNotFound)
	}

	if fx.Delay > 0 {
		timer := time.NewTimer(fx.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return fmt.Errorf("导航失败: %w", ctx.Err())
		case <-timer.C:
		}
	}
	if fx.Err != nil {
		return fx.Err
	}

	p.mu.Lock()
	p.url = url
	p.html = fx.HTML
	p.fixture = fx
	p.scrolled = false
	p.mu.Unlock()
	return nil
}

// WaitSelector 实现crawlers.PageHandle接口,不等待,直接检查当前HTML
func (p *Page) WaitSelector(ctx context.Context, selector string, _ time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	html := p.html
	p.mu.Unlock()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false, err
	}
	return doc.Find(selector).Length() > 0, nil
}

// ScrollToBottom 实现crawlers.PageHandle接口
func (p *Page) ScrollToBottom(ctx context.Context, _, _ int, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrolled = true
	if p.fixture.ScrolledHTML != "" {
		p.html = p.fixture.ScrolledHTML
	}
	return nil
}

// HTML 实现crawlers.PageHandle接口
func (p *Page) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

// URL 实现crawlers.PageHandle接口
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

// Reset 实现crawlers.PageHandle接口
func (p *Page) Reset(ctx context.Context) error {
	p.mu.Lock()
	delay := p.resetDelay
	p.mu.Unlock()
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
	if p.resetErr != nil {
		return p.resetErr
	}
	p.url = "about:blank"
	p.html = ""
	p.fixture = Fixture{}
	p.scrolled = false
	return ctx.Err()
}

// Close 实现crawlers.PageHandle接口
func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// SetResetErr 修改Reset返回值
func (p *Page) SetResetErr(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetErr = err
}

// SetResetDelay 让Reset先等待d,期间响应ctx取消
func (p *Page) SetResetDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetDelay = d
}

// IsClosed 是否已关闭
func (p *Page) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Scrolled 最近一次导航后是否滚动过
func (p *Page) Scrolled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scrolled
}

// Resets Reset调用次数
func (p *Page) Resets() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resets
}

// LastPolicy 最近一次导航使用的策略
func (p *Page) LastPolicy() crawlers.NavigationPolicy {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.policies) == 0 {
		return crawlers.NavigationPolicy{}
	}
	return p.policies[len(p.policies)-1]
}
