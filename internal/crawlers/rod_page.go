package crawlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

// scrollScript 按步长滚动到底部以触发懒加载,返回滚动次数
const scrollScript = `(step, maxSteps, delay) => new Promise((resolve) => {
	let steps = 0;
	let last = -1;
	const tick = () => {
		const height = document.body ? document.body.scrollHeight : 0;
		window.scrollBy(0, step);
		steps++;
		const bottom = window.scrollY + window.innerHeight >= height;
		if (steps >= maxSteps || (bottom && height === last)) {
			resolve(steps);
			return;
		}
		last = height;
		setTimeout(tick, delay);
	};
	tick();
})`

// cleanScript 清理当前源的存储,cookie由CDP按浏览器上下文清理
const cleanScript = `() => {
	try { if (typeof localStorage !== 'undefined' && localStorage !== null) localStorage.clear(); } catch (e) {}
	try { if (typeof sessionStorage !== 'undefined' && sessionStorage !== null) sessionStorage.clear(); } catch (e) {}
	return true;
}`

// rodPage 基于go-rod的标签页
// 每个标签页独占一个无痕浏览器上下文,cookie不会在标签页之间共享
type rodPage struct {
	page    *rod.Page
	session *rod.Browser
	router  *rod.HijackRouter

	// 当前导航策略,拦截回调在其他goroutine读取
	policyMu sync.RWMutex
	policy   NavigationPolicy

	restoreHeaders func()
	closed         atomic.Bool
}

// newRodPage 包装rod.Page并启动请求拦截
func newRodPage(page *rod.Page, session *rod.Browser) *rodPage {
	rp := &rodPage{page: page, session: session}

	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		rp.policyMu.RLock()
		policy := rp.policy
		rp.policyMu.RUnlock()

		if policy.Blocks(string(h.Request.Type())) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	rp.router = router

	return rp
}

// ID 实现PageHandle接口
func (rp *rodPage) ID() string {
	return string(rp.page.TargetID)
}

// Navigate 实现PageHandle接口
func (rp *rodPage) Navigate(ctx context.Context, url string, policy NavigationPolicy) error {
	rp.policyMu.Lock()
	rp.policy = policy
	rp.policyMu.Unlock()

	if policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, policy.Timeout)
		defer cancel()
	}

	page := rp.page.Context(ctx)

	if len(policy.Headers) > 0 {
		dict := make([]string, 0, len(policy.Headers)*2)
		for name, value := range policy.Headers {
			dict = append(dict, name, value)
		}
		restore, err := page.SetExtraHeaders(dict)
		if err != nil {
			return fmt.Errorf("设置请求头失败: %w", err)
		}
		rp.restoreHeaders = restore
	}

	if policy.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: policy.UserAgent}); err != nil {
			return fmt.Errorf("设置User-Agent失败: %w", err)
		}
	}

	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("导航失败: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("等待页面加载失败: %w", err)
	}
	return nil
}

// WaitSelector 实现PageHandle接口
func (rp *rodPage) WaitSelector(ctx context.Context, selector string, timeout time.Duration) (bool, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	_, err := rp.page.Context(waitCtx).Element(selector)
	if err == nil {
		return true, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false, nil
	}
	return false, err
}

// ScrollToBottom 实现PageHandle接口
func (rp *rodPage) ScrollToBottom(ctx context.Context, step, maxSteps int, delay time.Duration) error {
	res, err := rp.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           scrollScript,
		JSArgs:       []interface{}{step, maxSteps, delay.Milliseconds()},
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return fmt.Errorf("滚动页面失败: %w", err)
	}
	log.Debug().Msgf("标签页 %s 滚动 %d 次", rp.ID(), res.Value.Int())
	return nil
}

// HTML 实现PageHandle接口
func (rp *rodPage) HTML(ctx context.Context) (string, error) {
	html, err := rp.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("读取页面HTML失败: %w", err)
	}
	return html, nil
}

// URL 实现PageHandle接口
func (rp *rodPage) URL() string {
	info, err := rp.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Reset 实现PageHandle接口
func (rp *rodPage) Reset(ctx context.Context) error {
	page := rp.page.Context(ctx)

	if _, err := page.Evaluate(&rod.EvalOptions{JS: cleanScript}); err != nil {
		return fmt.Errorf("清理标签页状态失败: %w", err)
	}

	// Storage.clearCookies覆盖HttpOnly和其他路径的cookie
	if err := rp.session.Context(ctx).SetCookies(nil); err != nil {
		return fmt.Errorf("清理cookie失败: %w", err)
	}

	if rp.restoreHeaders != nil {
		rp.restoreHeaders()
		rp.restoreHeaders = nil
	}

	rp.policyMu.Lock()
	rp.policy = NavigationPolicy{}
	rp.policyMu.Unlock()

	if err := page.Navigate("about:blank"); err != nil {
		return fmt.Errorf("回到空白页失败: %w", err)
	}
	return nil
}

// Close 实现PageHandle接口
func (rp *rodPage) Close() error {
	if !rp.closed.CompareAndSwap(false, true) {
		return nil
	}
	if rp.router != nil {
		_ = rp.router.Stop()
	}
	err := rp.page.Timeout(5 * time.Second).Close()
	// 销毁无痕上下文
	if cerr := rp.session.Timeout(5 * time.Second).Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
