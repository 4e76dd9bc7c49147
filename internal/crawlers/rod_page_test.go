package crawlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"

	"github.com/RecoveryAshes/GalleryScraper/internal/models"
)

// newTestBrowser 本机没有Chromium时跳过
func newTestBrowser(t *testing.T) *BrowserManager {
	t.Helper()
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("未找到Chromium,跳过真实浏览器测试")
	}
	bm := NewBrowserManager(models.BrowserConfig{
		Headless:       true,
		Bin:            bin,
		NoSandbox:      true,
		ViewportWidth:  1280,
		ViewportHeight: 800,
	})
	t.Cleanup(func() { _ = bm.Close() })
	return bm
}

// cookieServer /deep/set 写入HttpOnly和非根路径cookie, /deep/echo 回显请求携带的cookie
func cookieServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/deep/set", func(w http.ResponseWriter, _ *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "root", Value: "1", Path: "/", HttpOnly: true})
		http.SetCookie(w, &http.Cookie{Name: "deep", Value: "2", Path: "/deep", HttpOnly: true})
		fmt.Fprint(w, "<html><body>ok</body></html>")
	})
	mux.HandleFunc("/deep/echo", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<html><body><pre id=\"cookie\">[%s]</pre></body></html>", r.Header.Get("Cookie"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func echoedCookies(t *testing.T, ctx context.Context, handle PageHandle, base string) string {
	t.Helper()
	if err := handle.Navigate(ctx, base+"/deep/echo", NavigationPolicy{Timeout: 10 * time.Second}); err != nil {
		t.Fatalf("导航失败: %v", err)
	}
	html, err := handle.HTML(ctx)
	if err != nil {
		t.Fatalf("读取HTML失败: %v", err)
	}
	return html
}

func TestRodPage_ResetClearsAllCookies(t *testing.T) {
	bm := newTestBrowser(t)
	srv := cookieServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	first, err := bm.NewPage(ctx)
	if err != nil {
		t.Fatalf("创建标签页失败: %v", err)
	}
	defer first.Close()

	if err := first.Navigate(ctx, srv.URL+"/deep/set", NavigationPolicy{Timeout: 10 * time.Second}); err != nil {
		t.Fatalf("导航失败: %v", err)
	}
	before := echoedCookies(t, ctx, first, srv.URL)
	if !strings.Contains(before, "root=1") || !strings.Contains(before, "deep=2") {
		t.Fatalf("期望浏览器保存了cookie, 得到 %s", before)
	}

	// 另一个标签页在独立上下文中,看不到第一个标签页的cookie
	second, err := bm.NewPage(ctx)
	if err != nil {
		t.Fatalf("创建标签页失败: %v", err)
	}
	defer second.Close()
	if other := echoedCookies(t, ctx, second, srv.URL); strings.Contains(other, "root=1") || strings.Contains(other, "deep=2") {
		t.Errorf("标签页之间不应共享cookie, 得到 %s", other)
	}

	if err := first.Reset(ctx); err != nil {
		t.Fatalf("Reset失败: %v", err)
	}
	if after := echoedCookies(t, ctx, first, srv.URL); strings.Contains(after, "root=1") || strings.Contains(after, "deep=2") {
		t.Errorf("Reset后不应残留cookie, 得到 %s", after)
	}
}
