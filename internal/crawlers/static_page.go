package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// StaticFactory 不执行JavaScript的页面引擎
// 每个标签页用独立的colly收集器抓取HTML,适合无需渲染的站点和本地测试
type StaticFactory struct {
	userAgent string
	transport http.RoundTripper
	closed    atomic.Bool
}

// NewStaticFactory 创建静态页面工厂
func NewStaticFactory(userAgent string) *StaticFactory {
	return &StaticFactory{
		userAgent: userAgent,
		transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, // 与浏览器的 --ignore-certificate-errors 保持一致
			},
			// 自行声明Accept-Encoding,由decompressBody解压
			DisableCompression: true,
		},
	}
}

// NewPage 实现PageFactory接口
func (sf *StaticFactory) NewPage(ctx context.Context) (PageHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if sf.closed.Load() {
		return nil, fmt.Errorf("静态页面工厂已关闭")
	}
	return &staticPage{
		id:      uuid.New().String(),
		factory: sf,
	}, nil
}

// Close 实现PageFactory接口
func (sf *StaticFactory) Close() error {
	sf.closed.Store(true)
	return nil
}

// staticPage 静态页面
type staticPage struct {
	id      string
	factory *StaticFactory

	mu     sync.RWMutex
	url    string
	body   []byte
	closed bool
}

// ID 实现PageHandle接口
func (sp *staticPage) ID() string {
	return sp.id
}

// Navigate 实现PageHandle接口
func (sp *staticPage) Navigate(ctx context.Context, target string, policy NavigationPolicy) error {
	if policy.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, policy.Timeout)
		defer cancel()
	}

	userAgent := sp.factory.userAgent
	if policy.UserAgent != "" {
		userAgent = policy.UserAgent
	}

	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.AllowURLRevisit(),
		colly.UserAgent(userAgent),
	)
	c.WithTransport(sp.factory.transport)
	if policy.Timeout > 0 {
		c.SetRequestTimeout(policy.Timeout)
	}

	var (
		finalURL string
		body     []byte
		fetchErr error
	)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept-Encoding", "gzip, deflate, br")
		for name, value := range policy.Headers {
			r.Headers.Set(name, value)
		}
		log.Debug().Msgf("访问: %s", r.URL.String())
	})

	c.OnResponse(func(r *colly.Response) {
		finalURL = r.Request.URL.String()
		decompressed, err := decompressBody(r.Headers.Get("Content-Encoding"), r.Body)
		if err != nil {
			log.Warn().Err(err).Msgf("解压响应失败 [%s],使用原始内容", finalURL)
			decompressed = r.Body
		}
		body = decompressed
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			fetchErr = fmt.Errorf("HTTP %d: %w", r.StatusCode, err)
			return
		}
		fetchErr = err
	})

	if err := c.Visit(target); err != nil && fetchErr == nil {
		fetchErr = err
	}
	if fetchErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("导航失败: %w", ctxErr)
		}
		return fmt.Errorf("导航失败: %w", fetchErr)
	}

	sp.mu.Lock()
	sp.url = finalURL
	sp.body = body
	sp.mu.Unlock()
	return nil
}

// WaitSelector 实现PageHandle接口
// 静态页面没有后续渲染,只检查一次
func (sp *staticPage) WaitSelector(ctx context.Context, selector string, _ time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	sp.mu.RLock()
	body := sp.body
	sp.mu.RUnlock()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("解析HTML失败: %w", err)
	}
	return doc.Find(selector).Length() > 0, nil
}

// ScrollToBottom 实现PageHandle接口,静态页面无懒加载
func (sp *staticPage) ScrollToBottom(ctx context.Context, _, _ int, _ time.Duration) error {
	return ctx.Err()
}

// HTML 实现PageHandle接口
func (sp *staticPage) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	return string(sp.body), nil
}

// URL 实现PageHandle接口
func (sp *staticPage) URL() string {
	sp.mu.RLock()
	defer sp.mu.RUnlock()
	return sp.url
}

// Reset 实现PageHandle接口
func (sp *staticPage) Reset(ctx context.Context) error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	if sp.closed {
		return fmt.Errorf("标签页已关闭")
	}
	sp.url = "about:blank"
	sp.body = nil
	return ctx.Err()
}

// Close 实现PageHandle接口
func (sp *staticPage) Close() error {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sp.closed = true
	sp.body = nil
	return nil
}

// decompressBody 根据Content-Encoding解压响应体
// colly已处理过的gzip响应不再带gzip魔数,原样返回
func decompressBody(contentEncoding string, body []byte) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))

	switch encoding {
	case "gzip":
		if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
			return body, nil
		}
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer reader.Close()

		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("gzip读取失败: %w", err)
		}
		return decompressed, nil

	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()

		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("deflate读取失败: %w", err)
		}
		return decompressed, nil

	case "br":
		decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
		if err != nil {
			return nil, fmt.Errorf("brotli读取失败: %w", err)
		}
		return decompressed, nil

	case "", "identity":
		return body, nil

	default:
		log.Warn().Msgf("未知的Content-Encoding: %s", contentEncoding)
		return body, nil
	}
}
