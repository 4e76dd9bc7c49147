package core

import (
	"strings"
	"testing"

	"github.com/RecoveryAshes/GalleryScraper/internal/models"
)

func TestHeaderManager_GetMergedHeaders(t *testing.T) {
	t.Run("默认头部存在", func(t *testing.T) {
		hm, err := NewHeaderManager(models.BrowserConfig{}, "https://hotpic.one/nsfw/", nil)
		if err != nil {
			t.Fatalf("创建HeaderManager失败: %v", err)
		}

		headers := hm.GetMergedHeaders()
		if headers.Get("User-Agent") != DefaultUserAgent {
			t.Errorf("期望默认User-Agent, 实际='%s'", headers.Get("User-Agent"))
		}
		if headers.Get("Referer") != "https://hotpic.one/nsfw/" {
			t.Errorf("期望Referer为站点首页, 实际='%s'", headers.Get("Referer"))
		}
	})

	t.Run("优先级: 默认 < 配置 < 命令行", func(t *testing.T) {
		browser := models.BrowserConfig{
			UserAgent: "ConfigBot/1.0",
			Headers: map[string]string{
				"referer":  "https://config.example/",
				"x-custom": "from-config",
			},
		}
		hm, err := NewHeaderManager(browser, "https://hotpic.one/", []string{"X-Custom: from-cli"})
		if err != nil {
			t.Fatalf("创建HeaderManager失败: %v", err)
		}

		headers := hm.GetMergedHeaders()
		if headers.Get("User-Agent") != "ConfigBot/1.0" {
			t.Errorf("配置的UA应覆盖默认, 实际='%s'", headers.Get("User-Agent"))
		}
		if headers.Get("Referer") != "https://config.example/" {
			t.Errorf("配置的Referer应覆盖默认, 实际='%s'", headers.Get("Referer"))
		}
		if headers.Get("X-Custom") != "from-cli" {
			t.Errorf("命令行应覆盖配置, 实际='%s'", headers.Get("X-Custom"))
		}
	})

	t.Run("命令行格式错误", func(t *testing.T) {
		if _, err := NewHeaderManager(models.BrowserConfig{}, "", []string{"NoColon"}); err == nil {
			t.Error("期望返回格式错误")
		}
	})
}

func TestHeaderManager_GetHeaders(t *testing.T) {
	tests := []struct {
		name    string
		cli     []string
		wantErr bool
	}{
		{"合法头部", []string{"X-Test: 1"}, false},
		{"禁止的头部", []string{"Host: evil.example"}, true},
		{"非法字符", []string{"X Bad: 1"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hm, err := NewHeaderManager(models.BrowserConfig{}, "", tt.cli)
			if err != nil {
				t.Fatalf("创建HeaderManager失败: %v", err)
			}
			_, err = hm.GetHeaders()
			if (err != nil) != tt.wantErr {
				t.Errorf("期望错误=%v, 得到 %v", tt.wantErr, err)
			}
		})
	}
}

func TestHeaderManager_GetSafeHeaders(t *testing.T) {
	hm, err := NewHeaderManager(models.BrowserConfig{}, "", []string{"Authorization: Bearer secret-token"})
	if err != nil {
		t.Fatalf("创建HeaderManager失败: %v", err)
	}

	safe := hm.GetSafeHeaders()
	if strings.Contains(safe["Authorization"], "secret") {
		t.Errorf("敏感头部未脱敏: %s", safe["Authorization"])
	}
}

func TestSplitUserAgent(t *testing.T) {
	hm, err := NewHeaderManager(models.BrowserConfig{UserAgent: "UA/1"}, "https://hotpic.one/", nil)
	if err != nil {
		t.Fatal(err)
	}
	ua, extra := splitUserAgent(hm.GetMergedHeaders())
	if ua != "UA/1" {
		t.Errorf("期望 UA/1, 得到 %s", ua)
	}
	if _, ok := extra["User-Agent"]; ok {
		t.Error("额外头部不应包含User-Agent")
	}
	if extra["Referer"] != "https://hotpic.one/" {
		t.Errorf("Referer错误: %v", extra)
	}
}
