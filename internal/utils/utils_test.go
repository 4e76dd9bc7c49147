package utils

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RecoveryAshes/GalleryScraper/internal/models"
)

func TestReadAlbumURLs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	content := "# 相册列表\nhttps://hotpic.one/album/aaa\n\nftp://bad/x\nhttps://hotpic.one/album/bbb\n" +
		"https://evil.example/album/ccc\nhttps://hotpic.one/album/aaa\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Run("限制主机", func(t *testing.T) {
		urls, err := ReadAlbumURLs(path, []string{"hotpic.one"})
		if err != nil {
			t.Fatalf("读取失败: %v", err)
		}
		want := []string{"https://hotpic.one/album/aaa", "https://hotpic.one/album/bbb"}
		if len(urls) != len(want) {
			t.Fatalf("期望 %v, 得到 %v", want, urls)
		}
		for i := range want {
			if urls[i] != want[i] {
				t.Errorf("第%d个期望 %s, 得到 %s", i, want[i], urls[i])
			}
		}
	})

	t.Run("不限制主机", func(t *testing.T) {
		urls, err := ReadAlbumURLs(path, nil)
		if err != nil {
			t.Fatalf("读取失败: %v", err)
		}
		if len(urls) != 3 {
			t.Errorf("期望3个URL, 得到 %d: %v", len(urls), urls)
		}
	})
}

func TestReadAlbumURLs_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(path, []byte("# nothing\nnot-a-url\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadAlbumURLs(path, nil); err == nil {
		t.Error("没有有效URL时应返回错误")
	}
	if _, err := ReadAlbumURLs(filepath.Join(t.TempDir(), "missing.txt"), nil); err == nil {
		t.Error("文件不存在时应返回错误")
	}
}

func TestValidateHeader(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		value   string
		wantErr bool
	}{
		{"正常头部", "Referer", "https://hotpic.one/", false},
		{"自定义头部", "X-Custom-Header", "abc", false},
		{"禁止的Host", "host", "example.com", true},
		{"非法名称", "X Custom", "abc", true},
		{"空名称", "", "abc", true},
		{"控制字符", "X-Test", "a\nb", true},
		{"非ASCII", "X-Test", "中文", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateHeader(tt.header, tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("期望错误=%v, 得到 %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateHeaders(t *testing.T) {
	headers := http.Header{}
	headers.Set("Referer", "https://hotpic.one/")
	if err := ValidateHeaders(headers); err != nil {
		t.Errorf("期望通过, 得到 %v", err)
	}

	headers.Set("Content-Length", "10")
	if err := ValidateHeaders(headers); err == nil {
		t.Error("包含禁止头部时应返回错误")
	}
}

func TestRedactHeaders(t *testing.T) {
	headers := http.Header{}
	headers.Set("Authorization", "Bearer abcdef")
	headers.Set("X-Api-Key", "1234567890abcd")
	headers.Set("X-Short-Token", "abc")
	headers.Set("Referer", "https://hotpic.one/")

	got := RedactHeaders(headers)
	want := map[string]string{
		"Authorization": "Bearer ***",
		"X-Api-Key":     "1234***abcd",
		"X-Short-Token": "***",
		"Referer":       "https://hotpic.one/",
	}
	for name, value := range want {
		if got[name] != value {
			t.Errorf("%s: 期望 %q, 得到 %q", name, value, got[name])
		}
	}
}

func TestWriteBatchReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "batch.json")
	report := &models.BatchReport{
		TotalURLs:    2,
		SuccessCount: 1,
		FailCount:    1,
		StartTime:    time.Now(),
		ItemCounts:   map[models.ItemKind]int{models.ItemKindImage: 3},
		FailedURLs: []models.FailedURL{
			{URL: "https://hotpic.one/album/x", ErrorKind: models.KindNoContentFound},
		},
	}

	if err := WriteBatchReport(path, report); err != nil {
		t.Fatalf("写入报告失败: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取报告失败: %v", err)
	}
	var decoded models.BatchReport
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("报告不是合法JSON: %v", err)
	}
	if decoded.FailCount != 1 || decoded.FailedURLs[0].ErrorKind != models.KindNoContentFound {
		t.Errorf("报告内容错误: %+v", decoded)
	}
}

func TestNewProgressBar(t *testing.T) {
	bar := NewProgressBar(3, "抓取", io.Discard)
	for i := 0; i < 3; i++ {
		if err := bar.Add(1); err != nil {
			t.Fatalf("更新进度失败: %v", err)
		}
	}
	if !bar.IsFinished() {
		t.Error("进度条应已完成")
	}
}
