package core

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/RecoveryAshes/GalleryScraper/internal/crawlers/crawlertest"
	"github.com/RecoveryAshes/GalleryScraper/internal/models"
)

type batchLine struct {
	URL   string           `json:"url"`
	Count int              `json:"count"`
	Error models.ErrorKind `json:"error"`
}

func readLines(t *testing.T, buf *bytes.Buffer) map[string]batchLine {
	t.Helper()
	lines := make(map[string]batchLine)
	scanner := bufio.NewScanner(buf)
	for scanner.Scan() {
		var line batchLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("输出不是合法JSONL: %v", err)
		}
		lines[line.URL] = line
	}
	return lines
}

func TestBatchScraper_ScrapeBatch(t *testing.T) {
	f := newSchedulerFixture(t, 2, 4)
	f.factory.Serve("https://hotpic.one/album/empty", crawlertest.Fixture{HTML: crawlertest.LoadingHTML})

	urls := []string{
		crawlertest.AlbumURL,
		fastAlbumURL,
		"https://hotpic.one/album/empty",
		"https://other.example/album/x",
	}

	var out bytes.Buffer
	batch := NewBatchScraper(f.scheduler, BatchConfig{Workers: 2, ContinueOnError: true}, nil)
	report, err := batch.ScrapeBatch(context.Background(), urls, &out)
	if err != nil {
		t.Fatalf("批量抓取失败: %v", err)
	}

	if report.TotalURLs != 4 || report.SuccessCount != 2 || report.FailCount != 2 {
		t.Errorf("统计错误: total=%d success=%d fail=%d", report.TotalURLs, report.SuccessCount, report.FailCount)
	}
	if report.ItemCounts[models.ItemKindImage] != 6 || report.ItemCounts[models.ItemKindVideo] != 2 {
		t.Errorf("记录统计错误: %v", report.ItemCounts)
	}
	if report.ErrorCounts[models.KindNoContentFound] != 1 || report.ErrorCounts[models.KindInvalidURL] != 1 {
		t.Errorf("错误统计错误: %v", report.ErrorCounts)
	}

	lines := readLines(t, &out)
	if len(lines) != 4 {
		t.Fatalf("期望4行输出, 得到 %d", len(lines))
	}
	if lines[crawlertest.AlbumURL].Count != 4 {
		t.Errorf("相册记录数错误: %+v", lines[crawlertest.AlbumURL])
	}
	if lines["https://hotpic.one/album/empty"].Error != models.KindNoContentFound {
		t.Errorf("期望 NO_CONTENT_FOUND, 得到 %+v", lines["https://hotpic.one/album/empty"])
	}
	assertBalanced(t, f.pool)
}

func TestBatchScraper_StopOnError(t *testing.T) {
	f := newSchedulerFixture(t, 1, 4)

	urls := []string{"https://other.example/album/x", crawlertest.AlbumURL, fastAlbumURL}

	var out bytes.Buffer
	batch := NewBatchScraper(f.scheduler, BatchConfig{Workers: 1, ContinueOnError: false}, nil)
	report, err := batch.ScrapeBatch(context.Background(), urls, &out)
	if err == nil {
		t.Fatal("continue_on_error=false 时第一个失败应中止")
	}
	if report.FailCount < 1 || report.SuccessCount+report.FailCount >= len(urls) {
		t.Errorf("应在处理完全部URL之前中止: success=%d fail=%d", report.SuccessCount, report.FailCount)
	}
}

func TestBatchScraper_RetriesSaturated(t *testing.T) {
	f := newSchedulerFixture(t, 1, 0, withoutCache())
	f.factory.Serve(crawlertest.AlbumURL, crawlertest.Fixture{HTML: crawlertest.AlbumHTML, Delay: 50 * time.Millisecond})
	f.factory.Serve(fastAlbumURL, crawlertest.Fixture{HTML: crawlertest.AlbumHTML, Delay: 50 * time.Millisecond})

	batch := NewBatchScraper(f.scheduler, BatchConfig{Workers: 2, ContinueOnError: true}, nil)
	batch.retryDelay = 80 * time.Millisecond

	var out bytes.Buffer
	report, err := batch.ScrapeBatch(context.Background(), []string{crawlertest.AlbumURL, fastAlbumURL}, &out)
	if err != nil {
		t.Fatalf("批量抓取失败: %v", err)
	}
	if report.SuccessCount != 2 {
		t.Errorf("等待队列已满时应重试, 成功数: %d, 失败: %v", report.SuccessCount, report.FailedURLs)
	}
}
