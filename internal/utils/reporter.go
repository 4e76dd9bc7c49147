package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/RecoveryAshes/GalleryScraper/internal/models"
	"github.com/schollz/progressbar/v3"
)

// WriteBatchReport 将批量抓取报告写入JSON文件,必要时创建目录
func WriteBatchReport(path string, report *models.BatchReport) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建报告目录失败: %w", err)
		}
	}

	data, err := report.ToJSON()
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("写入报告文件失败: %w", err)
	}

	Debugf("保存报告: %s", path)
	return nil
}

// PrintBatchSummary 打印批量抓取摘要
func PrintBatchSummary(report *models.BatchReport) {
	Info("==================================================")
	Info("📊 批量抓取摘要")
	Info("==================================================")
	Infof("总URL数: %d", report.TotalURLs)
	Infof("✅ 成功: %d", report.SuccessCount)
	Infof("❌ 失败: %d", report.FailCount)
	for kind, n := range report.ItemCounts {
		Infof("📦 %s: %d", kind, n)
	}
	Infof("⏱️  总耗时: %.2f秒", report.Duration)
	Info("==================================================")

	if report.FailCount > 0 {
		Warn("失败的URL:")
		for _, failed := range report.FailedURLs {
			Warnf("  - %s: %s", failed.URL, failed.ErrorKind)
		}
	}
}

// NewProgressBar 创建进度条,输出到w
func NewProgressBar(max int, description string, w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
