package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"syscall"
	"time"

	"github.com/RecoveryAshes/GalleryScraper/internal/core"
	"github.com/RecoveryAshes/GalleryScraper/internal/models"
	"github.com/RecoveryAshes/GalleryScraper/internal/server"
	"github.com/RecoveryAshes/GalleryScraper/internal/utils"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/spf13/cobra"
)

// 批量抓取参数
var (
	inputFile       string
	outputFile      string
	reportFile      string
	batchWorkers    int
	continueOnError bool
)

// monitorInterval 后台资源采样间隔
const monitorInterval = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动HTTP服务 (默认命令)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// runServe 启动HTTP服务,收到SIGINT/SIGTERM后优雅关闭
func runServe(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(appConfig, headers)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			utils.Warnf("关闭运行时失败: %v", err)
		}
	}()

	rt.monitor.StartMonitoring(monitorInterval)

	srv := server.New(rt.scheduler, server.Options{
		Config:   appConfig.Server,
		Registry: rt.metrics.Registry(),
		Logger:   utils.Component("http"),
	})
	if err := srv.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("HTTP服务异常退出: %w", err)
	}

	utils.Info("✨ 服务已停止")
	return nil
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "批量抓取相册URL列表",
	Long: `从文件读取相册URL(每行一个,#开头为注释),逐个抓取媒体列表。
每个相册的结果作为一行JSON写入输出文件,结束后输出统计报告。`,
	Example: `  galleryscraper scrape -i albums.txt
  galleryscraper scrape -i albums.txt -o result.jsonl --report report.json --workers 4`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if inputFile == "" {
			return fmt.Errorf("必须指定 --input")
		}

		config := appConfig
		if cmd.Flags().Changed("workers") {
			config.Batch.Workers = batchWorkers
		}
		if cmd.Flags().Changed("continue-on-error") {
			config.Batch.ContinueOnError = continueOnError
		}
		if reportFile != "" {
			config.Batch.ReportFile = reportFile
		}
		if config.Batch.Workers < 1 || config.Batch.Workers > 100 {
			return fmt.Errorf("并发数必须在1-100之间,当前值: %d", config.Batch.Workers)
		}

		site, err := core.NewSiteProfile(config.Site)
		if err != nil {
			return fmt.Errorf("站点配置无效: %w", err)
		}
		urls, err := utils.ReadAlbumURLs(inputFile, site.AllowedHosts())
		if err != nil {
			return fmt.Errorf("读取URL文件失败: %w", err)
		}

		out, closeOut, err := openOutput(outputFile)
		if err != nil {
			return err
		}
		defer closeOut()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := newRuntime(config, headers)
		if err != nil {
			return err
		}
		defer func() {
			if err := rt.Close(); err != nil {
				utils.Warnf("关闭运行时失败: %v", err)
			}
		}()

		batch := core.NewBatchScraper(rt.scheduler, config.Batch, os.Stderr)
		report, batchErr := batch.ScrapeBatch(ctx, urls, out)

		if config.Batch.ReportFile != "" {
			if err := utils.WriteBatchReport(config.Batch.ReportFile, report); err != nil {
				return fmt.Errorf("写入报告失败: %w", err)
			}
			utils.Infof("📄 报告已写入: %s", config.Batch.ReportFile)
		}
		if batchErr != nil {
			return fmt.Errorf("批量抓取失败: %w", batchErr)
		}

		utils.Info("✨ 批量抓取任务完成!")
		return nil
	},
}

// openOutput 打开结果输出,为空或"-"时写到标准输出
func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("创建输出目录失败: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("创建输出文件失败: %w", err)
	}
	return file, func() {
		if err := file.Close(); err != nil {
			utils.Warnf("关闭输出文件失败: %v", err)
		}
	}, nil
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "检查运行环境、配置和HTTP头部",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(cmd.OutOrStdout(), appConfig, headers)
	},
}

// runCheck 打印环境信息并验证配置,不启动浏览器
func runCheck(w io.Writer, config *core.Config, cliHeaders []string) error {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, "🔍 运行环境检查")
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintf(w, "Go版本: %s (%s/%s)\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)

	monitor := newMonitor(config)
	sample := monitor.Sample()
	fmt.Fprintf(w, "CPU核数: %d, CPU使用率: %.1f%%\n", sample.NumCPU, sample.CPUPercent)
	fmt.Fprintf(w, "内存: 可用 %dMB / 总计 %dMB (%s)\n", sample.AvailableMemoryMB, sample.TotalMemoryMB, sample.MemoryPressure)

	capacity := config.Pool.Capacity
	if capacity == 0 {
		capacity = monitor.CalculateCapacity()
		fmt.Fprintf(w, "标签页池容量: %d (自动计算, 上限 %d)\n", capacity, config.Pool.MaxCapacity)
	} else {
		fmt.Fprintf(w, "标签页池容量: %d\n", capacity)
	}
	fmt.Fprintf(w, "等待队列上限: %d\n", config.Pool.WaitlistLimit)
	fmt.Fprintf(w, "页面引擎: %s\n", config.Scrape.Engine)

	if config.Scrape.Engine == models.EngineRod {
		switch {
		case config.Browser.RemoteURL != "":
			fmt.Fprintf(w, "浏览器: 远程 %s\n", config.Browser.RemoteURL)
		case config.Browser.Bin != "":
			fmt.Fprintf(w, "浏览器: %s\n", config.Browser.Bin)
		default:
			if path, found := launcher.LookPath(); found {
				fmt.Fprintf(w, "浏览器: %s\n", path)
			} else {
				fmt.Fprintln(w, "⚠️  未找到本地浏览器,首次启动时将自动下载")
			}
		}
	}

	if err := config.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}
	fmt.Fprintln(w, "✅ 配置验证通过")

	site, err := core.NewSiteProfile(config.Site)
	if err != nil {
		return err
	}
	headerManager, err := core.NewHeaderManager(config.Browser, site.HomeURL(), cliHeaders)
	if err != nil {
		return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
	}
	if err := headerManager.Validate(); err != nil {
		return fmt.Errorf("HTTP头部验证失败: %w", err)
	}

	safeHeaders := headerManager.GetSafeHeaders()
	names := make([]string, 0, len(safeHeaders))
	for name := range safeHeaders {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(w, "✅ 当前有效的HTTP头部 (%d个):\n", len(safeHeaders))
	for _, name := range names {
		fmt.Fprintf(w, "  %s: %s\n", name, safeHeaders[name])
	}

	if verbose {
		encoded, err := json.MarshalIndent(config, "", "  ")
		if err == nil {
			fmt.Fprintf(w, "生效配置:\n%s\n", encoded)
		}
	}
	return nil
}

func init() {
	serveCmd.Flags().IntVarP(&port, "port", "p", 0, "监听端口 (默认读取PORT环境变量或3000)")
	addPoolFlags(serveCmd)

	scrapeCmd.Flags().StringVarP(&inputFile, "input", "i", "", "相册URL列表文件 (必需)")
	scrapeCmd.Flags().StringVarP(&outputFile, "output", "o", "", "JSONL输出文件 (默认标准输出)")
	scrapeCmd.Flags().StringVar(&reportFile, "report", "", "统计报告JSON文件")
	scrapeCmd.Flags().IntVar(&batchWorkers, "workers", 2, "并发抓取的相册数")
	scrapeCmd.Flags().BoolVar(&continueOnError, "continue-on-error", true, "遇到错误继续处理")
	addPoolFlags(scrapeCmd)
}
