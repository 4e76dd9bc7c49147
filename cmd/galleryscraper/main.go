package main

import (
	"fmt"
	"os"

	"github.com/RecoveryAshes/GalleryScraper/internal/core"
	"github.com/RecoveryAshes/GalleryScraper/internal/utils"
	cc "github.com/ivanpirog/coloredcobra"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string
	headers    []string // 自定义HTTP请求头

	// 服务/池参数
	port     int
	capacity int
	waitlist int
	engine   string
	headless bool
)

// appConfig PersistentPreRunE加载后的配置,子命令共用
var appConfig *core.Config

var rootCmd = &cobra.Command{
	Use:   "galleryscraper",
	Short: "相册站点抓取服务",
	Long: `GalleryScraper - 基于无头浏览器的相册抓取服务

通过有界的标签页池抓取相册站点,支持:
  • 首页相册列表 (GET /api/albums?page=N)
  • 相册媒体列表 (GET /api/album?url=...)
  • FIFO等待队列与过载保护 (503 + Retry-After)
  • 浏览器断开自动恢复
  • 结果缓存与Prometheus指标
  • 批量抓取相册 (JSONL输出)

示例:
  # 启动HTTP服务 (默认端口3000)
  galleryscraper serve

  # 指定端口和标签页数
  galleryscraper serve --port 8080 --capacity 2

  # 批量抓取
  galleryscraper scrape -i albums.txt -o result.jsonl

  # 检查运行环境和配置
  galleryscraper check -H "Referer: https://hotpic.one/"

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}

		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		// 命令行参数覆盖配置文件
		var headlessFlag *bool
		if flag := cmd.Flags().Lookup("headless"); flag != nil && flag.Changed {
			headlessFlag = &headless
		}
		waitlistFlag := -1
		if flag := cmd.Flags().Lookup("waitlist"); flag != nil && flag.Changed {
			waitlistFlag = waitlist
		}
		level := logLevel
		if verbose && level == "" {
			level = "debug"
		}
		config.MergeCLIFlags(port, capacity, waitlistFlag, engine, headlessFlag, level)

		if err := ValidateFlags(config.Server.Port, config.Pool.Capacity, config.Pool.WaitlistLimit, string(config.Scrape.Engine), config.Batch.Workers); err != nil {
			return err
		}
		if err := config.Validate(); err != nil {
			return fmt.Errorf("配置无效: %w", err)
		}

		if err := utils.InitLogger(config.Logging); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}
		if verbose {
			utils.Info("详细模式已启用")
		}

		appConfig = config
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("GalleryScraper %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

// addPoolFlags 服务和批量抓取共用的池参数
func addPoolFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&capacity, "capacity", 0, "最大并发标签页数 (0表示按CPU/内存自动计算)")
	cmd.Flags().IntVar(&waitlist, "waitlist", 16, "等待队列上限")
	cmd.Flags().StringVar(&engine, "engine", "", "页面引擎 (rod|static)")
	cmd.Flags().BoolVar(&headless, "headless", true, "无头浏览器模式")
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")

	rootCmd.Flags().IntVarP(&port, "port", "p", 0, "监听端口 (默认读取PORT环境变量或3000)")
	addPoolFlags(rootCmd)

	rootCmd.AddCommand(serveCmd, scrapeCmd, checkCmd, versionCmd)
}

func main() {
	cc.Init(&cc.Config{
		RootCmd:       rootCmd,
		Headings:      cc.HiCyan + cc.Bold + cc.Underline,
		Commands:      cc.HiYellow + cc.Bold,
		Example:       cc.Italic,
		ExecName:      cc.Bold,
		Flags:         cc.Bold,
		FlagsDataType: cc.Italic + cc.HiBlue,
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
