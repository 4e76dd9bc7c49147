package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RecoveryAshes/GalleryScraper/internal/models"
	"github.com/RecoveryAshes/GalleryScraper/internal/utils"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀,如 GALLERY_POOL_CAPACITY
const EnvPrefix = "GALLERY"

// Config 应用程序配置
type Config struct {
	Server  ServerConfig         `mapstructure:"server"`
	Pool    models.PoolConfig    `mapstructure:"pool"`
	Scrape  models.ScrapeConfig  `mapstructure:"scrape"`
	Browser models.BrowserConfig `mapstructure:"browser"`
	Site    SiteConfig           `mapstructure:"site"`
	Cache   CacheConfig          `mapstructure:"cache"`
	Batch   BatchConfig          `mapstructure:"batch"`
	Logging utils.LogConfig      `mapstructure:"logging"`
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RetryAfter      time.Duration `mapstructure:"retry_after"` // POOL_SATURATED响应的Retry-After
}

// Addr 监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SiteConfig 目标站点配置
type SiteConfig struct {
	BaseURL      string   `mapstructure:"base_url"`
	HomePath     string   `mapstructure:"home_path"`
	PageTemplate string   `mapstructure:"page_template"` // 第2页起的路径模板,含一个%d
	HomeMarker   string   `mapstructure:"home_marker"`   // 为空时使用固定等待
	AlbumMarker  string   `mapstructure:"album_marker"`
	AllowedHosts []string `mapstructure:"allowed_hosts"` // 为空时只允许base_url的主机
}

// CacheConfig 结果缓存配置
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Size    int           `mapstructure:"size"`
	TTL     time.Duration `mapstructure:"ttl"` // 0表示只按容量淘汰
}

// BatchConfig 批量抓取配置
type BatchConfig struct {
	Workers         int    `mapstructure:"workers"`
	ContinueOnError bool   `mapstructure:"continue_on_error"`
	ReportFile      string `mapstructure:"report_file"`
}

// LoadConfig 加载配置文件
// 优先级: 环境变量 > 配置文件 > 默认值;启动时先加载当前目录的.env
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("加载.env失败: %w", err)
	}

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("galleryscraper")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".galleryscraper"))
		}
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// 兼容常见PaaS的PORT变量
	if err := v.BindEnv("server.port", EnvPrefix+"_SERVER_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("绑定环境变量失败: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return &config, nil
}

// DefaultConfig 全部使用默认值的配置
func DefaultConfig() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	// 默认值类型固定,解析不会失败
	_ = v.Unmarshal(&config)
	return &config
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.retry_after", "2s")

	v.SetDefault("pool.capacity", 0)
	v.SetDefault("pool.max_capacity", 4)
	v.SetDefault("pool.waitlist_limit", 16)

	v.SetDefault("scrape.engine", string(models.EngineRod))
	v.SetDefault("scrape.navigation_timeout", "30s")
	v.SetDefault("scrape.job_deadline", "45s")
	v.SetDefault("scrape.marker_timeout", "10s")
	v.SetDefault("scrape.fallback_wait", "1500ms")
	v.SetDefault("scrape.scroll_step", 900)
	v.SetDefault("scrape.max_scrolls", 30)
	v.SetDefault("scrape.scroll_delay", "120ms")
	v.SetDefault("scrape.rate_per_second", 0)
	v.SetDefault("scrape.block_resources", []string{"Image", "Media", "Font", "Stylesheet"})

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.bin", "")
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.user_agent", DefaultUserAgent)
	v.SetDefault("browser.viewport_width", 1280)
	v.SetDefault("browser.viewport_height", 2200)
	v.SetDefault("browser.headers", map[string]string{})

	v.SetDefault("site.base_url", "https://hotpic.one")
	v.SetDefault("site.home_path", "/nsfw/")
	v.SetDefault("site.page_template", "/nsfw/?page=%d")
	v.SetDefault("site.home_marker", `a[href*="/album/"]`)
	v.SetDefault("site.album_marker", ".hotgrid")
	v.SetDefault("site.allowed_hosts", []string{})

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.size", 256)
	v.SetDefault("cache.ttl", "30m")

	v.SetDefault("batch.workers", 2)
	v.SetDefault("batch.continue_on_error", true)
	v.SetDefault("batch.report_file", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)
	v.SetDefault("logging.console", true)
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server: 端口无效: %d", c.Server.Port)
	}
	if err := c.Pool.Validate(); err != nil {
		return fmt.Errorf("pool: %w", err)
	}
	if err := c.Scrape.Validate(); err != nil {
		return fmt.Errorf("scrape: %w", err)
	}
	if err := c.Browser.Validate(); err != nil {
		return fmt.Errorf("browser: %w", err)
	}
	if _, err := NewSiteProfile(c.Site); err != nil {
		return fmt.Errorf("site: %w", err)
	}
	if c.Cache.Enabled && c.Cache.Size < 1 {
		return fmt.Errorf("cache: 缓存容量必须大于0")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache: TTL不能为负数")
	}
	if c.Batch.Workers < 1 {
		return fmt.Errorf("batch: 并发数必须大于0")
	}
	return nil
}

// MergeCLIFlags 合并命令行参数到配置
// 零值(headless为nil, waitlist为负数)表示未指定,保留配置文件中的值
func (c *Config) MergeCLIFlags(
	port int,
	capacity int,
	waitlist int,
	engine string,
	headless *bool,
	logLevel string,
) {
	if port > 0 {
		c.Server.Port = port
	}
	if capacity > 0 {
		c.Pool.Capacity = capacity
	}
	if waitlist >= 0 {
		c.Pool.WaitlistLimit = waitlist
	}
	if engine != "" {
		c.Scrape.Engine = models.Engine(engine)
	}
	if headless != nil {
		c.Browser.Headless = *headless
	}
	if logLevel != "" {
		c.Logging.Level = logLevel
	}
}
