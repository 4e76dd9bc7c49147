package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newTestLogConfig(dir, level string) LogConfig {
	return LogConfig{
		Level:      level,
		LogDir:     dir,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
	}
}

func TestInitLogger(t *testing.T) {
	tempDir := t.TempDir()

	if err := InitLogger(newTestLogConfig(tempDir, "debug")); err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}

	Info("测试信息日志")
	Warn("测试警告日志")
	Debug("测试调试日志")

	mainLogPath := filepath.Join(tempDir, mainLogName)
	if _, err := os.Stat(mainLogPath); os.IsNotExist(err) {
		t.Errorf("主日志文件未创建: %s", mainLogPath)
	}
}

func TestLogLevels(t *testing.T) {
	tempDir := t.TempDir()

	if err := InitLogger(newTestLogConfig(tempDir, "info")); err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	Infof("格式化信息日志: %s", "测试")
	Warnf("格式化警告日志: %d", 123)
	Debugf("调试日志不应写入: %v", true)

	content, err := os.ReadFile(filepath.Join(tempDir, mainLogName))
	if err != nil {
		t.Fatalf("读取日志文件失败: %v", err)
	}

	text := string(content)
	if !strings.Contains(text, "格式化信息日志: 测试") {
		t.Error("info级别日志未写入")
	}
	if strings.Contains(text, "调试日志不应写入") {
		t.Error("info级别下不应写入debug日志")
	}
}

func TestErrorLogOnlyErrors(t *testing.T) {
	tempDir := t.TempDir()

	if err := InitLogger(newTestLogConfig(tempDir, "info")); err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}

	Warn("这是一条警告")
	Errorf("这是一条错误: %s", "boom")

	content, err := os.ReadFile(filepath.Join(tempDir, errorLogName))
	if err != nil {
		t.Fatalf("读取错误日志失败: %v", err)
	}

	text := string(content)
	if !strings.Contains(text, "这是一条错误: boom") {
		t.Error("错误日志文件缺少error级别日志")
	}
	if strings.Contains(text, "这是一条警告") {
		t.Error("错误日志文件不应包含warn级别日志")
	}
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	if err := InitLogger(newTestLogConfig(t.TempDir(), "verbose")); err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}
	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("期望 info, 得到 %s", zerolog.GlobalLevel())
	}
}

func TestDefaultLogConfig(t *testing.T) {
	config := DefaultLogConfig()

	if config.Level != "info" {
		t.Errorf("默认日志级别错误: 期望 'info', 得到 '%s'", config.Level)
	}
	if config.LogDir != "logs" {
		t.Errorf("默认日志目录错误: 期望 'logs', 得到 '%s'", config.LogDir)
	}
	if config.MaxSize != 10 || config.MaxBackups != 3 || config.MaxAge != 28 {
		t.Errorf("默认轮转参数错误: %+v", config)
	}
	if !config.Compress || !config.Console {
		t.Error("默认应该启用压缩和控制台输出")
	}
}

func TestComponentLogger(t *testing.T) {
	tempDir := t.TempDir()
	if err := InitLogger(newTestLogConfig(tempDir, "info")); err != nil {
		t.Fatalf("初始化日志器失败: %v", err)
	}

	logger := Component("http")
	logger.Info().Msg("子日志器输出")

	content, err := os.ReadFile(filepath.Join(tempDir, mainLogName))
	if err != nil {
		t.Fatalf("读取日志文件失败: %v", err)
	}
	if !strings.Contains(string(content), `"component":"http"`) {
		t.Errorf("日志缺少component字段: %s", content)
	}
}
