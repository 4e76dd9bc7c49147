package main

import (
	"fmt"

	"github.com/RecoveryAshes/GalleryScraper/internal/models"
)

// ValidateFlags 验证命令行标志
// capacity为0表示自动计算
func ValidateFlags(
	port int,
	capacity int,
	waitlist int,
	engine string,
	workers int,
) error {
	// 验证端口
	if port < 1 || port > 65535 {
		return fmt.Errorf("端口必须在1-65535之间,当前值: %d", port)
	}

	// 验证标签页数
	if capacity < 0 || capacity > 20 {
		return fmt.Errorf("标签页数必须在0-20之间,当前值: %d", capacity)
	}

	// 验证等待队列
	if waitlist < 0 || waitlist > 1000 {
		return fmt.Errorf("等待队列上限必须在0-1000之间,当前值: %d", waitlist)
	}

	// 验证引擎
	validEngines := map[models.Engine]bool{
		models.EngineRod:    true,
		models.EngineStatic: true,
	}
	if !validEngines[models.Engine(engine)] {
		return fmt.Errorf("无效的页面引擎: %s (有效值: rod, static)", engine)
	}

	// 验证并发数
	if workers < 1 || workers > 100 {
		return fmt.Errorf("并发数必须在1-100之间,当前值: %d", workers)
	}

	return nil
}
