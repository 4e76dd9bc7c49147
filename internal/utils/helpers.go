package utils

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/RecoveryAshes/GalleryScraper/internal/models"
)

// ReadAlbumURLs 从文件中读取相册URL列表
// 每行一个URL,空行和#开头的注释行跳过;不合法或不在allowedHosts内的URL记录警告后跳过,重复的URL只保留第一次
func ReadAlbumURLs(path string, allowedHosts []string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开URL文件失败: %w", err)
	}
	defer file.Close()

	var (
		urls    []string
		seen    = make(map[string]struct{})
		skipped int
	)
	scanner := bufio.NewScanner(file)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if err := models.ValidateAlbumURL(line, allowedHosts); err != nil {
			Warnf("跳过无效URL (行 %d): %s - %v", lineNum, line, err)
			skipped++
			continue
		}
		if _, dup := seen[line]; dup {
			Debugf("跳过重复URL (行 %d): %s", lineNum, line)
			continue
		}
		seen[line] = struct{}{}
		urls = append(urls, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取URL文件失败: %w", err)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("URL文件中没有有效的相册URL (跳过 %d 行)", skipped)
	}

	Infof("从文件加载了 %d 个相册URL", len(urls))
	return urls, nil
}
