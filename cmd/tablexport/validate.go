package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/RecoveryAshes/tablexport/internal/models"
)

// ValidateFlags 验证命令行标志
func ValidateFlags(targetURL, urlFile string) error {
	if targetURL == "" && urlFile == "" {
		return fmt.Errorf("必须指定 --url 或 --url-file")
	}
	if targetURL != "" && urlFile != "" {
		return fmt.Errorf("--url 和 --url-file 不能同时使用")
	}
	if targetURL != "" {
		normalized, err := NormalizeURL(targetURL)
		if err != nil {
			return fmt.Errorf("无效的目标URL: %w", err)
		}
		if err := models.ValidateURL(normalized); err != nil {
			return fmt.Errorf("无效的目标URL: %w", err)
		}
	}
	return nil
}

// NormalizeURL 没有协议时默认使用https
func NormalizeURL(urlStr string) (string, error) {
	urlStr = strings.TrimSpace(urlStr)
	if !strings.Contains(urlStr, "://") {
		urlStr = "https://" + urlStr
	}
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return "", err
	}
	return parsed.String(), nil
}
