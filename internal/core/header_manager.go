package core

import (
	"net/http"
	"sync"

	"github.com/RecoveryAshes/tablexport/internal/config"
	"github.com/RecoveryAshes/tablexport/internal/models"
	"github.com/RecoveryAshes/tablexport/internal/utils"
)

const (
	// DefaultUserAgent 静态模式默认User-Agent
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/120.0.0.0 Safari/537.36"
)

// HeaderManager 合并请求头部: 默认 < 配置文件 < 命令行
// 实现 models.HeaderProvider
type HeaderManager struct {
	defaults http.Header
	cli      http.Header

	validator    *utils.HeaderValidator
	redactor     *utils.HeaderRedactor
	configLoader *config.HeaderConfigLoader

	once    sync.Once
	config  http.Header
	loadErr error
}

// NewHeaderManager 创建头部管理器,configFile为空时使用默认路径
func NewHeaderManager(configFile string, cliHeaders []string) (*HeaderManager, error) {
	cli, err := models.CliHeaders(cliHeaders).Parse()
	if err != nil {
		return nil, err
	}
	return &HeaderManager{
		defaults:     getDefaultHeaders(),
		cli:          cli,
		validator:    utils.NewHeaderValidator(),
		redactor:     utils.NewHeaderRedactor(),
		configLoader: config.NewHeaderConfigLoader(configFile),
	}, nil
}

// getDefaultHeaders 静态抓取时模拟浏览器
func getDefaultHeaders() http.Header {
	return http.Header{
		"User-Agent":      []string{DefaultUserAgent},
		"Accept":          []string{"text/html,application/xhtml+xml,*/*;q=0.8"},
		"Accept-Encoding": []string{"gzip, deflate, br"},
	}
}

// LoadConfig 加载配置文件,只执行一次
func (hm *HeaderManager) LoadConfig() error {
	hm.once.Do(func() {
		headerConfig, err := hm.configLoader.LoadConfig()
		if err != nil {
			utils.Errorf("加载HTTP头部配置失败: %v", err)
			hm.loadErr = err
			return
		}

		hm.config = make(http.Header)
		for name, value := range headerConfig.Headers {
			hm.config.Set(name, value)
		}
		if len(hm.config) > 0 {
			utils.Debugf("加载了%d个HTTP头部配置: %s", len(hm.config), hm.redactor.RedactToString(hm.config))
		}
	})
	return hm.loadErr
}

// Validate 依次验证配置文件和命令行头部
func (hm *HeaderManager) Validate() error {
	if err := hm.validator.Validate(hm.config); err != nil {
		utils.Errorf("配置文件头部验证失败: %v", err)
		return err
	}
	if err := hm.validator.Validate(hm.cli); err != nil {
		utils.Errorf("命令行头部验证失败: %v", err)
		return err
	}
	return nil
}

func merge(layers ...http.Header) http.Header {
	result := make(http.Header)
	for _, layer := range layers {
		for name, values := range layer {
			result[name] = values
		}
	}
	return result
}

// GetMergedHeaders 包含默认头部
func (hm *HeaderManager) GetMergedHeaders() http.Header {
	return merge(hm.defaults, hm.config, hm.cli)
}

// GetSafeHeaders 脱敏后的合并头部,用于日志
func (hm *HeaderManager) GetSafeHeaders() map[string]string {
	return hm.redactor.Redact(hm.GetMergedHeaders())
}

// GetHeaders 实现 models.HeaderProvider
func (hm *HeaderManager) GetHeaders() (http.Header, error) {
	if err := hm.LoadConfig(); err != nil {
		return nil, err
	}
	if err := hm.Validate(); err != nil {
		return nil, err
	}
	return hm.GetMergedHeaders(), nil
}

// ForBrowser 返回不含默认头部的提供者
// 浏览器自己管理User-Agent和Accept-Encoding
func (hm *HeaderManager) ForBrowser() models.HeaderProvider {
	return browserHeaders{hm}
}

type browserHeaders struct {
	hm *HeaderManager
}

func (b browserHeaders) GetHeaders() (http.Header, error) {
	if err := b.hm.LoadConfig(); err != nil {
		return nil, err
	}
	if err := b.hm.Validate(); err != nil {
		return nil, err
	}
	return merge(b.hm.config, b.hm.cli), nil
}
