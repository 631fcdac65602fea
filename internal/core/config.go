package core

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/RecoveryAshes/tablexport/internal/models"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config 应用程序配置
type Config struct {
	Export  models.ExportConfig `mapstructure:"export"`
	Logging LoggingConfig       `mapstructure:"logging"`
	Output  OutputConfig        `mapstructure:"output"`
	State   StateConfig         `mapstructure:"state"`
	Batch   BatchConfig         `mapstructure:"batch"`
	Headers HeadersConfig       `mapstructure:"headers"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	BaseDir string `mapstructure:"base_dir"` // CSV输出目录
	Reports bool   `mapstructure:"reports"`  // 是否生成JSON运行报告
}

// StateConfig 运行状态配置
type StateConfig struct {
	Dir string `mapstructure:"dir"`
}

// BatchConfig 批量采集配置
type BatchConfig struct {
	Delay           time.Duration `mapstructure:"delay"`
	ContinueOnError bool          `mapstructure:"continue_on_error"`
}

// HeadersConfig 请求头部配置
type HeadersConfig struct {
	File string `mapstructure:"file"`
}

// LoadConfig 加载配置文件,configPath为空时搜索默认位置
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		// 显式指定的配置文件必须存在
		if _, err := os.Stat(configPath); err != nil {
			return nil, &models.ConfigError{FilePath: configPath, Cause: err}
		}
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".tablexport"))
		}
	}

	v.SetEnvPrefix("TABLEXPORT")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认值
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, &models.ConfigError{FilePath: configPath, Cause: err}
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if config.State.Dir == "" {
		config.State.Dir = DefaultStateDir()
	}
	return &config, nil
}

// DefaultStateDir 默认运行状态目录
func DefaultStateDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".tablexport")
	}
	return ".tablexport"
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("export.mode", string(models.ModeDynamic))
	v.SetDefault("export.locale", "en")
	v.SetDefault("export.next_label", "")
	v.SetDefault("export.next_selector", `button, [role="button"], a`)
	v.SetDefault("export.settle_delay", 250*time.Millisecond)
	v.SetDefault("export.stall_timeout", 30*time.Second)
	v.SetDefault("export.missing_control_is_last_page", true)
	v.SetDefault("export.headless", true)
	v.SetDefault("export.stealth", true)
	v.SetDefault("export.no_sandbox", false)
	v.SetDefault("export.browser_bin", "")
	v.SetDefault("export.wait_login", false)
	v.SetDefault("export.load_timeout", time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	v.SetDefault("output.base_dir", "output")
	v.SetDefault("output.reports", true)

	v.SetDefault("state.dir", DefaultStateDir())

	v.SetDefault("batch.delay", time.Duration(0))
	v.SetDefault("batch.continue_on_error", true)

	v.SetDefault("headers.file", "configs/headers.yaml")
}

// Validate 验证配置
func (c *Config) Validate() error {
	if err := c.Export.Validate(); err != nil {
		return err
	}
	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("无效的日志级别: %s", c.Logging.Level)
	}
	if c.Output.BaseDir == "" {
		return fmt.Errorf("输出目录不能为空")
	}
	if c.State.Dir == "" {
		return fmt.Errorf("状态目录不能为空")
	}
	if c.Batch.Delay < 0 {
		return fmt.Errorf("批量延迟不能为负数,当前值: %s", c.Batch.Delay)
	}
	return nil
}

// CLIOverrides 命令行显式指定的参数,nil表示未指定
type CLIOverrides struct {
	Mode         *string
	Locale       *string
	NextLabel    *string
	SettleDelay  *time.Duration
	StallTimeout *time.Duration
	Headless     *bool
	WaitLogin    *bool
	OutputDir    *string
	LogLevel     *string

	BatchDelay      *time.Duration
	ContinueOnError *bool
}

// MergeCLIFlags 命令行参数优先于配置文件
func (c *Config) MergeCLIFlags(o CLIOverrides) {
	if o.Mode != nil {
		c.Export.Mode = models.ExportMode(*o.Mode)
	}
	if o.Locale != nil {
		c.Export.Locale = *o.Locale
	}
	if o.NextLabel != nil {
		c.Export.NextLabel = *o.NextLabel
	}
	if o.SettleDelay != nil {
		c.Export.SettleDelay = *o.SettleDelay
	}
	if o.StallTimeout != nil {
		c.Export.StallTimeout = *o.StallTimeout
	}
	if o.Headless != nil {
		c.Export.Headless = *o.Headless
	}
	if o.WaitLogin != nil {
		c.Export.WaitLogin = *o.WaitLogin
	}
	if o.OutputDir != nil {
		c.Output.BaseDir = *o.OutputDir
	}
	if o.LogLevel != nil {
		c.Logging.Level = *o.LogLevel
	}
	if o.BatchDelay != nil {
		c.Batch.Delay = *o.BatchDelay
	}
	if o.ContinueOnError != nil {
		c.Batch.ContinueOnError = *o.ContinueOnError
	}
}
