package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RecoveryAshes/tablexport/internal/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "logging:\n  level: debug\n"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %s, want debug", cfg.Logging.Level)
	}
	if cfg.Export.Mode != models.ModeDynamic {
		t.Errorf("Export.Mode = %s, want dynamic", cfg.Export.Mode)
	}
	if cfg.Export.SettleDelay != 250*time.Millisecond {
		t.Errorf("Export.SettleDelay = %s, want 250ms", cfg.Export.SettleDelay)
	}
	if cfg.Export.StallTimeout != 30*time.Second {
		t.Errorf("Export.StallTimeout = %s, want 30s", cfg.Export.StallTimeout)
	}
	if !cfg.Export.MissingControlIsLastPage || !cfg.Export.Headless || !cfg.Export.Stealth {
		t.Errorf("布尔默认值错误: %+v", cfg.Export)
	}
	if cfg.Output.BaseDir != "output" || !cfg.Output.Reports {
		t.Errorf("Output = %+v", cfg.Output)
	}
	if cfg.State.Dir != DefaultStateDir() {
		t.Errorf("State.Dir = %s, want %s", cfg.State.Dir, DefaultStateDir())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("默认配置应通过验证: %v", err)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := writeConfig(t, `
export:
  mode: static
  locale: zh
  next_label: 后页
  settle_delay: 500ms
  stall_timeout: 1m
  missing_control_is_last_page: false
output:
  base_dir: /tmp/tables
batch:
  delay: 2s
  continue_on_error: false
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Export.Mode != models.ModeStatic || cfg.Export.Locale != "zh" || cfg.Export.NextLabel != "后页" {
		t.Errorf("Export = %+v", cfg.Export)
	}
	if cfg.Export.SettleDelay != 500*time.Millisecond || cfg.Export.StallTimeout != time.Minute {
		t.Errorf("时间配置解析错误: settle=%s stall=%s", cfg.Export.SettleDelay, cfg.Export.StallTimeout)
	}
	if cfg.Export.MissingControlIsLastPage {
		t.Error("missing_control_is_last_page 应为 false")
	}
	if cfg.Output.BaseDir != "/tmp/tables" {
		t.Errorf("Output.BaseDir = %s", cfg.Output.BaseDir)
	}
	if cfg.Batch.Delay != 2*time.Second || cfg.Batch.ContinueOnError {
		t.Errorf("Batch = %+v", cfg.Batch)
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	var configErr *models.ConfigError
	if !errors.As(err, &configErr) {
		t.Errorf("LoadConfig() error = %v, want ConfigError", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Export: models.ExportConfig{
				Mode:         models.ModeStatic,
				NextSelector: "a",
				SettleDelay:  time.Millisecond,
				StallTimeout: time.Second,
			},
			Logging: LoggingConfig{Level: "info"},
			Output:  OutputConfig{BaseDir: "out"},
			State:   StateConfig{Dir: "state"},
		}
	}

	tests := []struct {
		name      string
		modify    func(*Config)
		expectErr bool
	}{
		{"有效配置", func(*Config) {}, false},
		{"无效模式", func(c *Config) { c.Export.Mode = "headless" }, true},
		{"无效日志级别", func(c *Config) { c.Logging.Level = "loud" }, true},
		{"输出目录为空", func(c *Config) { c.Output.BaseDir = "" }, true},
		{"状态目录为空", func(c *Config) { c.State.Dir = "" }, true},
		{"批量延迟为负", func(c *Config) { c.Batch.Delay = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)
			if err := cfg.Validate(); (err != nil) != tt.expectErr {
				t.Errorf("Validate() error = %v, expectErr %v", err, tt.expectErr)
			}
		})
	}
}

func TestConfig_MergeCLIFlags(t *testing.T) {
	cfg := &Config{
		Export: models.ExportConfig{Mode: models.ModeDynamic, Locale: "en", Headless: true},
		Output: OutputConfig{BaseDir: "output"},
	}

	mode := "static"
	stall := 5 * time.Second
	headless := false
	cfg.MergeCLIFlags(CLIOverrides{Mode: &mode, StallTimeout: &stall, Headless: &headless})

	if cfg.Export.Mode != models.ModeStatic {
		t.Errorf("Mode = %s, want static", cfg.Export.Mode)
	}
	if cfg.Export.StallTimeout != stall {
		t.Errorf("StallTimeout = %s, want %s", cfg.Export.StallTimeout, stall)
	}
	if cfg.Export.Headless {
		t.Error("Headless 应被命令行覆盖为 false")
	}
	// 未指定的参数保持配置文件的值
	if cfg.Export.Locale != "en" || cfg.Output.BaseDir != "output" {
		t.Errorf("未指定的参数被修改: %+v", cfg)
	}
}

func TestLoadConfig_ExampleFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join("..", "..", "configs", "config.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.State.Dir != DefaultStateDir() {
		t.Errorf("空的state.dir应使用默认目录, got %q", cfg.State.Dir)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("示例配置应通过验证: %v", err)
	}
}
