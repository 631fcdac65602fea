package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/RecoveryAshes/tablexport/internal/core"
	"github.com/RecoveryAshes/tablexport/internal/i18n"
	"github.com/RecoveryAshes/tablexport/internal/models"
	"github.com/RecoveryAshes/tablexport/internal/state"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/spf13/cobra"
)

// checkResult 单项环境检查结果
type checkResult struct {
	Name   string
	OK     bool
	Detail string
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "检查运行环境",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("==============================================")
		fmt.Println("  tablexport 环境检查")
		fmt.Println("==============================================")
		fmt.Printf("系统: %s/%s, %s\n\n", runtime.GOOS, runtime.GOARCH, runtime.Version())

		failed := 0
		for _, r := range runChecks(cmd.Context(), appConfig, headers) {
			mark := "✅"
			if !r.OK {
				mark = "❌"
				failed++
			}
			fmt.Printf("%s %s: %s\n", mark, r.Name, r.Detail)
		}

		fmt.Println()
		if failed > 0 {
			return fmt.Errorf("%d 项检查未通过", failed)
		}
		fmt.Println("环境检查通过")
		return nil
	},
}

func runChecks(ctx context.Context, cfg *core.Config, cliHeaders []string) []checkResult {
	results := []checkResult{checkConfig(cfg)}
	if cfg.Export.Mode == models.ModeDynamic {
		results = append(results, checkBrowser(cfg.Export.BrowserBin))
	}
	results = append(results,
		checkWritable("输出目录", cfg.Output.BaseDir),
		checkRunState(ctx, cfg.State.Dir),
		checkHeaders(cfg.Headers.File, cliHeaders),
		checkLocale(cfg.Export.Locale),
	)
	return results
}

func checkConfig(cfg *core.Config) checkResult {
	if err := cfg.Validate(); err != nil {
		return checkResult{Name: "配置", Detail: err.Error()}
	}
	return checkResult{Name: "配置", OK: true, Detail: fmt.Sprintf("模式 %s", cfg.Export.Mode)}
}

func checkBrowser(bin string) checkResult {
	if bin != "" {
		if _, err := os.Stat(bin); err != nil {
			return checkResult{Name: "Chromium", Detail: fmt.Sprintf("browser_bin 不可用: %v", err)}
		}
		return checkResult{Name: "Chromium", OK: true, Detail: bin}
	}
	if path, ok := launcher.LookPath(); ok {
		return checkResult{Name: "Chromium", OK: true, Detail: path}
	}
	// 找不到时rod会在首次启动时下载
	return checkResult{Name: "Chromium", OK: true, Detail: "未找到本机浏览器,首次运行时自动下载"}
}

func checkWritable(name, dir string) checkResult {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return checkResult{Name: name, Detail: err.Error()}
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return checkResult{Name: name, Detail: fmt.Sprintf("不可写: %v", err)}
	}
	f.Close()
	os.Remove(f.Name())
	return checkResult{Name: name, OK: true, Detail: dir}
}

func checkRunState(ctx context.Context, dir string) checkResult {
	store, err := state.NewFileStore(dir)
	if err != nil {
		return checkResult{Name: "运行状态", Detail: err.Error()}
	}
	running, err := store.Running(ctx)
	if err != nil {
		return checkResult{Name: "运行状态", Detail: fmt.Sprintf("%v (可用 tablexport reset 清除)", err)}
	}
	if running != "" {
		return checkResult{Name: "运行状态", OK: true, Detail: fmt.Sprintf("标签页 %s 正在采集 (%s)", running, store.Path())}
	}
	return checkResult{Name: "运行状态", OK: true, Detail: "空闲 (" + store.Path() + ")"}
}

func checkHeaders(file string, cliHeaders []string) checkResult {
	hm, err := core.NewHeaderManager(file, cliHeaders)
	if err != nil {
		return checkResult{Name: "HTTP头部", Detail: err.Error()}
	}
	headers, err := hm.GetHeaders()
	if err != nil {
		return checkResult{Name: "HTTP头部", Detail: err.Error()}
	}
	return checkResult{Name: "HTTP头部", OK: true, Detail: fmt.Sprintf("%d 个", len(headers))}
}

func checkLocale(locale string) checkResult {
	catalog, err := i18n.Load()
	if err != nil {
		return checkResult{Name: "语言", Detail: err.Error()}
	}
	matched := catalog.Match(locale)
	detail := fmt.Sprintf("%s -> %s, \"下一页\"文案: %q", locale, matched, catalog.NextLabel(locale, ""))
	return checkResult{Name: "语言", OK: true, Detail: detail}
}
