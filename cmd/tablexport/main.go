package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/RecoveryAshes/tablexport/internal/core"
	"github.com/RecoveryAshes/tablexport/internal/i18n"
	"github.com/RecoveryAshes/tablexport/internal/messaging"
	"github.com/RecoveryAshes/tablexport/internal/models"
	"github.com/RecoveryAshes/tablexport/internal/state"
	"github.com/RecoveryAshes/tablexport/internal/utils"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile     string
	verbose        bool
	logLevel       string
	headers        []string
	validateConfig bool

	// 采集参数
	targetURL    string
	urlFile      string
	mode         string
	locale       string
	nextLabel    string
	stallTimeout time.Duration
	settleDelay  time.Duration
	headless     bool
	waitLogin    bool
	outputDir    string
	noProgress   bool

	// 批量处理参数
	batchDelay      time.Duration
	continueOnError bool
)

// appConfig 由PersistentPreRunE加载
var appConfig *core.Config

var rootCmd = &cobra.Command{
	Use:   "tablexport",
	Short: "分页表格导出CSV工具",
	Long: `tablexport - 逐页点击"下一页"采集网页表格并导出为CSV

  • 浏览器模式(go-rod)支持脚本翻页的表格
  • 静态模式(Colly)支持链接翻页的服务端渲染表格
  • "下一页"文案按语言匹配,可用 --next-label 覆盖
  • 中断(Ctrl+C)或页面跳转时导出已采集的数据
  • 自定义HTTP请求头(登录Cookie等)

示例:
  tablexport run -u https://example.com/orders
  tablexport run -u https://example.com/orders --headless=false --wait-login
  tablexport run -u https://example.com/list --mode static --locale zh
  tablexport run -f urls.txt -H "Cookie: session=xxx"
  tablexport status
  tablexport --validate-config

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		config.MergeCLIFlags(overridesFrom(cmd))
		appConfig = config

		logConfig := utils.LogConfig{
			Level:      config.Logging.Level,
			LogDir:     config.Logging.LogDir,
			MaxSize:    config.Logging.Rotation.MaxSize,
			MaxBackups: config.Logging.Rotation.MaxBackups,
			MaxAge:     config.Logging.Rotation.MaxAge,
			Compress:   config.Logging.Rotation.Compress,
		}
		if verbose {
			logConfig.Level = "debug"
		}
		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if validateConfig {
			return runValidateConfig()
		}
		return cmd.Help()
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "采集分页表格并导出CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ValidateFlags(targetURL, urlFile); err != nil {
			return err
		}
		if err := appConfig.Validate(); err != nil {
			return fmt.Errorf("配置验证失败: %w", err)
		}

		headerManager, err := core.NewHeaderManager(appConfig.Headers.File, headers)
		if err != nil {
			return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
		}

		runner, err := core.NewRunner(appConfig, core.RunnerOptions{
			Headers:  headerManager,
			Out:      os.Stdout,
			Progress: !noProgress,
		})
		if err != nil {
			return err
		}
		defer runner.Close()

		// Ctrl+C 停止采集并导出已采集的数据
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if urlFile != "" {
			urls, err := utils.ReadURLsFromFile(urlFile)
			if err != nil {
				return err
			}
			summary, err := core.NewBatchRunner(runner, appConfig.Batch).RunBatch(ctx, urls)
			if err != nil {
				return fmt.Errorf("批量采集中断: %w", err)
			}
			if summary.FailCount > 0 && summary.SuccessCount == 0 {
				return fmt.Errorf("全部 %d 个URL采集失败", summary.FailCount)
			}
			return nil
		}

		normalized, err := NormalizeURL(targetURL)
		if err != nil {
			return fmt.Errorf("无效的目标URL: %w", err)
		}
		result, err := runner.Run(ctx, normalized)
		if err != nil {
			return err
		}
		if result.Reason == models.ReasonFailed {
			return fmt.Errorf("采集失败: %w", result.Err)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "显示当前是否有采集任务",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, catalog, err := openStateAndCatalog()
		if err != nil {
			return err
		}

		tabID, running, err := core.NewTrigger(store, messaging.NewBus()).Status(cmd.Context())
		if err != nil {
			return err
		}
		if running {
			fmt.Println(catalog.Messagef(appConfig.Export.Locale, i18n.KeyRunning, tabID))
		} else {
			fmt.Println(catalog.Message(appConfig.Export.Locale, i18n.KeyIdle))
		}
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "清除残留的运行状态",
	Long:  "进程异常退出后运行状态可能仍记录着已关闭的标签页,导致新的采集被拒绝。",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := state.NewFileStore(appConfig.State.Dir)
		if err != nil {
			return err
		}
		if err := store.Clear(cmd.Context()); err != nil {
			return fmt.Errorf("清除运行状态失败: %w", err)
		}
		utils.Infof("运行状态已清除: %s", store.Path())
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tablexport %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

func openStateAndCatalog() (*state.FileStore, *i18n.Catalog, error) {
	store, err := state.NewFileStore(appConfig.State.Dir)
	if err != nil {
		return nil, nil, err
	}
	catalog, err := i18n.Load()
	if err != nil {
		return nil, nil, err
	}
	return store, catalog, nil
}

func runValidateConfig() error {
	if err := appConfig.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}

	headerManager, err := core.NewHeaderManager(appConfig.Headers.File, headers)
	if err != nil {
		return err
	}
	utils.Info("验证HTTP头部配置...")
	if err := headerManager.LoadConfig(); err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	if err := headerManager.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}

	safeHeaders := headerManager.GetSafeHeaders()
	names := make([]string, 0, len(safeHeaders))
	for name := range safeHeaders {
		names = append(names, name)
	}
	sort.Strings(names)

	utils.Info("配置验证通过")
	utils.Infof("采集模式: %s, 语言: %s", appConfig.Export.Mode, appConfig.Export.Locale)
	utils.Infof("当前有效的HTTP头部 (%d个):", len(names))
	for _, name := range names {
		utils.Infof("  %s: %s", name, safeHeaders[name])
	}
	return nil
}

// overridesFrom 只收集用户显式指定的参数
func overridesFrom(cmd *cobra.Command) core.CLIOverrides {
	var o core.CLIOverrides
	flags := cmd.Flags()
	if flags.Changed("mode") {
		o.Mode = &mode
	}
	if flags.Changed("locale") {
		o.Locale = &locale
	}
	if flags.Changed("next-label") {
		o.NextLabel = &nextLabel
	}
	if flags.Changed("settle-delay") {
		o.SettleDelay = &settleDelay
	}
	if flags.Changed("stall-timeout") {
		o.StallTimeout = &stallTimeout
	}
	if flags.Changed("headless") {
		o.Headless = &headless
	}
	if flags.Changed("wait-login") {
		o.WaitLogin = &waitLogin
	}
	if flags.Changed("output") {
		o.OutputDir = &outputDir
	}
	if flags.Changed("log-level") {
		o.LogLevel = &logLevel
	}
	if flags.Changed("batch-delay") {
		o.BatchDelay = &batchDelay
	}
	if flags.Changed("continue-on-error") {
		o.ContinueOnError = &continueOnError
	}
	return o
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringVar(&locale, "locale", "en", "\"下一页\"文案和提示语言 (en|zh|fr|de|es|ja)")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "output", "输出目录")
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")
	rootCmd.Flags().BoolVar(&validateConfig, "validate-config", false, "验证配置文件正确性")

	// 采集参数
	runCmd.Flags().StringVarP(&targetURL, "url", "u", "", "表格页面URL (必需,除非使用 --url-file)")
	runCmd.Flags().StringVarP(&urlFile, "url-file", "f", "", "包含URL列表的文件路径")
	runCmd.Flags().StringVarP(&mode, "mode", "m", "dynamic", "采集模式 (dynamic|static)")
	runCmd.Flags().StringVar(&nextLabel, "next-label", "", "\"下一页\"控件文本,覆盖语言默认值")
	runCmd.Flags().DurationVar(&stallTimeout, "stall-timeout", 30*time.Second, "翻页超时,超时后导出已采集数据 (0表示不限)")
	runCmd.Flags().DurationVar(&settleDelay, "settle-delay", 250*time.Millisecond, "表格停止变化多久后读取")
	runCmd.Flags().BoolVar(&headless, "headless", true, "无头浏览器模式")
	runCmd.Flags().BoolVar(&waitLogin, "wait-login", false, "开始前等待在浏览器中登录(按回车继续)")
	runCmd.Flags().BoolVar(&noProgress, "no-progress", false, "不显示进度")

	// 批量处理参数
	runCmd.Flags().DurationVar(&batchDelay, "batch-delay", 0, "批量处理URL间延迟")
	runCmd.Flags().BoolVar(&continueOnError, "continue-on-error", true, "遇到错误继续处理")

	rootCmd.AddCommand(runCmd, statusCmd, resetCmd, doctorCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
