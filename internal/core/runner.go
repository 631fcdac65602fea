package core

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/RecoveryAshes/tablexport/internal/collector"
	"github.com/RecoveryAshes/tablexport/internal/crawlers"
	"github.com/RecoveryAshes/tablexport/internal/i18n"
	"github.com/RecoveryAshes/tablexport/internal/messaging"
	"github.com/RecoveryAshes/tablexport/internal/models"
	"github.com/RecoveryAshes/tablexport/internal/state"
	"github.com/RecoveryAshes/tablexport/internal/utils"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
)

const (
	// commandBuffer 每个标签页的命令队列长度
	commandBuffer = 4

	// stopTimeout 中断后等待导出完成的最长时间
	stopTimeout = 30 * time.Second
)

// tab 一个可采集的标签页
type tab interface {
	collector.Document
	TabID() string
}

// RunnerOptions 运行器依赖,零值字段使用默认实现
type RunnerOptions struct {
	Store    state.Store
	Bus      *messaging.Bus
	Catalog  *i18n.Catalog
	Headers  *HeaderManager
	In       io.Reader // --wait-login 读取回车
	Out      io.Writer // 提示和进度输出
	Progress bool      // 显示进度
}

// Runner 打开页面并完成一次采集
type Runner struct {
	cfg      *Config
	opts     RunnerOptions
	store    state.Store
	bus      *messaging.Bus
	trigger  *Trigger
	watcher  *Watcher
	catalog  *i18n.Catalog
	headers  *HeaderManager
	reporter *utils.Reporter

	mu      sync.Mutex
	browser *crawlers.Browser
}

// NewRunner 创建运行器
func NewRunner(cfg *Config, opts RunnerOptions) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	if opts.Store == nil {
		store, err := state.NewFileStore(cfg.State.Dir)
		if err != nil {
			return nil, err
		}
		opts.Store = store
	}
	if opts.Bus == nil {
		opts.Bus = messaging.NewBus()
	}
	if opts.Catalog == nil {
		catalog, err := i18n.Load()
		if err != nil {
			return nil, err
		}
		opts.Catalog = catalog
	}
	if opts.Headers == nil {
		headers, err := NewHeaderManager(cfg.Headers.File, nil)
		if err != nil {
			return nil, err
		}
		opts.Headers = headers
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stderr
	}

	return &Runner{
		cfg:      cfg,
		opts:     opts,
		store:    opts.Store,
		bus:      opts.Bus,
		trigger:  NewTrigger(opts.Store, opts.Bus),
		watcher:  NewWatcher(opts.Store, opts.Bus),
		catalog:  opts.Catalog,
		headers:  opts.Headers,
		reporter: utils.NewReporter(cfg.Output.BaseDir),
	}, nil
}

// Trigger 运行器使用的触发器
func (r *Runner) Trigger() *Trigger {
	return r.trigger
}

// Run 打开targetURL,开始采集并等待结果
// ctx取消时发送停止命令,已采集的数据仍会导出
func (r *Runner) Run(ctx context.Context, targetURL string) (models.RunResult, error) {
	if err := models.ValidateURL(targetURL); err != nil {
		return models.RunResult{}, err
	}

	doc, err := r.open(ctx, targetURL)
	if err != nil {
		return models.RunResult{}, err
	}
	defer func() {
		if closer, ok := doc.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				log.Debug().Err(err).Msg("关闭标签页失败")
			}
		}
	}()

	tabID := doc.TabID()
	commands, unregister := r.bus.Register(tabID, commandBuffer)
	defer unregister()

	var spinner *progressbar.ProgressBar
	if r.opts.Progress {
		spinner = utils.NewSpinner(r.opts.Out, "采集中")
	}

	col := collector.New(doc, r.store, collector.FileExporter{Dir: r.cfg.Output.BaseDir}, collector.Options{
		TabID:                    tabID,
		NextLabel:                r.catalog.NextLabel(r.cfg.Export.Locale, r.cfg.Export.NextLabel),
		SettleDelay:              r.cfg.Export.SettleDelay,
		StallTimeout:             r.cfg.Export.StallTimeout,
		MissingControlIsLastPage: r.cfg.Export.MissingControlIsLastPage,
		OnPage: func(pages, rows int) {
			if spinner != nil {
				spinner.Describe(fmt.Sprintf("第 %d 页, 共 %d 行", pages, rows))
				_ = spinner.Add(1)
			}
		},
	})

	// 采集器不随ctx结束,中断时由停止命令导出
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
		r.releaseRunState(tabID)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := col.Listen(runCtx, commands); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Msg("采集器异常退出")
		}
	}()

	if rod, ok := doc.(*crawlers.RodDocument); ok {
		navigations := rod.Navigations(runCtx)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = r.watcher.Run(runCtx, navigations)
		}()
	}

	if r.cfg.Export.WaitLogin {
		if err := r.waitLogin(ctx); err != nil {
			return models.RunResult{TabID: tabID, Reason: models.ReasonCancelled, Err: err}, err
		}
	}

	if err := r.trigger.Start(ctx, tabID); err != nil {
		return models.RunResult{TabID: tabID, Reason: models.ReasonFailed, Err: err}, err
	}

	result, err := r.await(ctx, col, tabID)
	if spinner != nil {
		_ = spinner.Finish()
	}
	if err != nil {
		return result, err
	}

	r.printResult(result)
	if r.cfg.Output.Reports {
		report := models.NewRunReport(targetURL, result, r.cfg.Export)
		if path, err := r.reporter.SaveRunReport(report); err != nil {
			log.Warn().Err(err).Msg("保存运行报告失败")
		} else {
			log.Info().Msgf("运行报告: %s", path)
		}
	}
	return result, nil
}

func (r *Runner) open(ctx context.Context, targetURL string) (tab, error) {
	if r.cfg.Export.Mode == models.ModeStatic {
		doc := crawlers.NewStaticDocument(crawlers.StaticOptions{
			NextSelector: r.cfg.Export.NextSelector,
			Timeout:      r.cfg.Export.LoadTimeout,
			Headers:      r.headers,
		})
		if err := doc.Open(ctx, targetURL); err != nil {
			return nil, err
		}
		return doc, nil
	}

	browser, err := r.ensureBrowser()
	if err != nil {
		return nil, err
	}
	return browser.OpenTab(ctx, targetURL, r.cfg.Export.LoadTimeout)
}

// ensureBrowser 首次使用时启动浏览器,批量采集共用同一实例
func (r *Runner) ensureBrowser() (*crawlers.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser != nil {
		return r.browser, nil
	}
	if r.cfg.Export.WaitLogin && r.cfg.Export.Headless {
		log.Warn().Msg("无头模式下无法在浏览器中登录,请同时指定 --headless=false")
	}

	browser, err := crawlers.LaunchBrowser(crawlers.BrowserOptions{
		Headless:     r.cfg.Export.Headless,
		NoSandbox:    r.cfg.Export.NoSandbox,
		Bin:          r.cfg.Export.BrowserBin,
		Stealth:      r.cfg.Export.Stealth,
		NextSelector: r.cfg.Export.NextSelector,
		Headers:      r.headers.ForBrowser(),
	})
	if err != nil {
		return nil, err
	}
	r.browser = browser
	return browser, nil
}

func (r *Runner) waitLogin(ctx context.Context) error {
	fmt.Fprintln(r.opts.Out, r.catalog.Message(r.cfg.Export.Locale, i18n.KeyWaitLogin))

	done := make(chan error, 1)
	go func() {
		_, err := bufio.NewReader(r.opts.In).ReadString('\n')
		if errors.Is(err, io.EOF) {
			err = nil
		}
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// await 等待采集结果,ctx结束时先停止采集再等待导出
func (r *Runner) await(ctx context.Context, col *collector.Collector, tabID string) (models.RunResult, error) {
	select {
	case result := <-col.Results():
		return result, nil
	case <-ctx.Done():
	}

	log.Warn().Msg("收到中断信号,停止采集并导出已采集的数据")
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()

	if err := r.trigger.Stop(stopCtx, tabID); err != nil {
		log.Warn().Err(err).Msg("发送停止命令失败")
	}

	select {
	case result := <-col.Results():
		return result, nil
	case <-stopCtx.Done():
		err := fmt.Errorf("等待导出超时: %w", ctx.Err())
		return models.RunResult{TabID: tabID, Reason: models.ReasonCancelled, Err: err}, err
	}
}

// releaseRunState 标签页关闭后不应再被记录为采集中
func (r *Runner) releaseRunState(tabID string) {
	ctx := context.Background()
	running, err := r.store.Running(ctx)
	if err != nil || running != tabID {
		return
	}
	if err := r.store.Clear(ctx); err != nil {
		log.Warn().Err(err).Msg("清除运行状态失败")
	}
}

func (r *Runner) printResult(result models.RunResult) {
	locale := r.cfg.Export.Locale
	if result.Exported() {
		fmt.Fprintln(r.opts.Out, r.catalog.Messagef(locale, i18n.KeyExported, result.Rows, result.Pages, result.File))
	} else {
		fmt.Fprintln(r.opts.Out, r.catalog.Message(locale, i18n.KeyNothingExported))
	}
	if result.Err != nil {
		log.Warn().Err(result.Err).Msgf("采集结束: %s", result.Reason)
	}
}

// Close 关闭浏览器
func (r *Runner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.browser = nil
	return err
}
