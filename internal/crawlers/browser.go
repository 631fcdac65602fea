package crawlers

import (
	"context"
	"fmt"
	"time"

	"github.com/RecoveryAshes/tablexport/internal/models"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog/log"
	"github.com/ysmood/gson"
)

// BrowserOptions 浏览器启动选项
type BrowserOptions struct {
	Headless  bool
	NoSandbox bool
	Bin       string // 为空时自动查找本机Chromium
	Stealth   bool   // 新标签页注入stealth脚本

	// NextSelector 候选"下一页"控件的CSS选择器
	NextSelector string

	// Headers 页面请求附加的HTTP头部,可为nil
	Headers models.HeaderProvider
}

// Browser 由go-rod驱动的Chromium实例
type Browser struct {
	opts     BrowserOptions
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// LaunchBrowser 启动浏览器并建立CDP连接
func LaunchBrowser(opts BrowserOptions) (*Browser, error) {
	l := launcher.New().Headless(opts.Headless)
	if opts.NoSandbox {
		l = l.NoSandbox(true)
	}

	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	} else if path, ok := launcher.LookPath(); ok {
		l = l.Bin(path)
	}

	// 允许访问自签名、过期或主机名不匹配的HTTPS站点
	l = l.Set("ignore-certificate-errors")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}

	log.Debug().Msgf("浏览器已启动: %s (headless=%v)", controlURL, opts.Headless)
	return &Browser{opts: opts, launcher: l, browser: browser}, nil
}

// OpenTab 新建标签页并打开url,等待页面加载完成
func (b *Browser) OpenTab(ctx context.Context, url string, loadTimeout time.Duration) (*RodDocument, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("创建标签页失败(浏览器可能已崩溃): %w", err)
	}

	// stealth和头部必须在导航前设置
	if b.opts.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			log.Warn().Err(err).Msg("注入stealth脚本失败,继续以普通模式运行")
		}
	}
	if err := b.applyHeaders(page); err != nil {
		_ = page.Close()
		return nil, err
	}

	p := page.Context(ctx)
	if loadTimeout > 0 {
		p = p.Timeout(loadTimeout)
	}
	if err := p.Navigate(url); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("打开页面失败 [%s]: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("等待页面加载失败 [%s]: %w", url, err)
	}

	log.Debug().Msgf("标签页已打开: %s (%s)", url, page.TargetID)
	return NewRodDocument(page, b.opts.NextSelector), nil
}

func (b *Browser) applyHeaders(page *rod.Page) error {
	if b.opts.Headers == nil {
		return nil
	}
	headers, err := b.opts.Headers.GetHeaders()
	if err != nil {
		return fmt.Errorf("获取HTTP头部失败: %w", err)
	}
	if len(headers) == 0 {
		return nil
	}

	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		return fmt.Errorf("启用网络域失败: %w", err)
	}
	err = proto.NetworkSetExtraHTTPHeaders{
		Headers: toHeadersMap(models.FlattenHeaders(headers)),
	}.Call(page)
	if err != nil {
		return fmt.Errorf("设置HTTP头部失败: %w", err)
	}
	log.Debug().Msgf("标签页已应用 %d 个自定义头部", len(headers))
	return nil
}

// Close 关闭浏览器并清理用户数据目录
func (b *Browser) Close() error {
	if b == nil || b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.launcher.Cleanup()
	log.Debug().Msg("浏览器已关闭")
	return err
}

func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}
