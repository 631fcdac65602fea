// Package crawlers 提供表格页面的两种实现: 浏览器渲染(go-rod)和静态抓取(Colly)
//
// 两者都实现 collector.Document,采集器不关心页面来自哪里。
//
// # RodDocument
//
// 在真实的Chromium标签页中读取第一个表格。"下一页"控件通过JS在
// `button, [role="button"], a` 中按innerText或aria-label(忽略大小写)查找,
// 点击使用元素自身的click()。表格变化由页面内的MutationObserver通过
// page.Expose 绑定回传,主frame的导航请求通过 Navigations 发出。
//
//	browser, err := LaunchBrowser(BrowserOptions{Headless: true, Stealth: true})
//	if err != nil {
//		return err
//	}
//	defer browser.Close()
//
//	doc, err := browser.OpenTab(ctx, "https://example.com/reports", time.Minute)
//
// # StaticDocument
//
// 用于服务端渲染、"下一页"为普通链接的表格。页面由Colly抓取,
// 经 golang.org/x/net/html 解析后交给goquery查询。点击控件会抓取链接目标、
// 替换当前文档并发出一个TBODY变化事件;控件没有href时返回
// collector.ErrControlNotNavigable。
//
//	doc := NewStaticDocument(StaticOptions{Headers: headerManager})
//	if err := doc.Open(ctx, "https://example.com/reports?page=1"); err != nil {
//		return err
//	}
//
// # 请求头部
//
// 两种模式都从 models.HeaderProvider 读取头部: 浏览器模式通过
// Network.setExtraHTTPHeaders 设置,静态模式在Colly的OnRequest中设置。
package crawlers
