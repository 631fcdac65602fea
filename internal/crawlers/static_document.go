package crawlers

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/RecoveryAshes/tablexport/internal/collector"
	"github.com/RecoveryAshes/tablexport/internal/models"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
)

// StaticOptions 静态抓取选项
type StaticOptions struct {
	NextSelector string
	Timeout      time.Duration // 单次请求超时,0表示30秒
	Headers      models.HeaderProvider
}

// StaticDocument 服务端渲染的分页表格,"下一页"控件必须是链接
// 点击控件会抓取链接目标并替换当前文档
type StaticDocument struct {
	opts  StaticOptions
	tabID string

	mu   sync.Mutex
	url  *url.URL
	doc  *goquery.Document
	subs map[*staticSubscription]struct{}
}

// NewStaticDocument 创建静态文档,需调用Open加载页面
func NewStaticDocument(opts StaticOptions) *StaticDocument {
	if strings.TrimSpace(opts.NextSelector) == "" {
		opts.NextSelector = DefaultNextSelector
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &StaticDocument{
		opts:  opts,
		tabID: "static-" + uuid.New().String(),
		subs:  make(map[*staticSubscription]struct{}),
	}
}

// TabID 虚拟标签页ID
func (d *StaticDocument) TabID() string {
	return d.tabID
}

// Open 抓取并解析起始页面
func (d *StaticDocument) Open(ctx context.Context, rawURL string) error {
	finalURL, doc, err := d.fetch(ctx, rawURL)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.url = finalURL
	d.doc = doc
	d.mu.Unlock()
	return nil
}

// fetch 使用Colly抓取页面,返回重定向后的URL和解析后的文档
func (d *StaticDocument) fetch(ctx context.Context, rawURL string) (*url.URL, *goquery.Document, error) {
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(d.opts.Timeout)
	c.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: true, // 与浏览器模式的ignore-certificate-errors保持一致
		},
	})

	var headers http.Header
	if d.opts.Headers != nil {
		h, err := d.opts.Headers.GetHeaders()
		if err != nil {
			return nil, nil, fmt.Errorf("获取HTTP头部失败: %w", err)
		}
		headers = h
	}

	c.OnRequest(func(r *colly.Request) {
		for name, values := range headers {
			if len(values) > 0 {
				r.Headers.Set(name, values[0])
			}
		}
		log.Debug().Msgf("访问: %s", r.URL.String())
	})

	var (
		body     []byte
		finalURL *url.URL
		encoding string
	)
	c.OnResponse(func(r *colly.Response) {
		body = r.Body
		finalURL = r.Request.URL
		encoding = r.Headers.Get("Content-Encoding")
	})

	if err := c.Visit(rawURL); err != nil {
		return nil, nil, fmt.Errorf("抓取页面失败 [%s]: %w", rawURL, err)
	}
	if finalURL == nil {
		return nil, nil, fmt.Errorf("抓取页面失败 [%s]: 没有收到响应", rawURL)
	}

	decoded, err := decodeBody(encoding, body)
	if err != nil {
		log.Warn().Err(err).Msgf("解压响应失败 [%s] (编码=%s),使用原始内容", rawURL, encoding)
		decoded = body
	}

	root, err := html.Parse(bytes.NewReader(decoded))
	if err != nil {
		return nil, nil, fmt.Errorf("解析HTML失败 [%s]: %w", rawURL, err)
	}
	return finalURL, goquery.NewDocumentFromNode(root), nil
}

// Path 实现collector.Document
func (d *StaticDocument) Path(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.url == nil {
		return "", fmt.Errorf("页面尚未加载")
	}
	if d.url.Path == "" {
		return "/", nil
	}
	return d.url.Path, nil
}

func (d *StaticDocument) firstTable() (*goquery.Selection, error) {
	if d.doc == nil {
		return nil, fmt.Errorf("页面尚未加载")
	}
	table := d.doc.Find("table").First()
	if table.Length() == 0 {
		return nil, collector.ErrNoTable
	}
	return table, nil
}

// Rows 实现collector.Document
func (d *StaticDocument) Rows(ctx context.Context, cellType models.CellType) (models.Table, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	table, err := d.firstTable()
	if err != nil {
		return nil, err
	}

	var result models.Table
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		row := models.Row{}
		tr.Find(string(cellType)).Each(func(_ int, cell *goquery.Selection) {
			row = append(row, cellText(cell))
		})
		result = append(result, row)
	})
	return result, nil
}

// NextControl 实现collector.Document
func (d *StaticDocument) NextControl(ctx context.Context, label string) (collector.Control, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.doc == nil {
		return nil, fmt.Errorf("页面尚未加载")
	}

	var found *goquery.Selection
	d.doc.Find(d.opts.NextSelector).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		text := strings.ToLower(cellText(el))
		aria := strings.ToLower(strings.TrimSpace(el.AttrOr("aria-label", "")))
		if (text != "" && strings.Contains(text, label)) || (aria != "" && strings.Contains(aria, label)) {
			found = el
			return false
		}
		return true
	})
	if found == nil {
		return nil, fmt.Errorf("查找 %q: %w", label, collector.ErrNextControlNotFound)
	}
	return &staticControl{doc: d, el: found, base: d.url}, nil
}

// Observe 实现collector.Document
func (d *StaticDocument) Observe(ctx context.Context) (collector.Subscription, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.firstTable(); err != nil {
		return nil, err
	}
	sub := &staticSubscription{doc: d, ch: make(chan models.MutationEvent, 16)}
	d.subs[sub] = struct{}{}
	return sub, nil
}

// navigate 加载新页面并通知订阅者表体已替换
func (d *StaticDocument) navigate(ctx context.Context, target string) error {
	finalURL, doc, err := d.fetch(ctx, target)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	if table, err := d.firstTable(); err == nil {
		removed = table.Find("tr").Length()
	}
	d.url = finalURL
	d.doc = doc
	added := 0
	if table, err := d.firstTable(); err == nil {
		added = table.Find("tr").Length()
	}

	ev := models.MutationEvent{TargetTag: "TBODY", Added: added, Removed: removed}
	for sub := range d.subs {
		select {
		case sub.ch <- ev:
		default:
		}
	}
	return nil
}

type staticControl struct {
	doc  *StaticDocument
	el   *goquery.Selection
	base *url.URL
}

// State 只有表单控件有原生disabled属性,与浏览器行为一致
func (c *staticControl) State(ctx context.Context) (models.ControlState, error) {
	state := models.ControlState{Found: true}
	switch goquery.NodeName(c.el) {
	case "button", "input", "select", "textarea", "fieldset":
		_, state.NativeDisabled = c.el.Attr("disabled")
	}
	state.AriaDisabled = c.el.AttrOr("aria-disabled", "")
	return state, nil
}

func (c *staticControl) Click(ctx context.Context) error {
	href, ok := c.el.Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return collector.ErrControlNotNavigable
	}

	ref, err := url.Parse(href)
	if err != nil {
		return fmt.Errorf("无效的链接 %q: %w", href, err)
	}
	return c.doc.navigate(ctx, c.base.ResolveReference(ref).String())
}

type staticSubscription struct {
	doc  *StaticDocument
	ch   chan models.MutationEvent
	once sync.Once
}

func (s *staticSubscription) Events() <-chan models.MutationEvent {
	return s.ch
}

func (s *staticSubscription) Close() error {
	s.once.Do(func() {
		s.doc.mu.Lock()
		delete(s.doc.subs, s)
		close(s.ch)
		s.doc.mu.Unlock()
	})
	return nil
}

// cellText 近似innerText: 合并连续空白
func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// decodeBody 根据Content-Encoding解压响应体
// Colly已处理gzip,只有内容仍带gzip魔数时才再次解压
func decodeBody(contentEncoding string, body []byte) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))

	switch encoding {
	case "gzip":
		if len(body) < 2 || body[0] != 0x1f || body[1] != 0x8b {
			return body, nil
		}
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gzip解压失败: %w", err)
		}
		defer reader.Close()
		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("gzip读取失败: %w", err)
		}
		return decompressed, nil

	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()
		decompressed, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("deflate读取失败: %w", err)
		}
		return decompressed, nil

	case "br":
		decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
		if err != nil {
			return nil, fmt.Errorf("brotli读取失败: %w", err)
		}
		return decompressed, nil

	case "", "identity":
		return body, nil

	default:
		log.Warn().Msgf("未知的Content-Encoding: %s", contentEncoding)
		return body, nil
	}
}
