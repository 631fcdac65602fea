package crawlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/RecoveryAshes/tablexport/internal/collector"
	"github.com/RecoveryAshes/tablexport/internal/models"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/ysmood/gson"
)

// DefaultNextSelector 候选"下一页"控件
const DefaultNextSelector = `button, [role="button"], a`

// 读取第一个表格每个tr中指定类型单元格的innerText,没有表格时返回null
const rowsJS = `(cellType) => {
	const table = document.querySelector('table');
	if (!table) return null;
	return Array.from(table.querySelectorAll('tr')).map(tr =>
		Array.from(tr.querySelectorAll(cellType)).map(cell => cell.innerText));
}`

// 按文本或aria-label(忽略大小写)查找控件
const findControlJS = `(selector, label) => {
	const candidates = Array.from(document.querySelectorAll(selector));
	return candidates.find(el => {
		const text = (el.innerText || '').toLowerCase();
		const aria = (el.getAttribute('aria-label') || '').toLowerCase();
		return (text !== '' && text.includes(label)) || (aria !== '' && aria.includes(label));
	}) || null;
}`

// 监听第一个表格的子树变化,通过绑定函数回传
const observeJS = `(binding) => {
	const table = document.querySelector('table');
	if (!table) return false;
	const observer = new MutationObserver(mutations => {
		for (const m of mutations) {
			window[binding]({
				tag: m.target.tagName,
				added: m.addedNodes.length,
				removed: m.removedNodes.length,
			});
		}
	});
	observer.observe(table, { subtree: true, childList: true });
	window[binding + '_observer'] = observer;
	return true;
}`

const disconnectJS = `(binding) => {
	const observer = window[binding + '_observer'];
	if (observer) observer.disconnect();
	delete window[binding + '_observer'];
}`

// RodDocument 浏览器标签页中的表格
type RodDocument struct {
	page     *rod.Page
	selector string
}

// NewRodDocument 包装已打开的标签页
func NewRodDocument(page *rod.Page, selector string) *RodDocument {
	if strings.TrimSpace(selector) == "" {
		selector = DefaultNextSelector
	}
	return &RodDocument{page: page, selector: selector}
}

// TabID 标签页ID
func (d *RodDocument) TabID() string {
	return string(d.page.TargetID)
}

// Page 底层rod页面
func (d *RodDocument) Page() *rod.Page {
	return d.page
}

// Path 实现collector.Document
func (d *RodDocument) Path(ctx context.Context) (string, error) {
	res, err := d.page.Context(ctx).Eval(`() => window.location.pathname`)
	if err != nil {
		return "", fmt.Errorf("读取页面路径失败: %w", err)
	}
	return res.Value.Str(), nil
}

// Rows 实现collector.Document
func (d *RodDocument) Rows(ctx context.Context, cellType models.CellType) (models.Table, error) {
	res, err := d.page.Context(ctx).Eval(rowsJS, string(cellType))
	if err != nil {
		return nil, fmt.Errorf("读取表格失败: %w", err)
	}
	if res.Value.Nil() {
		return nil, collector.ErrNoTable
	}
	return tableFromJSON(res.Value), nil
}

// NextControl 实现collector.Document
func (d *RodDocument) NextControl(ctx context.Context, label string) (collector.Control, error) {
	el, err := d.page.Context(ctx).Sleeper(rod.NotFoundSleeper).ElementByJS(rod.Eval(findControlJS, d.selector, label))
	if err != nil {
		var notFound *rod.ElementNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("查找 %q: %w", label, collector.ErrNextControlNotFound)
		}
		return nil, fmt.Errorf("查找\"下一页\"控件失败: %w", err)
	}
	return &rodControl{el: el}, nil
}

// Observe 实现collector.Document
func (d *RodDocument) Observe(ctx context.Context) (collector.Subscription, error) {
	binding := "__tablexport_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	sub := &rodSubscription{
		ch:      make(chan models.MutationEvent, 64),
		closed:  make(chan struct{}),
		page:    d.page,
		binding: binding,
	}

	stop, err := d.page.Expose(binding, func(payload gson.JSON) (interface{}, error) {
		sub.push(eventFromJSON(payload))
		return nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("注册表格监听失败: %w", err)
	}
	sub.stop = stop

	res, err := d.page.Context(ctx).Eval(observeJS, binding)
	if err != nil {
		_ = stop()
		return nil, fmt.Errorf("注入表格监听失败: %w", err)
	}
	if !res.Value.Bool() {
		_ = stop()
		return nil, collector.ErrNoTable
	}

	log.Debug().Str("binding", binding).Msg("开始监听表格变化")
	return sub, nil
}

// Navigations 主frame开始导航时发出事件,ctx结束后channel关闭
// 页面自身发起的导航和浏览器地址栏发起的导航都会上报
func (d *RodDocument) Navigations(ctx context.Context) <-chan models.NavigationEvent {
	ch := make(chan models.NavigationEvent, 8)
	nav := mainFrameNavigation{tabID: d.TabID(), frameID: d.page.FrameID}

	emit := func(ev models.NavigationEvent, ok bool) {
		if !ok {
			return
		}
		select {
		case ch <- ev:
		default:
			log.Warn().Msgf("导航事件队列已满,丢弃: %s", ev.URL)
		}
	}

	wait := d.page.Context(ctx).EachEvent(
		func(e *proto.PageFrameRequestedNavigation) {
			emit(nav.event(e.FrameID, e.URL))
		},
		func(e *proto.PageFrameStartedLoading) {
			emit(nav.event(e.FrameID, ""))
		},
	)

	go func() {
		defer close(ch)
		wait()
	}()
	return ch
}

// mainFrameNavigation 过滤子frame的导航
type mainFrameNavigation struct {
	tabID   string
	frameID proto.PageFrameID
}

func (n mainFrameNavigation) event(frameID proto.PageFrameID, url string) (models.NavigationEvent, bool) {
	if frameID != n.frameID {
		return models.NavigationEvent{}, false
	}
	return models.NavigationEvent{TabID: n.tabID, FrameID: string(frameID), URL: url}, true
}

// Close 关闭标签页
func (d *RodDocument) Close() error {
	return d.page.Close()
}

type rodControl struct {
	el *rod.Element
}

func (c *rodControl) State(ctx context.Context) (models.ControlState, error) {
	el := c.el.Context(ctx)

	disabled, err := el.Property("disabled")
	if err != nil {
		return models.ControlState{}, fmt.Errorf("读取disabled属性失败: %w", err)
	}
	aria, err := el.Attribute("aria-disabled")
	if err != nil {
		return models.ControlState{}, fmt.Errorf("读取aria-disabled属性失败: %w", err)
	}

	state := models.ControlState{Found: true, NativeDisabled: disabled.Bool()}
	if aria != nil {
		state.AriaDisabled = *aria
	}
	return state, nil
}

// Click 使用元素自身的click(),不要求控件可见
func (c *rodControl) Click(ctx context.Context) error {
	_, err := c.el.Context(ctx).Eval(`() => this.click()`)
	return err
}

type rodSubscription struct {
	ch      chan models.MutationEvent
	closed  chan struct{}
	once    sync.Once
	page    *rod.Page
	binding string
	stop    func() error
}

func (s *rodSubscription) Events() <-chan models.MutationEvent {
	return s.ch
}

// push 由绑定回调调用,队列满时丢弃(已排队的事件足以触发读取)
func (s *rodSubscription) push(ev models.MutationEvent) {
	select {
	case <-s.closed:
		return
	default:
	}
	select {
	case s.ch <- ev:
	default:
	}
}

func (s *rodSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		if _, evalErr := s.page.Eval(disconnectJS, s.binding); evalErr != nil {
			log.Debug().Err(evalErr).Msg("断开表格监听失败")
		}
		if s.stop != nil {
			err = s.stop()
		}
	})
	return err
}

func tableFromJSON(value gson.JSON) models.Table {
	rows := value.Arr()
	table := make(models.Table, 0, len(rows))
	for _, row := range rows {
		cells := row.Arr()
		r := make(models.Row, 0, len(cells))
		for _, cell := range cells {
			r = append(r, cell.Str())
		}
		table = append(table, r)
	}
	return table
}

func eventFromJSON(payload gson.JSON) models.MutationEvent {
	return models.MutationEvent{
		TargetTag: payload.Get("tag").Str(),
		Added:     payload.Get("added").Int(),
		Removed:   payload.Get("removed").Int(),
	}
}
