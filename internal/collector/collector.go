package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RecoveryAshes/tablexport/internal/models"
	"github.com/RecoveryAshes/tablexport/internal/state"
	"github.com/rs/zerolog/log"
)

const (
	// resultBuffer Results channel的缓冲大小
	resultBuffer = 8

	// defaultEmptyPageGrace 控件已禁用但表格为空时再等待的时间
	defaultEmptyPageGrace = 500 * time.Millisecond
)

// Options 采集选项
type Options struct {
	TabID string // 当前标签页ID,写入运行状态时使用

	// NextLabel "下一页"控件的匹配文本(小写)
	NextLabel string

	// SettleDelay 表格变化后等待这么久没有新变化才读取,0表示立即读取
	SettleDelay time.Duration

	// StallTimeout 点击后表格在此时间内没有完成翻页则导出已采集数据,0表示不限
	StallTimeout time.Duration

	// MissingControlIsLastPage 启动时找不到控件按单页表格处理
	MissingControlIsLastPage bool

	// EmptyPageGrace 最后一页为空时等待数据出现的时间,默认500ms
	EmptyPageGrace time.Duration

	// OnPage 每采集一页后调用
	OnPage func(pages, rows int)

	// Now 时间来源,默认time.Now
	Now func() time.Time
}

// session 一次采集的状态,开始时创建,结束时销毁
type session struct {
	id        string
	path      string
	startedAt time.Time

	data     models.Table
	lastPage models.Table
	pages    int

	sub      Subscription
	events   <-chan models.MutationEvent
	awaiting bool // 已点击"下一页",等待表格更新
	added    bool // 点击后TBODY有新增节点
	empty    bool // 已在控件禁用时读到空表格

	settle *time.Timer
	stall  *time.Timer
}

func (s *session) stopTimers() {
	if s.settle != nil {
		s.settle.Stop()
		s.settle = nil
	}
	if s.stall != nil {
		s.stall.Stop()
		s.stall = nil
	}
}

// Collector 在单个goroutine中处理命令、表格变化和定时器,各步骤不会交错执行
type Collector struct {
	doc      Document
	store    state.Store
	exporter Exporter
	opts     Options

	session *session
	results chan models.RunResult
}

// New 创建采集器
func New(doc Document, store state.Store, exporter Exporter, opts Options) *Collector {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NextLabel == "" {
		opts.NextLabel = "next"
	}
	if opts.EmptyPageGrace <= 0 {
		opts.EmptyPageGrace = defaultEmptyPageGrace
	}
	return &Collector{
		doc:      doc,
		store:    store,
		exporter: exporter,
		opts:     opts,
		results:  make(chan models.RunResult, resultBuffer),
	}
}

// Results 每次采集结束时发布一个结果
func (c *Collector) Results() <-chan models.RunResult {
	return c.results
}

// Listen 处理命令直到ctx结束,或命令channel关闭且没有进行中的采集
func (c *Collector) Listen(ctx context.Context, commands <-chan models.Message) error {
	for {
		var (
			events  <-chan models.MutationEvent
			settleC <-chan time.Time
			stallC  <-chan time.Time
		)
		if s := c.session; s != nil {
			events = s.events
			if s.settle != nil {
				settleC = s.settle.C
			}
			if s.stall != nil {
				stallC = s.stall.C
			}
		}

		select {
		case <-ctx.Done():
			if c.session != nil {
				c.finalize(context.WithoutCancel(ctx), models.ReasonCancelled, ctx.Err())
			}
			return ctx.Err()

		case msg, ok := <-commands:
			if !ok {
				commands = nil
				break
			}
			c.handleCommand(ctx, msg)

		case ev, ok := <-events:
			if !ok {
				c.session.events = nil
				if c.session.awaiting {
					c.finalize(ctx, models.ReasonFailed, ErrObserverClosed)
				}
				break
			}
			c.handleEvent(ctx, ev)

		case <-settleC:
			c.session.settle = nil
			c.step(ctx)

		case <-stallC:
			c.session.stall = nil
			log.Warn().Str("session", c.session.id).Msgf("翻页超时(%s),导出已采集的 %d 页", c.opts.StallTimeout, c.session.pages)
			c.finalize(ctx, models.ReasonStalled, ErrStallTimeout)
		}

		if commands == nil && c.session == nil {
			return nil
		}
	}
}

func (c *Collector) handleCommand(ctx context.Context, msg models.Message) {
	switch msg.Type {
	case models.MessageLoadData:
		if c.session != nil {
			log.Debug().Str("session", c.session.id).Msg("采集已在进行中,忽略开始命令")
			return
		}
		c.start(ctx)

	case models.MessageStopExport, models.MessageUpdated:
		reason := models.ReasonStopped
		if msg.Type == models.MessageUpdated {
			reason = models.ReasonNavigated
		}
		if c.session == nil {
			log.Debug().Msgf("没有进行中的采集,忽略 %s", msg.Type)
			c.clearRunState(ctx)
			return
		}
		c.finalize(ctx, reason, nil)

	default:
		log.Warn().Msgf("未知的消息类型: %s", msg.Type)
	}
}

func (c *Collector) start(ctx context.Context) {
	s := &session{
		id:        models.NewSessionID(),
		startedAt: c.opts.Now(),
		path:      "/",
	}
	c.session = s

	if path, err := c.doc.Path(ctx); err != nil {
		log.Warn().Err(err).Msg("获取页面路径失败,使用根路径命名")
	} else if path != "" {
		s.path = path
	}

	log.Info().Str("session", s.id).Str("path", s.path).Msg("开始采集表格")

	found := true
	var controlState models.ControlState
	control, err := c.doc.NextControl(ctx, c.opts.NextLabel)
	switch {
	case errors.Is(err, ErrNextControlNotFound):
		if !c.opts.MissingControlIsLastPage {
			c.finalize(ctx, models.ReasonFailed, err)
			return
		}
		log.Info().Msgf("没有找到\"%s\"控件,按单页表格处理", c.opts.NextLabel)
		found = false
	case err != nil:
		c.finalize(ctx, models.ReasonFailed, err)
		return
	default:
		controlState, err = control.State(ctx)
		if err != nil {
			c.finalize(ctx, models.ReasonFailed, fmt.Errorf("读取控件状态失败: %w", err))
			return
		}
	}

	sub, err := c.doc.Observe(ctx)
	if err != nil {
		c.finalize(ctx, models.ReasonFailed, err)
		return
	}
	s.sub = sub
	s.events = sub.Events()

	headers, err := c.doc.Rows(ctx, models.CellHeader)
	if err != nil {
		c.finalize(ctx, models.ReasonFailed, fmt.Errorf("读取表头失败: %w", err))
		return
	}
	if len(headers) > 0 {
		s.data = append(s.data, headers[0])
	}

	rows, err := c.doc.Rows(ctx, models.CellData)
	if err != nil {
		c.finalize(ctx, models.ReasonFailed, fmt.Errorf("读取第一页失败: %w", err))
		return
	}
	c.appendPage(rows)

	if !found || controlState.Disabled() {
		c.finalize(ctx, models.ReasonCompleted, nil)
		return
	}
	c.advance(ctx, control)
}

func (c *Collector) handleEvent(ctx context.Context, ev models.MutationEvent) {
	s := c.session
	if !s.awaiting || !ev.IsTableBody() {
		return
	}
	if ev.Added > 0 {
		s.added = true
	}
	if c.opts.SettleDelay <= 0 {
		c.step(ctx)
		return
	}
	c.resetSettle(c.opts.SettleDelay)
}

func (c *Collector) resetSettle(d time.Duration) {
	s := c.session
	if s.settle != nil {
		s.settle.Stop()
	}
	s.settle = time.NewTimer(d)
}

// step 表格更新后读取新页面并决定是否继续翻页
func (c *Collector) step(ctx context.Context) {
	s := c.session
	if s == nil || !s.awaiting {
		return
	}

	control, err := c.doc.NextControl(ctx, c.opts.NextLabel)
	if errors.Is(err, ErrNextControlNotFound) {
		rows, rowsErr := c.doc.Rows(ctx, models.CellData)
		if rowsErr == nil {
			c.appendPage(rows)
		}
		c.finalize(ctx, models.ReasonControlLost, err)
		return
	}
	if err != nil {
		c.finalize(ctx, models.ReasonFailed, err)
		return
	}

	controlState, err := control.State(ctx)
	if err != nil {
		c.finalize(ctx, models.ReasonFailed, fmt.Errorf("读取控件状态失败: %w", err))
		return
	}

	rows, err := c.doc.Rows(ctx, models.CellData)
	if err != nil {
		c.finalize(ctx, models.ReasonFailed, fmt.Errorf("读取表格失败: %w", err))
		return
	}

	disabled := controlState.Disabled()

	if rows.DataRows() == 0 {
		if !disabled {
			log.Debug().Str("session", s.id).Msg("表格尚未填充,继续等待")
			return
		}
		// 最后一页为空: 先给数据一次出现的机会,仍为空则结束
		if !s.empty {
			s.empty = true
			c.resetSettle(c.opts.EmptyPageGrace)
			return
		}
		c.finalize(ctx, models.ReasonCompleted, nil)
		return
	}

	// 没有新增节点时内容不变说明旧行还未被替换
	if !disabled && !s.added && samePage(rows, s.lastPage) {
		log.Debug().Str("session", s.id).Msg("表格尚未更新完成,继续等待")
		return
	}

	if disabled {
		c.appendPage(rows)
		c.finalize(ctx, models.ReasonCompleted, nil)
		return
	}

	c.appendPage(rows)
	c.advance(ctx, control)
}

// advance 点击"下一页"并开始等待表格更新
func (c *Collector) advance(ctx context.Context, control Control) {
	s := c.session

	// 点击前的变化属于旧页面
	drainEvents(s.events)
	if s.settle != nil {
		s.settle.Stop()
		s.settle = nil
	}
	s.added = false
	s.empty = false

	if err := control.Click(ctx); err != nil {
		c.finalize(ctx, models.ReasonFailed, fmt.Errorf("点击\"下一页\"失败: %w", err))
		return
	}
	s.awaiting = true

	if s.stall != nil {
		s.stall.Stop()
		s.stall = nil
	}
	if c.opts.StallTimeout > 0 {
		s.stall = time.NewTimer(c.opts.StallTimeout)
	}
}

func (c *Collector) appendPage(rows models.Table) {
	s := c.session
	s.data = append(s.data, rows...)
	s.lastPage = rows
	s.pages++

	log.Debug().Str("session", s.id).Msgf("已采集第 %d 页,本页 %d 行", s.pages, rows.DataRows())
	if c.opts.OnPage != nil {
		c.opts.OnPage(s.pages, s.data.DataRows())
	}
}

// finalize 结束采集: 停止监听,导出非空数据,清理状态并发布结果
func (c *Collector) finalize(ctx context.Context, reason models.FinishReason, cause error) {
	s := c.session
	if s == nil {
		return
	}

	s.stopTimers()
	if s.sub != nil {
		if err := s.sub.Close(); err != nil {
			log.Debug().Err(err).Msg("关闭表格监听失败")
		}
	}

	finishedAt := c.opts.Now()
	result := models.RunResult{
		SessionID:  s.id,
		TabID:      c.opts.TabID,
		Reason:     reason,
		Pages:      s.pages,
		Rows:       s.data.DataRows(),
		StartedAt:  s.startedAt,
		FinishedAt: finishedAt,
		Err:        cause,
	}

	if result.Rows > 0 {
		name := models.ExportFilename(s.path, finishedAt)
		location, err := c.exporter.Export(ctx, name, s.data.CSV())
		if err != nil {
			log.Error().Err(err).Msg("导出CSV失败")
			result.Err = errors.Join(cause, fmt.Errorf("导出失败: %w", err))
		} else {
			result.File = location
			log.Info().Str("session", s.id).Msgf("已导出 %d 行(%d 页): %s", result.Rows, result.Pages, location)
		}
	} else {
		log.Info().Str("session", s.id).Msg("没有采集到数据,跳过导出")
	}

	c.session = nil
	c.clearRunState(ctx)

	if cause != nil {
		log.Warn().Err(cause).Str("session", s.id).Msgf("采集结束: %s", reason)
	} else {
		log.Info().Str("session", s.id).Msgf("采集结束: %s", reason)
	}

	select {
	case c.results <- result:
	default:
		log.Warn().Str("session", s.id).Msg("结果队列已满,丢弃采集结果")
	}
}

// clearRunState 只清除属于本标签页的运行状态
func (c *Collector) clearRunState(ctx context.Context) {
	if c.store == nil {
		return
	}
	running, err := c.store.Running(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("读取运行状态失败")
		return
	}
	if running == "" || running != c.opts.TabID {
		return
	}
	if err := c.store.Clear(ctx); err != nil {
		log.Warn().Err(err).Msg("清除运行状态失败")
	}
}

func drainEvents(events <-chan models.MutationEvent) {
	if events == nil {
		return
	}
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// samePage 比较两页的非空行
func samePage(a, b models.Table) bool {
	a, b = nonEmpty(a), nonEmpty(b)
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				return false
			}
		}
	}
	return true
}

func nonEmpty(t models.Table) models.Table {
	out := make(models.Table, 0, len(t))
	for _, row := range t {
		if !row.IsEmpty() {
			out = append(out, row)
		}
	}
	return out
}
