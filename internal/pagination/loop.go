package pagination

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"cdpharvest/internal/logger"
	"cdpharvest/internal/replay"
	"cdpharvest/internal/stats"
	"cdpharvest/pkg/domain"
)

// State 分页循环状态
type State int

const (
	AwaitingFirstPage State = iota
	FetchingPage
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case FetchingPage:
		return "fetching"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return "awaiting_first_page"
	}
}

// Replayer 分页所需的重放能力
type Replayer interface {
	Replay(ctx context.Context, req *domain.CapturedRequest, mut replay.Mutation) ([]byte, error)
}

// Config 分页循环配置
type Config struct {
	CursorField  string
	NextCursor   string
	ItemKeys     []string
	IDKey        string
	StatusField  string
	VisibleValue string
	Delay        time.Duration
	StartCursor  string
	MaxPages     int // 0 表示不限
	Logger       logger.Logger
	Stats        *stats.Stats
}

// Result 第一阶段结果，失败时保留已累积的页
type Result struct {
	State      State
	Pages      int
	Entities   []domain.Entity
	Skipped    []domain.SkippedItem
	LastCursor string
	Err        error
}

// SkippedByStatus 按状态值统计被过滤的条目
func (r *Result) SkippedByStatus() map[string]int {
	out := make(map[string]int)
	for _, s := range r.Skipped {
		out[s.Status]++
	}
	return out
}

// Loop 重复重放列表请求并跟随续页游标
type Loop struct {
	rp  Replayer
	cfg Config
	log logger.Logger

	mu    sync.Mutex
	state State
}

// New 创建分页循环
func New(rp Replayer, cfg Config) *Loop {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &Loop{rp: rp, cfg: cfg, log: cfg.Logger, state: AwaitingFirstPage}
}

// State 当前状态
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
}

// Run 以 template 为模板同步执行分页直到终态
func (l *Loop) Run(ctx context.Context, template *domain.CapturedRequest) *Result {
	res := &Result{}
	seen := make(map[string]bool)
	// fetched 已请求过的游标，首页为 ""
	fetched := make(map[string]bool)
	cursor := l.cfg.StartCursor

	for {
		if err := ctx.Err(); err != nil {
			return l.finish(res, Failed, fmt.Errorf("list collection stopped: %w", err))
		}
		if l.cfg.MaxPages > 0 && res.Pages >= l.cfg.MaxPages {
			l.log.Info("达到最大页数，停止分页", "pages", res.Pages, "cursor", cursor)
			res.LastCursor = cursor
			return l.finish(res, Done, nil)
		}
		l.setState(FetchingPage)
		page := res.Pages + 1

		var mut replay.Mutation
		if cursor != "" {
			mut = replay.CursorInjection(l.cfg.CursorField, cursor)
		}
		// 单页请求不随运行预算中断，仅受自身超时约束
		body, err := l.rp.Replay(context.WithoutCancel(ctx), template, mut)
		fetched[cursor] = true
		res.Pages = page
		if err != nil {
			l.cfg.Stats.Failure(domain.KindOf(err), "page")
			l.log.Err(err, "列表页请求失败，停止分页", "page", page, "endpoint", template.URL, "kind", domain.KindOf(err))
			res.LastCursor = cursor
			return l.finish(res, Failed, err)
		}
		l.cfg.Stats.Page()
		l.accept(body, page, res, seen)

		next := gjson.GetBytes(body, gjson.Escape(l.cfg.NextCursor)).String()
		if next == "" {
			l.log.Info("最后一页，分页完成", "pages", page, "entities", len(res.Entities))
			return l.finish(res, Done, nil)
		}
		if fetched[next] {
			l.log.Warn("续页游标已请求过，停止分页", "page", page, "cursor", next)
			return l.finish(res, Done, nil)
		}
		cursor = next
		res.LastCursor = cursor

		if l.cfg.Delay > 0 {
			t := time.NewTimer(l.cfg.Delay)
			select {
			case <-ctx.Done():
				t.Stop()
			case <-t.C:
			}
		}
	}
}

// accept 从单页响应中提取条目并按可见性过滤
func (l *Loop) accept(body []byte, page int, res *Result, seen map[string]bool) {
	items, key, ok := ExtractItems(body, l.cfg.ItemKeys, l.cfg.IDKey)
	if !ok {
		err := fmt.Errorf("%w: no item array on page %d", domain.ErrPayloadShape, page)
		l.cfg.Stats.Failure(domain.KindOf(err), "page")
		l.log.Warn("列表页未找到条目数组", "page", page, "error", err)
		return
	}
	accepted := 0
	for _, it := range items {
		status := it.Get(gjson.Escape(l.cfg.StatusField)).String()
		if l.cfg.StatusField != "" && status != l.cfg.VisibleValue {
			res.Skipped = append(res.Skipped, domain.SkippedItem{
				ID:     it.Get(gjson.Escape(l.cfg.IDKey)).String(),
				Title:  it.Get("title").String(),
				Status: status,
			})
			continue
		}
		e, ok := ParseEntity(it, l.cfg.IDKey)
		if !ok || seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		res.Entities = append(res.Entities, e)
		accepted++
	}
	l.log.Info("列表页处理完成", "page", page, "key", key, "items", len(items), "accepted", accepted)
}

func (l *Loop) finish(res *Result, s State, err error) *Result {
	l.setState(s)
	res.State = s
	res.Err = err
	l.cfg.Stats.SetEntities(len(res.Entities))
	return res
}
