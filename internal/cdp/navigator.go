package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cdpharvest/internal/logger"
	"cdpharvest/pkg/domain"
)

// Evaluator 执行页面脚本
type Evaluator interface {
	Evaluate(ctx context.Context, expr string) (string, error)
}

// Navigator 通过脚本修改 location 驱动页面跳转
type Navigator struct {
	ev     Evaluator
	settle time.Duration
	poll   time.Duration
	log    logger.Logger
}

// NewNavigator settle 为等待页面加载完成的上限
func NewNavigator(ev Evaluator, settle time.Duration, l logger.Logger) *Navigator {
	if l == nil {
		l = logger.NewNop()
	}
	return &Navigator{ev: ev, settle: settle, poll: 250 * time.Millisecond, log: l}
}

// Navigate 跳转到 url 并等待 document 加载完成或 settle 到期
func (n *Navigator) Navigate(ctx context.Context, url string) error {
	if _, err := n.ev.Evaluate(ctx, "window.location.href = "+strconv.Quote(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if n.settle <= 0 {
		return nil
	}
	deadline := time.NewTimer(n.settle)
	defer deadline.Stop()
	tick := time.NewTicker(n.poll)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deadline.C:
			n.log.Debug("页面加载等待到期", "url", url, "settle", n.settle)
			return nil
		case <-tick.C:
			state, err := n.ev.Evaluate(ctx, "document.readyState + '|' + window.location.href")
			if err != nil {
				// 跳转过程中上下文被销毁属于正常现象
				continue
			}
			if s, _ := jsonString(state); strings.HasPrefix(s, "complete|") && strings.TrimPrefix(s, "complete|") == url {
				return nil
			}
		}
	}
}

// CurrentURL 当前页面地址
func (n *Navigator) CurrentURL(ctx context.Context) (string, error) {
	raw, err := n.ev.Evaluate(ctx, "window.location.href")
	if err != nil {
		return "", err
	}
	s, err := jsonString(raw)
	if err != nil {
		return "", fmt.Errorf("%w: unexpected location value %s", domain.ErrProtocol, raw)
	}
	return s, nil
}

func jsonString(raw string) (string, error) {
	var s string
	err := json.Unmarshal([]byte(raw), &s)
	return s, err
}

// ListPageURL 从当前页面地址提取频道 ID 并填充列表页模板
func ListPageURL(pageURL, pattern, template string) (string, bool) {
	if pattern == "" || template == "" {
		return "", false
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", false
	}
	m := re.FindStringSubmatch(pageURL)
	if len(m) < 2 || m[1] == "" {
		return "", false
	}
	return strings.ReplaceAll(template, "{channel}", m[1]), true
}
