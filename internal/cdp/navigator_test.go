package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePage 记录脚本并在若干次轮询后报告加载完成
type fakePage struct {
	mu      sync.Mutex
	exprs   []string
	href    string
	polls   int
	readyAt int
	fail    error
}

func (p *fakePage) Evaluate(_ context.Context, expr string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exprs = append(p.exprs, expr)
	if p.fail != nil {
		return "", p.fail
	}
	if strings.HasPrefix(expr, "window.location.href = ") {
		var u string
		_ = json.Unmarshal([]byte(strings.TrimPrefix(expr, "window.location.href = ")), &u)
		p.href = u
		return `"` + u + `"`, nil
	}
	if expr == "window.location.href" {
		b, _ := json.Marshal(p.href)
		return string(b), nil
	}
	p.polls++
	state := "loading"
	if p.polls >= p.readyAt {
		state = "complete"
	}
	b, _ := json.Marshal(state + "|" + p.href)
	return string(b), nil
}

func TestNavigateWaitsForLoad(t *testing.T) {
	page := &fakePage{readyAt: 3}
	n := NewNavigator(page, 5*time.Second, nil)
	n.poll = time.Millisecond

	require.NoError(t, n.Navigate(context.Background(), "https://studio.test/video/a/reach"))
	assert.Equal(t, `window.location.href = "https://studio.test/video/a/reach"`, page.exprs[0])
	assert.Equal(t, 3, page.polls)

	cur, err := n.CurrentURL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://studio.test/video/a/reach", cur)
}

func TestNavigateSettleExpires(t *testing.T) {
	page := &fakePage{readyAt: 1 << 30}
	n := NewNavigator(page, 20*time.Millisecond, nil)
	n.poll = time.Millisecond
	assert.NoError(t, n.Navigate(context.Background(), "https://studio.test/x"))
}

func TestNavigateEvaluateFailure(t *testing.T) {
	page := &fakePage{fail: errors.New("target closed")}
	err := NewNavigator(page, 0, nil).Navigate(context.Background(), "https://studio.test/x")
	assert.ErrorContains(t, err, "target closed")
}

func TestListPageURL(t *testing.T) {
	pattern := `studio\.youtube\.com/channel/([A-Za-z0-9_-]+)`
	tmpl := "https://studio.youtube.com/channel/{channel}/videos/upload"

	got, ok := ListPageURL("https://studio.youtube.com/channel/UCabc_1-x/analytics", pattern, tmpl)
	require.True(t, ok)
	assert.Equal(t, "https://studio.youtube.com/channel/UCabc_1-x/videos/upload", got)

	_, ok = ListPageURL("https://studio.youtube.com/", pattern, tmpl)
	assert.False(t, ok)
	_, ok = ListPageURL("https://studio.youtube.com/channel/x", "(", tmpl)
	assert.False(t, ok)
}
