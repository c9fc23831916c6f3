package pagination

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"cdpharvest/internal/replay"
	"cdpharvest/pkg/domain"
)

// fakeReplayer 按注入游标返回预置页
type fakeReplayer struct {
	mu      sync.Mutex
	pages   map[string]string // cursor -> body，"" 为首页
	fail    map[string]error
	cursors []string
}

func (f *fakeReplayer) Replay(_ context.Context, req *domain.CapturedRequest, mut replay.Mutation) ([]byte, error) {
	body := req.Body
	if mut != nil {
		var err error
		if body, err = mut(body); err != nil {
			return nil, err
		}
	}
	cursor := gjson.GetBytes(body, "pageToken").String()
	f.mu.Lock()
	f.cursors = append(f.cursors, cursor)
	f.mu.Unlock()
	if err := f.fail[cursor]; err != nil {
		return nil, err
	}
	out, ok := f.pages[cursor]
	if !ok {
		return nil, fmt.Errorf("%w: unexpected cursor %q", domain.ErrTransport, cursor)
	}
	return []byte(out), nil
}

func page(next string, ids ...string) string {
	items := ""
	for i, id := range ids {
		if i > 0 {
			items += ","
		}
		items += fmt.Sprintf(`{"videoId":%q,"title":"t-%s","privacy":"VIDEO_PRIVACY_PUBLIC"}`, id, id)
	}
	if next == "" {
		return `{"videos":[` + items + `]}`
	}
	return fmt.Sprintf(`{"videos":[%s],"nextPageToken":%q}`, items, next)
}

func testConfig() Config {
	return Config{
		CursorField:  "pageToken",
		NextCursor:   "nextPageToken",
		ItemKeys:     []string{"videos", "video", "items"},
		IDKey:        "videoId",
		StatusField:  "privacy",
		VisibleValue: "VIDEO_PRIVACY_PUBLIC",
	}
}

func listTemplate() *domain.CapturedRequest {
	return &domain.CapturedRequest{URL: "https://studio.test/list", Method: "POST", Body: []byte(`{"pageSize":30}`), Kind: domain.KindList}
}

func TestLoopFollowsCursorsUntilExhausted(t *testing.T) {
	rp := &fakeReplayer{pages: map[string]string{
		"":   page("c1", "a"),
		"c1": page("c2", "b"),
		"c2": page("c3", "c"),
		"c3": page("", "d"),
	}}
	l := New(rp, testConfig())
	res := l.Run(context.Background(), listTemplate())

	require.NoError(t, res.Err)
	assert.Equal(t, Done, res.State)
	assert.Equal(t, Done, l.State())
	assert.Equal(t, 4, res.Pages)
	assert.Equal(t, []string{"", "c1", "c2", "c3"}, rp.cursors)
	require.Len(t, res.Entities, 4)
	assert.Equal(t, "d", res.Entities[3].ID)
}

func TestLoopTimeoutKeepsEarlierPages(t *testing.T) {
	rp := &fakeReplayer{
		pages: map[string]string{"": page("c1", "a", "b")},
		fail:  map[string]error{"c1": fmt.Errorf("%w: timed out", domain.ErrTransport)},
	}
	res := New(rp, testConfig()).Run(context.Background(), listTemplate())

	assert.Equal(t, Failed, res.State)
	assert.ErrorIs(t, res.Err, domain.ErrTransport)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, "c1", res.LastCursor)
	require.Len(t, res.Entities, 2)
	assert.Equal(t, "a", res.Entities[0].ID)
}

func TestLoopVisibilityFilter(t *testing.T) {
	body := `{"videos":[
		{"videoId":"a","title":"pub","privacy":"VIDEO_PRIVACY_PUBLIC"},
		{"videoId":"b","title":"priv","privacy":"VIDEO_PRIVACY_PRIVATE"},
		{"videoId":"c","title":"draft","privacy":"VIDEO_PRIVACY_DRAFT"},
		{"videoId":"a","title":"dup","privacy":"VIDEO_PRIVACY_PUBLIC"}
	]}`
	rp := &fakeReplayer{pages: map[string]string{"": body}}
	res := New(rp, testConfig()).Run(context.Background(), listTemplate())

	require.Len(t, res.Entities, 1)
	assert.Equal(t, "pub", res.Entities[0].Title)
	require.Len(t, res.Skipped, 2)
	assert.Equal(t, map[string]int{"VIDEO_PRIVACY_PRIVATE": 1, "VIDEO_PRIVACY_DRAFT": 1}, res.SkippedByStatus())
}

func TestLoopStartCursorAndMaxPages(t *testing.T) {
	rp := &fakeReplayer{pages: map[string]string{
		"c5": page("c6", "x"),
		"c6": page("c7", "y"),
	}}
	cfg := testConfig()
	cfg.StartCursor = "c5"
	cfg.MaxPages = 2
	res := New(rp, cfg).Run(context.Background(), listTemplate())

	assert.Equal(t, Done, res.State)
	assert.Equal(t, []string{"c5", "c6"}, rp.cursors)
	assert.Equal(t, "c7", res.LastCursor)
	assert.Len(t, res.Entities, 2)
}

func TestLoopStopsOnRepeatedCursor(t *testing.T) {
	rp := &fakeReplayer{pages: map[string]string{
		"":   page("c1", "a"),
		"c1": page("c1", "b"),
	}}
	res := New(rp, testConfig()).Run(context.Background(), listTemplate())
	assert.Equal(t, Done, res.State)
	assert.Equal(t, 2, res.Pages)
}

func TestLoopStopsOnCursorCycle(t *testing.T) {
	rp := &fakeReplayer{pages: map[string]string{
		"":   page("c1", "a"),
		"c1": page("c2", "b"),
		"c2": page("c1", "c"),
	}}
	res := New(rp, testConfig()).Run(context.Background(), listTemplate())
	assert.Equal(t, Done, res.State)
	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, []string{"", "c1", "c2"}, rp.cursors)
	assert.Len(t, res.Entities, 3)
	assert.Equal(t, "c2", res.LastCursor)
}

func TestLoopCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rp := &fakeReplayer{pages: map[string]string{"": page("", "a")}}
	res := New(rp, testConfig()).Run(ctx, listTemplate())
	assert.Equal(t, Failed, res.State)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Empty(t, rp.cursors)
}

func TestExtractItemsFallback(t *testing.T) {
	items, key, ok := ExtractItems([]byte(`{"meta":[1,2],"results":[{"videoId":"a"}]}`), []string{"videos"}, "videoId")
	require.True(t, ok)
	assert.Equal(t, "results", key)
	assert.Len(t, items, 1)

	_, _, ok = ExtractItems([]byte(`{"meta":[1,2]}`), []string{"videos"}, "videoId")
	assert.False(t, ok)
}

func TestParseEntityAttributes(t *testing.T) {
	item := gjson.Parse(`{
		"videoId":"v1","title":"hello","lengthSeconds":"61",
		"publicMetrics":{"viewCount":"10","likeCount":"2"},
		"privateMetrics":{"impressions":"99"},
		"thumbnailDetails":{"thumbnails":[{"url":"https://i/1.jpg"},{"url":""},{"url":"https://i/2.jpg"}]}
	}`)
	e, ok := ParseEntity(item, "videoId")
	require.True(t, ok)
	assert.Equal(t, "v1", e.ID)
	assert.Equal(t, "hello", e.Title)
	assert.Equal(t, "10", e.Attributes["public_viewCount"])
	assert.Equal(t, "99", e.Attributes["private_impressions"])
	assert.Equal(t, []string{"https://i/1.jpg", "https://i/2.jpg"}, e.Attributes["thumbnail_urls"])

	_, ok = ParseEntity(gjson.Parse(`{"title":"no id"}`), "videoId")
	assert.False(t, ok)
}
