package report

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"cdpharvest/internal/storage"
	"cdpharvest/pkg/domain"
)

func summary() *Summary {
	return &Summary{
		RunID:      "run-7",
		StartedAt:  time.Now().Add(-time.Minute),
		FinishedAt: time.Now(),
		ListState:  "done",
		Pages:      2,
		Entities:   2,
		Skipped:    map[string]int{"VIDEO_PRIVACY_PRIVATE": 3},
		Facets:     []domain.Facet{{Name: "reach"}, {Name: "interest"}},
		Records: []domain.EntityRecord{
			{ID: "a", Entity: &domain.Entity{ID: "a", Title: "first"}, Facets: map[string]domain.FacetMetrics{
				"reach": {"VIDEO_THUMBNAIL_IMPRESSIONS": 10.0}, "interest": {"VIEWS": 3.0},
			}},
			{ID: "b", Entity: &domain.Entity{ID: "b", Title: "second"}, Facets: map[string]domain.FacetMetrics{
				"reach": {"VIDEO_THUMBNAIL_IMPRESSIONS": 5.0},
			}},
		},
		Templates: []*domain.CapturedRequest{{URL: "https://studio.test/list", Method: "POST", Kind: domain.KindList}},
	}
}

func TestJSONFileExpandsRunID(t *testing.T) {
	dir := t.TempDir()
	j := &JSONFile{Path: filepath.Join(dir, "out", "analytics_{run}.json")}
	require.NoError(t, j.Report(context.Background(), summary()))

	assert.Equal(t, filepath.Join(dir, "out", "analytics_run-7.json"), j.Written)
	b, err := os.ReadFile(j.Written)
	require.NoError(t, err)
	assert.Equal(t, int64(2), gjson.GetBytes(b, "records.#").Int())
	assert.Equal(t, "first", gjson.GetBytes(b, "records.0.entity.title").String())
	assert.Equal(t, 3.0, gjson.GetBytes(b, "records.0.facets.interest.VIEWS").Float())
	assert.False(t, gjson.GetBytes(b, "Templates").Exists())
}

func TestTableRendersFacetColumns(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&Table{Out: &buf}).Report(context.Background(), summary()))
	out := buf.String()
	assert.Contains(t, out, "REACH")
	assert.Contains(t, out, "INTEREST")
	assert.Contains(t, out, "second")
	assert.Contains(t, out, "VIDEO_PRIVACY_PRIVATE: 3")
}

func TestStoreSinkPersistsRun(t *testing.T) {
	db, err := storage.Open(filepath.Join(t.TempDir(), "r.sqlite3"), "", nil)
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	require.NoError(t, (&Store{DB: db}).Report(ctx, summary()))

	run, err := db.GetRun(ctx, "run-7")
	require.NoError(t, err)
	assert.Equal(t, 2, run.Records)
	assert.Equal(t, 3, run.Skipped)
	recs, err := db.Records(ctx, "run-7")
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	ts, err := db.Templates(ctx, "run-7")
	require.NoError(t, err)
	assert.Len(t, ts, 1)
}

type failing struct{ calls *int }

func (f failing) Report(context.Context, *Summary) error {
	*f.calls++
	return errors.New("disk full")
}

func TestMultiContinuesAfterFailure(t *testing.T) {
	calls := 0
	var buf bytes.Buffer
	err := Multi{failing{&calls}, nil, &Table{Out: &buf}, failing{&calls}}.Report(context.Background(), summary())
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, 2, calls)
	assert.NotEmpty(t, buf.String())
}
