package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigIsValid(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Facets, 2)
	assert.Equal(t, "reach_viewers", cfg.Facets[0].Name)
	assert.Equal(t, 300*time.Second, cfg.Collect.Duration)
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cdpharvest.yaml")
	yml := `
devtools:
  url: http://127.0.0.1:9333
collect:
  page_delay: 250ms
  max_pages: 3
facets:
  - name: overview
    navigation: https://example.test/{id}/overview
    endpoint: api/overview
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o600))
	t.Setenv("CDPHARVEST_REPLAY_FACET_TIMEOUT", "7s")
	t.Setenv("CDPHARVEST_ENDPOINTS_ITEM_KEYS", "rows,items")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9333", cfg.DevTools.URL)
	assert.Equal(t, 250*time.Millisecond, cfg.Collect.PageDelay)
	assert.Equal(t, 3, cfg.Collect.MaxPages)
	require.Len(t, cfg.Facets, 1)
	assert.Equal(t, "overview", cfg.Facets[0].Name)
	assert.Equal(t, 7*time.Second, cfg.Replay.FacetTimeout)
	assert.Equal(t, []string{"rows", "items"}, cfg.Endpoints.ItemKeys)
	// 未覆盖的字段保留默认值
	assert.Equal(t, 30*time.Second, cfg.Replay.ListTimeout)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidateRejectsDuplicateFacets(t *testing.T) {
	cfg := NewConfig()
	cfg.Facets = append(cfg.Facets, cfg.Facets[0])
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate name")
}

func TestValidateListOnlyAllowsNoFacets(t *testing.T) {
	cfg := NewConfig()
	cfg.Facets = nil
	require.Error(t, cfg.Validate())
	cfg.Collect.ListOnly = true
	assert.NoError(t, cfg.Validate())
}
