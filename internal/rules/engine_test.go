package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdpharvest/pkg/domain"
)

func TestParseCondition(t *testing.T) {
	assert.Equal(t, Condition{Mode: ModeContains, Pattern: "api/list"}, ParseCondition("api/list"))
	assert.Equal(t, Condition{Mode: ModeRegex, Pattern: `get_(screen|cards)`}, ParseCondition("regex:get_(screen|cards)"))
	assert.Equal(t, Condition{Mode: ModePrefix, Pattern: "https://a"}, ParseCondition("prefix:https://a"))
}

func TestMatchModes(t *testing.T) {
	u := "https://studio.example/youtubei/v1/yta_web/get_cards?alt=json"
	assert.True(t, Match(u, Condition{Mode: ModeContains, Pattern: "yta_web/get_cards"}))
	assert.True(t, Match(u, Condition{Mode: ModePrefix, Pattern: "https://studio"}))
	assert.False(t, Match(u, Condition{Mode: ModeExact, Pattern: "https://studio.example"}))
	assert.True(t, Match(u, Condition{Mode: ModeRegex, Pattern: `get_(screen|cards)`}))
	assert.False(t, Match(u, Condition{Mode: ModeRegex, Pattern: `(`}))
	assert.True(t, Match(u, Condition{Mode: ModeGlob, Pattern: "*alt=json"}))
	assert.False(t, Match(u, Condition{Mode: ModeContains}))
}

func TestEngineEvalByKind(t *testing.T) {
	e := ForEndpoints("creator/list_creator_videos", []domain.Facet{
		{Name: "reach", Endpoint: "yta_web/get_screen"},
		{Name: "interest", Endpoint: "yta_web/get_cards"},
	})

	r := e.Eval(Ctx{URL: "https://h/youtubei/v1/creator/list_creator_videos", Method: "POST"}, domain.KindList)
	require.NotNil(t, r)
	assert.Equal(t, domain.KindList, r.Kind)

	assert.Nil(t, e.Eval(Ctx{URL: "https://h/youtubei/v1/creator/list_creator_videos", Method: "POST"}, domain.KindFacet))

	r = e.Eval(Ctx{URL: "https://h/youtubei/v1/yta_web/get_cards", Method: "POST"}, domain.KindFacet)
	require.NotNil(t, r)
	assert.Equal(t, "interest", r.Facet)

	assert.Nil(t, e.Eval(Ctx{URL: "https://h/youtubei/v1/yta_web/get_cards", Method: "OPTIONS"}, domain.KindFacet))
}
