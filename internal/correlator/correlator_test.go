package correlator

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdpharvest/internal/rules"
	"cdpharvest/pkg/domain"
)

const (
	listURL  = "https://studio.test/youtubei/v1/creator/list_creator_videos?alt=json"
	cardsURL = "https://studio.test/youtubei/v1/yta_web/get_cards?alt=json"
)

func newCorrelator() *Correlator {
	return New(rules.ForEndpoints("creator/list_creator_videos", []domain.Facet{
		{Name: "reach", Endpoint: "yta_web/get_screen"},
		{Name: "interest", Endpoint: "yta_web/get_cards"},
	}), nil)
}

func sent(id, url string) domain.RequestSent {
	return domain.RequestSent{RequestID: id, URL: url, Method: "POST"}
}

func TestIdlePhaseTracksNothing(t *testing.T) {
	c := newCorrelator()
	assert.False(t, c.Observe(sent("1", listURL)))
	_, ok := c.Resolve(domain.ResponseReceived{RequestID: "1", Status: 200})
	assert.False(t, ok)
}

func TestListPromotedOnSuccess(t *testing.T) {
	c := newCorrelator()
	c.SetPhase(domain.PhaseList)
	require.True(t, c.Observe(sent("1", listURL)))
	assert.False(t, c.Observe(sent("2", cardsURL)), "facet endpoints are not tracked in the list phase")
	assert.Equal(t, 1, c.Pending())

	p, ok := c.Resolve(domain.ResponseReceived{RequestID: "1", URL: listURL, Status: 200})
	require.True(t, ok)
	assert.Equal(t, domain.KindList, p.Kind)
	assert.Equal(t, 0, c.Pending())
}

func TestFailureDiscardsPending(t *testing.T) {
	c := newCorrelator()
	c.SetPhase(domain.PhaseFacets)
	require.True(t, c.Observe(sent("9", cardsURL)))
	_, ok := c.Resolve(domain.ResponseReceived{RequestID: "9", Status: 503})
	assert.False(t, ok)
	assert.Equal(t, 0, c.Pending())
}

func TestUntrackedResponseIgnored(t *testing.T) {
	c := newCorrelator()
	c.SetPhase(domain.PhaseFacets)
	_, ok := c.Resolve(domain.ResponseReceived{RequestID: "nope", Status: 200})
	assert.False(t, ok)
}

func TestPhaseSwitchDropsPending(t *testing.T) {
	c := newCorrelator()
	c.SetPhase(domain.PhaseList)
	require.True(t, c.Observe(sent("1", listURL)))
	c.SetPhase(domain.PhaseFacets)
	_, ok := c.Resolve(domain.ResponseReceived{RequestID: "1", Status: 200})
	assert.False(t, ok)
}

func TestNoDoubleFire(t *testing.T) {
	c := newCorrelator()
	c.SetPhase(domain.PhaseFacets)
	require.True(t, c.Observe(sent("1", cardsURL)))
	_, ok := c.Resolve(domain.ResponseReceived{RequestID: "1", Status: 200})
	require.True(t, ok)

	assert.False(t, c.Observe(sent("1", cardsURL)))
	_, ok = c.Resolve(domain.ResponseReceived{RequestID: "1", Status: 200})
	assert.False(t, ok)
}

// 随机事件序列：处理器触发当且仅当请求被跟踪且状态成功，且每个 ID 至多一次
func TestRandomSequencesFireIffTrackedAndSuccessful(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	urls := []string{listURL, cardsURL, "https://studio.test/other"}
	statuses := []int{200, 204, 302, 404, 500}

	for round := 0; round < 200; round++ {
		c := newCorrelator()
		c.SetPhase(domain.PhaseFacets)
		tracked := map[string]bool{}
		fired := map[string]int{}

		for step := 0; step < 30; step++ {
			id := fmt.Sprintf("r%d", rng.Intn(8))
			if rng.Intn(2) == 0 {
				u := urls[rng.Intn(len(urls))]
				if c.Observe(sent(id, u)) {
					tracked[id] = true
				}
				continue
			}
			status := statuses[rng.Intn(len(statuses))]
			wasTracked := tracked[id]
			_, ok := c.Resolve(domain.ResponseReceived{RequestID: id, Status: status})
			delete(tracked, id)
			assert.Equal(t, wasTracked && Success(status), ok, "round %d step %d id %s", round, step, id)
			if ok {
				fired[id]++
			}
		}
		for id, n := range fired {
			assert.Equal(t, 1, n, "id %s fired more than once", id)
		}
	}
}
