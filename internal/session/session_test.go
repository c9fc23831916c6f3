package session

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cdpharvest/internal/ctxkeys"
	"cdpharvest/pkg/domain"
)

func TestSessionLifecycle(t *testing.T) {
	m := NewManager(nil)
	a := m.Create()
	b := m.Create()
	assert.NotEqual(t, a.ID, b.ID)
	_, err := uuid.Parse(string(a.ID))
	require.NoError(t, err)

	got, ok := m.Get(a.ID)
	require.True(t, ok)
	assert.Same(t, a, got)
	assert.Len(t, m.List(), 2)

	m.Delete(a.ID)
	_, ok = m.Get(a.ID)
	assert.False(t, ok)
	assert.Equal(t, []*Session{b}, m.List())
}

func TestSessionState(t *testing.T) {
	s := New()
	assert.Equal(t, domain.PhaseIdle, s.Phase())
	s.SetPhase(domain.PhaseFacets)
	assert.Equal(t, domain.PhaseFacets, s.Phase())

	assert.Empty(t, s.Target().ID)
	s.SetTarget(domain.TargetInfo{ID: "T1", URL: "https://studio.test"})
	assert.Equal(t, domain.TargetID("T1"), s.Target().ID)

	ctx := s.Context(context.Background())
	assert.Equal(t, string(s.ID), ctxkeys.TraceID(ctx))
}
