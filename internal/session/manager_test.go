package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adamtc007/ob-poc-sub006/internal/verbsurface"
)

func TestGetOrCreateGeneratesID(t *testing.T) {
	m := NewManager()
	s := m.GetOrCreate("")
	require.NotEmpty(t, s.ID)
	assert.Equal(t, verbsurface.FailClosed, s.FailPolicy)
	assert.Equal(t, 1, m.Count())
}

func TestGetOrCreateReturnsSameSession(t *testing.T) {
	m := NewManager()
	a := m.GetOrCreate("sess-1")
	b := m.GetOrCreate("sess-1")
	assert.Same(t, a, b)
	assert.Equal(t, 1, m.Count())
}

func TestGetMissingSession(t *testing.T) {
	m := NewManager()
	_, ok := m.Get("nope")
	assert.False(t, ok)
}

func TestDeleteSession(t *testing.T) {
	m := NewManager()
	m.GetOrCreate("sess-1")
	m.Delete("sess-1")
	_, ok := m.Get("sess-1")
	assert.False(t, ok)
}

func TestCleanupExpired(t *testing.T) {
	m := NewManager()
	s := m.GetOrCreate("stale")
	s.LastUsed = time.Now().Add(-time.Hour)
	m.GetOrCreate("fresh")

	removed := m.CleanupExpired(time.Minute)
	assert.Equal(t, 1, removed)
	_, ok := m.Get("stale")
	assert.False(t, ok)
	_, ok = m.Get("fresh")
	assert.True(t, ok)
}

func TestSessionContextReflectsFields(t *testing.T) {
	m := NewManager()
	s := m.GetOrCreate("sess-1")
	s.SetAgentMode("Research")
	s.SetStageFocus("semos-kyc")
	s.SetEntityState("pending_review")

	env := &verbsurface.Envelope{}
	ctx := s.Context(env)
	assert.Equal(t, "Research", ctx.AgentMode)
	assert.Equal(t, "semos-kyc", ctx.StageFocus)
	assert.Equal(t, "pending_review", ctx.EntityState)
	assert.Same(t, env, ctx.Envelope)
}

func TestSurfaceCacheInvalidatedByModeChange(t *testing.T) {
	m := NewManager()
	s := m.GetOrCreate("sess-1")
	s.SetSurface(&verbsurface.SessionVerbSurface{SurfaceFingerprint: "vs1:abc"})

	_, ok := s.Surface()
	require.True(t, ok)

	s.SetAgentMode("Research")
	_, ok = s.Surface()
	assert.False(t, ok)
}

func TestSurfaceCacheInvalidatedByStageFocusAndEntityState(t *testing.T) {
	m := NewManager()
	s := m.GetOrCreate("sess-1")

	s.SetSurface(&verbsurface.SessionVerbSurface{SurfaceFingerprint: "vs1:abc"})
	s.SetStageFocus("semos-kyc")
	_, ok := s.Surface()
	assert.False(t, ok)

	s.SetSurface(&verbsurface.SessionVerbSurface{SurfaceFingerprint: "vs1:abc"})
	s.SetEntityState("closed")
	_, ok = s.Surface()
	assert.False(t, ok)
}

func TestInvalidateSurfaceDirectly(t *testing.T) {
	s := (&Manager{sessions: map[string]*Session{}}).GetOrCreate("sess-1")
	s.SetSurface(&verbsurface.SessionVerbSurface{SurfaceFingerprint: "vs1:abc"})
	s.InvalidateSurface()
	_, ok := s.Surface()
	assert.False(t, ok)
}
