package mockreg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndRecord(t *testing.T) {
	r := New()
	h := r.Register("fetchUser")
	h.Record("a.cg:10")
	h.Record("a.cg:12")

	got, ok := r.Lookup("fetchUser")
	require.True(t, ok)
	assert.Same(t, h, got)
	assert.Len(t, got.Calls, 2)
	assert.True(t, got.Active())

	_, ok = r.Lookup("other")
	assert.False(t, ok)
}

func TestRegisterIsIdempotent(t *testing.T) {
	r := New()
	a := r.Register("fn")
	a.Record("x:1")
	b := r.Register("fn")

	assert.Same(t, a, b)
	assert.Len(t, b.Calls, 1)
	assert.Equal(t, 1, r.Count())
}

func TestResetClearCalls(t *testing.T) {
	r := New()
	h := r.Register("fn")
	h.Record("x:1")

	r.Reset(ResetPolicy{ClearCalls: true})

	// The mock survives but its recorded calls do not.
	got, ok := r.Lookup("fn")
	require.True(t, ok)
	assert.Empty(t, got.Calls)
	assert.Equal(t, 1, r.Count())
}

func TestResetRestore(t *testing.T) {
	r := New()
	h := r.Register("fn")
	h.Record("x:1")

	r.Reset(ResetPolicy{Restore: true})

	_, ok := r.Lookup("fn")
	assert.False(t, ok, "restored mocks no longer shadow the original")
	assert.False(t, h.Active())
	assert.Equal(t, 0, r.Count())
}

// A handle registered before a reset is never observable afterwards, for any
// policy that clears or restores.
func TestResetIsolatesCases(t *testing.T) {
	policies := map[string]ResetPolicy{
		"clear only":    {ClearCalls: true},
		"restore only":  {Restore: true},
		"clear+restore": {ClearCalls: true, Restore: true},
	}

	for name, policy := range policies {
		t.Run(name, func(t *testing.T) {
			r := New()
			first := r.Register("fn")
			first.Record("x:1")

			r.Reset(policy)

			second := r.Register("fn")
			assert.Empty(t, second.Calls, "no recorded call leaks across the boundary")

			got, ok := r.Lookup("fn")
			require.True(t, ok)
			assert.Empty(t, got.Calls)
		})
	}
}

func TestResetNoPolicyKeepsCalls(t *testing.T) {
	r := New()
	h := r.Register("fn")
	h.Record("x:1")

	r.Reset(ResetPolicy{})

	got, ok := r.Lookup("fn")
	require.True(t, ok)
	assert.Len(t, got.Calls, 1)
}
