package coffee

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTotalPages(t *testing.T) {
	tests := []struct {
		visible, pageSize, want int
	}{
		{0, 5, 1},
		{1, 5, 1},
		{5, 5, 1},
		{6, 5, 2},
		{11, 5, 3},
		{3, 0, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TotalPages(tt.visible, tt.pageSize), "visible=%d pageSize=%d", tt.visible, tt.pageSize)
	}
}

func TestViewRegistryTurnIsPerViewer(t *testing.T) {
	r := NewViewRegistry()
	sid, a, b := uuid.New(), uuid.New(), uuid.New()
	r.Register(sid, a, "", 0)
	r.Register(sid, b, "", 0)

	page, ok := r.Turn(sid, a, PageNext, 3)
	require.True(t, ok)
	assert.Equal(t, 1, page)
	page, _ = r.Turn(sid, a, PageNext, 3)
	assert.Equal(t, 2, page)
	page, _ = r.Turn(sid, a, PageNext, 3)
	assert.Equal(t, 2, page)

	page, _ = r.Turn(sid, b, PagePrev, 3)
	assert.Equal(t, 0, page)

	_, ok = r.Turn(sid, uuid.New(), PageNext, 3)
	assert.False(t, ok)
}

func TestViewRegistryLifecycle(t *testing.T) {
	r := NewViewRegistry()
	sid, a, b := uuid.New(), uuid.New(), uuid.New()
	r.Register(sid, a, "", 0)
	r.Register(sid, b, "", 1)
	r.SetMessageRef(sid, a, "m1")

	v, ok := r.Get(sid, a)
	require.True(t, ok)
	assert.Equal(t, "m1", v.MessageRef)
	assert.Equal(t, 2, r.Count(sid))
	assert.Len(t, r.Viewers(sid), 2)

	assert.True(t, r.Unregister(sid, a))
	assert.False(t, r.Unregister(sid, a))
	assert.Equal(t, 1, r.Count(sid))

	assert.Equal(t, 1, r.Clear(sid))
	assert.Zero(t, r.Count(sid))
}

func TestBuildView(t *testing.T) {
	gs := rosterState("Alice", "Bob", "Carol")
	for i := 0; i < 4; i++ {
		gs.AddCoffee("Bob")
	}
	sid := uuid.New()

	v := BuildView(sid, gs, Capacity{Available: 10, Cards: 2, FirstRemaining: 3}, 0, 2)
	assert.Equal(t, 2, v.TotalPages)
	require.Len(t, v.Rows, 2)
	assert.Equal(t, "Alice", v.Rows[0].Name)
	assert.True(t, v.MultiCard)
	assert.False(t, v.Insufficient)
	assert.Equal(t, "🔄 Submit (4)", v.SubmitLabel())
	assert.Contains(t, v.Text(), "split between multiple cards")

	v = BuildView(sid, gs, Capacity{Available: 3, Cards: 1, FirstRemaining: 3}, 9, 2)
	assert.Equal(t, 1, v.Page, "page is clamped")
	require.Len(t, v.Rows, 1)
	assert.True(t, v.Insufficient)
	assert.Equal(t, "⚠️ Submit (4)", v.SubmitLabel())

	empty := BuildView(sid, rosterState("Alice"), Capacity{Available: 3, Cards: 1, FirstRemaining: 3}, 0, 2)
	assert.False(t, empty.CanSubmit())
	assert.Equal(t, "Submit (0)", empty.SubmitLabel())
}
