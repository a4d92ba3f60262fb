package matrix

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlq_eval/internal/models"
)

func catalog(n int) ([]models.PromptSet, []models.ModelConfig) {
	ps := make([]models.PromptSet, 0, n)
	mc := make([]models.ModelConfig, 0, n)
	for i := 1; i <= n; i++ {
		ps = append(ps, models.PromptSet{ID: int64(i), Name: "ps"})
		mc = append(mc, models.ModelConfig{ID: int64(i), Name: "mc"})
	}
	return ps, mc
}

func ids(n int) []int64 {
	out := make([]int64, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, int64(i))
	}
	return out
}

func TestCapFor(t *testing.T) {
	tests := []struct {
		other int
		want  int
	}{
		{other: 0, want: 4},
		{other: 1, want: 4},
		{other: 2, want: 2},
		{other: 3, want: 1},
		{other: 4, want: 1},
		{other: 5, want: 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CapFor(tt.other), "other=%d", tt.other)
	}
}

func TestCap_TruncatesInSelectionOrder(t *testing.T) {
	got := Cap([]int64{9, 2}, 3)
	assert.Equal(t, []int64{9}, got)

	got = Cap([]int64{7, 3, 5}, 0)
	assert.Equal(t, []int64{7, 3, 5}, got)
}

func TestCap_DoesNotAliasInput(t *testing.T) {
	in := []int64{1, 2}
	out := Cap(in, 1)
	out[0] = 99
	assert.Equal(t, int64(1), in[0])
}

func TestExpand_LengthIsMinOfProductAndCeiling(t *testing.T) {
	ps, mc := catalog(5)
	for p := 0; p <= 5; p++ {
		for m := 0; m <= 5; m++ {
			combos := Expand(ids(p), ids(m), ps, mc)
			want := p * m
			if want > MaxCombinations {
				want = MaxCombinations
			}
			assert.Len(t, combos, want, "p=%d m=%d", p, m)
		}
	}
}

func TestExpand_OrderAndSkipsUnknown(t *testing.T) {
	ps := []models.PromptSet{{ID: 1}, {ID: 2}}
	mc := []models.ModelConfig{{ID: 10}, {ID: 20}}

	combos := Expand([]int64{2, 99, 1}, []int64{20, 77, 10}, ps, mc)
	require.Len(t, combos, 4)

	got := make([][2]int64, 0, len(combos))
	for _, c := range combos {
		got = append(got, [2]int64{c.PromptSet.ID, c.ModelConfig.ID})
	}
	assert.Equal(t, [][2]int64{{2, 20}, {2, 10}, {1, 20}, {1, 10}}, got)
}

func TestLocked(t *testing.T) {
	ps, mc := catalog(4)
	assert.False(t, Locked(Expand(ids(1), ids(3), ps, mc)))
	assert.True(t, Locked(Expand(ids(2), ids(2), ps, mc)))
}

func TestSelection_CapsAgainstOtherAxis(t *testing.T) {
	ps, mc := catalog(4)
	sel := NewSelection(ps, mc)

	assert.Equal(t, []int64{1, 2, 3}, sel.SetModelConfigs([]int64{1, 2, 3}))
	// three models selected, so only one prompt set is allowed
	assert.Equal(t, []int64{4}, sel.SetPromptSets([]int64{4, 2}))
	assert.Len(t, sel.Combinations(), 3)
	assert.False(t, sel.Locked())
}

func TestSelection_LockBlocksGrowthAllowsRemoval(t *testing.T) {
	ps, mc := catalog(4)
	sel := NewSelection(ps, mc)

	sel.SetPromptSets([]int64{1, 2})
	sel.SetModelConfigs([]int64{1, 2})
	require.True(t, sel.Locked())

	assert.Equal(t, []int64{1, 2}, sel.SetModelConfigs([]int64{1, 2, 3}))
	assert.Equal(t, []int64{1, 2}, sel.SetPromptSets([]int64{1, 2, 3}))

	assert.Equal(t, []int64{2}, sel.SetPromptSets([]int64{2}))
	assert.False(t, sel.Locked())

	// one prompt set now, so up to four model configs
	assert.Equal(t, []int64{1, 2, 3, 4}, sel.SetModelConfigs([]int64{1, 2, 3, 4}))
	assert.True(t, sel.Locked())
}

func TestSelection_Empty(t *testing.T) {
	ps, mc := catalog(2)
	sel := NewSelection(ps, mc)
	assert.True(t, sel.Empty())

	sel.SetPromptSets([]int64{1})
	assert.True(t, sel.Empty())

	sel.SetModelConfigs([]int64{2})
	assert.False(t, sel.Empty())
}
