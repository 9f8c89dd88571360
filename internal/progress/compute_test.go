package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/progress-engine/internal/models"
)

func TestCompute(t *testing.T) {
	tools := []*models.OptimizationPath{path("seo", 3, 5), path("analytics", 6)}

	tests := []struct {
		name        string
		refs        []models.StepRef
		want        models.CompletionSummary
		wantUnknown int
	}{
		{
			name: "no refs",
			want: models.CompletionSummary{
				"seo":       {Completed: 0, Total: 8},
				"analytics": {Completed: 0, Total: 6},
			},
		},
		{
			name: "steps across sections",
			refs: []models.StepRef{ref("seo", "s2"), ref("seo", "s7"), ref("analytics", "s1")},
			want: models.CompletionSummary{
				"seo":       {Completed: 2, Total: 8},
				"analytics": {Completed: 1, Total: 6},
			},
		},
		{
			name: "duplicates and unknowns",
			refs: []models.StepRef{ref("seo", "s1"), ref("seo", "s1"), ref("seo", "s99"), ref("gone", "s1")},
			want: models.CompletionSummary{
				"seo":       {Completed: 1, Total: 8},
				"analytics": {Completed: 0, Total: 6},
			},
			wantUnknown: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, completed, unknown := Compute(tools, tt.refs)
			assert.Equal(t, tt.want, got)
			assert.Len(t, unknown, tt.wantUnknown)
			for toolID, p := range got {
				assert.Len(t, completed[toolID], p.Completed, toolID)
			}
		})
	}
}

func TestComputeBoundsCompletedByTotal(t *testing.T) {
	tools := []*models.OptimizationPath{path("seo", 2)}
	refs := []models.StepRef{ref("seo", "s1"), ref("seo", "s2"), ref("seo", "s3"), ref("seo", "s4")}

	got, _, _ := Compute(tools, refs)
	require.Contains(t, got, "seo")
	assert.LessOrEqual(t, got["seo"].Completed, got["seo"].Total)
	assert.Equal(t, 100.0, got["seo"].Percent())
}

func TestZeroSummary(t *testing.T) {
	got := ZeroSummary([]*models.OptimizationPath{path("seo", 8), path("empty")})
	assert.Equal(t, models.CompletionSummary{
		"seo":   {Completed: 0, Total: 8},
		"empty": {Completed: 0, Total: 0},
	}, got)
	assert.Equal(t, 0.0, got["empty"].Percent())
}
