package progress

import (
	"context"

	"github.com/terra-clan/progress-engine/internal/models"
)

// Catalog is the static step catalog the aggregator counts against
type Catalog interface {
	Tools() []*models.OptimizationPath
}

// Lister reads completed steps from the progress store
type Lister interface {
	ListCompleted(ctx context.Context, userID string) ([]models.StepRef, error)
}

// Compute builds the summary of every catalog tool from completion refs.
// Duplicate refs count once. Refs to steps missing from the catalog are
// dropped and returned as unknown. Tools without refs report zero completed.
func Compute(tools []*models.OptimizationPath, refs []models.StepRef) (models.CompletionSummary, map[string]map[string]struct{}, []models.StepRef) {
	grouped := make(map[string]map[string]struct{})
	for _, ref := range refs {
		set, ok := grouped[ref.ToolID]
		if !ok {
			set = make(map[string]struct{})
			grouped[ref.ToolID] = set
		}
		set[ref.StepID] = struct{}{}
	}

	summary := make(models.CompletionSummary, len(tools))
	completed := make(map[string]map[string]struct{}, len(tools))
	known := make(map[string]struct{}, len(tools))
	var unknown []models.StepRef

	for _, tool := range tools {
		known[tool.ID] = struct{}{}

		done := make(map[string]struct{})
		total := 0
		for _, section := range tool.Sections {
			for _, step := range section.Steps {
				total++
				if _, ok := grouped[tool.ID][step.ID]; ok {
					done[step.ID] = struct{}{}
				}
			}
		}

		for stepID := range grouped[tool.ID] {
			if _, ok := done[stepID]; !ok {
				unknown = append(unknown, models.StepRef{ToolID: tool.ID, StepID: stepID})
			}
		}

		summary[tool.ID] = models.ToolProgress{Completed: len(done), Total: total}
		completed[tool.ID] = done
	}

	for toolID, set := range grouped {
		if _, ok := known[toolID]; ok {
			continue
		}
		for stepID := range set {
			unknown = append(unknown, models.StepRef{ToolID: toolID, StepID: stepID})
		}
	}

	return summary, completed, unknown
}

// ZeroSummary returns the summary with nothing completed
func ZeroSummary(tools []*models.OptimizationPath) models.CompletionSummary {
	summary, _, _ := Compute(tools, nil)
	return summary
}
