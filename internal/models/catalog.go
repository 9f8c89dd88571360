package models

// OptimizationPath is the learning path of one mini-app (tool).
// Its ID is the tool ID used for completion tracking.
type OptimizationPath struct {
	ID          string    `yaml:"id" json:"id"`
	Title       string    `yaml:"title" json:"title"`
	Description string    `yaml:"description" json:"description"`
	Order       int       `yaml:"order" json:"order"`
	Sections    []Section `yaml:"sections" json:"sections"`
}

// Section groups the ordered steps of a path
type Section struct {
	ID          string `yaml:"id" json:"id"`
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
	Steps       []Step `yaml:"steps" json:"steps"`
}

// Step is a single learning step. ID is unique within its tool only.
type Step struct {
	ID            string `yaml:"id" json:"id"`
	Title         string `yaml:"title" json:"title"`
	Description   string `yaml:"description" json:"description"`
	Content       string `yaml:"content" json:"content,omitempty"`
	EstimatedTime string `yaml:"estimated_time" json:"estimatedTime,omitempty"` // "10 min"
	Difficulty    string `yaml:"difficulty" json:"difficulty,omitempty"`        // beginner | intermediate | advanced
}

// StepCount returns the number of steps across all sections
func (p *OptimizationPath) StepCount() int {
	n := 0
	for _, s := range p.Sections {
		n += len(s.Steps)
	}
	return n
}

// StepIDs returns the flattened step IDs in catalog order
func (p *OptimizationPath) StepIDs() []string {
	ids := make([]string, 0, p.StepCount())
	for _, s := range p.Sections {
		for _, st := range s.Steps {
			ids = append(ids, st.ID)
		}
	}
	return ids
}

// ToolInfo is the list view of a path, without step content
type ToolInfo struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	SectionsCount int    `json:"sectionsCount"`
	StepsCount    int    `json:"stepsCount"`
}

// Info builds the list view of the path
func (p *OptimizationPath) Info() ToolInfo {
	return ToolInfo{
		ID:            p.ID,
		Title:         p.Title,
		Description:   p.Description,
		SectionsCount: len(p.Sections),
		StepsCount:    p.StepCount(),
	}
}
