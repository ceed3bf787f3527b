package kanban

import (
	"fmt"
	"slices"
	"strings"

	"github.com/hopewell/crm/internal/config"
)

// Card kinds.
const (
	KindTask   = "task"
	KindSeeker = "seeker"
)

// Built-in pipeline IDs.
const (
	PipelineTasks           = "tasks"
	PipelineEnquiries       = "enquiries"
	PipelineActiveTreatment = "active-treatment"
)

// Definition describes a known pipeline: what it holds, how its columns are
// ranked and which stages it starts with.
type Definition struct {
	ID       string
	Kind     string
	Ranks    RankTable
	Defaults []Stage
}

// Catalog is the set of known pipelines and the classifiers that split one
// card kind across sibling pipelines.
type Catalog struct {
	Pipelines   map[string]Definition
	Classifiers []Classifier
}

// DefaultCatalog returns the tasks pipeline and the two recovery-seeker
// pipelines.
func DefaultCatalog() Catalog {
	return Catalog{
		Pipelines: map[string]Definition{
			PipelineTasks: {
				ID:    PipelineTasks,
				Kind:  KindTask,
				Ranks: PriorityRanks,
				Defaults: []Stage{
					{Key: "todo", Label: "To Do", Color: "#64748b", SortOrder: 0},
					{Key: "in-progress", Label: "In Progress", Color: "#3b82f6", SortOrder: 1},
					{Key: "review", Label: "Review", Color: "#f59e0b", SortOrder: 2},
					{Key: "done", Label: "Done", Color: "#22c55e", SortOrder: 3},
				},
			},
			PipelineEnquiries: {
				ID:    PipelineEnquiries,
				Kind:  KindSeeker,
				Ranks: RiskRanks,
				Defaults: []Stage{
					{Key: "new-enquiry", Label: "New Enquiry", Color: "#3b82f6", SortOrder: 0},
					{Key: "contacted", Label: "Contacted", Color: "#8b5cf6", SortOrder: 1},
					{Key: "assessment-booked", Label: "Assessment Booked", Color: "#f59e0b", SortOrder: 2},
					{Key: "assessed", Label: "Assessed", Color: "#14b8a6", SortOrder: 3},
				},
			},
			PipelineActiveTreatment: {
				ID:    PipelineActiveTreatment,
				Kind:  KindSeeker,
				Ranks: RiskRanks,
				Defaults: []Stage{
					{Key: "active", Label: "Active", Color: "#22c55e", SortOrder: 0},
					{Key: "on-hold", Label: "On Hold", Color: "#f59e0b", SortOrder: 1},
					{Key: "completed", Label: "Completed", Color: "#64748b", SortOrder: 2},
				},
			},
		},
		Classifiers: []Classifier{SeekerClassifier()},
	}
}

// Definition returns the pipeline's definition. Unknown pipelines get an
// empty task definition with priority ranks.
func (c Catalog) Definition(id string) (Definition, bool) {
	d, ok := c.Pipelines[id]
	if !ok {
		return Definition{ID: id, Kind: KindTask, Ranks: PriorityRanks}, false
	}
	if d.Ranks == nil {
		d.Ranks = PriorityRanks
	}
	return d, true
}

// ClassifierFor returns the classifier that owns pipeline id, if any.
func (c Catalog) ClassifierFor(id string) (Classifier, bool) {
	for _, cl := range c.Classifiers {
		if cl.Primary == id || cl.Secondary == id {
			return cl, true
		}
	}
	return Classifier{}, false
}

// ClassifierForKind returns the classifier splitting cards of kind, if any.
func (c Catalog) ClassifierForKind(kind string) (Classifier, bool) {
	for _, cl := range c.Classifiers {
		if cl.Kind == kind {
			return cl, true
		}
	}
	return Classifier{}, false
}

// IDs returns the known pipeline IDs in sorted order.
func (c Catalog) IDs() []string {
	ids := make([]string, 0, len(c.Pipelines))
	for id := range c.Pipelines {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Validate checks that each classifier's pipelines hold the classifier's
// card kind and share no default stage key.
func (c Catalog) Validate() error {
	var errs []string
	for _, cl := range c.Classifiers {
		primary, _ := c.Definition(cl.Primary)
		secondary, _ := c.Definition(cl.Secondary)
		for _, d := range []Definition{primary, secondary} {
			if d.Kind != cl.Kind {
				errs = append(errs, fmt.Sprintf("pipeline %s must hold %s cards, not %s", d.ID, cl.Kind, d.Kind))
			}
		}
		for _, st := range primary.Defaults {
			if indexOfStage(secondary.Defaults, st.Key) >= 0 {
				errs = append(errs, fmt.Sprintf("stage %q is in both %s and %s", st.Key, cl.Primary, cl.Secondary))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("kanban: invalid pipelines: %s", strings.Join(errs, "; "))
	}
	return nil
}

// WithOverrides returns a copy of c in which each configured pipeline
// replaces or adds a definition. Stage keys left blank are derived from the
// label.
func (c Catalog) WithOverrides(pipelines []config.PipelineConfig) Catalog {
	out := Catalog{
		Pipelines:   make(map[string]Definition, len(c.Pipelines)+len(pipelines)),
		Classifiers: slices.Clone(c.Classifiers),
	}
	for id, d := range c.Pipelines {
		out.Pipelines[id] = d
	}
	for _, pc := range pipelines {
		d := Definition{ID: pc.ID, Kind: pc.Kind, Ranks: RanksNamed(pc.Ranks)}
		if prev, ok := c.Pipelines[pc.ID]; ok && len(pc.Stages) == 0 {
			d.Defaults = prev.Defaults
		}
		for _, sc := range pc.Stages {
			key := sc.Key
			if key == "" || key == Uncategorised || indexOfStage(d.Defaults, key) >= 0 {
				key = uniqueKey(Slug(sc.Label), d.Defaults)
			}
			color := sc.Color
			if color == "" {
				color = palette[len(d.Defaults)%len(palette)]
			}
			d.Defaults = append(d.Defaults, Stage{
				Key:       key,
				Label:     sc.Label,
				Color:     color,
				SortOrder: len(d.Defaults),
			})
		}
		out.Pipelines[pc.ID] = d
	}
	return out
}
