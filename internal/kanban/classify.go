package kanban

import "slices"

// Classifier splits one card kind across two sibling pipelines. It is the
// only place membership of such cards is decided.
type Classifier struct {
	Kind      string
	Primary   string
	Secondary string
	// Terminal lists states that belong to Secondary even when its stage
	// set no longer contains them. Compared by Slug.
	Terminal []string
}

// SeekerClassifier splits recovery seekers between enquiries and active
// treatment.
func SeekerClassifier() Classifier {
	return Classifier{
		Kind:      KindSeeker,
		Primary:   PipelineEnquiries,
		Secondary: PipelineActiveTreatment,
		Terminal:  []string{"active", "on-hold", "completed"},
	}
}

// Classify returns the pipeline a card with stageRef belongs to. current is
// the card's last recorded pipeline. Primary keys win; then Secondary keys
// and terminal states; a reference matching neither stays in Secondary if
// the card was already there and otherwise falls back to Primary. Either
// way it renders in that pipeline's uncategorised bucket. The result is
// always exactly one of Primary or Secondary.
func (c Classifier) Classify(stageRef, current string, primary, secondary []Stage) string {
	if stageRef != "" && indexOfStage(primary, stageRef) >= 0 {
		return c.Primary
	}
	if stageRef != "" && indexOfStage(secondary, stageRef) >= 0 {
		return c.Secondary
	}
	if slug := Slug(stageRef); slug != "" && slices.Contains(c.Terminal, slug) {
		return c.Secondary
	}
	if current == c.Secondary {
		return c.Secondary
	}
	return c.Primary
}

// Owns reports whether pipeline is one of the two this classifier splits.
func (c Classifier) Owns(pipeline string) bool {
	return pipeline == c.Primary || pipeline == c.Secondary
}

// Other returns the sibling of pipeline id.
func (c Classifier) Other(id string) string {
	if id == c.Primary {
		return c.Secondary
	}
	return c.Primary
}
