package kanban

// Listener observes committed changes. Rendering layers and the SSE broker
// implement it; callbacks run synchronously after the write succeeds.
type Listener interface {
	CardMoved(pipeline, cardID, fromKey, toKey string)
	StageAdded(pipeline string, stage Stage)
	StageRenamed(pipeline, oldKey string, stage Stage, affected int)
	StageDeleted(pipeline, key, fallbackKey string, affected int)
	StagesReordered(pipeline string, stages []Stage)
}

// EventFuncs adapts optional functions to a Listener.
type EventFuncs struct {
	OnCardMoved       func(pipeline, cardID, fromKey, toKey string)
	OnStageAdded      func(pipeline string, stage Stage)
	OnStageRenamed    func(pipeline, oldKey string, stage Stage, affected int)
	OnStageDeleted    func(pipeline, key, fallbackKey string, affected int)
	OnStagesReordered func(pipeline string, stages []Stage)
}

func (f EventFuncs) CardMoved(pipeline, cardID, fromKey, toKey string) {
	if f.OnCardMoved != nil {
		f.OnCardMoved(pipeline, cardID, fromKey, toKey)
	}
}

func (f EventFuncs) StageAdded(pipeline string, stage Stage) {
	if f.OnStageAdded != nil {
		f.OnStageAdded(pipeline, stage)
	}
}

func (f EventFuncs) StageRenamed(pipeline, oldKey string, stage Stage, affected int) {
	if f.OnStageRenamed != nil {
		f.OnStageRenamed(pipeline, oldKey, stage, affected)
	}
}

func (f EventFuncs) StageDeleted(pipeline, key, fallbackKey string, affected int) {
	if f.OnStageDeleted != nil {
		f.OnStageDeleted(pipeline, key, fallbackKey, affected)
	}
}

func (f EventFuncs) StagesReordered(pipeline string, stages []Stage) {
	if f.OnStagesReordered != nil {
		f.OnStagesReordered(pipeline, stages)
	}
}

// listeners fans one event out to many listeners.
type listeners []Listener

func (ls listeners) CardMoved(pipeline, cardID, fromKey, toKey string) {
	for _, l := range ls {
		l.CardMoved(pipeline, cardID, fromKey, toKey)
	}
}

func (ls listeners) StageAdded(pipeline string, stage Stage) {
	for _, l := range ls {
		l.StageAdded(pipeline, stage)
	}
}

func (ls listeners) StageRenamed(pipeline, oldKey string, stage Stage, affected int) {
	for _, l := range ls {
		l.StageRenamed(pipeline, oldKey, stage, affected)
	}
}

func (ls listeners) StageDeleted(pipeline, key, fallbackKey string, affected int) {
	for _, l := range ls {
		l.StageDeleted(pipeline, key, fallbackKey, affected)
	}
}

func (ls listeners) StagesReordered(pipeline string, stages []Stage) {
	for _, l := range ls {
		l.StagesReordered(pipeline, stages)
	}
}
