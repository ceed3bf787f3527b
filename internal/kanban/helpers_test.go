package kanban

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/hopewell/crm/internal/config"
	"github.com/hopewell/crm/internal/configstore"
	"github.com/hopewell/crm/internal/store"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

// fixture is a Service over in-memory stores with a fixed clock and
// sequential card ids. The "board" pipeline starts with stages a and b.
type fixture struct {
	svc     *Service
	records *store.MemStore
	configs *configstore.MemStore
	events  *recorder
}

func quietLogger() *log.Entry {
	l := log.New()
	l.SetOutput(io.Discard)
	return log.NewEntry(l)
}

func testCatalog() Catalog {
	return DefaultCatalog().WithOverrides([]config.PipelineConfig{{
		ID:    "board",
		Kind:  KindTask,
		Ranks: "priority",
		Stages: []config.StageConfig{
			{Key: "a", Label: "A"},
			{Key: "b", Label: "B"},
		},
	}})
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		records: store.NewMemStore(),
		configs: configstore.NewMemStore(),
		events:  &recorder{},
	}
	n := 0
	f.svc = NewService(f.records, f.configs,
		WithCatalog(testCatalog()),
		WithListener(f.events),
		WithLogger(quietLogger()),
		WithClock(func() time.Time { return testNow }),
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("card-%03d", n)
		}),
	)
	return f
}

func (f *fixture) addCard(t *testing.T, pipeline, stageRef string) Card {
	t.Helper()
	c, err := f.svc.CreateCard(context.Background(), pipeline, CardInput{
		Title:    "card on " + stageRef,
		StageRef: stageRef,
	})
	require.NoError(t, err)
	return c
}

func (f *fixture) stageRef(t *testing.T, id string) string {
	t.Helper()
	c, err := f.svc.GetCard(context.Background(), id)
	require.NoError(t, err)
	return c.StageRef
}

func (f *fixture) keys(pipeline string) []string {
	return stageKeys(f.svc.ListStages(context.Background(), pipeline))
}

// recorder captures Listener callbacks as short strings.
type recorder struct {
	events []string
}

func (r *recorder) CardMoved(pipeline, cardID, fromKey, toKey string) {
	r.events = append(r.events, fmt.Sprintf("moved %s %s %s->%s", pipeline, cardID, fromKey, toKey))
}

func (r *recorder) StageAdded(pipeline string, stage Stage) {
	r.events = append(r.events, fmt.Sprintf("added %s %s", pipeline, stage.Key))
}

func (r *recorder) StageRenamed(pipeline, oldKey string, stage Stage, affected int) {
	r.events = append(r.events, fmt.Sprintf("renamed %s %s->%s (%d)", pipeline, oldKey, stage.Key, affected))
}

func (r *recorder) StageDeleted(pipeline, key, fallbackKey string, affected int) {
	r.events = append(r.events, fmt.Sprintf("deleted %s %s->%s (%d)", pipeline, key, fallbackKey, affected))
}

func (r *recorder) StagesReordered(pipeline string, stages []Stage) {
	r.events = append(r.events, fmt.Sprintf("reordered %s %s", pipeline, strings.Join(stageKeys(stages), ",")))
}

// spyMover records UpdateCard calls instead of persisting them.
type spyMover struct {
	ids     []string
	patches []CardPatch
	err     error
}

func (m *spyMover) UpdateCard(_ context.Context, id string, patch CardPatch) (Card, error) {
	m.ids = append(m.ids, id)
	m.patches = append(m.patches, patch)
	if m.err != nil {
		return Card{}, m.err
	}
	c := Card{ID: id}
	if patch.StageRef != nil {
		c.StageRef = *patch.StageRef
	}
	return c, nil
}
