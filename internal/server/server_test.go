package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hopewell/crm/internal/configstore"
	"github.com/hopewell/crm/internal/kanban"
	"github.com/hopewell/crm/internal/store"
	log "github.com/sirupsen/logrus"
)

func init() {
	gin.SetMode(gin.TestMode)
	log.SetOutput(io.Discard)
}

type testEnv struct {
	router  *gin.Engine
	svc     *kanban.Service
	records *store.MemStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	records := store.NewMemStore()
	svc := kanban.NewService(records, configstore.NewMemStore())
	return &testEnv{router: NewRouter(svc, nil), svc: svc, records: records}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func assertProblem(t *testing.T, w *httptest.ResponseRecorder, status int, typ string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, status, w.Body.String())
	}
	p := decode[map[string]any](t, w)
	if p["type"] != typ {
		t.Errorf("problem type = %v, want %q", p["type"], typ)
	}
	if p["status"] != float64(status) {
		t.Errorf("problem status = %v, want %d", p["status"], status)
	}
}

func TestStart_NilService(t *testing.T) {
	err := Start(context.Background(), StartOpts{})
	if err == nil {
		t.Fatal("expected error for nil service")
	}
	if !strings.Contains(err.Error(), "service is required") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "service is required")
	}
}

func TestListPipelines(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/pipelines", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	got := decode[[]PipelineResponse](t, w)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[2].ID != kanban.PipelineTasks || len(got[2].Stages) != 4 {
		t.Errorf("tasks pipeline = %+v", got[2])
	}
	if got[1].Kind != kanban.KindSeeker {
		t.Errorf("enquiries kind = %q, want %q", got[1].Kind, kanban.KindSeeker)
	}
}

func TestBoard(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/pipelines/tasks/cards", `{"title":"Ring the bank","rank":"high"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", w.Code, w.Body.String())
	}
	card := decode[kanban.Card](t, w)

	w = env.do(t, http.MethodGet, "/api/pipelines/tasks/board", "")
	if w.Code != http.StatusOK {
		t.Fatalf("board status = %d", w.Code)
	}
	p := decode[kanban.Partition](t, w)
	if len(p.Buckets) != 5 {
		t.Fatalf("buckets = %d, want 5", len(p.Buckets))
	}
	if key, _ := p.Locate(card.ID); key != "todo" {
		t.Errorf("card in %q, want %q", key, "todo")
	}
	if p.Buckets[4].Stage.Key != kanban.Uncategorised {
		t.Errorf("last bucket = %q, want uncategorised", p.Buckets[4].Stage.Key)
	}
}

func TestStages_AddAndValidate(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/pipelines/tasks/stages", `{"label":"Blocked","color":"#ff0000"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	st := decode[kanban.Stage](t, w)
	if st.Key != "blocked" || st.SortOrder != 4 {
		t.Errorf("stage = %+v", st)
	}

	tests := []struct {
		name string
		body string
	}{
		{"missing label", `{"color":"#fff"}`},
		{"bad color", `{"label":"X","color":"red"}`},
		{"malformed", `{"label":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/pipelines/tasks/stages", tt.body)
			assertProblem(t, w, http.StatusBadRequest, "validation_error")
		})
	}
}

func TestStages_RenameRecolorAndImpact(t *testing.T) {
	env := newTestEnv(t)
	card := decode[kanban.Card](t, env.do(t, http.MethodPost, "/api/pipelines/tasks/cards", `{"title":"a","stageRef":"review"}`))

	w := env.do(t, http.MethodGet, "/api/pipelines/tasks/stages/review/impact", "")
	if got := decode[ImpactResponse](t, w); got.Affected != 1 {
		t.Errorf("impact = %+v, want 1", got)
	}

	w = env.do(t, http.MethodPatch, "/api/pipelines/tasks/stages/review", `{"key":"qa","label":"QA","color":"#00ff00"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	st := decode[kanban.Stage](t, w)
	if st.Key != "qa" || st.Label != "QA" || st.Color != "#00ff00" {
		t.Errorf("stage = %+v", st)
	}
	got, err := env.svc.GetCard(context.Background(), card.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.StageRef != "qa" {
		t.Errorf("card stageRef = %q, want %q", got.StageRef, "qa")
	}

	w = env.do(t, http.MethodPatch, "/api/pipelines/tasks/stages/qa", `{}`)
	assertProblem(t, w, http.StatusBadRequest, "validation_error")

	w = env.do(t, http.MethodPatch, "/api/pipelines/tasks/stages/nope", `{"label":"x"}`)
	assertProblem(t, w, http.StatusNotFound, "not_found")
}

func TestStages_UpdateIsAllOrNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	card := decode[kanban.Card](t, env.do(t, http.MethodPost, "/api/pipelines/tasks/cards", `{"title":"a","stageRef":"review"}`))
	before := env.svc.ListStages(ctx, "tasks")
	env.records.FailUpdate = func(string, string) error { return errors.New("deadlock found") }

	w := env.do(t, http.MethodPatch, "/api/pipelines/tasks/stages/review", `{"key":"qa","color":"#00ff00"}`)
	assertProblem(t, w, http.StatusServiceUnavailable, "persistence_error")

	after := env.svc.ListStages(ctx, "tasks")
	if len(after) != len(before) || after[2] != before[2] {
		t.Errorf("stages changed after failed update: %+v", after)
	}
	got, err := env.svc.GetCard(ctx, card.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.StageRef != "review" {
		t.Errorf("card stageRef = %q, want %q", got.StageRef, "review")
	}
}

func TestStages_DeleteReorderReset(t *testing.T) {
	env := newTestEnv(t)
	card := decode[kanban.Card](t, env.do(t, http.MethodPost, "/api/pipelines/tasks/cards", `{"title":"a","stageRef":"review"}`))

	w := env.do(t, http.MethodDelete, "/api/pipelines/tasks/stages/review?fallback=todo", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	res := decode[kanban.CascadeResult](t, w)
	if res.Affected != 1 || res.CardIDs[0] != card.ID {
		t.Errorf("result = %+v", res)
	}

	w = env.do(t, http.MethodDelete, "/api/pipelines/tasks/stages/done?fallback=done", "")
	assertProblem(t, w, http.StatusBadRequest, "validation_error")

	w = env.do(t, http.MethodPut, "/api/pipelines/tasks/stages/order", `{"keys":["done","in-progress","todo"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("reorder status = %d, body %s", w.Code, w.Body.String())
	}
	stages := decode[[]kanban.Stage](t, w)
	if stages[0].Key != "done" || stages[2].SortOrder != 2 {
		t.Errorf("stages = %+v", stages)
	}

	w = env.do(t, http.MethodPut, "/api/pipelines/tasks/stages/order", `{"keys":[]}`)
	assertProblem(t, w, http.StatusBadRequest, "validation_error")

	w = env.do(t, http.MethodPost, "/api/pipelines/tasks/stages/reset", "")
	if got := decode[[]kanban.Stage](t, w); len(got) != 4 || got[0].Key != "todo" {
		t.Errorf("reset stages = %+v", got)
	}
}

func TestCards_CRUD(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/pipelines/enquiries/cards", `{"title":"J. Smith","rank":"critical","fields":{"phone":"0123"}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	card := decode[kanban.Card](t, w)
	if card.Kind != kanban.KindSeeker || card.StageRef != "new-enquiry" {
		t.Errorf("card = %+v", card)
	}

	w = env.do(t, http.MethodGet, "/api/cards/"+card.ID, "")
	if got := decode[kanban.Card](t, w); got.Fields["phone"] != "0123" {
		t.Errorf("fields = %v", got.Fields)
	}

	w = env.do(t, http.MethodPatch, "/api/cards/"+card.ID, `{"stageRef":"active","title":"Jo Smith"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body %s", w.Code, w.Body.String())
	}
	got := decode[kanban.Card](t, w)
	if got.Pipeline != kanban.PipelineActiveTreatment || got.Title != "Jo Smith" {
		t.Errorf("patched card = %+v", got)
	}

	w = env.do(t, http.MethodPatch, "/api/cards/"+card.ID, `{"title":""}`)
	assertProblem(t, w, http.StatusBadRequest, "validation_error")

	w = env.do(t, http.MethodPost, "/api/pipelines/tasks/cards", `{"title":"x","kind":"robot"}`)
	assertProblem(t, w, http.StatusBadRequest, "validation_error")

	w = env.do(t, http.MethodDelete, "/api/cards/"+card.ID, "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	w = env.do(t, http.MethodGet, "/api/cards/"+card.ID, "")
	assertProblem(t, w, http.StatusNotFound, "not_found")
}

func TestMoveCard(t *testing.T) {
	env := newTestEnv(t)
	card := decode[kanban.Card](t, env.do(t, http.MethodPost, "/api/pipelines/tasks/cards", `{"title":"a"}`))

	tests := []struct {
		stage   string
		outcome string
		want    string
	}{
		{"todo", "noop", "todo"},
		{"done", "moved", "done"},
		{"limbo", "cancelled", "done"},
		{kanban.Uncategorised, "moved", ""},
	}
	for _, tt := range tests {
		w := env.do(t, http.MethodPost, "/api/cards/"+card.ID+"/move", `{"stage":"`+tt.stage+`"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("move %s: status = %d, body %s", tt.stage, w.Code, w.Body.String())
		}
		got := decode[MoveCardResponse](t, w)
		if got.Outcome != tt.outcome {
			t.Errorf("move %s: outcome = %q, want %q", tt.stage, got.Outcome, tt.outcome)
		}
		if got.Card.StageRef != tt.want {
			t.Errorf("move %s: stageRef = %q, want %q", tt.stage, got.Card.StageRef, tt.want)
		}
	}

	w := env.do(t, http.MethodPost, "/api/cards/"+card.ID+"/move", `{}`)
	assertProblem(t, w, http.StatusBadRequest, "validation_error")
	w = env.do(t, http.MethodPost, "/api/cards/missing/move", `{"stage":"todo"}`)
	assertProblem(t, w, http.StatusNotFound, "not_found")
}

func TestPersistenceFailure(t *testing.T) {
	env := newTestEnv(t)
	env.records.FailInsert = func(string, store.Record) error { return errors.New("disk I/O error") }

	w := env.do(t, http.MethodPost, "/api/pipelines/tasks/cards", `{"title":"a"}`)
	assertProblem(t, w, http.StatusServiceUnavailable, "persistence_error")
	if strings.Contains(w.Body.String(), "disk I/O") {
		t.Error("storage detail leaked to the client")
	}
}

func TestWriteSSE(t *testing.T) {
	var b strings.Builder
	writeSSE(&b, "card_moved", cardMovedEvent{Pipeline: "tasks", CardID: "c1", From: "todo", To: "done"})
	want := "event: card_moved\ndata: {\"pipeline\":\"tasks\",\"cardId\":\"c1\",\"from\":\"todo\",\"to\":\"done\"}\n\n"
	if b.String() != want {
		t.Errorf("writeSSE = %q, want %q", b.String(), want)
	}
}

func TestSSE_NoBroker(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/api/events", "")
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(w.Body.String(), "event: connected") {
		t.Errorf("body = %q, want connected event", w.Body.String())
	}
}

// readEvent reads one SSE frame and returns its event name and data.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	type frame struct{ event, data string }
	ch := make(chan frame, 1)
	go func() {
		var f frame
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				ch <- f
				return
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case line == "":
				ch <- f
				return
			case strings.HasPrefix(line, "event: "):
				f.event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				f.data = strings.TrimPrefix(line, "data: ")
			}
		}
	}()
	select {
	case f := <-ch:
		return f.event, f.data
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for SSE event")
		return "", ""
	}
}

func TestSSE_StreamsEngineEvents(t *testing.T) {
	records := store.NewMemStore()
	svc := kanban.NewService(records, configstore.NewMemStore())
	broker := NewBroker()
	svc.Subscribe(broker)

	ts := httptest.NewServer(NewRouter(svc, broker))
	defer ts.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	r := bufio.NewReader(resp.Body)

	if ev, _ := readEvent(t, r); ev != "connected" {
		t.Fatalf("first event = %q, want connected", ev)
	}
	if broker.Clients() != 1 {
		t.Fatalf("clients = %d, want 1", broker.Clients())
	}

	if _, err := svc.AddStage(ctx, kanban.PipelineTasks, kanban.StageInput{Label: "Blocked"}); err != nil {
		t.Fatal(err)
	}
	ev, data := readEvent(t, r)
	if ev != "stage_added" {
		t.Fatalf("event = %q, want stage_added", ev)
	}
	if !strings.Contains(data, `"key":"blocked"`) {
		t.Errorf("data = %s", data)
	}

	card, err := svc.CreateCard(ctx, kanban.PipelineTasks, kanban.CardInput{Title: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.OnCardMoved(ctx, card.ID, "blocked"); err != nil {
		t.Fatal(err)
	}
	ev, data = readEvent(t, r)
	if ev != "card_moved" || !strings.Contains(data, `"to":"blocked"`) {
		t.Errorf("event = %q data = %s", ev, data)
	}
}

func TestBroker_Close(t *testing.T) {
	b := NewBroker()
	ch := b.subscribe()
	b.Close()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed")
	}
	if b.Clients() != 0 {
		t.Errorf("clients = %d, want 0", b.Clients())
	}
	late := b.subscribe()
	if _, ok := <-late; ok {
		t.Error("subscribe after Close should return a closed channel")
	}
	b.unsubscribe(ch)
	b.CardMoved("tasks", "c1", "a", "b")
}
