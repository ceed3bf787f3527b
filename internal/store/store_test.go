package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hopewell/crm/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestGormStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "store.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(&models.Card{}); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return NewGormStore(db)
}

// forEachStore runs fn against every Store implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("mem", func(t *testing.T) { fn(t, NewMemStore()) })
	t.Run("gorm", func(t *testing.T) { fn(t, openTestGormStore(t)) })
}

func cardRecord(id, pipeline, stage string) Record {
	return Record{
		"id":        id,
		"pipeline":  pipeline,
		"kind":      "task",
		"stage_ref": stage,
		"rank":      "High",
		"title":     "card " + id,
		"fields":    "{}",
	}
}

func TestStore_InsertAndList(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, rec := range []Record{
			cardRecord("c2", "tasks", "todo"),
			cardRecord("c1", "tasks", "done"),
			cardRecord("c3", "enquiries", "new-enquiry"),
		} {
			if _, err := s.Insert(ctx, "cards", rec); err != nil {
				t.Fatalf("Insert %s: %v", rec.ID(), err)
			}
		}

		got, err := s.List(ctx, "cards", Filter{"pipeline": "tasks"})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("len(List) = %d, want 2", len(got))
		}
		if got[0].ID() != "c1" || got[1].ID() != "c2" {
			t.Errorf("List order = [%s %s], want [c1 c2]", got[0].ID(), got[1].ID())
		}

		all, err := s.List(ctx, "cards", nil)
		if err != nil {
			t.Fatalf("List all: %v", err)
		}
		if len(all) != 3 {
			t.Errorf("len(List all) = %d, want 3", len(all))
		}
	})
}

func TestStore_InsertMissingID(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		rec := cardRecord("", "tasks", "todo")
		_, err := s.Insert(context.Background(), "cards", rec)
		if !errors.Is(err, ErrMissingID) {
			t.Errorf("Insert err = %v, want ErrMissingID", err)
		}
	})
}

func TestStore_Update(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if _, err := s.Insert(ctx, "cards", cardRecord("c1", "tasks", "todo")); err != nil {
			t.Fatalf("Insert: %v", err)
		}

		got, err := s.Update(ctx, "cards", "c1", Record{"stage_ref": "done", "id": "hijack"})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if got["stage_ref"] != "done" {
			t.Errorf("stage_ref = %v, want done", got["stage_ref"])
		}
		if got.ID() != "c1" {
			t.Errorf("id = %q, want c1 (immutable)", got.ID())
		}
	})
}

func TestStore_UpdateMissing(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		_, err := s.Update(context.Background(), "cards", "nope", Record{"stage_ref": "x"})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Update err = %v, want ErrNotFound", err)
		}
	})
}

func TestStore_Delete(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if _, err := s.Insert(ctx, "cards", cardRecord("c1", "tasks", "todo")); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if err := s.Delete(ctx, "cards", "c1"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if err := s.Delete(ctx, "cards", "c1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("second Delete err = %v, want ErrNotFound", err)
		}
	})
}

func TestStore_AtomicRollsBack(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		if _, err := s.Insert(ctx, "cards", cardRecord("c1", "tasks", "todo")); err != nil {
			t.Fatalf("Insert: %v", err)
		}

		boom := errors.New("boom")
		err := s.Atomic(ctx, func(tx Store) error {
			if _, err := tx.Update(ctx, "cards", "c1", Record{"stage_ref": "done"}); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("Atomic err = %v, want boom", err)
		}

		got, err := s.List(ctx, "cards", Filter{"id": "c1"})
		if err != nil || len(got) != 1 {
			t.Fatalf("List: %v (%d rows)", err, len(got))
		}
		if got[0]["stage_ref"] != "todo" {
			t.Errorf("stage_ref = %v after rollback, want todo", got[0]["stage_ref"])
		}
	})
}

func TestStore_AtomicCommits(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		err := s.Atomic(ctx, func(tx Store) error {
			_, err := tx.Insert(ctx, "cards", cardRecord("c9", "tasks", "todo"))
			return err
		})
		if err != nil {
			t.Fatalf("Atomic: %v", err)
		}
		got, _ := s.List(ctx, "cards", nil)
		if len(got) != 1 {
			t.Errorf("len(List) = %d, want 1", len(got))
		}
	})
}

func TestGormStore_RejectsBadIdentifiers(t *testing.T) {
	s := openTestGormStore(t)
	ctx := context.Background()
	if _, err := s.List(ctx, "cards; DROP TABLE cards", nil); err == nil {
		t.Error("expected error for bad table name")
	}
	if _, err := s.List(ctx, "cards", Filter{"stage_ref OR 1=1": "x"}); err == nil {
		t.Error("expected error for bad column name")
	}
}

func TestMemStore_Hooks(t *testing.T) {
	s := NewMemStore()
	ctx := context.Background()
	if _, err := s.Insert(ctx, "cards", cardRecord("c1", "tasks", "todo")); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	s.FailUpdate = func(table, id string) error {
		return errors.New("disk full")
	}
	if _, err := s.Update(ctx, "cards", "c1", Record{"stage_ref": "done"}); err == nil {
		t.Fatal("expected injected failure")
	}
	if n := s.Calls("update"); n != 1 {
		t.Errorf("Calls(update) = %d, want 1", n)
	}
	if _, err := s.Insert(ctx, "cards", cardRecord("c1", "tasks", "todo")); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("duplicate Insert err = %v, want ErrDuplicateID", err)
	}
}
