// Package kanban implements the pipeline engine shared by the task board and
// the recovery-seeker boards: ordered per-pipeline stages, cards that name
// their stage by key, derived per-stage views, drag-and-drop transitions and
// the rename/delete cascade.
package kanban

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hopewell/crm/internal/configstore"
	"github.com/hopewell/crm/internal/store"
	log "github.com/sirupsen/logrus"
)

// Service is the stage registry, card store and pipeline view over one
// record store and one configuration store.
type Service struct {
	records store.Store
	configs configstore.Store
	catalog Catalog
	events  listeners
	log     *log.Entry
	now     func() time.Time
	newID   func() string

	// mu serialises mutations; stage sets are read-modify-write blobs.
	mu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithCatalog replaces the default pipeline catalog.
func WithCatalog(c Catalog) Option {
	return func(s *Service) { s.catalog = c }
}

// WithListener registers a listener for committed changes.
func WithListener(l Listener) Option {
	return func(s *Service) { s.events = append(s.events, l) }
}

// WithLogger sets the logrus entry used for mutation logs.
func WithLogger(l *log.Entry) Option {
	return func(s *Service) { s.log = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator overrides the UUID card id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// NewService wires the engine to its two stores.
func NewService(records store.Store, configs configstore.Store, opts ...Option) *Service {
	s := &Service{
		records: records,
		configs: configs,
		catalog: DefaultCatalog(),
		log:     log.WithField("component", "kanban"),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Catalog returns the pipeline catalog in use.
func (s *Service) Catalog() Catalog {
	return s.catalog
}

// Subscribe registers a listener after construction.
func (s *Service) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, l)
}

func validPipeline(id string) error {
	if id == "" {
		return invalid("pipeline", "id is required")
	}
	if !configstore.ValidKey(id) {
		return invalid("pipeline", "id %q may only contain letters, digits, '-' and '_'", id)
	}
	return nil
}

func (s *Service) ranksFor(pipeline string) RankTable {
	d, _ := s.catalog.Definition(pipeline)
	return d.Ranks
}

func (s *Service) atomic(ctx context.Context, op string, fn func(tx store.Store) error) error {
	if err := s.records.Atomic(ctx, fn); err != nil {
		if IsValidation(err) || IsNotFound(err) {
			return err
		}
		return persistence(op, err)
	}
	return nil
}
