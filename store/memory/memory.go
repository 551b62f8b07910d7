// Package memory is an in-memory implementation of store.Store. Every
// collection is an arena keyed by id; callers always receive copies.
// It is intended for tests and for running without a database.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/phillip/labapp-server-go/models"
	"github.com/phillip/labapp-server-go/store"
)

type voteKey struct {
	event primitive.ObjectID
	ip    string
}

type Store struct {
	mu       sync.RWMutex
	events   map[primitive.ObjectID]models.Event
	options  map[primitive.ObjectID]models.EventOption
	votes    map[voteKey]models.VoteLog
	presence map[string]models.PresenceRecord
	tracker  *models.SpecialTracker
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		events:   make(map[primitive.ObjectID]models.Event),
		options:  make(map[primitive.ObjectID]models.EventOption),
		votes:    make(map[voteKey]models.VoteLog),
		presence: make(map[string]models.PresenceRecord),
	}
}

// ---------------- EVENTS ----------------

func (s *Store) CreateEvent(_ context.Context, e *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	if _, ok := s.events[e.ID]; ok {
		return store.ErrDuplicate
	}
	s.events[e.ID] = cloneEvent(*e)
	return nil
}

func (s *Store) FindEventByID(_ context.Context, id primitive.ObjectID) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneEvent(e)
	return &out, nil
}

func (s *Store) FindActiveEvent(_ context.Context, now time.Time) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []models.Event
	for _, e := range s.events {
		if e.ActiveAt(now) {
			active = append(active, e)
		}
	}
	if len(active) == 0 {
		return nil, store.ErrNotFound
	}
	sort.Slice(active, func(i, j int) bool {
		if !active[i].StartTime.Equal(active[j].StartTime) {
			return active[i].StartTime.Before(active[j].StartTime)
		}
		return active[i].ID.Hex() < active[j].ID.Hex()
	})
	out := cloneEvent(active[0])
	return &out, nil
}

func (s *Store) CountOverlapping(_ context.Context, start, end time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, e := range s.events {
		if e.StartTime.Before(end) && e.EndTime.After(start) {
			n++
		}
	}
	return n, nil
}

func (s *Store) PruneEventOptions(_ context.Context, id primitive.ObjectID, broken []primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return store.ErrNotFound
	}
	e.Options = slices.DeleteFunc(slices.Clone(e.Options), func(ref primitive.ObjectID) bool {
		return slices.Contains(broken, ref)
	})
	e.UpdatedAt = time.Now()
	s.events[id] = e
	return nil
}

func (s *Store) MarkReleased(_ context.Context, id primitive.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return false, store.ErrNotFound
	}
	if e.ResultsReleased {
		return false, nil
	}
	e.ResultsReleased = true
	e.UpdatedAt = time.Now()
	s.events[id] = e
	return true, nil
}

// DeleteOption removes an option without touching the events referencing
// it. Used to simulate dangling references.
func (s *Store) DeleteOption(id primitive.ObjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.options, id)
}

// ---------------- OPTIONS ----------------

func (s *Store) CreateOptions(_ context.Context, opts []models.EventOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range opts {
		if _, ok := s.options[o.ID]; ok {
			return store.ErrDuplicate
		}
	}
	for _, o := range opts {
		s.options[o.ID] = cloneOption(o)
	}
	return nil
}

func (s *Store) FindOptionByID(_ context.Context, id primitive.ObjectID) (*models.EventOption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.options[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := cloneOption(o)
	return &out, nil
}

func (s *Store) IncrementScore(_ context.Context, id primitive.ObjectID, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.options[id]
	if !ok {
		return store.ErrNotFound
	}
	o.Score += delta
	s.options[id] = o
	return nil
}

func (s *Store) AddAward(_ context.Context, id primitive.ObjectID, award string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.options[id]
	if !ok {
		return store.ErrNotFound
	}
	if !slices.Contains(o.Awards, award) {
		o.Awards = append(slices.Clone(o.Awards), award)
	}
	s.options[id] = o
	return nil
}

// ---------------- VOTE LOGS ----------------

func (s *Store) FindVoteLog(_ context.Context, eventID primitive.ObjectID, ip string) (*models.VoteLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.votes[voteKey{eventID, ip}]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &v, nil
}

func (s *Store) InsertVoteLog(_ context.Context, log *models.VoteLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := voteKey{log.EventID, log.IP}
	if _, ok := s.votes[key]; ok {
		return store.ErrDuplicate
	}
	if log.ID.IsZero() {
		log.ID = primitive.NewObjectID()
	}
	s.votes[key] = *log
	return nil
}

func (s *Store) DeleteVoteLog(_ context.Context, eventID primitive.ObjectID, ip string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := voteKey{eventID, ip}
	if _, ok := s.votes[key]; !ok {
		return store.ErrNotFound
	}
	delete(s.votes, key)
	return nil
}

// VoteLogs returns a copy of every vote log. Test-only helper.
func (s *Store) VoteLogs() []models.VoteLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.VoteLog, 0, len(s.votes))
	for _, v := range s.votes {
		out = append(out, v)
	}
	return out
}

// ---------------- PRESENCE ----------------

func (s *Store) FindPresence(_ context.Context, email string) (*models.PresenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presence[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (s *Store) UpsertPresence(_ context.Context, rec models.PresenceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presence[rec.Email] = rec
	return nil
}

func (s *Store) ListPresence(_ context.Context) ([]models.PresenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.PresenceRecord, 0, len(s.presence))
	for _, p := range s.presence {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *Store) ClearPresent(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.presence[email]
	if !ok {
		return store.ErrNotFound
	}
	p.InDALI = false
	s.presence[email] = p
	return nil
}

func (s *Store) ClearPresentIfIdle(_ context.Context, email string, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.presence[email]
	if !ok || !p.InDALI || !p.LastUpdate.Equal(since) {
		return false, nil
	}
	p.InDALI = false
	s.presence[email] = p
	return true, nil
}

// ---------------- TRACKER ----------------

func (s *Store) GetTracker(_ context.Context) (*models.SpecialTracker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tracker == nil {
		return nil, store.ErrNotFound
	}
	t := *s.tracker
	return &t, nil
}

func (s *Store) SetTrackerZone(_ context.Context, zone string, entered bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracker == nil {
		s.tracker = &models.SpecialTracker{}
	}
	switch zone {
	case models.ZoneDALI:
		s.tracker.InDALI = entered
	case models.ZoneOffice:
		s.tracker.InOffice = entered
	}
	return nil
}

func (s *Store) ResetTracker(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracker != nil {
		*s.tracker = models.SpecialTracker{}
	}
	return nil
}

func cloneEvent(e models.Event) models.Event {
	e.Options = slices.Clone(e.Options)
	return e
}

func cloneOption(o models.EventOption) models.EventOption {
	o.Awards = slices.Clone(o.Awards)
	return o
}
