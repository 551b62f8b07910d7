package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/phillip/labapp-server-go/logger"
	models "github.com/phillip/labapp-server-go/models"
	"github.com/phillip/labapp-server-go/store"
)

// PresenceUpdate is one enter/exit/settings signal from a client.
type PresenceUpdate struct {
	Email   string
	Name    string
	Present bool
	Share   bool
}

// ResetReport summarises a ResetAll run.
type ResetReport struct {
	Users   int
	Failed  int
	Tracker bool
}

type idleTimer struct {
	timer *time.Timer
}

// PresenceReconciler keeps presence records and the special tracker in
// sync with client signals, and expires users who stop sending updates.
type PresenceReconciler struct {
	presence store.PresenceStore
	tracker  store.TrackerStore
	idle     time.Duration
	timeout  time.Duration

	mu     sync.Mutex
	timers map[string]*idleTimer

	Clock func() time.Time
}

// NewPresenceReconciler creates a reconciler. idle is how long a present
// user may go without an update before being marked absent; 0 disables
// the inactivity timer.
func NewPresenceReconciler(presence store.PresenceStore, tracker store.TrackerStore, idle time.Duration) *PresenceReconciler {
	return &PresenceReconciler{
		presence: presence,
		tracker:  tracker,
		idle:     idle,
		timeout:  10 * time.Second,
		timers:   make(map[string]*idleTimer),
	}
}

// now is truncated to milliseconds, the precision the store keeps, so the
// timer's conditional clear matches what was written.
func (r *PresenceReconciler) now() time.Time {
	t := time.Now()
	if r.Clock != nil {
		t = r.Clock()
	}
	return t.UTC().Truncate(time.Millisecond)
}

// UpdatePresence upserts the record for u.Email.
func (r *PresenceReconciler) UpdatePresence(ctx context.Context, u PresenceUpdate) error {
	email := strings.TrimSpace(u.Email)
	if email == "" {
		return invalid("Failed. A user email is required")
	}

	existing, err := r.presence.FindPresence(ctx, email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return storeFailure("could not look up user", err)
	}

	var rec models.PresenceRecord
	switch {
	case existing != nil:
		rec = *existing
		rec.Shared = u.Share
		if u.Share {
			rec.InDALI = u.Present
		}
		if name := strings.TrimSpace(u.Name); name != "" {
			rec.Name = name
		}
	case u.Share:
		rec = models.PresenceRecord{
			Email:  email,
			Name:   strings.TrimSpace(u.Name),
			InDALI: u.Present,
			Shared: true,
		}
	default:
		// not sharing and never shared: nothing to track
		return nil
	}
	rec.LastUpdate = r.now()

	if err := r.presence.UpsertPresence(ctx, rec); err != nil {
		return storeFailure("could not save user", err)
	}

	if rec.Shared && rec.InDALI {
		r.arm(email, rec.LastUpdate)
	} else {
		r.disarm(email)
	}
	logger.Debug.Printf("[PresenceReconciler.UpdatePresence] %s inDALI=%v shared=%v", email, rec.InDALI, rec.Shared)
	return nil
}

// arm (re)schedules the inactivity timer for email, cancelling any
// pending one.
func (r *PresenceReconciler) arm(email string, stamp time.Time) {
	if r.idle <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.timers[email]; ok {
		old.timer.Stop()
	}
	entry := &idleTimer{}
	entry.timer = time.AfterFunc(r.idle, func() { r.expire(email, stamp, entry) })
	r.timers[email] = entry
}

func (r *PresenceReconciler) disarm(email string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.timers[email]; ok {
		old.timer.Stop()
		delete(r.timers, email)
	}
}

func (r *PresenceReconciler) expire(email string, stamp time.Time, entry *idleTimer) {
	r.mu.Lock()
	if r.timers[email] != entry {
		// re-armed or cancelled since
		r.mu.Unlock()
		return
	}
	delete(r.timers, email)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	cleared, err := r.presence.ClearPresentIfIdle(ctx, email, stamp)
	if err != nil {
		logger.Error.Printf("[PresenceReconciler.expire] could not expire %s: %v", email, err)
		return
	}
	if cleared {
		logger.Info.Printf("[PresenceReconciler.expire] no update from %s for %v, marked absent", email, r.idle)
	}
}

// PendingTimers reports how many inactivity timers are armed.
func (r *PresenceReconciler) PendingTimers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// Stop cancels every pending inactivity timer.
func (r *PresenceReconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for email, t := range r.timers {
		t.timer.Stop()
		delete(r.timers, email)
	}
}

// ListPresent returns users that share their location and are present.
// Records missing an email or a name are skipped.
func (r *PresenceReconciler) ListPresent(ctx context.Context) ([]models.PresenceRecord, error) {
	all, err := r.presence.ListPresence(ctx)
	if err != nil {
		return nil, storeFailure("could not list users", err)
	}
	return filterPresent(all), nil
}

func filterPresent(all []models.PresenceRecord) []models.PresenceRecord {
	out := make([]models.PresenceRecord, 0, len(all))
	for _, p := range all {
		if p.Listable() {
			out = append(out, p)
		}
	}
	return out
}

// ResetAll marks every user absent and clears both tracker zones. A
// failing record does not stop the batch; all failures are returned
// joined together with the report.
func (r *PresenceReconciler) ResetAll(ctx context.Context) (ResetReport, error) {
	var report ResetReport
	var errs []error

	r.Stop()

	users, err := r.presence.ListPresence(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("list users: %w", err))
	}
	for _, u := range users {
		if err := r.presence.ClearPresent(ctx, u.Email); err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("reset %s: %w", u.Email, err))
			continue
		}
		report.Users++
	}

	if err := r.tracker.ResetTracker(ctx); err != nil {
		errs = append(errs, fmt.Errorf("reset tracker: %w", err))
	} else {
		report.Tracker = true
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		logger.Error.Printf("[PresenceReconciler.ResetAll] reset %d user(s), %d failed: %v", report.Users, report.Failed, err)
		return report, storeFailure("reset finished with errors", err)
	}
	logger.Info.Printf("[PresenceReconciler.ResetAll] reset %d user(s) and tracker", report.Users)
	return report, nil
}

// UpdateSpecialTracker records the tracked person entering or leaving zone.
func (r *PresenceReconciler) UpdateSpecialTracker(ctx context.Context, zone string, entered bool) error {
	zone = strings.ToUpper(strings.TrimSpace(zone))
	if zone != models.ZoneDALI && zone != models.ZoneOffice {
		return invalid("Failed. location must be DALI or OFFICE")
	}
	if err := r.tracker.SetTrackerZone(ctx, zone, entered); err != nil {
		return storeFailure("could not save location", err)
	}
	return nil
}

// GetSpecialTracker returns the tracker, all false if it was never set.
func (r *PresenceReconciler) GetSpecialTracker(ctx context.Context) (models.SpecialTracker, error) {
	t, err := r.tracker.GetTracker(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return models.SpecialTracker{}, nil
	}
	if err != nil {
		return models.SpecialTracker{}, storeFailure("could not load location", err)
	}
	return *t, nil
}
