// Package store defines the persistence contracts used by the services.
// Implementations live in store/mongostore and store/memory.
package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	models "github.com/phillip/labapp-server-go/models"
)

var (
	ErrNotFound  = errors.New("store: not found")
	ErrDuplicate = errors.New("store: duplicate key")
)

type EventStore interface {
	CreateEvent(ctx context.Context, e *models.Event) error
	FindEventByID(ctx context.Context, id primitive.ObjectID) (*models.Event, error)
	// FindActiveEvent returns the first event (by start time, then id) with
	// start < now < end.
	FindActiveEvent(ctx context.Context, now time.Time) (*models.Event, error)
	CountOverlapping(ctx context.Context, start, end time.Time) (int64, error)
	// PruneEventOptions removes the given refs from the event's option list
	// in a single write.
	PruneEventOptions(ctx context.Context, id primitive.ObjectID, broken []primitive.ObjectID) error
	// MarkReleased flips resultsReleased from false to true. It returns
	// false when the event was already released.
	MarkReleased(ctx context.Context, id primitive.ObjectID) (bool, error)
}

type OptionStore interface {
	CreateOptions(ctx context.Context, opts []models.EventOption) error
	FindOptionByID(ctx context.Context, id primitive.ObjectID) (*models.EventOption, error)
	IncrementScore(ctx context.Context, id primitive.ObjectID, delta int) error
	// AddAward appends award to the option's awards unless already present.
	AddAward(ctx context.Context, id primitive.ObjectID, award string) error
}

type VoteLogStore interface {
	FindVoteLog(ctx context.Context, eventID primitive.ObjectID, ip string) (*models.VoteLog, error)
	// InsertVoteLog returns ErrDuplicate if (event, ip) already voted.
	InsertVoteLog(ctx context.Context, log *models.VoteLog) error
	// DeleteVoteLog releases an (event, ip) reservation.
	DeleteVoteLog(ctx context.Context, eventID primitive.ObjectID, ip string) error
}

type PresenceStore interface {
	FindPresence(ctx context.Context, email string) (*models.PresenceRecord, error)
	UpsertPresence(ctx context.Context, rec models.PresenceRecord) error
	ListPresence(ctx context.Context) ([]models.PresenceRecord, error)
	ClearPresent(ctx context.Context, email string) error
	// ClearPresentIfIdle clears inDALI only if lastUpdate still equals since.
	ClearPresentIfIdle(ctx context.Context, email string, since time.Time) (bool, error)
}

type TrackerStore interface {
	GetTracker(ctx context.Context) (*models.SpecialTracker, error)
	SetTrackerZone(ctx context.Context, zone string, entered bool) error
	ResetTracker(ctx context.Context) error
}

// Store bundles every collection.
type Store interface {
	EventStore
	OptionStore
	VoteLogStore
	PresenceStore
	TrackerStore
}
