package services

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/labapp-server-go/logger"
	models "github.com/phillip/labapp-server-go/models"
	"github.com/phillip/labapp-server-go/store"
)

// MinEventOptions is the smallest option list an event may be created with.
const MinEventOptions = 4

type NewEvent struct {
	Name        string
	Description string
	Image       string
	Options     []string
	StartTime   *time.Time
	EndTime     *time.Time
}

type EventService struct {
	events  store.EventStore
	options store.OptionStore

	Clock func() time.Time
}

func NewEventService(events store.EventStore, options store.OptionStore) *EventService {
	return &EventService{events: events, options: options}
}

func (s *EventService) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

// endOfDay is 23:59:59 on t's day in t's location.
func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}

// CreateEvent validates in and stores the event with its options. Options
// are written before the event so a partial failure can only orphan
// options, never leave the event pointing at missing ones.
func (s *EventService) CreateEvent(ctx context.Context, in NewEvent) (*models.Event, error) {
	name := strings.TrimSpace(in.Name)
	description := strings.TrimSpace(in.Description)
	if name == "" || description == "" || in.Options == nil {
		return nil, invalid("Failed. Invalid data!")
	}
	if len(in.Options) < MinEventOptions {
		return nil, invalid("Need more than 3 options")
	}
	for _, o := range in.Options {
		if strings.TrimSpace(o) == "" {
			return nil, invalid("Option names cannot be empty")
		}
	}

	now := s.now()
	start, end := now, endOfDay(now)
	if in.StartTime != nil {
		start = *in.StartTime
	}
	if in.EndTime != nil {
		end = *in.EndTime
	}
	if !end.After(start) {
		return nil, invalid("End time must be later than start time!")
	}

	overlapping, err := s.events.CountOverlapping(ctx, start, end)
	if err != nil {
		return nil, storeFailure("could not check for overlapping events", err)
	}
	if overlapping > 0 {
		return nil, conflict(CodeOverlap, "Another event is scheduled during this time")
	}

	image := strings.TrimSpace(in.Image)
	if image == "" {
		image = models.DefaultEventImage
	}

	event := models.Event{
		ID:          primitive.NewObjectID(),
		Name:        name,
		Description: description,
		Image:       image,
		StartTime:   start,
		EndTime:     end,
		Options:     make([]primitive.ObjectID, 0, len(in.Options)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	opts := make([]models.EventOption, 0, len(in.Options))
	for _, o := range in.Options {
		opt := models.EventOption{
			ID:      primitive.NewObjectID(),
			Name:    strings.TrimSpace(o),
			EventID: event.ID,
		}
		opts = append(opts, opt)
		event.Options = append(event.Options, opt.ID)
	}

	if err := s.options.CreateOptions(ctx, opts); err != nil {
		return nil, storeFailure("could not create event options", err)
	}
	if err := s.events.CreateEvent(ctx, &event); err != nil {
		logger.Warn.Printf("[EventService.CreateEvent] event insert failed, %d options orphaned: %v", len(opts), err)
		return nil, storeFailure("could not create event", err)
	}

	logger.Info.Printf("[EventService.CreateEvent] created event=%s %q with %d options (%s - %s)",
		event.ID.Hex(), event.Name, len(opts), start.Format(time.RFC3339), end.Format(time.RFC3339))
	return &event, nil
}
