package services

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/labapp-server-go/logger"
	models "github.com/phillip/labapp-server-go/models"
	"github.com/phillip/labapp-server-go/store"
)

// Winner assigns one award to one option.
type Winner struct {
	ID    string
	Award string
}

// ResultsManager drives the one-way Open -> Released transition of an
// event and exposes the score and result views.
type ResultsManager struct {
	resolver *EventResolver
	events   store.EventStore
	options  store.OptionStore
}

func NewResultsManager(resolver *EventResolver, events store.EventStore, options store.OptionStore) *ResultsManager {
	return &ResultsManager{resolver: resolver, events: events, options: options}
}

// Release assigns every award and then marks the event released.
//
// All winner options are fetched and validated before anything is written.
// Awards are added with set semantics so retrying after a failed write does
// not duplicate them. The released flag is flipped last, and only if it is
// still false, so the event is never released with awards missing.
func (m *ResultsManager) Release(ctx context.Context, eventRef string, winners []Winner) error {
	eventRef = strings.TrimSpace(eventRef)
	if eventRef == "" {
		return invalid("Invalid data!")
	}
	eventID, err := primitive.ObjectIDFromHex(eventRef)
	if err != nil {
		return invalid("Invalid event id")
	}
	if len(winners) == 0 {
		return invalid("You need at least one winner!")
	}
	ids := make([]primitive.ObjectID, len(winners))
	for i, w := range winners {
		if strings.TrimSpace(w.Award) == "" {
			return invalid("Every winner needs an award")
		}
		id, err := primitive.ObjectIDFromHex(strings.TrimSpace(w.ID))
		if err != nil {
			return invalid("Invalid winner id")
		}
		ids[i] = id
	}

	event, err := m.resolver.findEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if event.ResultsReleased {
		return conflict(CodeAlreadyReleased, "Event has already released results")
	}

	// phase 1: validate
	seen := make(map[primitive.ObjectID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		opt, err := m.options.FindOptionByID(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return notFound("Winner option not found: " + id.Hex())
		}
		if err != nil {
			return storeFailure("could not load winner option", err)
		}
		if opt.EventID != event.ID {
			return invalid("Winner option " + id.Hex() + " does not belong to this event")
		}
	}

	// phase 2: awards
	for i, id := range ids {
		if err := m.options.AddAward(ctx, id, strings.TrimSpace(winners[i].Award)); err != nil {
			logger.Error.Printf("[ResultsManager.Release] award %d/%d failed on event=%s option=%s, event left unreleased: %v",
				i+1, len(ids), eventID.Hex(), id.Hex(), err)
			return storeFailure("could not save awards; results were not released", err)
		}
	}

	// phase 3: flag
	released, err := m.events.MarkReleased(ctx, eventID)
	if err != nil {
		return storeFailure("awards saved but the event could not be marked released", err)
	}
	if !released {
		return conflict(CodeAlreadyReleased, "Event has already released results")
	}

	logger.Info.Printf("[ResultsManager.Release] released event=%s with %d award(s)", eventID.Hex(), len(winners))
	return nil
}

// LiveScores returns the active event with scores. Only available until
// the event is released.
func (m *ResultsManager) LiveScores(ctx context.Context) (models.EventView, error) {
	event, err := m.resolver.ResolveActive(ctx)
	if err != nil {
		return models.EventView{}, err
	}
	if event.ResultsReleased {
		return models.EventView{}, conflict(CodeAlreadyReleased, "Results for this event are already released")
	}
	return event.ScoreView(), nil
}

// FinalResults returns the awarded options of a released event. An empty
// eventRef selects the currently active event.
func (m *ResultsManager) FinalResults(ctx context.Context, eventRef string) ([]models.FinalResult, error) {
	var (
		event *models.Event
		err   error
	)
	eventRef = strings.TrimSpace(eventRef)
	if eventRef == "" {
		event, err = m.resolver.findActive(ctx)
	} else {
		id, perr := primitive.ObjectIDFromHex(eventRef)
		if perr != nil {
			return nil, notFound("Event not found")
		}
		event, err = m.resolver.findEvent(ctx, id)
	}
	if err != nil {
		if IsKind(err, KindNotFound) {
			return nil, notFound("Event not found")
		}
		return nil, err
	}
	if !event.ResultsReleased {
		return nil, conflict(CodeNotReleased, "Event has not released results yet!")
	}

	hydrated, err := m.resolver.Hydrate(ctx, event)
	if err != nil {
		return nil, err
	}
	return hydrated.FinalResults(), nil
}
