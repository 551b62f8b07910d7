package services

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"

	"github.com/phillip/labapp-server-go/logger"
	models "github.com/phillip/labapp-server-go/models"
	"github.com/phillip/labapp-server-go/store"
)

// hydrateParallelism caps concurrent option lookups per event.
const hydrateParallelism = 8

// EventResolver finds the active event and resolves its option references,
// repairing references that point at missing options.
type EventResolver struct {
	events  store.EventStore
	options store.OptionStore

	// Clock defaults to time.Now.
	Clock func() time.Time
}

func NewEventResolver(events store.EventStore, options store.OptionStore) *EventResolver {
	return &EventResolver{events: events, options: options}
}

func (r *EventResolver) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now()
}

// ResolveActive returns the event whose window contains now, hydrated.
func (r *EventResolver) ResolveActive(ctx context.Context) (*models.HydratedEvent, error) {
	e, err := r.findActive(ctx)
	if err != nil {
		return nil, err
	}
	return r.Hydrate(ctx, e)
}

func (r *EventResolver) findActive(ctx context.Context) (*models.Event, error) {
	e, err := r.events.FindActiveEvent(ctx, r.now())
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("No event is currently running")
	}
	if err != nil {
		return nil, storeFailure("could not look up the current event", err)
	}
	return e, nil
}

// Resolve returns the event with the given id, hydrated.
func (r *EventResolver) Resolve(ctx context.Context, id primitive.ObjectID) (*models.HydratedEvent, error) {
	e, err := r.findEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.Hydrate(ctx, e)
}

func (r *EventResolver) findEvent(ctx context.Context, id primitive.ObjectID) (*models.Event, error) {
	e, err := r.events.FindEventByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFound("Event not found")
	}
	if err != nil {
		return nil, storeFailure("could not look up event", err)
	}
	return e, nil
}

// Hydrate fetches every option referenced by e concurrently. References
// to missing options are dropped from the result and pruned from the
// stored event in one write. A failed prune is logged; the read still
// succeeds.
func (r *EventResolver) Hydrate(ctx context.Context, e *models.Event) (*models.HydratedEvent, error) {
	found := make([]*models.EventOption, len(e.Options))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hydrateParallelism)
	for i, ref := range e.Options {
		g.Go(func() error {
			opt, err := r.options.FindOptionByID(gctx, ref)
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			found[i] = opt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, storeFailure("could not load event options", err)
	}

	out := &models.HydratedEvent{Event: *e, Resolved: make([]models.EventOption, 0, len(found))}
	var broken, kept []primitive.ObjectID
	for i, opt := range found {
		if opt == nil {
			broken = append(broken, e.Options[i])
			continue
		}
		kept = append(kept, e.Options[i])
		out.Resolved = append(out.Resolved, *opt)
	}

	if len(broken) > 0 {
		logger.Warn.Printf("[EventResolver.Hydrate] event=%s has %d broken option link(s): %v",
			e.ID.Hex(), len(broken), broken)
		if err := r.events.PruneEventOptions(ctx, e.ID, broken); err != nil {
			logger.Error.Printf("[EventResolver.Hydrate] failed to prune broken links on event=%s: %v", e.ID.Hex(), err)
		} else {
			logger.Info.Printf("[EventResolver.Hydrate] pruned %d broken link(s) on event=%s", len(broken), e.ID.Hex())
			out.Options = kept
		}
	}
	return out, nil
}
