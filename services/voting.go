package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"

	"github.com/phillip/labapp-server-go/logger"
	models "github.com/phillip/labapp-server-go/models"
	"github.com/phillip/labapp-server-go/store"
)

const rollbackTimeout = 10 * time.Second

// Weights are the points awarded to the first, second and third choice.
type Weights struct {
	First, Second, Third int
}

var (
	WeightsClassic = Weights{First: 5, Second: 3, Third: 1}
	WeightsBorda   = Weights{First: 3, Second: 2, Third: 1}
)

// WeightsFrom converts a configured [first, second, third] triple.
func WeightsFrom(w [3]int) Weights {
	return Weights{First: w[0], Second: w[1], Third: w[2]}
}

func (w Weights) points() [3]int {
	return [3]int{w.First, w.Second, w.Third}
}

// Ballot is one voter's ranked submission. Ids are hex strings as received.
type Ballot struct {
	Event   string
	First   string
	Second  string
	Third   string
	User    string
	Address string
}

type VotingEngine struct {
	events  store.EventStore
	options store.OptionStore
	votes   store.VoteLogStore
	weights Weights

	Clock func() time.Time
}

func NewVotingEngine(events store.EventStore, options store.OptionStore, votes store.VoteLogStore, w Weights) *VotingEngine {
	return &VotingEngine{events: events, options: options, votes: votes, weights: w}
}

func (v *VotingEngine) Weights() Weights { return v.weights }

func (v *VotingEngine) now() time.Time {
	if v.Clock != nil {
		return v.Clock()
	}
	return time.Now()
}

// SubmitBallot validates b and applies its weighted points. Checks run in
// a fixed order and stop at the first failure, before any write. The vote
// log is inserted before scoring; a failed score write undoes the points
// already applied and the log, so the voter may retry.
func (v *VotingEngine) SubmitBallot(ctx context.Context, b Ballot) error {
	eventRef := strings.TrimSpace(b.Event)
	if eventRef == "" {
		return invalid("Failed! You must include the id of the event")
	}
	eventID, err := primitive.ObjectIDFromHex(eventRef)
	if err != nil {
		return invalid("Failed! Invalid event id")
	}
	if strings.TrimSpace(b.Address) == "" {
		return invalid("Failed! Unknown source address")
	}

	_, err = v.votes.FindVoteLog(ctx, eventID, b.Address)
	switch {
	case err == nil:
		return conflict(CodeDuplicateVote, "You can only vote once!")
	case !errors.Is(err, store.ErrNotFound):
		return storeFailure("could not check previous votes", err)
	}

	event, err := v.events.FindEventByID(ctx, eventID)
	if errors.Is(err, store.ErrNotFound) {
		return notFound("Event not found")
	}
	if err != nil {
		return storeFailure("could not look up event", err)
	}
	if event.ResultsReleased {
		return conflict(CodeVotingClosed, "Event is no longer accepting votes")
	}

	choices, err := parseChoices(b.First, b.Second, b.Third)
	if err != nil {
		return err
	}

	opts := make([]*models.EventOption, len(choices))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range choices {
		g.Go(func() error {
			opt, err := v.options.FindOptionByID(gctx, id)
			if err != nil {
				return err
			}
			opts[i] = opt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return notFound("Vote option not found!")
		}
		return storeFailure("could not load vote options", err)
	}
	for _, opt := range opts {
		if opt.EventID != event.ID {
			return invalid("Vote option " + opt.ID.Hex() + " does not belong to this event")
		}
	}

	// The vote log is the reservation: the unique (event, ip) index lets
	// exactly one concurrent ballot per address through to scoring.
	entry := &models.VoteLog{
		EventID:   eventID,
		First:     choices[0],
		Second:    choices[1],
		Third:     choices[2],
		User:      strings.TrimSpace(b.User),
		IP:        b.Address,
		CreatedAt: v.now(),
	}
	if err := v.votes.InsertVoteLog(ctx, entry); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return conflict(CodeDuplicateVote, "You can only vote once!")
		}
		return storeFailure("could not record vote", err)
	}

	points := v.weights.points()
	for i, id := range choices {
		if err := v.options.IncrementScore(ctx, id, points[i]); err != nil {
			logger.Error.Printf("[VotingEngine.SubmitBallot] score write %d/3 failed for event=%s option=%s: %v",
				i+1, eventID.Hex(), id.Hex(), err)
			if rerr := v.rollback(eventID, b.Address, choices[:i], points[:i]); rerr != nil {
				logger.Error.Printf("[VotingEngine.SubmitBallot] INCONSISTENCY: rollback failed (event=%s ip=%s): %v",
					eventID.Hex(), b.Address, rerr)
				return inconsistency("vote partially scored", errors.Join(err, rerr))
			}
			return storeFailure("could not record vote", err)
		}
	}

	logger.Debug.Printf("[VotingEngine.SubmitBallot] vote recorded event=%s ip=%s", eventID.Hex(), b.Address)
	return nil
}

// rollback reverses the applied increments and frees the vote log. It runs
// on a fresh context so a cancelled request still gets cleaned up.
func (v *VotingEngine) rollback(eventID primitive.ObjectID, ip string, applied []primitive.ObjectID, points []int) error {
	ctx, cancel := context.WithTimeout(context.Background(), rollbackTimeout)
	defer cancel()

	var errs []error
	for i, id := range applied {
		if err := v.options.IncrementScore(ctx, id, -points[i]); err != nil {
			errs = append(errs, fmt.Errorf("undo %s: %w", id.Hex(), err))
		}
	}
	if err := v.votes.DeleteVoteLog(ctx, eventID, ip); err != nil {
		errs = append(errs, fmt.Errorf("free vote log: %w", err))
	}
	return errors.Join(errs...)
}

func parseChoices(first, second, third string) ([3]primitive.ObjectID, error) {
	var out [3]primitive.ObjectID
	raw := [3]string{strings.TrimSpace(first), strings.TrimSpace(second), strings.TrimSpace(third)}
	for i, r := range raw {
		if r == "" {
			return out, invalid("Failed! One of them is missing!")
		}
		id, err := primitive.ObjectIDFromHex(r)
		if err != nil {
			return out, invalid(fmt.Sprintf("Failed! Invalid option id %q", r))
		}
		out[i] = id
	}
	if out[0] == out[1] || out[0] == out[2] || out[1] == out[2] {
		return out, invalid("Failed! Choices must be three different options")
	}
	return out, nil
}
