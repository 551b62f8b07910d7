package services

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/phillip/labapp-server-go/logger"
	models "github.com/phillip/labapp-server-go/models"
	"github.com/phillip/labapp-server-go/store/memory"
)

func TestMain(m *testing.M) {
	logger.Silence()
	os.Exit(m.Run())
}

var errInjected = errors.New("injected store failure")

// faultyStore wraps the memory store with optional failure hooks.
type faultyStore struct {
	*memory.Store

	mu            sync.Mutex
	awardFail     map[primitive.ObjectID]bool
	scoreFail     map[primitive.ObjectID]bool
	voteLogFail   bool
	deleteLogFail bool
	clearFail     map[string]bool
	pruneCalls    atomic.Int32
}

func newFaultyStore() *faultyStore {
	return &faultyStore{
		Store:     memory.New(),
		awardFail: make(map[primitive.ObjectID]bool),
		scoreFail: make(map[primitive.ObjectID]bool),
		clearFail: make(map[string]bool),
	}
}

func (f *faultyStore) failAward(id primitive.ObjectID, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.awardFail[id] = fail
}

func (f *faultyStore) AddAward(ctx context.Context, id primitive.ObjectID, award string) error {
	f.mu.Lock()
	fail := f.awardFail[id]
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.Store.AddAward(ctx, id, award)
}

// failScore makes every increment of id fail, including undo writes.
func (f *faultyStore) failScore(id primitive.ObjectID, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scoreFail[id] = fail
}

func (f *faultyStore) IncrementScore(ctx context.Context, id primitive.ObjectID, delta int) error {
	f.mu.Lock()
	fail := f.scoreFail[id]
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.Store.IncrementScore(ctx, id, delta)
}

func (f *faultyStore) DeleteVoteLog(ctx context.Context, eventID primitive.ObjectID, ip string) error {
	if f.deleteLogFail {
		return errInjected
	}
	return f.Store.DeleteVoteLog(ctx, eventID, ip)
}

func (f *faultyStore) InsertVoteLog(ctx context.Context, log *models.VoteLog) error {
	if f.voteLogFail {
		return errInjected
	}
	return f.Store.InsertVoteLog(ctx, log)
}

func (f *faultyStore) ClearPresent(ctx context.Context, email string) error {
	if f.clearFail[email] {
		return errInjected
	}
	return f.Store.ClearPresent(ctx, email)
}

func (f *faultyStore) PruneEventOptions(ctx context.Context, id primitive.ObjectID, broken []primitive.ObjectID) error {
	f.pruneCalls.Add(1)
	return f.Store.PruneEventOptions(ctx, id, broken)
}

// seedEvent creates an event running from an hour ago to an hour from now.
func seedEvent(t *testing.T, fs *faultyStore, names ...string) *models.Event {
	t.Helper()
	if len(names) == 0 {
		names = []string{"A", "B", "C", "D"}
	}
	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(time.Hour)
	svc := NewEventService(fs, fs)
	e, err := svc.CreateEvent(context.Background(), NewEvent{
		Name:        "The Pitch",
		Description: "Choose the three pitches with the most merit",
		Options:     names,
		StartTime:   &start,
		EndTime:     &end,
	})
	require.NoError(t, err)
	return e
}

func optionScore(t *testing.T, fs *faultyStore, id primitive.ObjectID) int {
	t.Helper()
	o, err := fs.FindOptionByID(context.Background(), id)
	require.NoError(t, err)
	return o.Score
}

func ballotFor(e *models.Event, ip string, first, second, third int) Ballot {
	return Ballot{
		Event:   e.ID.Hex(),
		First:   e.Options[first].Hex(),
		Second:  e.Options[second].Hex(),
		Third:   e.Options[third].Hex(),
		Address: ip,
	}
}
