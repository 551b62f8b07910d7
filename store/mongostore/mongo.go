// Package mongostore implements store.Store on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	models "github.com/phillip/labapp-server-go/models"
	"github.com/phillip/labapp-server-go/store"
)

const (
	eventsCollection   = "events"
	optionsCollection  = "event_options"
	voteLogsCollection = "vote_logs"
	presenceCollection = "shared_users"
	trackerCollection  = "tim_location"

	// the tracker document always lives under this id
	trackerID = "tim"
)

type Store struct {
	events   *mongo.Collection
	options  *mongo.Collection
	votes    *mongo.Collection
	presence *mongo.Collection
	tracker  *mongo.Collection
	timeout  time.Duration
}

var _ store.Store = (*Store)(nil)

// New binds the store to db. opTimeout bounds every single operation.
func New(db *mongo.Database, opTimeout time.Duration) *Store {
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}
	return &Store{
		events:   db.Collection(eventsCollection),
		options:  db.Collection(optionsCollection),
		votes:    db.Collection(voteLogsCollection),
		presence: db.Collection(presenceCollection),
		tracker:  db.Collection(trackerCollection),
		timeout:  opTimeout,
	}
}

// EnsureIndexes creates the indexes the store's invariants rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 4*s.timeout)
	defer cancel()

	if _, err := s.votes.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "event", Value: 1}, {Key: "ip", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("vote log index: %w", err)
	}
	if _, err := s.presence.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("presence index: %w", err)
	}
	if _, err := s.events.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "start_time", Value: 1}, {Key: "end_time", Value: 1}},
	}); err != nil {
		return fmt.Errorf("event window index: %w", err)
	}
	if _, err := s.options.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "event", Value: 1}},
	}); err != nil {
		return fmt.Errorf("option event index: %w", err)
	}
	return nil
}

func (s *Store) op(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return store.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
	default:
		return err
	}
}

// ---------------- EVENTS ----------------

func activeEventFilter(now time.Time) bson.M {
	return bson.M{
		"start_time": bson.M{"$lt": now},
		"end_time":   bson.M{"$gt": now},
	}
}

func overlapFilter(start, end time.Time) bson.M {
	return bson.M{
		"start_time": bson.M{"$lt": end},
		"end_time":   bson.M{"$gt": start},
	}
}

func (s *Store) CreateEvent(ctx context.Context, e *models.Event) error {
	ctx, cancel := s.op(ctx)
	defer cancel()
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	_, err := s.events.InsertOne(ctx, e)
	return translate(err)
}

func (s *Store) FindEventByID(ctx context.Context, id primitive.ObjectID) (*models.Event, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	var e models.Event
	if err := s.events.FindOne(ctx, bson.M{"_id": id}).Decode(&e); err != nil {
		return nil, translate(err)
	}
	return &e, nil
}

func (s *Store) FindActiveEvent(ctx context.Context, now time.Time) (*models.Event, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	opts := options.FindOne().SetSort(bson.D{{Key: "start_time", Value: 1}, {Key: "_id", Value: 1}})
	var e models.Event
	if err := s.events.FindOne(ctx, activeEventFilter(now), opts).Decode(&e); err != nil {
		return nil, translate(err)
	}
	return &e, nil
}

func (s *Store) CountOverlapping(ctx context.Context, start, end time.Time) (int64, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	n, err := s.events.CountDocuments(ctx, overlapFilter(start, end))
	return n, translate(err)
}

func (s *Store) PruneEventOptions(ctx context.Context, id primitive.ObjectID, broken []primitive.ObjectID) error {
	ctx, cancel := s.op(ctx)
	defer cancel()
	res, err := s.events.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$pullAll": bson.M{"options": broken},
		"$set":     bson.M{"updated_at": time.Now()},
	})
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) MarkReleased(ctx context.Context, id primitive.ObjectID) (bool, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	res, err := s.events.UpdateOne(ctx,
		bson.M{"_id": id, "results_released": false},
		bson.M{"$set": bson.M{"results_released": true, "updated_at": time.Now()}},
	)
	if err != nil {
		return false, translate(err)
	}
	return res.ModifiedCount == 1, nil
}

// ---------------- OPTIONS ----------------

func (s *Store) CreateOptions(ctx context.Context, opts []models.EventOption) error {
	if len(opts) == 0 {
		return nil
	}
	ctx, cancel := s.op(ctx)
	defer cancel()
	docs := make([]interface{}, len(opts))
	for i := range opts {
		docs[i] = opts[i]
	}
	_, err := s.options.InsertMany(ctx, docs)
	return translate(err)
}

func (s *Store) FindOptionByID(ctx context.Context, id primitive.ObjectID) (*models.EventOption, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	var o models.EventOption
	if err := s.options.FindOne(ctx, bson.M{"_id": id}).Decode(&o); err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

func (s *Store) IncrementScore(ctx context.Context, id primitive.ObjectID, delta int) error {
	return s.updateOption(ctx, id, bson.M{"$inc": bson.M{"score": delta}})
}

func (s *Store) AddAward(ctx context.Context, id primitive.ObjectID, award string) error {
	return s.updateOption(ctx, id, bson.M{"$addToSet": bson.M{"awards": award}})
}

func (s *Store) updateOption(ctx context.Context, id primitive.ObjectID, update bson.M) error {
	ctx, cancel := s.op(ctx)
	defer cancel()
	res, err := s.options.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ---------------- VOTE LOGS ----------------

func (s *Store) FindVoteLog(ctx context.Context, eventID primitive.ObjectID, ip string) (*models.VoteLog, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	var v models.VoteLog
	if err := s.votes.FindOne(ctx, bson.M{"event": eventID, "ip": ip}).Decode(&v); err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

func (s *Store) InsertVoteLog(ctx context.Context, log *models.VoteLog) error {
	ctx, cancel := s.op(ctx)
	defer cancel()
	if log.ID.IsZero() {
		log.ID = primitive.NewObjectID()
	}
	_, err := s.votes.InsertOne(ctx, log)
	return translate(err)
}

func (s *Store) DeleteVoteLog(ctx context.Context, eventID primitive.ObjectID, ip string) error {
	ctx, cancel := s.op(ctx)
	defer cancel()
	res, err := s.votes.DeleteOne(ctx, bson.M{"event": eventID, "ip": ip})
	if err != nil {
		return translate(err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ---------------- PRESENCE ----------------

func (s *Store) FindPresence(ctx context.Context, email string) (*models.PresenceRecord, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	var p models.PresenceRecord
	if err := s.presence.FindOne(ctx, bson.M{"email": email}).Decode(&p); err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *Store) UpsertPresence(ctx context.Context, rec models.PresenceRecord) error {
	ctx, cancel := s.op(ctx)
	defer cancel()
	_, err := s.presence.UpdateOne(ctx,
		bson.M{"email": rec.Email},
		bson.M{"$set": rec},
		options.Update().SetUpsert(true),
	)
	return translate(err)
}

func (s *Store) ListPresence(ctx context.Context) ([]models.PresenceRecord, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	cursor, err := s.presence.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "email", Value: 1}}))
	if err != nil {
		return nil, translate(err)
	}
	var out []models.PresenceRecord
	if err := cursor.All(ctx, &out); err != nil {
		return nil, translate(err)
	}
	return out, nil
}

func (s *Store) ClearPresent(ctx context.Context, email string) error {
	ctx, cancel := s.op(ctx)
	defer cancel()
	res, err := s.presence.UpdateOne(ctx, bson.M{"email": email}, bson.M{"$set": bson.M{"in_dali": false}})
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ClearPresentIfIdle(ctx context.Context, email string, since time.Time) (bool, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	res, err := s.presence.UpdateOne(ctx,
		bson.M{"email": email, "in_dali": true, "last_update": since},
		bson.M{"$set": bson.M{"in_dali": false}},
	)
	if err != nil {
		return false, translate(err)
	}
	return res.ModifiedCount == 1, nil
}

// ---------------- TRACKER ----------------

func trackerZoneUpdate(zone string, entered bool) (bson.M, error) {
	switch zone {
	case models.ZoneDALI:
		return bson.M{
			"$set":         bson.M{"in_dali": entered},
			"$setOnInsert": bson.M{"in_office": false},
		}, nil
	case models.ZoneOffice:
		return bson.M{
			"$set":         bson.M{"in_office": entered},
			"$setOnInsert": bson.M{"in_dali": false},
		}, nil
	default:
		return nil, fmt.Errorf("unknown zone %q", zone)
	}
}

func (s *Store) GetTracker(ctx context.Context) (*models.SpecialTracker, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()
	var t models.SpecialTracker
	if err := s.tracker.FindOne(ctx, bson.M{"_id": trackerID}).Decode(&t); err != nil {
		return nil, translate(err)
	}
	return &t, nil
}

func (s *Store) SetTrackerZone(ctx context.Context, zone string, entered bool) error {
	update, err := trackerZoneUpdate(zone, entered)
	if err != nil {
		return err
	}
	ctx, cancel := s.op(ctx)
	defer cancel()
	_, err = s.tracker.UpdateOne(ctx, bson.M{"_id": trackerID}, update, options.Update().SetUpsert(true))
	return translate(err)
}

func (s *Store) ResetTracker(ctx context.Context) error {
	ctx, cancel := s.op(ctx)
	defer cancel()
	_, err := s.tracker.UpdateOne(ctx,
		bson.M{"_id": trackerID},
		bson.M{"$set": bson.M{"in_dali": false, "in_office": false}},
	)
	return translate(err)
}
