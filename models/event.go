package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultEventImage is used when an event is created without an image.
const DefaultEventImage = "https://github.com/dali-lab/Dali-App/raw/vote-order/components/Assets/pitchLightBulb.png"

type Event struct {
	ID              primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	Name            string               `bson:"name" json:"name"`
	Description     string               `bson:"description" json:"description"`
	Image           string               `bson:"image,omitempty" json:"image,omitempty"`
	StartTime       time.Time            `bson:"start_time" json:"startTime"`
	EndTime         time.Time            `bson:"end_time" json:"endTime"`
	ResultsReleased bool                 `bson:"results_released" json:"resultsReleased"`
	Options         []primitive.ObjectID `bson:"options" json:"options"`
	CreatedAt       time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time            `bson:"updated_at" json:"updated_at"`
}

// ActiveAt reports whether t falls strictly inside the voting window.
func (e Event) ActiveAt(t time.Time) bool {
	return e.StartTime.Before(t) && e.EndTime.After(t)
}

type EventOption struct {
	ID      primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name    string             `bson:"name" json:"name"`
	Score   int                `bson:"score" json:"score"`
	Awards  []string           `bson:"awards,omitempty" json:"awards,omitempty"`
	EventID primitive.ObjectID `bson:"event" json:"event"`
}

// HasAward reports whether at least one non-empty award was assigned.
func (o EventOption) HasAward() bool {
	for _, a := range o.Awards {
		if a != "" {
			return true
		}
	}
	return false
}

// HydratedEvent is an event with its option references resolved.
type HydratedEvent struct {
	Event
	Resolved []EventOption
}

type VoteLog struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	EventID   primitive.ObjectID `bson:"event" json:"event"`
	First     primitive.ObjectID `bson:"first" json:"first"`
	Second    primitive.ObjectID `bson:"second" json:"second"`
	Third     primitive.ObjectID `bson:"third" json:"third"`
	User      string             `bson:"user,omitempty" json:"user,omitempty"`
	IP        string             `bson:"ip" json:"ip"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
