package models

// Public representations. Nothing here carries the store's raw _id.

type OptionView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Score *int   `json:"score,omitempty"`
}

type EventView struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Description     string       `json:"description"`
	Image           string       `json:"image,omitempty"`
	ResultsReleased bool         `json:"resultsReleased"`
	Options         []OptionView `json:"options"`
}

type FinalResult struct {
	Name  string `json:"name"`
	Award string `json:"award"`
}

// PublicView strips times, scores and awards.
func (h HydratedEvent) PublicView() EventView {
	return h.view(false)
}

// ScoreView strips times and awards but keeps scores.
func (h HydratedEvent) ScoreView() EventView {
	return h.view(true)
}

func (h HydratedEvent) view(withScore bool) EventView {
	v := EventView{
		ID:              h.ID.Hex(),
		Name:            h.Name,
		Description:     h.Description,
		Image:           h.Image,
		ResultsReleased: h.ResultsReleased,
		Options:         make([]OptionView, 0, len(h.Resolved)),
	}
	for _, o := range h.Resolved {
		ov := OptionView{ID: o.ID.Hex(), Name: o.Name}
		if withScore {
			score := o.Score
			ov.Score = &score
		}
		v.Options = append(v.Options, ov)
	}
	return v
}

// FinalResults lists one entry per assigned award, in option order.
func (h HydratedEvent) FinalResults() []FinalResult {
	out := []FinalResult{}
	for _, o := range h.Resolved {
		for _, a := range o.Awards {
			if a == "" {
				continue
			}
			out = append(out, FinalResult{Name: o.Name, Award: a})
		}
	}
	return out
}
