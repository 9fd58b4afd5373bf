package hermes

import "time"

type ScoreComputedEvent struct {
	RunID        string              `json:"run_id"`
	EntityID     string              `json:"entity_id"`
	IndicationID string              `json:"indication_id,omitempty"`
	Scores       map[string]*float64 `json:"scores"`
	CapsFired    map[string][]string `json:"caps_fired,omitempty"`
	Timestamp    time.Time           `json:"timestamp"`
}

type ApprovalEstimatedEvent struct {
	RunID            string    `json:"run_id"`
	EntityID         string    `json:"entity_id"`
	IndicationID     string    `json:"indication_id,omitempty"`
	CurrentPhase     string    `json:"current_phase"`
	FinalProbability float64   `json:"final_probability"`
	Confidence       string    `json:"confidence_tier"`
	Timestamp        time.Time `json:"timestamp"`
}

type RunCompletedEvent struct {
	RunID      string    `json:"run_id"`
	Scored     int       `json:"scored"`
	Failed     int       `json:"failed"`
	DurationMs int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// RunRequestEvent asks the service to score the listed entities, or every
// entity when EntityIDs is empty.
type RunRequestEvent struct {
	EntityIDs []string `json:"entity_ids,omitempty"`
	Source    string   `json:"source,omitempty"`
}
