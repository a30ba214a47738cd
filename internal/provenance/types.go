package provenance

import "time"

// #region entry

// Entry is a single row in the turn_log table.
type Entry struct {
	PersonaID   string
	Version     int64
	TriggerType string
	RecordJSON  string
	Decision    string // "commit" | "degraded" | "stale_retry" | "failed"
	Reason      string
	CreatedAt   time.Time
}

// #endregion entry

// #region turn-record

// TurnRecord captures the complete fusion inputs and outputs for one turn.
// Serialized as JSON into turn_log.record_json so a turn can be audited
// after the fact.
type TurnRecord struct {
	TurnID  string `json:"turn_id"`
	Message string `json:"message"`

	// Council output
	Dominant        string  `json:"dominant"`
	Intensity       float64 `json:"intensity"`
	LowConfidence   bool    `json:"low_confidence,omitempty"`
	TimedOut        []string `json:"timed_out,omitempty"`

	// Theory evaluation
	Alignments map[string]float64 `json:"alignments"`
	Failing    []string           `json:"failing,omitempty"`
	Conflicts  int                `json:"conflicts,omitempty"`

	// Fusion output
	Degraded    bool    `json:"degraded,omitempty"`
	ControlNorm float64 `json:"control_norm"`
	Delta       float64 `json:"delta"`

	// State transition
	Stage         string  `json:"stage"`
	StageAdvanced bool    `json:"stage_advanced,omitempty"`
	Trust         float64 `json:"trust"`
	Coherence     float64 `json:"coherence"`
	StaleRetried  bool    `json:"stale_retried,omitempty"`
}

// #endregion turn-record
