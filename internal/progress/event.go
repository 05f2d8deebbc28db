package progress

import "encoding/json"

// Pipeline step identifiers carried on progress events. The values form a
// closed enumeration; 99 is reserved for the error terminal.
const (
	StepPreprocess = 0
	StepFeatures   = 1
	StepInference  = 2
	StepInsights   = 3
	StepComplete   = 4
	StepError      = 99
)

// Event is one progress update for a job. Events are immutable once published
// and are produced by exactly one writer per job.
type Event struct {
	Step    int             `json:"step"`
	Message string          `json:"message"`
	IsFinal bool            `json:"is_final"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// Final reports whether the event terminates the job's stream.
func (e Event) Final() bool { return e.IsFinal }

// errorMarker mirrors the error payload shape carried on failed terminal events.
type errorMarker struct {
	Error string `json:"error"`
}

// ErrorEvent builds the step-99 terminal event for a failed job.
func ErrorEvent(message string, err error) Event {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	payload, _ := json.Marshal(errorMarker{Error: detail})
	return Event{Step: StepError, Message: message, IsFinal: true, Result: payload}
}

// ResultCarriesError reports whether a terminal payload contains an error
// marker rather than an analysis result.
func ResultCarriesError(result json.RawMessage) bool {
	if len(result) == 0 {
		return false
	}
	var marker errorMarker
	if err := json.Unmarshal(result, &marker); err != nil {
		return false
	}
	return marker.Error != ""
}
