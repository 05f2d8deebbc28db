package results

import (
	"time"

	"cognivoice/internal/analysis"
)

// Record is one persisted analysis outcome.
type Record struct {
	JobID     string
	OwnerID   string
	Result    analysis.Result
	CreatedAt time.Time
}
