package analysis

import "errors"

// ErrNoSegments is returned when a verdict is requested for an empty sequence.
var ErrNoSegments = errors.New("no segments to aggregate")

// Thresholds are the confidence cut points for Dementia risk grading.
type Thresholds struct {
	Moderate float64
	High     float64
}

// DefaultThresholds returns the standard 0.5/0.75 risk bands.
func DefaultThresholds() Thresholds {
	return Thresholds{Moderate: 0.5, High: 0.75}
}

// Verdict is the aggregated outcome of the ensemble vote.
type Verdict struct {
	Label      Label
	Confidence float64
	Risk       RiskLevel
	VoteCounts map[string]int
}

// Decide turns an ordered segment sequence into a final verdict by majority
// vote. Confidence is the mean winning-class probability across the segments
// that voted for the winner: p for Dementia voters, 1-p for Control voters.
// Ties break toward the label encountered first in the sequence. The function
// is pure and deterministic for a given sequence.
func Decide(segments []Segment, thresholds Thresholds) (Verdict, error) {
	if len(segments) == 0 {
		return Verdict{}, ErrNoSegments
	}

	counts := make(map[Label]int, 2)
	var order []Label
	for _, segment := range segments {
		if counts[segment.Label] == 0 {
			order = append(order, segment.Label)
		}
		counts[segment.Label]++
	}

	winner := order[0]
	for _, label := range order[1:] {
		if counts[label] > counts[winner] {
			winner = label
		}
	}

	var sum float64
	var voters int
	for _, segment := range segments {
		if segment.Label != winner {
			continue
		}
		if winner == Dementia {
			sum += segment.Probability
		} else {
			sum += 1 - segment.Probability
		}
		voters++
	}
	confidence := sum / float64(voters)

	risk := RiskLow
	if winner == Dementia {
		switch {
		case confidence > thresholds.High:
			risk = RiskHigh
		case confidence >= thresholds.Moderate:
			risk = RiskModerate
		}
	}

	voteCounts := make(map[string]int, len(ClassNames))
	for value, name := range ClassNames {
		voteCounts[name] = counts[Label(value)]
	}

	return Verdict{
		Label:      winner,
		Confidence: confidence,
		Risk:       risk,
		VoteCounts: voteCounts,
	}, nil
}
