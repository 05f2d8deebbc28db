package analysis_test

import (
	"encoding/json"
	"math"
	"testing"

	"cognivoice/internal/analysis"
)

func segmentsFromProbabilities(probabilities []float64) []analysis.Segment {
	segments := make([]analysis.Segment, len(probabilities))
	for i, p := range probabilities {
		label := analysis.Control
		if p > 0.5 {
			label = analysis.Dementia
		}
		segments[i] = analysis.Segment{Label: label, Probability: p}
	}
	return segments
}

func TestDecideMajorityDementia(t *testing.T) {
	segments := segmentsFromProbabilities([]float64{0.9, 0.8, 0.3, 0.6, 0.4})

	verdict, err := analysis.Decide(segments, analysis.DefaultThresholds())
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}

	if verdict.Label != analysis.Dementia {
		t.Fatalf("expected Dementia verdict, got %s", verdict.Label)
	}
	want := (0.9 + 0.8 + 0.6) / 3
	if math.Abs(verdict.Confidence-want) > 1e-9 {
		t.Fatalf("confidence = %v, want %v", verdict.Confidence, want)
	}
	if verdict.Risk != analysis.RiskHigh {
		t.Fatalf("risk = %s, want high", verdict.Risk)
	}
	if verdict.VoteCounts["Dementia"] != 3 || verdict.VoteCounts["Control"] != 2 {
		t.Fatalf("unexpected vote counts: %#v", verdict.VoteCounts)
	}
}

func TestDecideUnanimousControl(t *testing.T) {
	segments := segmentsFromProbabilities([]float64{0.1, 0.2, 0.3})

	verdict, err := analysis.Decide(segments, analysis.DefaultThresholds())
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}

	if verdict.Label != analysis.Control {
		t.Fatalf("expected Control verdict, got %s", verdict.Label)
	}
	want := ((1 - 0.1) + (1 - 0.2) + (1 - 0.3)) / 3
	if math.Abs(verdict.Confidence-want) > 1e-9 {
		t.Fatalf("confidence = %v, want %v", verdict.Confidence, want)
	}
	if verdict.Risk != analysis.RiskLow {
		t.Fatalf("risk = %s, want low for Control", verdict.Risk)
	}
	if verdict.VoteCounts["Control"] != 3 || verdict.VoteCounts["Dementia"] != 0 {
		t.Fatalf("unexpected vote counts: %#v", verdict.VoteCounts)
	}
}

func TestDecideTieBreaksTowardFirstEncountered(t *testing.T) {
	first, err := analysis.Decide(segmentsFromProbabilities([]float64{0.9, 0.1}), analysis.DefaultThresholds())
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if first.Label != analysis.Dementia {
		t.Fatalf("expected Dementia on tie with Dementia first, got %s", first.Label)
	}

	second, err := analysis.Decide(segmentsFromProbabilities([]float64{0.1, 0.9}), analysis.DefaultThresholds())
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	if second.Label != analysis.Control {
		t.Fatalf("expected Control on tie with Control first, got %s", second.Label)
	}
}

func TestDecideRiskBands(t *testing.T) {
	tests := []struct {
		name          string
		probabilities []float64
		want          analysis.RiskLevel
	}{
		{"moderate at lower bound", []float64{0.5000001, 0.51}, analysis.RiskModerate},
		{"moderate below high cut", []float64{0.75, 0.75}, analysis.RiskModerate},
		{"high above cut", []float64{0.9, 0.8}, analysis.RiskHigh},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			verdict, err := analysis.Decide(segmentsFromProbabilities(tc.probabilities), analysis.DefaultThresholds())
			if err != nil {
				t.Fatalf("Decide failed: %v", err)
			}
			if verdict.Label != analysis.Dementia {
				t.Fatalf("expected Dementia verdict, got %s", verdict.Label)
			}
			if verdict.Risk != tc.want {
				t.Fatalf("risk = %s, want %s (confidence %v)", verdict.Risk, tc.want, verdict.Confidence)
			}
		})
	}
}

func TestDecideEmptyInput(t *testing.T) {
	if _, err := analysis.Decide(nil, analysis.DefaultThresholds()); err != analysis.ErrNoSegments {
		t.Fatalf("expected ErrNoSegments, got %v", err)
	}
}

func TestResultConfidenceMarshalsAsString(t *testing.T) {
	verdict, err := analysis.Decide(segmentsFromProbabilities([]float64{0.9, 0.8, 0.3, 0.6, 0.4}), analysis.DefaultThresholds())
	if err != nil {
		t.Fatalf("Decide failed: %v", err)
	}
	result := analysis.NewResult("sample.wav", verdict, analysis.SpeechFeatures{}, "")

	encoded, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal result: %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if string(decoded["confidence"]) != `"0.77"` {
		t.Fatalf("confidence wire form = %s, want \"0.77\"", decoded["confidence"])
	}
	if string(decoded["finalPrediction"]) != `"Dementia"` {
		t.Fatalf("finalPrediction wire form = %s", decoded["finalPrediction"])
	}

	var roundTrip analysis.Result
	if err := json.Unmarshal(encoded, &roundTrip); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if math.Abs(float64(roundTrip.Confidence)-0.77) > 1e-9 {
		t.Fatalf("round trip confidence = %v", roundTrip.Confidence)
	}
}
