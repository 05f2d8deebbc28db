package analysis

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Label is the binary classification outcome for one audio segment.
type Label int

const (
	Control Label = iota
	Dementia
)

// ClassNames lists the label display names indexed by Label value.
var ClassNames = [...]string{"Control", "Dementia"}

func (l Label) String() string {
	if l < 0 || int(l) >= len(ClassNames) {
		return fmt.Sprintf("Label(%d)", int(l))
	}
	return ClassNames[l]
}

// RiskLevel grades a Dementia verdict by confidence.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
)

// Segment is one fixed-length analysis window and its independent score.
// Probability is the model's Dementia probability for the window.
type Segment struct {
	Label       Label
	Probability float64
}

// SpeechFeatures are the four normalized heuristic scalars derived from the
// original (unprocessed) recording.
type SpeechFeatures struct {
	PauseFrequency       float64 `json:"pauseFrequency"`
	SpeechRate           float64 `json:"speechRate"`
	VocabularyComplexity float64 `json:"vocabularyComplexity"`
	SemanticFluency      float64 `json:"semanticFluency"`
}

// Confidence is a probability that marshals as a two-decimal JSON string,
// matching the wire format consumed by existing clients.
type Confidence float64

func (c Confidence) MarshalJSON() ([]byte, error) {
	return json.Marshal(fmt.Sprintf("%.2f", float64(c)))
}

func (c *Confidence) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		value, err := strconv.ParseFloat(asString, 64)
		if err != nil {
			return fmt.Errorf("parse confidence %q: %w", asString, err)
		}
		*c = Confidence(value)
		return nil
	}
	var asFloat float64
	if err := json.Unmarshal(data, &asFloat); err != nil {
		return fmt.Errorf("parse confidence: %w", err)
	}
	*c = Confidence(asFloat)
	return nil
}

// Result is the durable outcome of one completed analysis job.
type Result struct {
	FileName         string         `json:"fileName"`
	FinalPrediction  string         `json:"finalPrediction"`
	Confidence       Confidence     `json:"confidence"`
	VoteCounts       map[string]int `json:"voteCounts"`
	RiskLevel        RiskLevel      `json:"riskLevel"`
	SpeechFeatures   SpeechFeatures `json:"speechfeatures"`
	VisualizationURL string         `json:"visualizationUrl,omitempty"`
}

// NewResult assembles a Result from a verdict and its companions.
func NewResult(fileName string, verdict Verdict, features SpeechFeatures, visualizationURL string) Result {
	return Result{
		FileName:         fileName,
		FinalPrediction:  verdict.Label.String(),
		Confidence:       Confidence(verdict.Confidence),
		VoteCounts:       verdict.VoteCounts,
		RiskLevel:        verdict.Risk,
		SpeechFeatures:   features,
		VisualizationURL: visualizationURL,
	}
}
