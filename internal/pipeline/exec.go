package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"cognivoice/internal/analysis"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) (stdout []byte, err error)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s: %w%s", binary, err, stderrTail(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func stderrTail(output string) string {
	output = strings.TrimSpace(output)
	if output == "" {
		return ""
	}
	lines := strings.Split(output, "\n")
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	return ": " + strings.Join(lines, " | ")
}

// ExecClassifier invokes an external inference command once per job. The
// command receives the cleaned audio path and the window count and must print
// a JSON array of per-window Dementia probabilities to stdout.
type ExecClassifier struct {
	command string
	exec    Executor
}

// NewExecClassifier constructs a classifier backed by the given command.
func NewExecClassifier(command string, opts ...ExecOption) (*ExecClassifier, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, errors.New("classifier command required")
	}
	classifier := &ExecClassifier{command: command, exec: commandExecutor{}}
	for _, opt := range opts {
		opt.applyClassifier(classifier)
	}
	return classifier, nil
}

// Score runs the inference command and parses its probability output.
func (c *ExecClassifier) Score(ctx context.Context, cleanedPath string, windows int) ([]float64, error) {
	output, err := c.exec.Run(ctx, c.command, []string{"--windows", strconv.Itoa(windows), cleanedPath})
	if err != nil {
		return nil, fmt.Errorf("run classifier: %w", err)
	}
	probabilities, err := parseProbabilities(output)
	if err != nil {
		return nil, fmt.Errorf("parse classifier output: %w", err)
	}
	if len(probabilities) != windows {
		return nil, fmt.Errorf("classifier returned %d scores for %d windows", len(probabilities), windows)
	}
	for _, p := range probabilities {
		if p < 0 || p > 1 {
			return nil, fmt.Errorf("classifier score %v outside [0,1]", p)
		}
	}
	return probabilities, nil
}

func parseProbabilities(output []byte) ([]float64, error) {
	trimmed := bytes.TrimSpace(output)
	var bare []float64
	if err := json.Unmarshal(trimmed, &bare); err == nil {
		return bare, nil
	}
	var wrapped struct {
		Probabilities []float64 `json:"probabilities"`
	}
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, err
	}
	if wrapped.Probabilities == nil {
		return nil, errors.New("no probabilities field")
	}
	return wrapped.Probabilities, nil
}

// ExecFeatureExtractor invokes an external command that prints the heuristic
// speech-feature JSON object for the original recording.
type ExecFeatureExtractor struct {
	command string
	exec    Executor
}

// NewExecFeatureExtractor constructs a feature extractor backed by the given command.
func NewExecFeatureExtractor(command string, opts ...ExecOption) (*ExecFeatureExtractor, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, errors.New("feature command required")
	}
	extractor := &ExecFeatureExtractor{command: command, exec: commandExecutor{}}
	for _, opt := range opts {
		opt.applyExtractor(extractor)
	}
	return extractor, nil
}

// Extract runs the feature command against the original recording.
func (e *ExecFeatureExtractor) Extract(ctx context.Context, originalPath string) (analysis.SpeechFeatures, error) {
	output, err := e.exec.Run(ctx, e.command, []string{originalPath})
	if err != nil {
		return analysis.SpeechFeatures{}, fmt.Errorf("run feature extraction: %w", err)
	}
	var features analysis.SpeechFeatures
	if err := json.Unmarshal(bytes.TrimSpace(output), &features); err != nil {
		return analysis.SpeechFeatures{}, fmt.Errorf("parse feature output: %w", err)
	}
	return features, nil
}

// ExecVisualizer invokes the inference command in visualization mode. The
// command writes a figure under outDir and prints the URI clients can fetch
// it from.
type ExecVisualizer struct {
	command string
	outDir  string
	exec    Executor
}

// NewExecVisualizer constructs a visualizer writing into outDir.
func NewExecVisualizer(command, outDir string, opts ...ExecOption) (*ExecVisualizer, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, errors.New("visualizer command required")
	}
	if strings.TrimSpace(outDir) == "" {
		return nil, errors.New("visualization directory required")
	}
	visualizer := &ExecVisualizer{command: command, outDir: outDir, exec: commandExecutor{}}
	for _, opt := range opts {
		opt.applyVisualizer(visualizer)
	}
	return visualizer, nil
}

// Render produces the segment-prediction figure for a finished job.
func (v *ExecVisualizer) Render(ctx context.Context, originalPath string, segments []analysis.Segment, winner analysis.Label) (string, error) {
	labels := make([]int, len(segments))
	for i, segment := range segments {
		labels[i] = int(segment.Label)
	}
	encoded, err := json.Marshal(labels)
	if err != nil {
		return "", fmt.Errorf("encode segment labels: %w", err)
	}
	args := []string{"--visualize", "--out-dir", v.outDir, "--labels", string(encoded), "--winner", winner.String(), originalPath}
	output, err := v.exec.Run(ctx, v.command, args)
	if err != nil {
		return "", fmt.Errorf("run visualization: %w", err)
	}
	uri := strings.TrimSpace(string(output))
	if uri == "" {
		return "", errors.New("visualization produced no URI")
	}
	return uri, nil
}

// ExecOption configures the exec-backed collaborators.
type ExecOption struct {
	exec Executor
}

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) ExecOption {
	return ExecOption{exec: exec}
}

func (o ExecOption) applyClassifier(c *ExecClassifier) {
	if o.exec != nil {
		c.exec = o.exec
	}
}

func (o ExecOption) applyExtractor(e *ExecFeatureExtractor) {
	if o.exec != nil {
		e.exec = o.exec
	}
}

func (o ExecOption) applyVisualizer(v *ExecVisualizer) {
	if o.exec != nil {
		v.exec = o.exec
	}
}
