package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"cognivoice/internal/pipeline"
	"cognivoice/internal/testsupport"
)

type fakeExecutor struct {
	output []byte
	err    error

	binary string
	args   []string
}

func (f *fakeExecutor) Run(_ context.Context, binary string, args []string) ([]byte, error) {
	f.binary = binary
	f.args = args
	return f.output, f.err
}

func TestExecClassifierParsesBareArray(t *testing.T) {
	executor := &fakeExecutor{output: []byte("[0.9, 0.2, 0.6]\n")}
	classifier, err := pipeline.NewExecClassifier("cognivoice-infer", pipeline.WithExecutor(executor))
	if err != nil {
		t.Fatalf("NewExecClassifier failed: %v", err)
	}

	scores, err := classifier.Score(context.Background(), "/tmp/clean.wav", 3)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if len(scores) != 3 || scores[0] != 0.9 {
		t.Fatalf("unexpected scores: %v", scores)
	}
	if executor.binary != "cognivoice-infer" {
		t.Fatalf("binary = %q", executor.binary)
	}
}

func TestExecClassifierParsesWrappedObject(t *testing.T) {
	executor := &fakeExecutor{output: []byte(`{"probabilities":[0.4,0.8]}`)}
	classifier, err := pipeline.NewExecClassifier("cognivoice-infer", pipeline.WithExecutor(executor))
	if err != nil {
		t.Fatalf("NewExecClassifier failed: %v", err)
	}

	scores, err := classifier.Score(context.Background(), "/tmp/clean.wav", 2)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if len(scores) != 2 || scores[1] != 0.8 {
		t.Fatalf("unexpected scores: %v", scores)
	}
}

func TestExecClassifierRejectsCountMismatch(t *testing.T) {
	executor := &fakeExecutor{output: []byte("[0.9]")}
	classifier, err := pipeline.NewExecClassifier("cognivoice-infer", pipeline.WithExecutor(executor))
	if err != nil {
		t.Fatalf("NewExecClassifier failed: %v", err)
	}

	if _, err := classifier.Score(context.Background(), "/tmp/clean.wav", 3); err == nil {
		t.Fatal("expected error for score count mismatch")
	}
}

func TestExecClassifierRejectsOutOfRangeScore(t *testing.T) {
	executor := &fakeExecutor{output: []byte("[1.2]")}
	classifier, err := pipeline.NewExecClassifier("cognivoice-infer", pipeline.WithExecutor(executor))
	if err != nil {
		t.Fatalf("NewExecClassifier failed: %v", err)
	}

	if _, err := classifier.Score(context.Background(), "/tmp/clean.wav", 1); err == nil {
		t.Fatal("expected error for probability outside [0,1]")
	}
}

func TestExecFeatureExtractorParsesJSON(t *testing.T) {
	executor := &fakeExecutor{output: []byte(`{"pauseFrequency":0.3,"speechRate":0.7,"vocabularyComplexity":0.5,"semanticFluency":0.6}`)}
	extractor, err := pipeline.NewExecFeatureExtractor("cognivoice-features", pipeline.WithExecutor(executor))
	if err != nil {
		t.Fatalf("NewExecFeatureExtractor failed: %v", err)
	}

	features, err := extractor.Extract(context.Background(), "/tmp/sample.wav")
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if features.PauseFrequency != 0.3 || features.SemanticFluency != 0.6 {
		t.Fatalf("unexpected features: %+v", features)
	}
}

func TestExecFeatureExtractorPropagatesFailure(t *testing.T) {
	executor := &fakeExecutor{err: errors.New("command boom")}
	extractor, err := pipeline.NewExecFeatureExtractor("cognivoice-features", pipeline.WithExecutor(executor))
	if err != nil {
		t.Fatalf("NewExecFeatureExtractor failed: %v", err)
	}

	if _, err := extractor.Extract(context.Background(), "/tmp/sample.wav"); err == nil {
		t.Fatal("expected extraction error")
	}
}

func TestFFmpegEngineDuration(t *testing.T) {
	executor := &fakeExecutor{output: []byte("12.5\n")}
	engine, err := pipeline.NewFFmpegEngine(testsupport.NewConfig(t), pipeline.WithEngineExecutor(executor))
	if err != nil {
		t.Fatalf("NewFFmpegEngine failed: %v", err)
	}

	duration, err := engine.Duration(context.Background(), "/tmp/clean.wav")
	if err != nil {
		t.Fatalf("Duration failed: %v", err)
	}
	if duration.Seconds() != 12.5 {
		t.Fatalf("duration = %v, want 12.5s", duration)
	}
	if executor.binary != "ffprobe" {
		t.Fatalf("binary = %q, want ffprobe", executor.binary)
	}
}

func TestFFmpegEngineDurationRejectsGarbage(t *testing.T) {
	executor := &fakeExecutor{output: []byte("N/A")}
	engine, err := pipeline.NewFFmpegEngine(testsupport.NewConfig(t), pipeline.WithEngineExecutor(executor))
	if err != nil {
		t.Fatalf("NewFFmpegEngine failed: %v", err)
	}

	if _, err := engine.Duration(context.Background(), "/tmp/clean.wav"); err == nil {
		t.Fatal("expected parse error")
	}
}
