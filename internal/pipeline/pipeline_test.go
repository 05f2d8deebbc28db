package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cognivoice/internal/analysis"
	"cognivoice/internal/pipeline"
	"cognivoice/internal/testsupport"
)

type fakeEngine struct {
	duration time.Duration
	calls    []string
	failOn   string
}

func (f *fakeEngine) touch(path string) error {
	return os.WriteFile(path, []byte("audio"), 0o644)
}

func (f *fakeEngine) Denoise(_ context.Context, inputPath, outDir string) (string, error) {
	f.calls = append(f.calls, "denoise")
	if f.failOn == "denoise" {
		return "", errors.New("denoise boom")
	}
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	out := filepath.Join(outDir, base+"_denoised.wav")
	return out, f.touch(out)
}

func (f *fakeEngine) TrimSilence(_ context.Context, _, outputPath string) error {
	f.calls = append(f.calls, "trim")
	if f.failOn == "trim" {
		return errors.New("trim boom")
	}
	return f.touch(outputPath)
}

func (f *fakeEngine) Normalize(_ context.Context, _, outputPath string) error {
	f.calls = append(f.calls, "normalize")
	if f.failOn == "normalize" {
		return errors.New("normalize boom")
	}
	return f.touch(outputPath)
}

func (f *fakeEngine) Duration(context.Context, string) (time.Duration, error) {
	return f.duration, nil
}

type fakeExtractor struct {
	features analysis.SpeechFeatures
	err      error
}

func (f fakeExtractor) Extract(context.Context, string) (analysis.SpeechFeatures, error) {
	return f.features, f.err
}

type fakeClassifier struct {
	scores []float64
	err    error
}

func (f fakeClassifier) Score(_ context.Context, _ string, windows int) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.scores[:windows], nil
}

func newPipeline(t *testing.T, engine pipeline.AudioEngine, extractor pipeline.FeatureExtractor, classifier pipeline.Classifier) *pipeline.Pipeline {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	pipe, err := pipeline.New(cfg, engine, extractor, classifier, nil, nil)
	if err != nil {
		t.Fatalf("pipeline.New failed: %v", err)
	}
	return pipe
}

func TestPreprocessChainsStages(t *testing.T) {
	engine := &fakeEngine{duration: time.Minute}
	pipe := newPipeline(t, engine, fakeExtractor{}, fakeClassifier{})

	jobDir := filepath.Join(t.TempDir(), "job-1")
	clean, err := pipe.Preprocess(context.Background(), jobDir, "/tmp/sample.wav")
	if err != nil {
		t.Fatalf("Preprocess failed: %v", err)
	}

	want := []string{"denoise", "trim", "normalize"}
	if strings.Join(engine.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("stage order = %v, want %v", engine.calls, want)
	}
	if filepath.Dir(clean) != jobDir {
		t.Fatalf("clean path %q outside job dir %q", clean, jobDir)
	}
	if _, err := os.Stat(clean); err != nil {
		t.Fatalf("clean output missing: %v", err)
	}
}

func TestPreprocessStopsOnFirstFailure(t *testing.T) {
	engine := &fakeEngine{failOn: "trim"}
	pipe := newPipeline(t, engine, fakeExtractor{}, fakeClassifier{})

	_, err := pipe.Preprocess(context.Background(), filepath.Join(t.TempDir(), "job-1"), "/tmp/sample.wav")
	if err == nil {
		t.Fatal("expected preprocessing error")
	}
	for _, call := range engine.calls {
		if call == "normalize" {
			t.Fatal("normalize ran after trim failure")
		}
	}
}

func TestFeaturesFallsBackOnFailure(t *testing.T) {
	pipe := newPipeline(t, &fakeEngine{}, fakeExtractor{err: errors.New("extractor boom")}, fakeClassifier{})

	features := pipe.Features(context.Background(), "/tmp/sample.wav")
	if features != pipeline.FallbackFeatures {
		t.Fatalf("features = %+v, want fallback", features)
	}
}

func TestFeaturesUsesExtractorOutput(t *testing.T) {
	want := analysis.SpeechFeatures{PauseFrequency: 0.1, SpeechRate: 0.2, VocabularyComplexity: 0.3, SemanticFluency: 0.4}
	pipe := newPipeline(t, &fakeEngine{}, fakeExtractor{features: want}, fakeClassifier{})

	if got := pipe.Features(context.Background(), "/tmp/sample.wav"); got != want {
		t.Fatalf("features = %+v, want %+v", got, want)
	}
}

func TestWindowsDiscardsTrailingPartial(t *testing.T) {
	// 20s of audio at 7s windows yields 2 full windows; the trailing 6s is dropped.
	engine := &fakeEngine{duration: 20 * time.Second}
	pipe := newPipeline(t, engine, fakeExtractor{}, fakeClassifier{})

	windows, err := pipe.Windows(context.Background(), "/tmp/clean.wav")
	if err != nil {
		t.Fatalf("Windows failed: %v", err)
	}
	if windows != 2 {
		t.Fatalf("windows = %d, want 2", windows)
	}
}

func TestWindowsRejectsShortAudio(t *testing.T) {
	engine := &fakeEngine{duration: 6 * time.Second}
	pipe := newPipeline(t, engine, fakeExtractor{}, fakeClassifier{})

	if _, err := pipe.Windows(context.Background(), "/tmp/clean.wav"); !errors.Is(err, pipeline.ErrInsufficientAudio) {
		t.Fatalf("expected ErrInsufficientAudio, got %v", err)
	}
}

func TestInferLabelsSegments(t *testing.T) {
	engine := &fakeEngine{duration: 21 * time.Second}
	pipe := newPipeline(t, engine, fakeExtractor{}, fakeClassifier{scores: []float64{0.9, 0.2, 0.51}})

	segments, err := pipe.Infer(context.Background(), "/tmp/clean.wav")
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if len(segments) != 3 {
		t.Fatalf("segments = %d, want 3", len(segments))
	}
	wantLabels := []analysis.Label{analysis.Dementia, analysis.Control, analysis.Dementia}
	for i, segment := range segments {
		if segment.Label != wantLabels[i] {
			t.Fatalf("segment %d label = %s, want %s", i, segment.Label, wantLabels[i])
		}
	}
}
