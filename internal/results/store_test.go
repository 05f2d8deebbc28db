package results_test

import (
	"context"
	"testing"

	"cognivoice/internal/analysis"
	"cognivoice/internal/results"
	"cognivoice/internal/testsupport"
)

func sampleResult(prediction string) analysis.Result {
	return analysis.Result{
		FileName:        "sample.wav",
		FinalPrediction: prediction,
		Confidence:      analysis.Confidence(0.77),
		VoteCounts:      map[string]int{"Control": 2, "Dementia": 3},
		RiskLevel:       analysis.RiskHigh,
		SpeechFeatures: analysis.SpeechFeatures{
			PauseFrequency:       0.45,
			SpeechRate:           0.65,
			VocabularyComplexity: 0.55,
			SemanticFluency:      0.62,
		},
		VisualizationURL: "/static_predictions/sample.png",
	}
}

func TestInsertAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := store.Insert(ctx, "job-1", "owner-1", sampleResult("Dementia")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	record, err := store.GetByJobID(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetByJobID failed: %v", err)
	}
	if record.OwnerID != "owner-1" {
		t.Fatalf("owner = %q, want owner-1", record.OwnerID)
	}
	if record.Result.FinalPrediction != "Dementia" {
		t.Fatalf("prediction = %q", record.Result.FinalPrediction)
	}
	if record.Result.VoteCounts["Dementia"] != 3 {
		t.Fatalf("vote counts = %#v", record.Result.VoteCounts)
	}
	if record.Result.SpeechFeatures.SemanticFluency != 0.62 {
		t.Fatalf("speech features = %+v", record.Result.SpeechFeatures)
	}
	if record.CreatedAt.IsZero() {
		t.Fatal("created_at not recorded")
	}
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	if _, err := store.GetByJobID(context.Background(), "absent"); err != results.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestInsertIgnoresReplay(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := store.Insert(ctx, "job-1", "owner-1", sampleResult("Dementia")); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := store.Insert(ctx, "job-1", "owner-1", sampleResult("Control")); err != nil {
		t.Fatalf("replay insert failed: %v", err)
	}

	record, err := store.GetByJobID(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetByJobID failed: %v", err)
	}
	if record.Result.FinalPrediction != "Dementia" {
		t.Fatalf("replay overwrote stored result: %q", record.Result.FinalPrediction)
	}
}

func TestListByOwnerScopesResults(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := store.Insert(ctx, "job-1", "owner-a", sampleResult("Control")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := store.Insert(ctx, "job-2", "owner-b", sampleResult("Dementia")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	records, err := store.ListByOwner(ctx, "owner-a")
	if err != nil {
		t.Fatalf("ListByOwner failed: %v", err)
	}
	if len(records) != 1 || records[0].JobID != "job-1" {
		t.Fatalf("unexpected records: %#v", records)
	}

	recent, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("recent = %d records, want 2", len(recent))
	}
}
