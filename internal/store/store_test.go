package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"buildsnap/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestStore_CreateRun(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "http://localhost:8080", "cicd-demo-pipeline", 5)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if run.Status != store.RunRunning {
		t.Errorf("expected status running, got %q", run.Status)
	}
	if _, err := os.Stat(st.RunDir(run.ID)); err != nil {
		t.Errorf("run directory missing: %v", err)
	}
}

func TestStore_SaveArtifactAndReadBack(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "http://localhost:8080", "cicd-demo-pipeline", 5)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	data := []byte("Started by user rayhan\nFinished: SUCCESS\n")
	art, err := st.SaveArtifact(ctx, run.ID, "console_output_build_5.txt", store.KindConsoleText, data)
	if err != nil {
		t.Fatalf("SaveArtifact: %v", err)
	}
	if art.Size != int64(len(data)) {
		t.Errorf("expected size %d, got %d", len(data), art.Size)
	}
	if len(art.SHA256) != 64 {
		t.Errorf("expected sha256 hex digest, got %q", art.SHA256)
	}

	got, err := st.ReadArtifact(ctx, run.ID, "console_output_build_5.txt")
	if err != nil {
		t.Fatalf("ReadArtifact: %v", err)
	}
	if string(got) != string(data) {
		t.Errorf("artifact round trip mismatch: %q", got)
	}
}

func TestStore_FinishRunWritesManifest(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "http://localhost:8080", "cicd-demo-pipeline", 5)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if _, err := st.SaveArtifact(ctx, run.ID, "4_jenkins_dashboard.png", store.KindScreenshot, []byte("png")); err != nil {
		t.Fatalf("SaveArtifact: %v", err)
	}
	if err := st.FinishRun(ctx, run.ID, nil); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(st.RunDir(run.ID), "manifest.json"))
	if err != nil {
		t.Fatalf("manifest missing: %v", err)
	}
	var manifest store.Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		t.Fatalf("manifest not valid JSON: %v", err)
	}
	if manifest.Run.Status != store.RunDone {
		t.Errorf("expected done status in manifest, got %q", manifest.Run.Status)
	}
	if len(manifest.Artifacts) != 1 {
		t.Errorf("expected 1 artifact in manifest, got %d", len(manifest.Artifacts))
	}
}

func TestStore_FinishRunFailureKeepsArtifacts(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "http://localhost:8080", "cicd-demo-pipeline", 5)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if _, err := st.SaveArtifact(ctx, run.ID, "1_classic_pipeline_build_5.png", store.KindScreenshot, []byte("png")); err != nil {
		t.Fatalf("SaveArtifact: %v", err)
	}
	if err := st.FinishRun(ctx, run.ID, fmt.Errorf("blue ocean exploded")); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	got, arts, err := st.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != store.RunFailed {
		t.Errorf("expected failed status, got %q", got.Status)
	}
	if got.Error != "blue ocean exploded" {
		t.Errorf("expected error recorded, got %q", got.Error)
	}
	if len(arts) != 1 {
		t.Errorf("expected partial artifact kept, got %d", len(arts))
	}
}

func TestStore_GetRun_NotFound(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)

	_, _, err := st.GetRun(context.Background(), "nope")
	if !errors.Is(err, store.ErrRunNotFound) {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
}

func TestStore_ListRuns_NewestFirst(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	first, err := st.CreateRun(ctx, "http://localhost:8080", "cicd-demo-pipeline", 4)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	second, err := st.CreateRun(ctx, "http://localhost:8080", "cicd-demo-pipeline", 5)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	runs, err := st.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	// Same-timestamp runs may tie; just require both to be present.
	ids := map[string]bool{runs[0].ID: true, runs[1].ID: true}
	if !ids[first.ID] || !ids[second.ID] {
		t.Errorf("listed runs %v missing created runs", ids)
	}
}

func TestStore_FindArtifact(t *testing.T) {
	t.Parallel()
	st := newTestStore(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "http://localhost:8080", "cicd-demo-pipeline", 5)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if _, err := st.SaveArtifact(ctx, run.ID, "shot.png", store.KindScreenshot, []byte("png")); err != nil {
		t.Fatalf("SaveArtifact: %v", err)
	}
	if _, err := st.SaveArtifact(ctx, run.ID, "console.txt", store.KindConsoleText, []byte("log")); err != nil {
		t.Fatalf("SaveArtifact: %v", err)
	}

	art, err := st.FindArtifact(ctx, run.ID, store.KindConsoleText)
	if err != nil {
		t.Fatalf("FindArtifact: %v", err)
	}
	if art.Name != "console.txt" {
		t.Errorf("expected console.txt, got %q", art.Name)
	}

	if _, err := st.FindArtifact(ctx, run.ID, "bogus-kind"); !errors.Is(err, store.ErrArtifactNotFound) {
		t.Errorf("expected ErrArtifactNotFound, got %v", err)
	}
}
