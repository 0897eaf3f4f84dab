package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"buildsnap/internal/store"
)

// Chunk is a single change between two console logs.
type Chunk struct {
	Type    string `json:"type"` // "added" or "removed"
	Content string `json:"content"`
}

// ConsoleDiff is the result of comparing the console logs of two runs.
type ConsoleDiff struct {
	BaseRunID string  `json:"base_run_id"`
	HeadRunID string  `json:"head_run_id"`
	Chunks    []Chunk `json:"chunks"`
	Added     int     `json:"added"`
	Removed   int     `json:"removed"`
}

// CompareConsoles diffs the console-text artifacts of two recorded runs.
func (o *Orchestrator) CompareConsoles(ctx context.Context, baseRunID, headRunID string) (*ConsoleDiff, error) {
	base, err := o.consoleOf(ctx, baseRunID)
	if err != nil {
		return nil, err
	}
	head, err := o.consoleOf(ctx, headRunID)
	if err != nil {
		return nil, err
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(base, head, true)
	diffs = dmp.DiffCleanupSemantic(diffs)

	result := &ConsoleDiff{BaseRunID: baseRunID, HeadRunID: headRunID, Chunks: []Chunk{}}
	for _, d := range diffs {
		if strings.TrimSpace(d.Text) == "" {
			continue
		}
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			result.Chunks = append(result.Chunks, Chunk{Type: "added", Content: d.Text})
			result.Added++
		case diffmatchpatch.DiffDelete:
			result.Chunks = append(result.Chunks, Chunk{Type: "removed", Content: d.Text})
			result.Removed++
		}
	}
	return result, nil
}

func (o *Orchestrator) consoleOf(ctx context.Context, runID string) (string, error) {
	art, err := o.store.FindArtifact(ctx, runID, store.KindConsoleText)
	if err != nil {
		return "", fmt.Errorf("run %s: console log: %w", runID, err)
	}
	data, err := o.store.ReadArtifact(ctx, runID, art.Name)
	if err != nil {
		return "", fmt.Errorf("run %s: %w", runID, err)
	}
	return string(data), nil
}
