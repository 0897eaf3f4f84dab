package capture_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"buildsnap/internal/capture"
)

func writePlanFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing plan file: %v", err)
	}
	return path
}

func TestLoadPlan(t *testing.T) {
	t.Parallel()
	path := writePlanFile(t, `
steps:
  - name: front-page
    kind: screenshot
    path: /
    artifact: front.png
    settle: "1s"
  - name: console
    kind: console-text
    path: /job/demo/1/consoleText
    artifact: console.txt
    wait_for: "pre"
    wait_timeout: "500ms"
`)

	plan, err := capture.LoadPlan(path)
	if err != nil {
		t.Fatalf("LoadPlan: %v", err)
	}
	if len(plan.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(plan.Steps))
	}
	if got := time.Duration(plan.Steps[0].Settle); got != time.Second {
		t.Errorf("settle: got %v, want 1s", got)
	}
	if got := time.Duration(plan.Steps[1].WaitTimeout); got != 500*time.Millisecond {
		t.Errorf("wait_timeout: got %v, want 500ms", got)
	}
	if plan.Steps[1].Kind != capture.StepConsoleText {
		t.Errorf("kind: got %q", plan.Steps[1].Kind)
	}
}

func TestLoadPlan_Invalid(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "no steps",
			yaml:    "steps: []\n",
			wantErr: "no steps",
		},
		{
			name: "missing artifact",
			yaml: `
steps:
  - name: front-page
    kind: screenshot
    path: /
`,
			wantErr: "artifact name is required",
		},
		{
			name: "unknown kind",
			yaml: `
steps:
  - name: front-page
    kind: video
    path: /
    artifact: front.webm
`,
			wantErr: "unknown kind",
		},
		{
			name: "missing path",
			yaml: `
steps:
  - name: front-page
    kind: screenshot
    artifact: front.png
`,
			wantErr: "path is required",
		},
		{
			name: "bad duration",
			yaml: `
steps:
  - name: front-page
    kind: screenshot
    path: /
    artifact: front.png
    settle: "soon"
`,
			wantErr: "invalid duration",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := capture.LoadPlan(writePlanFile(t, tc.yaml))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoadPlan_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := capture.LoadPlan(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for a missing plan file")
	}
}
