package app_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"buildsnap/internal/app"
	"buildsnap/internal/browser"
	"buildsnap/internal/capture"
	"buildsnap/internal/jenkins"
	"buildsnap/internal/store"
	"buildsnap/internal/testutil"
)

func newTestOrchestrator(t *testing.T, factory browser.Factory) (*app.Orchestrator, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := capture.Config{LoginFormWait: 10 * time.Millisecond}
	engine := capture.NewEngine(cfg, st, zerolog.Nop())
	o := app.NewOrchestrator(engine, st, factory, zerolog.Nop())
	t.Cleanup(o.Close)
	return o, st
}

func consolePlan(b jenkins.Build) *capture.Plan {
	return &capture.Plan{Steps: []capture.Step{{
		Name:     "console-text",
		Kind:     capture.StepConsoleText,
		URL:      b.ConsoleTextURL(),
		Artifact: "console_output.txt",
	}}}
}

// drain consumes job events until the channel closes, which only happens
// after the job has reached a terminal state.
func drain(t *testing.T, job *app.Job) []app.JobEvent {
	t.Helper()
	var events []app.JobEvent
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-job.Events:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("job did not finish in time")
		}
	}
}

func TestOrchestrator_StartCaptureJob(t *testing.T) {
	t.Parallel()
	sess := testutil.NewFakeSession()
	sess.TextBySelector[jenkins.ConsolePre] = "Finished: SUCCESS"
	o, st := newTestOrchestrator(t, func(ctx context.Context) (browser.Session, error) {
		return sess, nil
	})

	b := jenkins.Build{BaseURL: "http://localhost:8080", Job: "cicd-demo-pipeline", Number: 5}
	job, err := o.StartCaptureJob(context.Background(), app.CaptureRequest{
		Build: b,
		Plan:  consolePlan(b),
	})
	if err != nil {
		t.Fatalf("StartCaptureJob: %v", err)
	}

	events := drain(t, job)

	got := o.GetJob(job.ID)
	if got == nil {
		t.Fatal("job not tracked")
	}
	if got.Status != app.JobDone {
		t.Fatalf("expected done, got %q (error %q)", got.Status, got.Error)
	}
	if got.RunID == "" {
		t.Fatal("finished job should reference its run")
	}
	if got.EndedAt.IsZero() {
		t.Error("EndedAt not set")
	}
	if !sess.Closed {
		t.Error("browser session not closed after the job")
	}

	var sawProgress, sawResult bool
	for _, ev := range events {
		switch ev.Type {
		case app.JobEventProgress:
			sawProgress = true
		case app.JobEventResult:
			sawResult = true
		}
	}
	if !sawProgress || !sawResult {
		t.Errorf("expected progress and result events, got %+v", events)
	}

	if _, _, err := st.GetRun(context.Background(), got.RunID); err != nil {
		t.Errorf("run not persisted: %v", err)
	}
}

func TestOrchestrator_JobFailsWhenBrowserUnavailable(t *testing.T) {
	t.Parallel()
	o, _ := newTestOrchestrator(t, func(ctx context.Context) (browser.Session, error) {
		return nil, errors.New("chrome not found")
	})

	b := jenkins.Build{BaseURL: "http://localhost:8080", Job: "demo", Number: 1}
	job, err := o.StartCaptureJob(context.Background(), app.CaptureRequest{Build: b, Plan: consolePlan(b)})
	if err != nil {
		t.Fatalf("StartCaptureJob: %v", err)
	}
	drain(t, job)

	got := o.GetJob(job.ID)
	if got.Status != app.JobFailed {
		t.Fatalf("expected failed, got %q", got.Status)
	}
	if got.Error == "" {
		t.Error("failure reason not recorded")
	}
}

func TestOrchestrator_CancelJob(t *testing.T) {
	t.Parallel()
	started := make(chan struct{})
	o, _ := newTestOrchestrator(t, func(ctx context.Context) (browser.Session, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	b := jenkins.Build{BaseURL: "http://localhost:8080", Job: "demo", Number: 1}
	job, err := o.StartCaptureJob(context.Background(), app.CaptureRequest{Build: b, Plan: consolePlan(b)})
	if err != nil {
		t.Fatalf("StartCaptureJob: %v", err)
	}

	<-started
	o.CancelJob(job.ID)
	drain(t, job)

	got := o.GetJob(job.ID)
	if got.Status != app.JobCanceled {
		t.Fatalf("expected canceled, got %q", got.Status)
	}
}

func TestOrchestrator_ListJobs(t *testing.T) {
	t.Parallel()
	o, _ := newTestOrchestrator(t, func(ctx context.Context) (browser.Session, error) {
		return testutil.NewFakeSession(), nil
	})

	b := jenkins.Build{BaseURL: "http://localhost:8080", Job: "demo", Number: 1}
	plan := &capture.Plan{Steps: []capture.Step{{
		Name: "front", Kind: capture.StepScreenshot, Path: "/", Artifact: "front.png",
	}}}
	job, err := o.StartCaptureJob(context.Background(), app.CaptureRequest{Build: b, Plan: plan})
	if err != nil {
		t.Fatalf("StartCaptureJob: %v", err)
	}
	drain(t, job)

	jobs := o.ListJobs()
	if len(jobs) != 1 || jobs[0].ID != job.ID {
		t.Fatalf("unexpected job list: %+v", jobs)
	}
}

func TestOrchestrator_CompareConsoles(t *testing.T) {
	t.Parallel()
	o, st := newTestOrchestrator(t, nil)
	ctx := context.Background()

	baseRun := seedConsoleRun(t, st, "Started\nStep one\nFinished: SUCCESS\n")
	headRun := seedConsoleRun(t, st, "Started\nStep one\nStep two\nFinished: FAILURE\n")

	diff, err := o.CompareConsoles(ctx, baseRun, headRun)
	if err != nil {
		t.Fatalf("CompareConsoles: %v", err)
	}
	if diff.Added == 0 {
		t.Error("expected added chunks")
	}
	if diff.Removed == 0 {
		t.Error("expected removed chunks")
	}

	var sawStepTwo bool
	for _, c := range diff.Chunks {
		if c.Type == "added" && strings.Contains(c.Content, "Step two") {
			sawStepTwo = true
		}
	}
	if !sawStepTwo {
		t.Errorf("new step missing from diff: %+v", diff.Chunks)
	}
}

func TestOrchestrator_CompareConsoles_MissingConsole(t *testing.T) {
	t.Parallel()
	o, st := newTestOrchestrator(t, nil)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, "http://localhost:8080", "demo", 1)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := st.FinishRun(ctx, run.ID, nil); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	if _, err := o.CompareConsoles(ctx, run.ID, run.ID); !errors.Is(err, store.ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}
}

func seedConsoleRun(t *testing.T, st *store.Store, console string) string {
	t.Helper()
	ctx := context.Background()
	run, err := st.CreateRun(ctx, "http://localhost:8080", "demo", 1)
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if _, err := st.SaveArtifact(ctx, run.ID, "console_output.txt", store.KindConsoleText, []byte(console)); err != nil {
		t.Fatalf("SaveArtifact: %v", err)
	}
	if err := st.FinishRun(ctx, run.ID, nil); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	return run.ID
}
