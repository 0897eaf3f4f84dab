package app

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"buildsnap/internal/browser"
	"buildsnap/internal/capture"
	"buildsnap/internal/jenkins"
	"buildsnap/internal/store"
)

type JobEventType string

const (
	JobEventStatus   JobEventType = "status"
	JobEventProgress JobEventType = "progress"
	JobEventResult   JobEventType = "result"
)

type JobEvent struct {
	JobID string       `json:"job_id"`
	Type  JobEventType `json:"type"`

	// For status changes
	Status JobStatus `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`

	// For progress
	Step      string `json:"step,omitempty"`
	Completed int    `json:"completed,omitempty"`
	Total     int    `json:"total,omitempty"`
}

type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobRunning  JobStatus = "running"
	JobDone     JobStatus = "done"
	JobFailed   JobStatus = "failed"
	JobCanceled JobStatus = "canceled"
)

type Job struct {
	ID        string        `json:"id"`
	Job       string        `json:"job"`
	Build     int           `json:"build"`
	Status    JobStatus     `json:"status"`
	Error     string        `json:"error,omitempty"`
	RunID     string        `json:"run_id,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Events    chan JobEvent `json:"-"`
}

// CaptureRequest describes one capture to run in the background.
type CaptureRequest struct {
	Build       jenkins.Build
	Credentials capture.Credentials

	// Plan overrides the default page walk when non-nil.
	Plan *capture.Plan
}

// Orchestrator runs capture jobs in the background and tracks their state.
// Each job gets its own browser session.
type Orchestrator struct {
	engine     *capture.Engine
	store      *store.Store
	newSession browser.Factory
	logger     zerolog.Logger

	jobsMu     sync.Mutex
	jobs       map[string]*Job
	jobCancels map[string]context.CancelFunc
}

func NewOrchestrator(engine *capture.Engine, st *store.Store, newSession browser.Factory, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		engine:     engine,
		store:      st,
		newSession: newSession,
		logger:     logger,
		jobs:       make(map[string]*Job),
		jobCancels: make(map[string]context.CancelFunc),
	}
}

func (o *Orchestrator) emitJobEvent(jobID string, ev JobEvent) {
	o.jobsMu.Lock()
	job, ok := o.jobs[jobID]
	o.jobsMu.Unlock()
	if !ok || job == nil || job.Events == nil {
		return
	}

	// Non-blocking send; drop if buffer is full.
	select {
	case job.Events <- ev:
	default:
	}
}

func (o *Orchestrator) setStatus(jobID string, status JobStatus, errMsg string) {
	o.jobsMu.Lock()
	if j, ok := o.jobs[jobID]; ok {
		j.Status = status
		j.Error = errMsg
	}
	o.jobsMu.Unlock()
	o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventStatus, Status: status, Error: errMsg})
}

// StartCaptureJob launches the capture in a goroutine and returns the job
// immediately. The job's Events channel is closed when the job ends.
func (o *Orchestrator) StartCaptureJob(ctx context.Context, req CaptureRequest) (*Job, error) {
	jobID := uuid.New().String()

	job := &Job{
		ID:        jobID,
		Job:       req.Build.Job,
		Build:     req.Build.Number,
		Status:    JobPending,
		StartedAt: time.Now().UTC(),
		Events:    make(chan JobEvent, 16),
	}

	jobCtx, cancel := context.WithCancel(ctx)
	o.jobsMu.Lock()
	o.jobs[jobID] = job
	o.jobCancels[jobID] = cancel
	o.jobsMu.Unlock()

	o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventStatus, Status: JobPending})
	o.logger.Info().Str("job_id", jobID).Str("job", req.Build.Job).Int("build", req.Build.Number).
		Msg("capture job started")

	go func() {
		defer func() {
			cancel()
			o.jobsMu.Lock()
			j := o.jobs[jobID]
			if j != nil {
				j.EndedAt = time.Now().UTC()
			}
			delete(o.jobCancels, jobID)
			o.jobsMu.Unlock()
			if j != nil && j.Events != nil {
				// Closing lets websocket readers terminate cleanly.
				close(j.Events)
			}
		}()

		o.setStatus(jobID, JobRunning, "")

		run, err := o.runCapture(jobCtx, jobID, req)
		if run != nil {
			o.jobsMu.Lock()
			if j, ok := o.jobs[jobID]; ok {
				j.RunID = run.ID
			}
			o.jobsMu.Unlock()
		}

		switch {
		case err != nil && jobCtx.Err() != nil:
			o.setStatus(jobID, JobCanceled, jobCtx.Err().Error())
		case err != nil:
			o.logger.Error().Err(err).Str("job_id", jobID).Msg("capture job failed")
			o.setStatus(jobID, JobFailed, err.Error())
		default:
			o.jobsMu.Lock()
			if j, ok := o.jobs[jobID]; ok {
				j.Status = JobDone
			}
			o.jobsMu.Unlock()
			o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventResult, Status: JobDone})
		}
	}()

	return job, nil
}

func (o *Orchestrator) runCapture(ctx context.Context, jobID string, req CaptureRequest) (*store.Run, error) {
	sess, err := o.newSession(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	plan := capture.DefaultPlan(req.Build)
	if req.Plan != nil {
		plan = *req.Plan
	}

	progress := func(step string, completed, total int) {
		o.emitJobEvent(jobID, JobEvent{
			JobID:     jobID,
			Type:      JobEventProgress,
			Step:      step,
			Completed: completed,
			Total:     total,
		})
	}

	return o.engine.Run(ctx, sess, req.Build, req.Credentials, plan, progress)
}

func (o *Orchestrator) CancelJob(jobID string) {
	o.jobsMu.Lock()
	cancel := o.jobCancels[jobID]
	o.jobsMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (o *Orchestrator) GetJob(jobID string) *Job {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	return o.jobs[jobID]
}

func (o *Orchestrator) ListJobs() []*Job {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	jobs := make([]*Job, 0, len(o.jobs))
	for _, j := range o.jobs {
		jobs = append(jobs, j)
	}
	return jobs
}

// Store exposes the run registry for read endpoints.
func (o *Orchestrator) Store() *store.Store {
	return o.store
}

// Close cancels all in-flight jobs.
func (o *Orchestrator) Close() {
	o.jobsMu.Lock()
	cancels := make([]context.CancelFunc, 0, len(o.jobCancels))
	for _, c := range o.jobCancels {
		cancels = append(cancels, c)
	}
	o.jobsMu.Unlock()
	for _, c := range cancels {
		c()
	}
}
