// Package capture runs a plan of navigate-wait-save steps against a Jenkins
// instance through a browser session and archives the results.
package capture

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"buildsnap/internal/browser"
	"buildsnap/internal/jenkins"
	"buildsnap/internal/store"
)

// Config bounds the login step.
type Config struct {
	// LoginFormWait is how long to wait for the login form before deciding
	// the instance has no form login (anonymous reads enabled).
	LoginFormWait time.Duration

	// LoginSettle is the pause after submitting credentials.
	LoginSettle time.Duration
}

// DefaultConfig matches the fixed waits of the original capture tool.
func DefaultConfig() Config {
	return Config{
		LoginFormWait: 5 * time.Second,
		LoginSettle:   3 * time.Second,
	}
}

// Credentials are the Jenkins web UI login values.
type Credentials struct {
	Username string
	Password string
}

// Progress is called after every completed step.
type Progress func(step string, completed, total int)

// Engine executes capture plans and records runs in the store.
type Engine struct {
	cfg    Config
	store  *store.Store
	logger zerolog.Logger
}

func NewEngine(cfg Config, st *store.Store, logger zerolog.Logger) *Engine {
	return &Engine{cfg: cfg, store: st, logger: logger}
}

// Run executes the plan for one build. A run row is always finished, done or
// failed, and artifacts saved before a failure stay in place. The session is
// owned by the caller; callers must Close it themselves (typically deferred
// next to the Run call, so the browser is released even on error).
func (e *Engine) Run(ctx context.Context, sess browser.Session, b jenkins.Build, creds Credentials, plan Plan, progress Progress) (run *store.Run, err error) {
	if err := plan.validate(); err != nil {
		return nil, err
	}

	run, err = e.store.CreateRun(ctx, b.BaseURL, b.Job, b.Number)
	if err != nil {
		return nil, err
	}
	defer func() {
		if finishErr := e.store.FinishRun(context.WithoutCancel(ctx), run.ID, err); finishErr != nil {
			e.logger.Error().Err(finishErr).Str("run_id", run.ID).Msg("finishing run record")
		}
	}()

	if err = e.login(ctx, sess, b, creds); err != nil {
		return run, err
	}

	total := len(plan.Steps)
	for i, step := range plan.Steps {
		if err = e.runStep(ctx, sess, b, run.ID, step); err != nil {
			err = fmt.Errorf("step %s: %w", step.Name, err)
			return run, err
		}
		if progress != nil {
			progress(step.Name, i+1, total)
		}
	}
	return run, nil
}

// login submits the Jenkins login form. A missing form is not an error: the
// instance may allow anonymous reads or the session may already be
// authenticated.
func (e *Engine) login(ctx context.Context, sess browser.Session, b jenkins.Build, creds Credentials) error {
	e.logger.Info().Str("url", b.LoginURL()).Msg("logging in to Jenkins")

	if err := sess.Navigate(ctx, b.LoginURL()); err != nil {
		return fmt.Errorf("open login page: %w", err)
	}

	if err := sess.WaitVisible(ctx, jenkins.UsernameField, e.cfg.LoginFormWait); err != nil {
		e.logger.Warn().Err(err).Msg("login form not found, continuing unauthenticated")
		return nil
	}

	if err := sess.Fill(ctx, jenkins.UsernameField, creds.Username); err != nil {
		return fmt.Errorf("fill username: %w", err)
	}
	if err := sess.Fill(ctx, jenkins.PasswordField, creds.Password); err != nil {
		return fmt.Errorf("fill password: %w", err)
	}
	if err := sess.Click(ctx, jenkins.SubmitButton); err != nil {
		return fmt.Errorf("submit login: %w", err)
	}
	if err := sleep(ctx, e.cfg.LoginSettle); err != nil {
		return err
	}
	e.logger.Info().Msg("logged in")
	return nil
}

func (e *Engine) runStep(ctx context.Context, sess browser.Session, b jenkins.Build, runID string, step Step) error {
	url := step.URL
	if url == "" {
		url = strings.TrimRight(b.BaseURL, "/") + "/" + strings.TrimLeft(step.Path, "/")
	}

	e.logger.Info().Str("step", step.Name).Str("url", url).Msg("capturing")
	if err := sess.Navigate(ctx, url); err != nil {
		return err
	}

	if step.WaitFor != "" {
		timeout := time.Duration(step.WaitTimeout)
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		if err := sess.WaitVisible(ctx, step.WaitFor, timeout); err != nil {
			e.logger.Warn().Err(err).Str("step", step.Name).Str("selector", step.WaitFor).
				Msg("page not fully loaded, capturing anyway")
		}
	}

	if err := sleep(ctx, time.Duration(step.Settle)); err != nil {
		return err
	}

	var data []byte
	switch step.Kind {
	case StepConsoleText:
		text, err := e.consoleText(ctx, sess)
		if err != nil {
			return err
		}
		data = []byte(text)
	default:
		shot, err := sess.Screenshot(ctx)
		if err != nil {
			return err
		}
		data = shot
	}

	if _, err := e.store.SaveArtifact(ctx, runID, step.Artifact, kindArtifact(step.Kind), data); err != nil {
		return err
	}

	if step.ListJobs {
		e.logDashboardJobs(ctx, sess)
	}
	return nil
}

// consoleText reads the raw console log. Browsers render text/plain inside a
// <pre>; when that lookup fails the whole page source is parsed instead.
func (e *Engine) consoleText(ctx context.Context, sess browser.Session) (string, error) {
	if text, err := sess.Text(ctx, jenkins.ConsolePre); err == nil && text != "" {
		return text, nil
	}

	html, err := sess.PageSource(ctx)
	if err != nil {
		return "", fmt.Errorf("read console page: %w", err)
	}
	return jenkins.ConsoleText(html)
}

func (e *Engine) logDashboardJobs(ctx context.Context, sess browser.Session) {
	html, err := sess.PageSource(ctx)
	if err != nil {
		e.logger.Warn().Err(err).Msg("reading dashboard source")
		return
	}
	jobs, err := jenkins.DashboardJobs(html)
	if err != nil {
		e.logger.Warn().Err(err).Msg("parsing dashboard jobs")
		return
	}
	names := make([]string, 0, len(jobs))
	for _, j := range jobs {
		names = append(names, j.Name)
	}
	e.logger.Info().Strs("jobs", names).Msg("dashboard jobs")
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
