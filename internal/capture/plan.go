package capture

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"buildsnap/internal/jenkins"
	"buildsnap/internal/store"
)

// StepKind selects what a step saves after the page has settled.
type StepKind string

const (
	StepScreenshot  StepKind = "screenshot"
	StepConsoleText StepKind = "console-text"
)

// Duration is a time.Duration that unmarshals from YAML scalars like "3s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Step is one navigate-wait-save entry of a capture plan.
type Step struct {
	// Name identifies the step in logs and progress events.
	Name string `yaml:"name"`

	Kind StepKind `yaml:"kind"`

	// Path is resolved against the Jenkins base URL. URL, when set,
	// overrides it; the built-in plan uses absolute URLs.
	Path string `yaml:"path"`
	URL  string `yaml:"-"`

	// Artifact is the output filename inside the run directory.
	Artifact string `yaml:"artifact"`

	// WaitFor is an optional CSS selector to wait for before saving. A
	// wait that times out is logged and the step continues; slow-loading
	// UIs still produce a (possibly partial) capture.
	WaitFor     string   `yaml:"wait_for,omitempty"`
	WaitTimeout Duration `yaml:"wait_timeout,omitempty"`

	// Settle is a fixed pause after navigation, on top of network-idle
	// waiting.
	Settle Duration `yaml:"settle,omitempty"`

	// ListJobs additionally parses the page's job table into the log.
	ListJobs bool `yaml:"list_jobs,omitempty"`
}

// Plan is the ordered sequence of capture steps for one build.
type Plan struct {
	Steps []Step `yaml:"steps"`
}

// DefaultPlan reproduces the fixed page walk of the original capture tool:
// classic build page, console page, Blue Ocean pipeline view, dashboard,
// then the plain-text console log.
func DefaultPlan(b jenkins.Build) Plan {
	return Plan{Steps: []Step{
		{
			Name:     "classic-pipeline",
			Kind:     StepScreenshot,
			URL:      b.BuildURL(),
			Artifact: fmt.Sprintf("1_classic_pipeline_build_%d.png", b.Number),
			Settle:   Duration(3 * time.Second),
		},
		{
			Name:     "console-output",
			Kind:     StepScreenshot,
			URL:      b.ConsoleURL(),
			Artifact: fmt.Sprintf("2_console_output_build_%d.png", b.Number),
			Settle:   Duration(2 * time.Second),
		},
		{
			Name:        "blueocean-pipeline",
			Kind:        StepScreenshot,
			URL:         b.BlueOceanURL(),
			Artifact:    fmt.Sprintf("3_blueocean_pipeline_build_%d.png", b.Number),
			WaitFor:     jenkins.PipelineGraph,
			WaitTimeout: Duration(10 * time.Second),
			Settle:      Duration(5 * time.Second),
		},
		{
			Name:     "dashboard",
			Kind:     StepScreenshot,
			URL:      b.DashboardURL(),
			Artifact: "4_jenkins_dashboard.png",
			Settle:   Duration(2 * time.Second),
			ListJobs: true,
		},
		{
			Name:     "console-text",
			Kind:     StepConsoleText,
			URL:      b.ConsoleTextURL(),
			Artifact: fmt.Sprintf("console_output_build_%d.txt", b.Number),
			Settle:   Duration(1 * time.Second),
		},
	}}
}

// LoadPlan reads a YAML plan file. Step paths are resolved against the
// Jenkins base URL at run time.
func LoadPlan(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("read plan file: %w", err)
	}
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return Plan{}, fmt.Errorf("parse plan file: %w", err)
	}
	if err := plan.validate(); err != nil {
		return Plan{}, err
	}
	return plan, nil
}

func (p Plan) validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("plan has no steps")
	}
	for i, s := range p.Steps {
		if s.Artifact == "" {
			return fmt.Errorf("step %d (%s): artifact name is required", i, s.Name)
		}
		switch s.Kind {
		case StepScreenshot, StepConsoleText:
		default:
			return fmt.Errorf("step %d (%s): unknown kind %q", i, s.Name, s.Kind)
		}
		if s.URL == "" && s.Path == "" {
			return fmt.Errorf("step %d (%s): path is required", i, s.Name)
		}
	}
	return nil
}

func kindArtifact(k StepKind) string {
	if k == StepConsoleText {
		return store.KindConsoleText
	}
	return store.KindScreenshot
}
