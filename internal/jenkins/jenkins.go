// Package jenkins knows the shape of a Jenkins web UI: which URLs a build's
// pages live at, which form fields the login page uses, and how to pull
// useful text back out of the rendered HTML.
package jenkins

import (
	"fmt"
	"strings"
)

// Login form selectors of the stock Jenkins security realm.
const (
	UsernameField = `input[name="j_username"]`
	PasswordField = `input[name="j_password"]`
	SubmitButton  = `[name="Submit"]`
)

// PipelineGraph matches the Blue Ocean pipeline visualisation once it has
// rendered.
const PipelineGraph = ".PipelineGraph"

// ConsolePre matches the preformatted console log body on /consoleText.
const ConsolePre = "pre"

// Build identifies one build of one job on a Jenkins instance.
type Build struct {
	BaseURL string
	Job     string
	Number  int
}

func (b Build) base() string {
	return strings.TrimRight(b.BaseURL, "/")
}

// LoginURL is the form-based login page.
func (b Build) LoginURL() string {
	return b.base() + "/login"
}

// DashboardURL is the instance root listing all jobs.
func (b Build) DashboardURL() string {
	return b.base() + "/"
}

// BuildURL is the classic build status page.
func (b Build) BuildURL() string {
	return fmt.Sprintf("%s/job/%s/%d/", b.base(), b.Job, b.Number)
}

// ConsoleURL is the classic console output page.
func (b Build) ConsoleURL() string {
	return fmt.Sprintf("%s/job/%s/%d/console", b.base(), b.Job, b.Number)
}

// ConsoleTextURL serves the raw console log as text.
func (b Build) ConsoleTextURL() string {
	return fmt.Sprintf("%s/job/%s/%d/consoleText", b.base(), b.Job, b.Number)
}

// BlueOceanURL is the Blue Ocean pipeline visualisation for the build.
func (b Build) BlueOceanURL() string {
	return fmt.Sprintf("%s/blue/organizations/jenkins/%s/detail/%s/%d/pipeline",
		b.base(), b.Job, b.Job, b.Number)
}
