package config

import (
	"os"
	"strconv"
)

// Defaults match the values the capture tool was originally written against.
const (
	DefaultJenkinsURL = "http://localhost:8080"
	DefaultUser       = "rayhan"
	DefaultPass       = "rayhan"
	DefaultListenAddr = ":8090"
	DefaultDataDir    = "buildsnap-data"
	DefaultJob        = "cicd-demo-pipeline"
	DefaultBuild      = 5
)

// Config is the runtime configuration shared by the CLI commands.
type Config struct {
	// JenkinsURL is the base URL of the Jenkins instance under capture.
	JenkinsURL string

	// JenkinsUser and JenkinsPass are the web UI credentials. An instance
	// that allows anonymous reads works with any values; the login step is
	// skipped when no login form is present.
	JenkinsUser string
	JenkinsPass string

	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr string

	// DataDir is the root directory for run archives and the registry DB.
	DataDir string

	// Job and Build select the pipeline build to capture.
	Job   string
	Build int
}

// FromEnv builds a Config from environment variables, falling back to the
// fixed defaults above for anything unset.
func FromEnv() *Config {
	return &Config{
		JenkinsURL:  envOr("JENKINS_URL", DefaultJenkinsURL),
		JenkinsUser: envOr("JENKINS_USER", DefaultUser),
		JenkinsPass: envOr("JENKINS_PASS", DefaultPass),
		ListenAddr:  envOr("BUILDSNAP_LISTEN", DefaultListenAddr),
		DataDir:     envOr("BUILDSNAP_DATA", DefaultDataDir),
		Job:         envOr("BUILDSNAP_JOB", DefaultJob),
		Build:       envIntOr("BUILDSNAP_BUILD", DefaultBuild),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}
