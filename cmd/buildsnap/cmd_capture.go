package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"buildsnap/internal/browser"
	"buildsnap/internal/capture"
	"buildsnap/internal/config"
	"buildsnap/internal/jenkins"
	"buildsnap/internal/logging"
	"buildsnap/internal/store"
)

var (
	captureJenkinsURL string
	captureJob        string
	captureBuild      int
	captureDataDir    string
	capturePlanPath   string
	captureTimeout    time.Duration
	captureHeadful    bool
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture screenshots and the console log of one build",
	Long: `Logs into the configured Jenkins instance, walks the build's pages
(classic view, console, Blue Ocean, dashboard), saves screenshots and the
plain-text console log into a run directory, and records the run in the
registry. Credentials come from JENKINS_USER / JENKINS_PASS.`,
	RunE: runCapture,
}

func init() {
	captureCmd.Flags().StringVar(&captureJenkinsURL, "jenkins", "", "Jenkins base URL (default: JENKINS_URL env)")
	captureCmd.Flags().StringVar(&captureJob, "job", "", "job name (default: BUILDSNAP_JOB env)")
	captureCmd.Flags().IntVar(&captureBuild, "build", 0, "build number (default: BUILDSNAP_BUILD env)")
	captureCmd.Flags().StringVar(&captureDataDir, "data", "", "data directory (default: BUILDSNAP_DATA env)")
	captureCmd.Flags().StringVar(&capturePlanPath, "plan", "", "YAML capture plan overriding the default page walk")
	captureCmd.Flags().DurationVar(&captureTimeout, "timeout", 5*time.Minute, "overall capture timeout")
	captureCmd.Flags().BoolVar(&captureHeadful, "headful", false, "run the browser with a visible window")
}

func runCapture(cmd *cobra.Command, _ []string) error {
	logging.Configure(logging.Config{})
	cfg := config.FromEnv()
	if captureJenkinsURL != "" {
		cfg.JenkinsURL = captureJenkinsURL
	}
	if captureJob != "" {
		cfg.Job = captureJob
	}
	if captureBuild > 0 {
		cfg.Build = captureBuild
	}
	if captureDataDir != "" {
		cfg.DataDir = captureDataDir
	}

	st, err := store.Open(cfg.DataDir, logging.WithComponent("store"))
	if err != nil {
		return err
	}
	defer st.Close()

	build := jenkins.Build{BaseURL: cfg.JenkinsURL, Job: cfg.Job, Number: cfg.Build}

	plan := capture.DefaultPlan(build)
	if capturePlanPath != "" {
		plan, err = capture.LoadPlan(capturePlanPath)
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), captureTimeout)
	defer cancel()

	bcfg := browser.DefaultConfig()
	bcfg.Headless = !captureHeadful

	sess, err := browser.NewChromeSession(ctx, bcfg, logging.WithComponent("browser"))
	if err != nil {
		return err
	}
	defer sess.Close()

	engine := capture.NewEngine(capture.DefaultConfig(), st, logging.WithComponent("capture"))
	creds := capture.Credentials{Username: cfg.JenkinsUser, Password: cfg.JenkinsPass}

	fmt.Printf("Capturing %s build #%d from %s\n", cfg.Job, cfg.Build, cfg.JenkinsURL)
	run, err := engine.Run(ctx, sess, build, creds, plan, func(step string, completed, total int) {
		fmt.Printf("  [%d/%d] %s\n", completed, total, step)
	})
	if err != nil {
		if run != nil {
			fmt.Printf("capture aborted, partial run saved under %s\n", st.RunDir(run.ID))
		}
		return fmt.Errorf("capture failed: %w", err)
	}

	_, artifacts, err := st.GetRun(cmd.Context(), run.ID)
	if err != nil {
		return err
	}

	fmt.Printf("\nCaptured %d artifacts in %s:\n", len(artifacts), st.RunDir(run.ID))
	for _, a := range artifacts {
		fmt.Printf("  - %s (%.1f KB)\n", a.Name, float64(a.Size)/1024)
	}
	return nil
}
