package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"buildsnap/internal/config"
	"buildsnap/internal/logging"
	"buildsnap/internal/store"
)

var runsDataDir string

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded capture runs",
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().StringVar(&runsDataDir, "data", "", "data directory (default: BUILDSNAP_DATA env)")
}

func runRuns(cmd *cobra.Command, _ []string) error {
	logging.Configure(logging.Config{Level: "warn"})
	cfg := config.FromEnv()
	if runsDataDir != "" {
		cfg.DataDir = runsDataDir
	}

	st, err := store.Open(cfg.DataDir, logging.WithComponent("store"))
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(cmd.Context())
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tJOB\tBUILD\tSTATUS\tSTARTED")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			r.ID, r.Job, r.Build, r.Status, r.StartedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}
