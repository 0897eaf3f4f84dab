package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"buildsnap/internal/app"
	"buildsnap/internal/config"
	"buildsnap/internal/logging"
	"buildsnap/internal/store"
)

var compareDataDir string

var compareCmd = &cobra.Command{
	Use:   "compare <base-run-id> <head-run-id>",
	Short: "Diff the console logs of two recorded runs",
	Args:  cobra.ExactArgs(2),
	RunE:  runCompare,
}

func init() {
	compareCmd.Flags().StringVar(&compareDataDir, "data", "", "data directory (default: BUILDSNAP_DATA env)")
}

func runCompare(cmd *cobra.Command, args []string) error {
	logging.Configure(logging.Config{Level: "warn"})
	cfg := config.FromEnv()
	if compareDataDir != "" {
		cfg.DataDir = compareDataDir
	}

	st, err := store.Open(cfg.DataDir, logging.WithComponent("store"))
	if err != nil {
		return err
	}
	defer st.Close()

	orch := app.NewOrchestrator(nil, st, nil, logging.WithComponent("orchestrator"))
	diff, err := orch.CompareConsoles(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}

	if len(diff.Chunks) == 0 {
		fmt.Println("console logs are identical")
		return nil
	}

	fmt.Printf("%d added, %d removed\n\n", diff.Added, diff.Removed)
	for _, c := range diff.Chunks {
		prefix := "+"
		if c.Type == "removed" {
			prefix = "-"
		}
		for _, line := range strings.Split(strings.TrimRight(c.Content, "\n"), "\n") {
			fmt.Printf("%s %s\n", prefix, line)
		}
	}
	return nil
}
