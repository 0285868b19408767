package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/subflow-io/subflow/internal/config"
	"github.com/subflow-io/subflow/internal/lifecycle"
	"github.com/subflow-io/subflow/internal/sigstore"
	"github.com/subflow-io/subflow/pkg/api"

	subflow "github.com/subflow-io/subflow"
)

var runFlags struct {
	stepID  string
	inputs  []string
	outputs []string
	depends []string
	sigMode string
	force   bool
	ignore  bool
}

var runCmd = &cobra.Command{
	Use:   "run FILE",
	Short: "execute a statement file as one substep",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runFlags.stepID, "step", "", "step identifier (defaults to the file name)")
	runCmd.Flags().StringSliceVarP(&runFlags.inputs, "input", "i", nil, "input targets")
	runCmd.Flags().StringSliceVarP(&runFlags.outputs, "output", "o", nil, "output targets")
	runCmd.Flags().StringSliceVarP(&runFlags.depends, "depends", "d", nil, "dependency targets")
	runCmd.Flags().BoolVarP(&runFlags.force, "force", "f", false, "execute even when a matching signature exists")
	runCmd.Flags().BoolVar(&runFlags.ignore, "ignore-signatures", false, "disable signature checking")
	rootCmd.AddCommand(runCmd)
}

// openStore picks the store the run uses: a remote service when addresses
// are configured, the SQLite database when a path is, and otherwise a
// throwaway in-memory store.
func openStore() (sigstore.Store, error) {
	switch {
	case cfg.StorePushAddr != "" && cfg.StoreReqAddr != "":
		return sigstore.Dial(cfg.StoreNetwork, cfg.StorePushAddr, cfg.StoreReqAddr)
	case cfg.StorePath != "":
		db, err := sql.Open("sqlite", cfg.StorePath)
		if err != nil {
			return nil, err
		}
		return sigstore.NewSQLiteStore(db)
	default:
		return sigstore.NewMemoryStore(), nil
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	statement, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	if runFlags.force {
		cfg.SigMode = config.SigModeForce
	}
	if runFlags.ignore {
		cfg.SigMode = config.SigModeIgnore
	}

	store, err := openStore()
	if err != nil {
		return fmt.Errorf("open signature store: %w", err)
	}
	defer store.Close()

	stepID := runFlags.stepID
	if stepID == "" {
		stepID = args[0]
	}

	mode := api.OutputDetermined
	if len(runFlags.outputs) == 0 {
		mode = api.OutputUnspecified
	}
	job := api.Job{
		Statement:  string(statement),
		StepID:     stepID,
		StepTokens: strings.Fields(string(statement)),
		Input:      runFlags.inputs,
		Output:     api.OutputSpec{Targets: runFlags.outputs, Mode: mode},
		Depends:    runFlags.depends,
	}

	ctx, cancel := lifecycle.NotifyCancel(cmd.Context())
	defer cancel()

	runner := subflow.NewRunner(store, cfg,
		subflow.WithObserver(subflow.NewLoggingObserver(slog.Default())),
	)
	if err := runner.Start(ctx); err != nil {
		return err
	}
	defer runner.Stop()

	res, err := runner.Execute(ctx, job)
	if err != nil {
		if errors.Is(err, subflow.ErrJobCancelled) {
			return fmt.Errorf("cancelled")
		}
		return err
	}

	if res.SigSkipped {
		slog.Info("substep skipped", slog.String("step", stepID))
	}
	if !res.OK() {
		fmt.Fprintln(os.Stderr, res.Failure.Error())
		os.Exit(res.RetCode)
	}
	return nil
}
