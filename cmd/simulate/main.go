// Package main replays scenario scripts against fresh in-memory ledgers and
// writes events.csv, positions.csv and SUMMARY.md for each run.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"time-ledger/internal/chain"
	"time-ledger/internal/config"
	"time-ledger/internal/logging"
	"time-ledger/internal/orchestrator"
	"time-ledger/internal/reporting"
	"time-ledger/internal/scenario"
	"time-ledger/internal/storage"
)

const (
	scriptFlag      = "script"
	allFlag         = "all"
	outFlag         = "out"
	startHeightFlag = "start-height"
	logLevelFlag    = "log-level"
	logFileFlag     = "log-file"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "time-ledger-simulate",
		Short: "Replay scenario scripts on an in-memory ledger",
		Long: fmt.Sprintf(`time-ledger-simulate runs a scenario script against a fresh in-memory
ledger and writes the event journal and a summary report.

--script takes a file path or one of the built-in scripts: %s.`, strings.Join(scenario.BuiltinNames(), ", ")),
		SilenceUsage: true,
		RunE:         runSimulate,
	}

	flags := cmd.Flags()
	flags.String(scriptFlag, "reference", "script file or built-in script name")
	flags.Bool(allFlag, false, "run every built-in script")
	flags.String(outFlag, "output", "output directory")
	flags.Uint64(startHeightFlag, 1, "height the ledger starts at")
	flags.String(logLevelFlag, "info", "log level: debug, info, warn, error")
	flags.String(logFileFlag, "", "also write logs to this rotating file")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	level, _ := flags.GetString(logLevelFlag)
	logFile, _ := flags.GetString(logFileFlag)
	logger, err := logging.Setup(logging.Options{Level: level, File: logFile})
	if err != nil {
		return err
	}
	log := logrus.NewEntry(logger).WithField("component", "simulate")

	outDir, _ := flags.GetString(outFlag)
	start, _ := flags.GetUint64(startHeightFlag)
	all, _ := flags.GetBool(allFlag)

	var scripts []*scenario.Script
	if all {
		for _, name := range scenario.BuiltinNames() {
			s, err := scenario.Builtin(name)
			if err != nil {
				return err
			}
			scripts = append(scripts, s)
		}
	} else {
		arg, _ := flags.GetString(scriptFlag)
		s, err := resolveScript(arg)
		if err != nil {
			return err
		}
		scripts = append(scripts, s)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var failed []error
	for _, s := range scripts {
		dir := outDir
		if len(scripts) > 1 {
			dir = filepath.Join(outDir, s.Name)
		}
		if err := simulate(ctx, s, start, dir, log); err != nil {
			log.WithError(err).WithField("script", s.Name).Error("scenario failed")
			failed = append(failed, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		log.WithFields(logrus.Fields{"script": s.Name, "dir": dir}).Info("scenario written")
	}
	return errors.Join(failed...)
}

// resolveScript loads arg as a file when one exists, otherwise as a
// built-in name.
func resolveScript(arg string) (*scenario.Script, error) {
	if _, err := os.Stat(arg); err == nil {
		return scenario.LoadScript(arg)
	}
	return scenario.Builtin(arg)
}

// simulate runs one script on a fresh ledger and writes its outputs to dir.
// Outputs are written even when the script fails part way.
func simulate(ctx context.Context, s *scenario.Script, start uint64, dir string, log *logrus.Entry) error {
	cfg := config.Default()
	cfg.Storage.Backend = config.BackendMemory
	cfg.Height.Source = config.HeightManual
	cfg.Height.Start = start
	heights := chain.NewManualHeight(start)

	node, err := orchestrator.Build(ctx, orchestrator.Options{Config: cfg, Heights: heights, Logger: log})
	if err != nil {
		return fmt.Errorf("build ledger: %w", err)
	}
	defer node.Close()

	runner := scenario.NewRunner(scenario.RunnerOptions{
		Chain:    node.Chain,
		Exchange: node.Exchange,
		Staking:  node.Staking,
		Heights:  heights,
		Logger:   log,
	})
	started := time.Now()
	res, runErr := runner.Run(ctx, s)
	if res == nil {
		return runErr
	}
	log.WithFields(logrus.Fields{
		"script":   s.Name,
		"steps":    len(res.Steps),
		"duration": time.Since(started),
	}).Debug("scenario replayed")

	if err := writeOutputs(ctx, node, res, runErr, dir); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

func writeOutputs(ctx context.Context, node *orchestrator.Node, res *scenario.Result, runErr error, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	events, err := node.Events.List(ctx, storage.EventFilter{})
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	report, err := reporting.NewGenerator(node.Exchange, node.Staking, node.Chain, node.Events).Generate(ctx)
	if err != nil {
		return fmt.Errorf("generate report: %w", err)
	}

	if err := writeFile(filepath.Join(dir, "events.csv"), func(f *os.File) error {
		return reporting.WriteEventsCSV(f, events)
	}); err != nil {
		return err
	}
	if err := writeFile(filepath.Join(dir, "positions.csv"), func(f *os.File) error {
		return reporting.WritePositionsCSV(f, report.Positions)
	}); err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString(reporting.RenderMarkdown(report))
	sb.WriteString(scenario.RenderMarkdown(res))
	if runErr != nil {
		sb.WriteString(fmt.Sprintf("**Scenario failed:** %s\n", runErr))
	}
	return writeFile(filepath.Join(dir, "SUMMARY.md"), func(f *os.File) error {
		_, err := f.WriteString(sb.String())
		return err
	})
}

func writeFile(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
