// bayzzer prioritizes fuzzing effort on the source locations most likely to
// be both reachable and vulnerable, by modeling static-analysis dependencies
// as a Bayesian network and updating it with live fuzzing feedback.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"bayzzer/internal/campaign"
	"bayzzer/internal/config"
	"bayzzer/internal/facts"
	"bayzzer/internal/logging"
	"bayzzer/internal/pipeline"
	"bayzzer/internal/report"
	"bayzzer/internal/telemetry"
)

var (
	verbose    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "bayzzer",
	Short: "Bayesian-network-guided fuzzing prioritizer",
	Long: `bayzzer ranks static-analysis alarms by the probability that they are
both reachable and vulnerable, fuzzes the most promising targets first, and
feeds the outcomes back into the probability model every round.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(verbose)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <facts-file>",
	Short: "Run the static pipeline and print ranked alarms",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		ex, err := facts.LoadFile(args[0])
		if err != nil {
			return err
		}
		res, err := pipeline.Analyze(ex, cfg)
		if err != nil {
			return err
		}

		alarms := res.Model.Alarms()
		probs, err := res.Inference.Marginals(alarms, nil)
		if err != nil {
			return err
		}
		sort.Slice(alarms, func(i, j int) bool {
			if probs[alarms[i]] != probs[alarms[j]] {
				return probs[alarms[i]] > probs[alarms[j]]
			}
			return alarms[i] < alarms[j]
		})

		fmt.Fprintf(cmd.OutOrStdout(), "%d alarms, %d dropped edges\n",
			len(alarms), len(res.Model.Dropped()))
		for _, id := range alarms {
			loc, _ := res.Model.Location(id)
			fmt.Fprintf(cmd.OutOrStdout(), "%.4f  %-30s %s\n", probs[id], id, loc)
		}
		return nil
	},
}

var (
	harness     string
	harnessArgs []string
)

var runCmd = &cobra.Command{
	Use:   "run <facts-file>",
	Short: "Run a full fuzzing campaign",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		ex, err := facts.LoadFile(args[0])
		if err != nil {
			return err
		}
		res, err := pipeline.Analyze(ex, cfg)
		if err != nil {
			return err
		}

		store, err := report.Open(cfg.Report.DatabasePath, logging.Get(logging.CategoryReport))
		if err != nil {
			return err
		}
		defer store.Close()

		totalBudget, err := cfg.TotalBudget()
		if err != nil {
			return err
		}
		targetBudget, err := cfg.TargetBudget()
		if err != nil {
			return err
		}

		orch, err := campaign.New(campaign.Options{
			Model:        res.Model,
			Inference:    res.Inference,
			Executor:     campaign.NewCommandExecutor(harness, harnessArgs, logging.Get(logging.CategoryCampaign)),
			Feedback:     campaign.NewFeedback(cfg.Fuzzing.ReconstructionPeriod, logging.Get(logging.CategoryFeedback)),
			TotalBudget:  totalBudget,
			TargetBudget: targetBudget,
			Alpha:        cfg.Fuzzing.Alpha,
			Workers:      cfg.Fuzzing.Workers,
			Report:       store,
			Metrics:      telemetry.New(nil),
			Log:          logging.Get(logging.CategoryCampaign),
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		summary, err := orch.Run(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "campaign %s: %d rounds, %d bugs in %s\n",
			summary.CampaignID, summary.Rounds, len(summary.Bugs), summary.Elapsed.Round(0))
		for _, b := range summary.Bugs {
			fmt.Fprintf(cmd.OutOrStdout(), "  round %-3d %-30s %s\n", b.Round, b.AlarmID, b.Location)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "bayzzer.yaml", "configuration file")

	runCmd.Flags().StringVar(&harness, "harness", "", "fuzzing harness binary (required)")
	runCmd.Flags().StringArrayVar(&harnessArgs, "harness-arg", nil, "extra argument for the harness (repeatable)")
	_ = runCmd.MarkFlagRequired("harness")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
