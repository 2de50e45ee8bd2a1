package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"activelearn/internal/experiment"
	"activelearn/internal/model"
	alapi "activelearn/pkg/activelearn"
)

const (
	defaultArtifactsDir = "artifacts"
	defaultExportsDir   = "exports"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	artifactsDir string
	storeKind    string
	storePath    string
	verbose      bool
}

func run(ctx context.Context, args []string, out io.Writer) error {
	root := newRootCmd(out)
	root.SetArgs(args)
	root.SetOut(out)
	return root.ExecuteContext(ctx)
}

func newRootCmd(out io.Writer) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "alctl",
		Short:         "run and inspect pool-based active learning experiments",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.artifactsDir, "artifacts-dir", "", "directory holding run artifacts and the run index (default: from config, else artifacts)")
	root.PersistentFlags().StringVar(&g.storeKind, "store", "", "checkpoint store backend: memory|file|sqlite (default: from config)")
	root.PersistentFlags().StringVar(&g.storePath, "store-path", "", "file store directory or sqlite database path")
	root.PersistentFlags().BoolVar(&g.verbose, "verbose", false, "human readable debug logging")

	root.AddCommand(runCmd(g, out))
	root.AddCommand(runsCmd(g, out))
	root.AddCommand(showCmd(g, out))
	root.AddCommand(plotCmd(g, out))
	root.AddCommand(exportCmd(g, out))
	return root
}

func (g *globalFlags) logger() (*zap.Logger, error) {
	if g.verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func (g *globalFlags) client(storeKind, storePath, artifactsDir string) (*alapi.Client, error) {
	if g.artifactsDir != "" {
		artifactsDir = g.artifactsDir
	}
	if g.storeKind != "" {
		storeKind = g.storeKind
	}
	if g.storePath != "" {
		storePath = g.storePath
	}
	logger, err := g.logger()
	if err != nil {
		return nil, err
	}
	return alapi.New(alapi.Options{
		StoreKind:    storeKind,
		StorePath:    storePath,
		ArtifactsDir: artifactsDir,
		ExportsDir:   defaultExportsDir,
		Logger:       logger,
	})
}

func runCmd(g *globalFlags, out io.Writer) *cobra.Command {
	var (
		configPath string
		progress   bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run every experiment a config file expands to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgs, err := experiment.Load(configPath)
			if err != nil {
				return err
			}
			for i, cfg := range cfgs {
				if progress {
					cfg.Progress = true
				}
				if err := runOne(cmd.Context(), g, cfg, out); err != nil {
					return errors.Wrapf(err, "experiment %d/%d", i+1, len(cfgs))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "configs/config.yaml", "YAML experiment config")
	cmd.Flags().BoolVar(&progress, "progress", false, "show a progress bar per run")
	return cmd
}

func runOne(ctx context.Context, g *globalFlags, cfg experiment.Config, out io.Writer) error {
	client, err := g.client(cfg.Store.Kind, cfg.Store.Path, cfg.ArtifactsDir)
	if err != nil {
		return err
	}
	defer client.Close()

	summary, err := client.Run(ctx, alapi.RunRequest{
		Config: cfg,
		OnRound: func(r model.RoundResult) {
			fmt.Fprintf(out, "run_no=%d labeled=%d test_acc_last_epoch=%.3f test_acc_best_acc=%.3f test_acc_best_loss=%.3f acquired=%d\n",
				r.Round, r.LabeledCount, r.TestAccLastEpoch, r.TestAccBestAcc, r.TestAccBestLoss, len(r.Acquired))
		},
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "run_id=%s strategy=%s artifacts=%s\n", summary.RunID, cfg.Sampler.Name, summary.ArtifactsDir)
	return nil
}

func runsCmd(g *globalFlags, out io.Writer) *cobra.Command {
	var (
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "list finished runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return errors.New("limit must be > 0")
			}
			client, err := g.client("memory", "", defaultArtifactsDir)
			if err != nil {
				return err
			}
			defer client.Close()

			items, err := client.Runs(cmd.Context(), alapi.RunsRequest{Limit: limit})
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(out, items)
			}
			if len(items) == 0 {
				fmt.Fprintln(out, "no runs found")
				return nil
			}
			for _, it := range items {
				fmt.Fprintf(out, "run_id=%s created_at=%s experiment=%s dataset=%s strategy=%s seed=%d runs=%d final_labeled=%d final_test_acc=%.3f\n",
					it.RunID, it.CreatedAtUTC, it.ExperimentName, it.Dataset, it.Strategy, it.Seed, it.NRuns, it.FinalLabeled, it.FinalTestAcc)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max runs to list")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit the list as JSON")
	return cmd
}

// selector resolves "RUN_ID" or --latest.
type selector struct {
	latest bool
}

func (s *selector) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&s.latest, "latest", false, "use the most recent run")
}

func (s *selector) runID(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func showCmd(g *globalFlags, out io.Writer) *cobra.Command {
	var (
		sel     selector
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "show [RUN_ID]",
		Short: "show the rounds and per-round validation summary of a run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := g.client("", "", defaultArtifactsDir)
			if err != nil {
				return err
			}
			defer client.Close()

			shown, err := client.Show(cmd.Context(), alapi.ShowRequest{RunID: sel.runID(args), Latest: sel.latest})
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(out, shown)
			}
			fmt.Fprintf(out, "run_id=%s experiment=%s strategy=%s dataset=%s seed=%d\n",
				shown.Config.RunID, shown.Config.ExperimentName, shown.Config.Strategy, shown.Config.Dataset, shown.Config.Seed)
			for i, r := range shown.Rounds {
				line := fmt.Sprintf("run_no=%d labeled=%d unlabeled=%d best_valid_acc=%.3f test_acc_last_epoch=%.3f test_acc_best_acc=%.3f test_acc_best_loss=%.3f",
					r.Round, r.LabeledCount, r.UnlabeledCount, r.BestValidAccuracy, r.TestAccLastEpoch, r.TestAccBestAcc, r.TestAccBestLoss)
				if i < len(shown.Summaries) {
					s := shown.Summaries[i]
					line += fmt.Sprintf(" mean_valid_acc=%.3f stddev_valid_acc=%.3f skipped_steps=%d", s.MeanAcc, s.StdDevAcc, s.TotalSkips)
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}
	sel.bind(cmd)
	cmd.Flags().BoolVar(&jsonOut, "json", false, "emit the summary as JSON")
	return cmd
}

func plotCmd(g *globalFlags, out io.Writer) *cobra.Command {
	var sel selector
	cmd := &cobra.Command{
		Use:   "plot [RUN_ID]",
		Short: "render the learning curve of a run to learning_curve.png",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := g.client("memory", "", defaultArtifactsDir)
			if err != nil {
				return err
			}
			defer client.Close()

			plot, err := client.Plot(cmd.Context(), alapi.PlotRequest{RunID: sel.runID(args), Latest: sel.latest})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "run_id=%s plot=%s\n", plot.RunID, plot.Path)
			return nil
		},
	}
	sel.bind(cmd)
	return cmd
}

func exportCmd(g *globalFlags, out io.Writer) *cobra.Command {
	var (
		sel    selector
		outDir string
	)
	cmd := &cobra.Command{
		Use:   "export [RUN_ID]",
		Short: "copy the artifacts of a run into an export directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := g.client("memory", "", defaultArtifactsDir)
			if err != nil {
				return err
			}
			defer client.Close()

			exported, err := client.Export(cmd.Context(), alapi.ExportRequest{RunID: sel.runID(args), Latest: sel.latest, OutDir: outDir})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "exported run_id=%s dir=%s\n", exported.RunID, exported.Directory)
			return nil
		},
	}
	sel.bind(cmd)
	cmd.Flags().StringVar(&outDir, "out", defaultExportsDir, "export directory")
	return cmd
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
