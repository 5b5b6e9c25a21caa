package main

import (
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"garagewatch/internal/collector"
	"garagewatch/internal/config"
)

func newCollectCommand(ctx *commandContext) *cobra.Command {
	collectCmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect images into object storage",
	}
	collectCmd.AddCommand(newCollectHistoryCommand(ctx))
	collectCmd.AddCommand(newCollectLiveCommand(ctx))
	return collectCmd
}

func newCollectHistoryCommand(ctx *commandContext) *cobra.Command {
	var workers int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Backfill gate alerts from the Discord channel history",
		Long: "Walks the configured Discord channel from the last stored message onward,\n" +
			"storing each alert's metadata and uploading its thumbnail.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd, ctx, collector.ModeHistory, jsonOutput, func(cfg *config.Config) {
				applyWorkers(cfg, workers)
			})
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Override the number of download workers")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run report as JSON")
	return cmd
}

func newCollectLiveCommand(ctx *commandContext) *cobra.Command {
	var workers int
	var runtime time.Duration
	var interval time.Duration
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "live",
		Short: "Capture camera snapshots for a bounded runtime",
		RunE: func(cmd *cobra.Command, args []string) error {
			if runtime < 0 || interval < 0 {
				return errors.New("--runtime and --interval must not be negative")
			}
			return runCollect(cmd, ctx, collector.ModeLive, jsonOutput, func(cfg *config.Config) {
				applyWorkers(cfg, workers)
				if runtime > 0 {
					cfg.Camera.RuntimeMinutes = int((runtime + time.Minute - 1) / time.Minute)
				}
				if interval > 0 {
					cfg.Camera.FrameIntervalMS = int(interval / time.Millisecond)
				}
			})
		},
	}
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Override the number of download workers")
	cmd.Flags().DurationVar(&runtime, "runtime", 0, "Stop capturing after this long (rounded up to whole minutes)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Delay between snapshots")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the run report as JSON")
	return cmd
}

func applyWorkers(cfg *config.Config, workers int) {
	if workers <= 0 {
		return
	}
	cfg.Pipeline.Workers = workers
	if cfg.Pipeline.QueueCapacity < workers {
		cfg.Pipeline.QueueCapacity = workers
	}
}

func runCollect(cmd *cobra.Command, ctx *commandContext, mode collector.Mode, jsonOutput bool, override func(*config.Config)) error {
	base, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	cfg := *base
	override(&cfg)

	logger, err := ctx.logger()
	if err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	report, err := collector.New(&cfg, logger).Run(signalCtx, mode)
	if err != nil {
		if errors.Is(err, collector.ErrAlreadyRunning) {
			return fmt.Errorf("%w; wait for the other run to finish", err)
		}
		return err
	}
	if jsonOutput {
		return writeJSON(cmd, reportJSON(report))
	}
	printReport(cmd.OutOrStdout(), report)
	return nil
}

type runReportJSON struct {
	RunID        string `json:"run_id"`
	Mode         string `json:"mode"`
	Storage      string `json:"storage"`
	StartAfter   int64  `json:"start_after"`
	LastItemID   int64  `json:"last_item_id"`
	Seen         int    `json:"seen"`
	Skipped      int    `json:"skipped"`
	Inserted     int    `json:"inserted"`
	Duplicates   int    `json:"duplicates"`
	Uploaded     int64  `json:"uploaded"`
	FetchFailed  int64  `json:"fetch_failed"`
	UploadFailed int64  `json:"upload_failed"`
	DeadWorkers  int64  `json:"dead_workers"`
	StuckWorkers []int  `json:"stuck_workers,omitempty"`
	Interrupted  bool   `json:"interrupted"`
	Synced       *int   `json:"labelstudio_synced,omitempty"`
	DurationMS   int64  `json:"duration_ms"`
}

func reportJSON(r collector.Report) runReportJSON {
	out := runReportJSON{
		RunID:        r.RunID,
		Mode:         string(r.Mode),
		Storage:      r.Location,
		StartAfter:   r.Producer.StartAfter,
		LastItemID:   r.Producer.LastItemID,
		Seen:         r.Producer.Seen,
		Skipped:      r.Producer.Skipped,
		Inserted:     r.Producer.Inserted,
		Duplicates:   r.Producer.Duplicates,
		Uploaded:     r.Pipeline.Uploaded,
		FetchFailed:  r.Pipeline.FetchFailed,
		UploadFailed: r.Pipeline.UploadFailed,
		DeadWorkers:  r.Pipeline.DeadWorkers,
		StuckWorkers: r.Stuck,
		Interrupted:  r.Interrupted,
		DurationMS:   r.Duration.Milliseconds(),
	}
	if r.Sync != nil {
		synced := r.Sync.Synced
		out.Synced = &synced
	}
	return out
}

func printReport(out io.Writer, r collector.Report) {
	fmt.Fprintf(out, "Run %s (%s) finished in %s\n", r.RunID, r.Mode, r.Duration.Round(time.Millisecond))
	if r.Interrupted {
		fmt.Fprintln(out, "Interrupted: rerun to continue from the last stored item")
	}
	fmt.Fprintf(out, "Storage:     %s\n", r.Location)
	fmt.Fprintf(out, "Messages:    %d seen, %d without image\n", r.Producer.Seen, r.Producer.Skipped)
	fmt.Fprintf(out, "Records:     %d new, %d duplicates\n", r.Producer.Inserted, r.Producer.Duplicates)
	fmt.Fprintf(out, "Images:      %d stored, %d fetch failures, %d upload failures\n",
		r.Pipeline.Uploaded, r.Pipeline.FetchFailed, r.Pipeline.UploadFailed)
	if r.Pipeline.DeadWorkers > 0 || len(r.Stuck) > 0 {
		fmt.Fprintf(out, "Workers:     %d crashed, stuck %v\n", r.Pipeline.DeadWorkers, r.Stuck)
	}
	if r.Sync != nil {
		fmt.Fprintf(out, "Label Studio: %d/%d storages synced\n", r.Sync.Synced, r.Sync.Storages)
	}
}
