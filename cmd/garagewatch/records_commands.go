package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"garagewatch/internal/metadata"
)

const unlabelled = "(none)"

func newRecordsCommand(ctx *commandContext) *cobra.Command {
	recordsCmd := &cobra.Command{
		Use:     "records",
		Aliases: []string{"r"},
		Short:   "Inspect collected metadata records",
	}
	recordsCmd.AddCommand(newRecordsListCommand(ctx))
	recordsCmd.AddCommand(newRecordsShowCommand(ctx))
	recordsCmd.AddCommand(newRecordsLastCommand(ctx))
	recordsCmd.AddCommand(newRecordsStatsCommand(ctx))
	return recordsCmd
}

func newRecordsListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent records",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive (got %d)", limit)
			}
			return ctx.withStore(func(store *metadata.Store) error {
				records, err := store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, recordsJSON(records))
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintln(out, "No records collected yet")
					return nil
				}
				fmt.Fprintln(out, renderRecords(records, isTerminal(out)))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of records to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newRecordsShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <item-id>",
		Short: "Show one record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(strings.TrimSpace(args[0]), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid item id %q", args[0])
			}
			return ctx.withStore(func(store *metadata.Store) error {
				rec, err := store.Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				if rec == nil {
					return fmt.Errorf("record %d not found", id)
				}
				if jsonOutput {
					return writeJSON(cmd, toRecordJSON(*rec))
				}
				printRecord(cmd.OutOrStdout(), *rec)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newRecordsLastCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "last",
		Short: "Print the resume cursor (highest stored item id)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *metadata.Store) error {
				id, ok, err := store.LastItemID(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !ok {
					fmt.Fprintln(out, "No records collected yet; the next history run starts from the beginning")
					return nil
				}
				fmt.Fprintln(out, id)
				return nil
			})
		},
	}
}

func newRecordsStatsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarise records per classification label",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *metadata.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, stats)
				}
				printStats(cmd.OutOrStdout(), stats)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

var labelCaser = cases.Title(language.English)

// displayLabel title-cases a classification label for tables.
func displayLabel(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return unlabelled
	}
	return labelCaser.String(label)
}

func formatConfidence(value *float64) string {
	if value == nil {
		return "-"
	}
	return strconv.FormatFloat(*value, 'f', -1, 64) + "%"
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func renderRecords(records []metadata.Record, fancy bool) string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		occupancy := rec.OccupancyState
		if occupancy == "" {
			occupancy = "-"
		}
		rows = append(rows, []string{
			strconv.FormatInt(rec.ItemID, 10),
			displayLabel(rec.ClassificationLabel),
			formatConfidence(rec.Confidence),
			occupancy,
			formatTimestamp(rec.ObservedAt),
		})
	}
	return renderTable(
		[]string{"Item", "Label", "Confidence", "Occupancy", "Observed (UTC)"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft},
		fancy,
	)
}

func printRecord(out io.Writer, rec metadata.Record) {
	fmt.Fprintf(out, "Item:       %d\n", rec.ItemID)
	fmt.Fprintf(out, "Label:      %s\n", displayLabel(rec.ClassificationLabel))
	fmt.Fprintf(out, "Confidence: %s\n", formatConfidence(rec.Confidence))
	if rec.OccupancyState != "" {
		fmt.Fprintf(out, "Occupancy:  %s\n", rec.OccupancyState)
	}
	fmt.Fprintf(out, "Observed:   %s\n", formatTimestamp(rec.ObservedAt))
	fmt.Fprintf(out, "Stored:     %s\n", formatTimestamp(rec.CreatedAt))
}

func printStats(out io.Writer, stats metadata.Stats) {
	if stats.Rows == 0 {
		fmt.Fprintln(out, "No records collected yet")
		return
	}
	fmt.Fprintf(out, "Records:  %d (items %d..%d)\n", stats.Rows, stats.FirstItem, stats.LastItem)
	fmt.Fprintf(out, "Observed: %s .. %s\n", formatTimestamp(stats.Oldest), formatTimestamp(stats.Newest))

	type labelCount struct {
		label string
		count int64
	}
	counts := make([]labelCount, 0, len(stats.Labels)+1)
	for label, count := range stats.Labels {
		counts = append(counts, labelCount{label: label, count: count})
	}
	if stats.Unlabelled > 0 {
		counts = append(counts, labelCount{count: stats.Unlabelled})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].count != counts[j].count {
			return counts[i].count > counts[j].count
		}
		return counts[i].label < counts[j].label
	})

	rows := make([][]string, 0, len(counts))
	for _, c := range counts {
		share := float64(c.count) * 100 / float64(stats.Rows)
		rows = append(rows, []string{
			displayLabel(c.label),
			strconv.FormatInt(c.count, 10),
			strconv.FormatFloat(share, 'f', 1, 64) + "%",
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Label", "Records", "Share"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight},
		isTerminal(out),
	))
}

type recordJSON struct {
	ItemID              int64    `json:"item_id"`
	ClassificationLabel string   `json:"classification_label,omitempty"`
	Confidence          *float64 `json:"confidence"`
	OccupancyState      string   `json:"occupancy_state,omitempty"`
	ObservedAt          string   `json:"observed_at,omitempty"`
	CreatedAt           string   `json:"created_at"`
}

func toRecordJSON(rec metadata.Record) recordJSON {
	out := recordJSON{
		ItemID:              rec.ItemID,
		ClassificationLabel: rec.ClassificationLabel,
		Confidence:          rec.Confidence,
		OccupancyState:      rec.OccupancyState,
		CreatedAt:           rec.CreatedAt.UTC().Format(time.RFC3339),
	}
	if !rec.ObservedAt.IsZero() {
		out.ObservedAt = rec.ObservedAt.UTC().Format(time.RFC3339)
	}
	return out
}

func recordsJSON(records []metadata.Record) []recordJSON {
	out := make([]recordJSON, 0, len(records))
	for _, rec := range records {
		out = append(out, toRecordJSON(rec))
	}
	return out
}
