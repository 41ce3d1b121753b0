package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/fatih/color"
	configs "github.com/loculus-project/ena-deposition/pkg/configs/deposition"
	"github.com/loculus-project/ena-deposition/pkg/db"
	"github.com/loculus-project/ena-deposition/pkg/domain"
	"github.com/spf13/cobra"
)

func StatusCmd(g *GlobalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show row counts per table and status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			conf, err := configs.LoadConfig(g.Config)
			if err != nil {
				return fmt.Errorf("can not read configuration: %w", err)
			}
			store, err := OpenStore(ctx, conf.Database())
			if err != nil {
				return err
			}
			defer store.Close()

			census, err := TakeCensus(ctx, store, nil)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(census)
			}
			PrintCensus(cmd.OutOrStdout(), census)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

// rank orders statuses of every table in their progress.
func rank(status string) int {
	if r := domain.SubmissionStatus(status).Rank(); 0 <= r {
		return r
	}
	return domain.Status(status).Rank()
}

func paint(status string) string {
	switch {
	case strings.HasPrefix(status, "HAS_ERRORS"):
		return color.New(color.FgRed).Sprint(status)
	case status == string(domain.Submitted), status == string(domain.SentToLoculus):
		return color.New(color.FgGreen).Sprint(status)
	case strings.HasPrefix(status, "SUBMITTING"), status == string(domain.Waiting):
		return color.New(color.FgYellow).Sprint(status)
	}
	return status
}

// PrintCensus prints counts table by table, statuses in the order of progress.
func PrintCensus(w io.Writer, c Census) {
	bold := color.New(color.Bold)
	for _, table := range []string{
		db.IntakeTableName, db.ProjectTableName, db.SampleTableName, db.AssemblyTableName,
	} {
		counts := c[table]
		total := int64(0)
		for _, n := range counts {
			total += n
		}
		fmt.Fprintf(w, "%s (%d)\n", bold.Sprint(table), total)
		if len(counts) == 0 {
			fmt.Fprintln(w, "  (empty)")
			continue
		}

		statuses := make([]string, 0, len(counts))
		for s := range counts {
			statuses = append(statuses, s)
		}
		slices.SortFunc(statuses, func(a, b string) int {
			if d := rank(a) - rank(b); d != 0 {
				return d
			}
			return strings.Compare(a, b)
		})
		for _, s := range statuses {
			// padding is applied before coloring; escape sequences have no width.
			pad := strings.Repeat(" ", max(0, 32-len(s)))
			fmt.Fprintf(w, "  %s%s %6d\n", paint(s), pad, counts[s])
		}
	}
}
