package main

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tablekit/tranlog/internal/format"
	"github.com/tablekit/tranlog/logfile"
)

var infoCmd = &cobra.Command{
	Use:   "info <logfile>",
	Short: "Show log file header and summary statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := logfile.Open(args[0])
		if err != nil {
			return err
		}
		defer l.Close()

		counts := map[string]int{}
		open := map[int32]bool{}
		var cur logfile.Cursor
		werr := l.Top(&cur)
		for werr == nil {
			h := cur.Header()
			counts[h.Type.String()]++
			switch h.Type {
			case format.EntryStart:
				open[h.TranID] = true
			case format.EntryCommitPhaseTwo, format.EntryRollback:
				delete(open, h.TranID)
			}
			werr = l.Skip(&cur, 1)
		}
		if werr != logfile.ErrEndOfLog {
			return werr
		}

		if jsonOut {
			return json.NewEncoder(os.Stdout).Encode(map[string]any{
				"path":           args[0],
				"version":        l.Version(),
				"sizeBytes":      l.Size(),
				"entries":        l.Entries(),
				"maxTransaction": l.MaxTranID(),
				"openTrans":      len(open),
				"entryCounts":    counts,
			})
		}

		printInfo("Log file:         %s\n", args[0])
		printInfo("Format version:   %d\n", l.Version())
		printInfo("Size:             %d bytes\n", l.Size())
		printInfo("Entries:          %d\n", l.Entries())
		printInfo("Max transaction:  %d\n", l.MaxTranID())
		printInfo("Open transactions: %d\n", len(open))
		names := make([]string, 0, len(counts))
		for name := range counts {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			printInfo("  %-16s %d\n", name, counts[name])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
