package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tablekit/tranlog/logfile"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <logfile>",
	Short: "Check log structure end to end",
	Long: `verify opens the log, which scans every entry and cross-checks each
trailing length field against its header, then walks the whole file
backward to prove reverse navigation lands on the same entries. A log
with a torn tail is repaired on open; interior corruption is reported
as an error.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := logfile.Open(args[0])
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		defer l.Close()

		forward, err := countEntries(l, false)
		if err != nil {
			return fmt.Errorf("verify: forward walk: %w", err)
		}
		backward, err := countEntries(l, true)
		if err != nil {
			return fmt.Errorf("verify: backward walk: %w", err)
		}
		if forward != backward || forward != l.Entries() {
			return fmt.Errorf("verify: walk mismatch: scan=%d forward=%d backward=%d",
				l.Entries(), forward, backward)
		}

		if jsonOut {
			return json.NewEncoder(os.Stdout).Encode(map[string]any{
				"path":    l.Path(),
				"version": l.Version(),
				"size":    l.Size(),
				"entries": forward,
				"ok":      true,
			})
		}
		printInfo("%s: ok (%d entries, %d bytes)\n", l.Path(), forward, l.Size())
		return nil
	},
}

func countEntries(l *logfile.LogFile, backward bool) (int, error) {
	var cur logfile.Cursor
	var err error
	step := 1
	if backward {
		step = -1
		err = l.Bottom(&cur)
	} else {
		err = l.Top(&cur)
	}
	n := 0
	for err == nil {
		n++
		err = l.Skip(&cur, step)
	}
	if err != logfile.ErrEndOfLog {
		return n, err
	}
	return n, nil
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
