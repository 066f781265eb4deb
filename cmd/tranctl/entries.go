package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/tablekit/tranlog/logfile"
)

var (
	entriesBackward bool
	entriesTran     int32
	entriesLimit    int
)

var entriesCmd = &cobra.Command{
	Use:   "entries <logfile>",
	Short: "Walk log entries forward or backward",
	Long: `entries iterates the log entry by entry, forward from the first
entry or backward from the last, optionally filtered to one transaction.
Backward iteration exercises the same trailing-length navigation the
rollback path uses.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		l, err := logfile.Open(args[0])
		if err != nil {
			return err
		}
		defer l.Close()

		enc := json.NewEncoder(os.Stdout)
		var cur logfile.Cursor
		step := 1
		if entriesBackward {
			step = -1
			err = l.Bottom(&cur)
		} else {
			err = l.Top(&cur)
		}
		printed := 0
		for err == nil {
			h := cur.Header()
			if entriesTran == 0 || h.TranID == entriesTran {
				if jsonOut {
					if err := enc.Encode(map[string]any{
						"offset":       cur.Offset(),
						"type":         h.Type.String(),
						"transaction":  h.TranID,
						"client":       h.ClientID,
						"serverDataId": h.ServerDataID,
						"dataLen":      h.DataLen,
					}); err != nil {
						return err
					}
				} else {
					printInfo("%8d  %-16s tran=%-6d client=%-4d table=%-10d len=%d\n",
						cur.Offset(), h.Type, h.TranID, h.ClientID, h.ServerDataID, h.DataLen)
				}
				printed++
				if entriesLimit > 0 && printed >= entriesLimit {
					return nil
				}
			}
			err = l.Skip(&cur, step)
		}
		if err != logfile.ErrEndOfLog {
			return err
		}
		return nil
	},
}

func init() {
	entriesCmd.Flags().BoolVarP(&entriesBackward, "backward", "b", false,
		"Iterate from the last entry toward the first")
	entriesCmd.Flags().Int32VarP(&entriesTran, "tran", "t", 0,
		"Only show entries of this transaction id")
	entriesCmd.Flags().IntVarP(&entriesLimit, "limit", "n", 0,
		"Stop after this many entries (0 = all)")
	rootCmd.AddCommand(entriesCmd)
}
