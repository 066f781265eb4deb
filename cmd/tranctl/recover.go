package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tablekit/tranlog/table"
	"github.com/tablekit/tranlog/tran"
)

var recoverTableDir string

var recoverCmd = &cobra.Command{
	Use:   "recover <logfile>",
	Short: "Replay the log after a crash",
	Long: `recover opens the log and runs the recovery procedure against it:
transactions whose first commit phase reached the log are completed,
everything else is undone using the logged before-images. Tables named
by the log are located in the directory given by --tables (default: the
log's directory).`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logPath := args[0]
		dir := recoverTableDir
		if dir == "" {
			dir = filepath.Dir(logPath)
		}
		tables, err := openTableDir(dir)
		if err != nil {
			return err
		}
		defer func() {
			for _, t := range tables {
				t.Close()
			}
		}()

		c, err := tran.Init(tran.Config{
			LogPath: logPath,
			Logger:  logger(),
			ResolveTable: func(dataID uint32) (tran.Table, error) {
				t, ok := tables[dataID]
				if !ok {
					return nil, tran.ErrTableUnavailable
				}
				return t, nil
			},
		})
		if err != nil {
			return fmt.Errorf("recover: %w", err)
		}
		if err := c.Shutdown(); err != nil {
			return fmt.Errorf("recover: %w", err)
		}
		printInfo("%s: recovery complete (%d tables available)\n", logPath, len(tables))
		return nil
	},
}

// openTableDir opens every table file in dir, keyed by data id.
func openTableDir(dir string) (map[uint32]*table.Table, error) {
	names, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("recover: %w", err)
	}
	tables := make(map[uint32]*table.Table)
	for _, e := range names {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".rtbl") {
			continue
		}
		t, err := table.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			for _, open := range tables {
				open.Close()
			}
			return nil, fmt.Errorf("recover: open %s: %w", e.Name(), err)
		}
		tables[t.DataID()] = t
	}
	return tables, nil
}

func init() {
	recoverCmd.Flags().StringVar(&recoverTableDir, "tables", "",
		"Directory holding the table files (default: the log's directory)")
	rootCmd.AddCommand(recoverCmd)
}
