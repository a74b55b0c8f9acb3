package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show record count and recorded ingestion runs",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	st, err := engine.Status()
	if err != nil {
		return err
	}
	fmt.Printf("store: %s (%s), %d record(s)\n", cfg.Store.Type, cfg.Store.Path, st.Records)
	if len(st.Sources) == 0 {
		fmt.Println("no recorded ingestion runs")
		return nil
	}
	fmt.Println("\ningestion runs:")
	for _, src := range st.Sources {
		runs := st.Runs[src]
		last := runs[len(runs)-1]
		fmt.Printf("  %-40s %d run(s), last %s (%d row(s))\n",
			src, len(runs), last.At.Format("2006-01-02 15:04"), last.Rows)
	}
	return nil
}
