package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"kbase/internal/history"
)

var pruneKeep int

var pruneCmd = &cobra.Command{
	Use:   "prune [dir ...]",
	Short: "Delete old run artifacts, keeping the newest N per directory",
	Long: `Prune removes entries under each given directory beyond the newest N,
files and subdirectories alike. With no arguments the configured
history.prune_roots are used.`,
	RunE: runPrune,
}

func init() {
	pruneCmd.Flags().IntVar(&pruneKeep, "keep", 0, "entries to keep per directory (0 uses history.keep_last)")
	rootCmd.AddCommand(pruneCmd)
}

func runPrune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	roots := args
	if len(roots) == 0 {
		roots = cfg.History.PruneRoots
	}
	if len(roots) == 0 {
		return fmt.Errorf("nothing to prune: pass directories or set history.prune_roots in the config")
	}
	keep := pruneKeep
	if keep <= 0 {
		keep = cfg.History.KeepLast
	}
	stats, err := history.PruneAll(roots, keep)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d entr(ies) across %d director(ies), keeping the newest %d.\n", stats.Removed, stats.DirsTouched, keep)
	return nil
}
