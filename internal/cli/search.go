package cli

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"kbase/internal/tui"
)

var searchNamespace string

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Browse the store interactively",
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchNamespace, "namespace", "", "pin the session to one namespace")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	p := tea.NewProgram(tui.New(engine, searchNamespace), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
