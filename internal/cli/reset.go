package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Wipe the vector store",
	RunE:  runReset,
}

func init() {
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !resetYes {
		fmt.Printf("This deletes every record in the %s store at %s. Continue? [y/N] ", cfg.Store.Type, cfg.Store.Path)
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if !strings.EqualFold(strings.TrimSpace(line), "y") {
			fmt.Println("Aborted.")
			return nil
		}
	}
	engine, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.ResetStore(); err != nil {
		return err
	}
	fmt.Println("Store reset.")
	return nil
}
