package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"kbase/internal/service"
)

var (
	queryNamespace string
	queryTopK      int
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Retrieve context and citations for a question",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryNamespace, "namespace", "", "restrict the query to one namespace (disables auto-scoping)")
	queryCmd.Flags().IntVar(&queryTopK, "top-k", 0, "maximum hits to return (0 uses the configured default)")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	question := strings.Join(args, " ")
	ans, err := engine.Query(context.Background(), question, service.QueryOptions{
		TopK:      queryTopK,
		Namespace: queryNamespace,
	})
	if err != nil {
		return err
	}
	if ans.Empty() {
		fmt.Println("No matches.")
		return nil
	}
	if ans.Namespace != "" {
		fmt.Printf("namespace: %s\n\n", ans.Namespace)
	}
	fmt.Println(ans.Context)
	fmt.Println()
	for _, c := range ans.Citations {
		fmt.Printf("  %-40s %.3f\n", c.Label, c.Score)
	}
	return nil
}
