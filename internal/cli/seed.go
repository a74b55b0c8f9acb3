package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"kbase/internal/ingest"
	"kbase/internal/service"
)

var seedCmd = &cobra.Command{
	Use:   "seed <file ...>",
	Short: "Seed the boosted policy namespace from fixed documents",
	Long: `Seed indexes the given documents into the boosted namespace. A content
hash is kept in a manifest beside the store; when the hash is unchanged
and the namespace is still populated, seeding is skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	engine, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	docs := make([]service.SeedDoc, 0, len(args))
	for _, path := range args {
		payload, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("cannot read %s: %w", path, err)
		}
		docs = append(docs, service.SeedDoc{Name: filepath.Base(path), Text: ingest.DecodeText(payload)})
	}

	manifest := filepath.Join(cfg.Store.Path, "policies.manifest.json")
	seeded, err := engine.SeedPolicies(context.Background(), docs, manifest)
	if err != nil {
		return err
	}
	if seeded {
		fmt.Printf("Seeded %d document(s) into the %q namespace.\n", len(docs), cfg.Retriever.BoostNamespace)
	} else {
		fmt.Println("Seed content unchanged; nothing to do.")
	}
	return nil
}
