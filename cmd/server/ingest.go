package main

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/talhaa23/portfolio-agent/internal/ingest"
)

func newIngestCommand() *cobra.Command {
	var (
		category      string
		tags          string
		importance    int
		referenceDate string
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Chunk, embed and store a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			text, err := ingest.ExtractText(path, "", data)
			if err != nil {
				return err
			}

			d, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			n, err := ingest.NewService(d.llm, d.store).Ingest(cmd.Context(), text, ingest.Metadata{
				Source:        filepath.Base(path),
				Category:      category,
				Tags:          ingest.ParseTags(tags),
				Importance:    importance,
				ReferenceDate: referenceDate,
			})
			if err != nil {
				return fmt.Errorf("data ingestion failed: %w", err)
			}
			log.Infof("Data ingestion complete. Ingested %d chunks.", n)
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", ingest.DefaultCategory, "document category")
	cmd.Flags().StringVar(&tags, "tags", "", "comma separated tags")
	cmd.Flags().IntVar(&importance, "importance", ingest.DefaultImportance, "importance weight 1-10")
	cmd.Flags().StringVar(&referenceDate, "reference-date", "", "date the document refers to (defaults to now)")
	return cmd
}
