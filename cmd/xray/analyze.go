package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teamxray/xray/internal/models"
	"github.com/teamxray/xray/internal/pipeline"
)

var (
	analyzeMonths int
	analyzeOut    string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <repo-url>",
	Short: "Run a one-off analysis and print the result as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func init() {
	analyzeCmd.Flags().IntVarP(&analyzeMonths, "months", "m", 0, "history window in months (default from config)")
	analyzeCmd.Flags().StringVarP(&analyzeOut, "out", "o", "", "write result to file instead of stdout")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	orch := pipeline.New(ctx, cfg, logger)
	result, err := orch.Run(ctx, args[0], analyzeMonths, func(ev models.Event) {
		if ev.Type == models.EventProgress {
			logger.WithFields(map[string]interface{}{
				"stage":    ev.Stage,
				"progress": fmt.Sprintf("%.0f%%", ev.Progress*100),
			}).Info(ev.Message)
		}
	})
	if err != nil {
		return err
	}

	raw, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	if analyzeOut != "" {
		return os.WriteFile(analyzeOut, raw, 0o644)
	}
	fmt.Println(string(raw))
	return nil
}
