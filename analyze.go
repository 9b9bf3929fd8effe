package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/giygas/prescription-analyzer/config"
	"github.com/giygas/prescription-analyzer/entities"
	"github.com/spf13/cobra"
)

var withAlternatives bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze <image>",
	Short: "Analyze one prescription image and print the result as JSON",
	Long: `Run the prescription pipeline on a local image file.

Examples:
  prescription-analyzer analyze scan.jpg
  prescription-analyzer analyze scan.jpg --alternatives`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		// Logs go to stderr only, stdout is reserved for the result
		cfg.LogDir = ""
		closeLogs := initLogging(cfg, os.Stderr)
		defer closeLogs()

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		a := newApp(cfg)
		defer a.Close()

		resp, err := a.analyzer.Analyze(cmd.Context(), f)
		if err != nil {
			return fmt.Errorf("failed to analyze %s: %w", args[0], err)
		}

		var out any = resp
		if withAlternatives {
			alternatives := a.resolver.Resolve(cmd.Context(), resp.Medicines)
			out = struct {
				*entities.PrescriptionResponse
				Alternatives []entities.MedicineWithAlternatives `json:"alternatives"`
			}{resp, alternatives}
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&withAlternatives, "alternatives", false, "also resolve generic alternatives for the extracted medicines")
}
