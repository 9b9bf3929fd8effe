package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "prescription-analyzer",
	Short: "Read prescriptions and suggest generic alternatives",
	Long: `Prescription Analyzer reads a photographed prescription, extracts the
medications it names and looks up cheaper generic equivalents.

The pipeline includes:
  - Image enhancement into several variants
  - OCR with Llama vision, GPT-4 vision and Tesseract fallbacks
  - LLM medication extraction with heuristic fallbacks
  - Generic alternatives from RxNorm, backed by a persistent cache
  - Medicine information and pharmacy price comparison

Running without a subcommand starts the HTTP server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is normal in containers
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", envFile, err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
