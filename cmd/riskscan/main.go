// Command riskscan scores transaction CSVs for anomalies, either as a
// one-shot CLI run or as an HTTP service.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/finsight-labs/riskscan/pkg/io/csv"
	"github.com/finsight-labs/riskscan/pkg/llm"
	"github.com/finsight-labs/riskscan/pkg/pipeline"
	"github.com/finsight-labs/riskscan/pkg/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "riskscan",
		Short:        "Unsupervised anomaly scanner for transaction CSVs",
		SilenceUsage: true,
	}
	root.AddCommand(newAnalyzeCmd(), newServeCmd())
	return root
}

func newAnalyzeCmd() *cobra.Command {
	var maxRows int

	cmd := &cobra.Command{
		Use:   "analyze <file.csv>",
		Short: "Score a CSV of transactions and print the result pack as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reader, err := csv.NewReader(args[0])
			if err != nil {
				return fmt.Errorf("could not open %s: %w", args[0], err)
			}
			defer reader.Close()

			tbl, err := reader.Read()
			if err != nil {
				return fmt.Errorf("could not read %s: %w", args[0], err)
			}

			pack, err := pipeline.Analyze(tbl, maxRows)
			if err != nil {
				return fmt.Errorf("analysis failed: %w", err)
			}

			out, err := json.MarshalIndent(pack, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().IntVar(&maxRows, "max-rows", pipeline.DefaultMaxRows, "maximum anomaly records to report")
	return cmd
}

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			apiKey := os.Getenv("MISTRAL_API_KEY")
			model := os.Getenv("MISTRAL_MODEL")
			if model == "" {
				model = "mistral-large-latest"
			}

			client := llm.NewMistral(llm.Config{
				APIKey: apiKey,
				Model:  model,
			})

			srv := server.New(pipeline.New(), client, server.Config{
				Model:     model,
				HasAPIKey: apiKey != "",
			})

			log.Printf("riskscan listening on %s (model=%s)", addr, model)
			return http.ListenAndServe(addr, srv.Router())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", defaultAddr(), "listen address")
	return cmd
}

func defaultAddr() string {
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":8000"
}
