package ctl

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"manualqa/types"
)

var flagAddr string

var rootCmd = &cobra.Command{
	Use:          "manualqactl",
	Short:        "Query and export from a manualqa service",
	SilenceUsage: true,
}

func init() {
	addr := os.Getenv("MANUALQA_ADDR")
	if addr == "" {
		addr = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().StringVar(&flagAddr, "addr", addr, "base URL of the manualqa service")
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

var (
	searchTopK   int
	searchOffset int
	searchClean  bool
	searchJSON   bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the manual corpus",
	Long: `Runs one semantic search against the service and prints a page of
results. Follow up with --offset to walk further pages.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "n", types.DefaultTopK, "results per page")
	searchCmd.Flags().IntVar(&searchOffset, "offset", 0, "pagination offset")
	searchCmd.Flags().BoolVar(&searchClean, "clean", false, "request cleaned previews")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output the raw JSON response")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	client := NewClient(flagAddr)

	resp, err := client.Search(cmd.Context(), types.SearchParams{
		Text:         args[0],
		TopK:         searchTopK,
		Offset:       searchOffset,
		CleanPreview: searchClean,
	})
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return err
		}
		cmd.Println(string(data))
		return nil
	}

	if len(resp.Results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i, r := range resp.Results {
		cmd.Printf("  [%d] document %d, chunk %d (score %.3f)\n", resp.Offset+i+1, r.DocumentID, r.ChunkIndex, r.Score)
		if r.SectionPath != nil {
			cmd.Printf("      Section: %s\n", *r.SectionPath)
		}
		preview := r.Preview
		if r.PreviewClean != nil {
			preview = r.PreviewClean
		}
		if preview != nil && *preview != "" {
			cmd.Printf("      %s\n", *preview)
		}
		cmd.Println()
	}

	if resp.NextOffset != nil {
		cmd.Printf("More results: rerun with --offset %d\n", *resp.NextOffset)
	}
	return nil
}

var (
	exportTopK     int
	exportClean    bool
	exportMaxPages int
	exportOut      string
)

var exportCmd = &cobra.Command{
	Use:   "export [query]",
	Short: "Export matching chunks as CSV",
	Long: `Pages through every result for the query and writes them as CSV.
Duplicates across pages are dropped, so the output is safe to feed into
spreadsheets or downstream evaluation scripts.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().IntVarP(&exportTopK, "top-k", "n", 50, "page size while walking results")
	exportCmd.Flags().IntVar(&exportMaxPages, "max-pages", 20, "stop after this many pages")
	exportCmd.Flags().BoolVar(&exportClean, "clean", true, "export cleaned previews")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "-", "output file, - for stdout")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	client := NewClient(flagAddr)

	rows, err := client.SearchAll(cmd.Context(), args[0], exportTopK, exportClean, exportMaxPages)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if exportOut != "-" {
		f, err := os.Create(exportOut)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	if err := WriteCSV(out, rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	cmd.PrintErrf("exported %d rows\n", len(rows))
	return nil
}
