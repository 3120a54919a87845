package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// --- count ---

var countCmd = &cobra.Command{
	Use:   "count <function>",
	Short: "Count inferences, feedback coverage, or curated rows",
	Long: `Count inferences, feedback coverage, or curated rows.

Examples:
  curator count draft_reply
  curator count draft_reply --metric exact_match
  curator count draft_reply --metric score --curated --threshold 0.9`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		metric, _ := cmd.Flags().GetString("metric")
		curated, _ := cmd.Flags().GetBool("curated")
		threshold, _ := cmd.Flags().GetString("threshold")

		if curated && metric == "" {
			return fmt.Errorf("--curated requires --metric")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/functions/" + url.PathEscape(args[0]) + "/inferences/count"
		if metric != "" {
			kind := "feedback"
			if curated {
				kind = "curated"
			}
			path = fmt.Sprintf("/functions/%s/metrics/%s/%s/count",
				url.PathEscape(args[0]), url.PathEscape(metric), kind)
			if threshold != "" {
				path += "?threshold=" + url.QueryEscape(threshold)
			}
		}

		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var result struct {
			Count int64 `json:"count"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		fmt.Println(result.Count)
		return nil
	},
}

// --- summary ---

var summaryCmd = &cobra.Command{
	Use:   "summary <function> <metric>",
	Short: "Show the curation funnel for a function/metric pair",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := fmt.Sprintf("/functions/%s/metrics/%s/summary",
			url.PathEscape(args[0]), url.PathEscape(args[1]))
		if v, _ := cmd.Flags().GetString("threshold"); v != "" {
			path += "?threshold=" + url.QueryEscape(v)
		}

		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var s struct {
			TotalInferences int64 `json:"total_inferences"`
			FeedbackCount   int64 `json:"feedback_count"`
			CuratedCount    int64 `json:"curated_count"`
		}
		if err := decodeJSON(resp, &s); err != nil {
			return err
		}

		printStatus("Inferences", "%d", s.TotalInferences)
		printStatus("With feedback", "%d", s.FeedbackCount)
		printStatus("Curated", "%d", s.CuratedCount)
		return nil
	},
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export <function>",
	Short: "Export curated inferences as JSONL",
	Long: `Export curated inferences as JSONL, one parsed inference per line.

Examples:
  curator export draft_reply --metric exact_match
  curator export draft_reply --metric score --threshold 0.9 --output dataset.jsonl
  curator export draft_reply --max-samples 500`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		metric, _ := cmd.Flags().GetString("metric")
		threshold, _ := cmd.Flags().GetString("threshold")
		maxSamples, _ := cmd.Flags().GetInt("max-samples")
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		if metric != "" {
			q.Set("metric", metric)
		}
		if threshold != "" {
			q.Set("threshold", threshold)
		}
		if maxSamples != 0 {
			q.Set("max_samples", strconv.Itoa(maxSamples))
		}
		path := "/functions/" + url.PathEscape(args[0]) + "/curated"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var dataset struct {
			CuratedCount int64             `json:"curated_count"`
			Rows         []json.RawMessage `json:"rows"`
		}
		if err := decodeJSON(resp, &dataset); err != nil {
			return err
		}

		writer := os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			writer = f
		}

		enc := json.NewEncoder(writer)
		for _, row := range dataset.Rows {
			if err := enc.Encode(row); err != nil {
				return fmt.Errorf("writing row: %w", err)
			}
		}

		if output != "" {
			printSuccess("Exported %d of %d curated inferences to %s",
				len(dataset.Rows), dataset.CuratedCount, output)
		}
		return nil
	},
}

// --- inferences ---

var inferencesCmd = &cobra.Command{
	Use:   "inferences",
	Short: "List inferences, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		before, _ := cmd.Flags().GetString("before")
		after, _ := cmd.Flags().GetString("after")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		q.Set("limit", strconv.Itoa(limit))
		if before != "" {
			q.Set("before", before)
		}
		if after != "" {
			q.Set("after", after)
		}

		resp, err := client.get(cmd.Context(), "/inferences?"+q.Encode())
		if err != nil {
			return err
		}

		var page struct {
			Rows []struct {
				ID           string `json:"id"`
				FunctionName string `json:"function_name"`
				VariantName  string `json:"variant_name"`
				Timestamp    string `json:"timestamp"`
			} `json:"rows"`
		}
		if err := decodeJSON(resp, &page); err != nil {
			return err
		}

		if len(page.Rows) == 0 {
			fmt.Println("No inferences found.")
			return nil
		}

		for _, row := range page.Rows {
			fmt.Printf("%s  %s  %s/%s\n",
				colorize(colorCyan, row.ID),
				row.Timestamp,
				row.FunctionName,
				row.VariantName,
			)
		}
		return nil
	},
}

// --- episodes ---

var episodesCmd = &cobra.Command{
	Use:   "episodes",
	Short: "List episodes, freshest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		before, _ := cmd.Flags().GetString("before")
		after, _ := cmd.Flags().GetString("after")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		q := url.Values{}
		q.Set("limit", strconv.Itoa(limit))
		if before != "" {
			q.Set("before", before)
		}
		if after != "" {
			q.Set("after", after)
		}

		resp, err := client.get(cmd.Context(), "/episodes?"+q.Encode())
		if err != nil {
			return err
		}

		var page struct {
			Episodes []struct {
				EpisodeID string `json:"episode_id"`
				Count     int64  `json:"count"`
				StartTime string `json:"start_time"`
				EndTime   string `json:"end_time"`
			} `json:"episodes"`
		}
		if err := decodeJSON(resp, &page); err != nil {
			return err
		}

		if len(page.Episodes) == 0 {
			fmt.Println("No episodes found.")
			return nil
		}

		for _, ep := range page.Episodes {
			fmt.Printf("%s  %3d inferences  %s .. %s\n",
				colorize(colorCyan, ep.EpisodeID),
				ep.Count,
				ep.StartTime,
				ep.EndTime,
			)
		}
		return nil
	},
}

func init() {
	countCmd.Flags().String("metric", "", "count feedback coverage for this metric")
	countCmd.Flags().Bool("curated", false, "count rows passing the metric's curation predicate")
	countCmd.Flags().String("threshold", "", "override threshold for float metrics")

	summaryCmd.Flags().String("threshold", "", "override threshold for float metrics")

	exportCmd.Flags().String("metric", "", "metric whose curation predicate selects rows (omit for all)")
	exportCmd.Flags().String("threshold", "", "override threshold for float metrics")
	exportCmd.Flags().Int("max-samples", 0, "maximum rows to export (0 = unlimited)")
	exportCmd.Flags().String("output", "", "output file (defaults to stdout)")

	inferencesCmd.Flags().Int("limit", 20, "page size")
	inferencesCmd.Flags().String("before", "", "return the page older than this inference id")
	inferencesCmd.Flags().String("after", "", "return the page newer than this inference id")

	episodesCmd.Flags().Int("limit", 20, "page size")
	episodesCmd.Flags().String("before", "", "return the page older than this inference id")
	episodesCmd.Flags().String("after", "", "return the page newer than this inference id")

	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(inferencesCmd)
	rootCmd.AddCommand(episodesCmd)
}
