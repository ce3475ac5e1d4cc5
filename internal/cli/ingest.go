package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	ingestBatchSize int
	ingestRecreate  bool
	ingestJSON      bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Load chunk records into the vector store",
	Long: `Load pre-chunked diagnostic records (.json or .jsonl) into the vector store.
Records without a dense_vector are embedded with the configured provider.
A directory is searched with the configured include and exclude patterns.

Examples:
  rag ingest ./records                  # Load every record file under ./records
  rag ingest chunks.jsonl --recreate    # Drop the collection and reload it`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().IntVar(&ingestBatchSize, "batch-size", 0, "records per insert (default from config)")
	ingestCmd.Flags().BoolVar(&ingestRecreate, "recreate", false, "drop the collection before loading")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "print the result as JSON")
}

func runIngest(cmd *cobra.Command, args []string) error {
	path := GetRootDir()
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}

	cfg := GetConfig()
	if ingestBatchSize > 0 {
		cfg.Ingest.BatchSize = ingestBatchSize
	}

	c, err := newContainer(cmd)
	if err != nil {
		return err
	}
	defer c.Close(cmd.Context())

	out := cmd.OutOrStdout()
	status := cmd.ErrOrStderr()
	if ingestRecreate {
		fmt.Fprintf(status, "Recreating collection %s...\n", cfg.Store.Collection)
		if err := c.Ask.ResetCollection(cmd.Context()); err != nil {
			return fmt.Errorf("failed to recreate collection: %w", err)
		}
	}

	fmt.Fprintf(status, "Loading records from %s...\n", path)

	var bar *progressbar.ProgressBar
	var barMu sync.Mutex
	var startTime time.Time

	progress := func(done, total int) {
		barMu.Lock()
		defer barMu.Unlock()

		if bar == nil {
			if total == 0 {
				return
			}
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]Ingesting[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(cmd.ErrOrStderr())
				}),
			)
		}

		bar.Set(done)

		if done > 0 {
			elapsed := time.Since(startTime)
			rate := float64(done) / elapsed.Seconds()
			if rate > 0 {
				eta := time.Duration(float64(total-done)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]Ingesting[reset] ETA: %s", formatDuration(eta)))
			}
		}
	}

	result, err := c.Ingest.Ingest(cmd.Context(), path, progress)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}

	if ingestJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintf(out, "\nIngest complete:\n")
	fmt.Fprintf(out, "  Files read:      %d\n", result.FilesRead)
	if result.FilesFailed > 0 {
		fmt.Fprintf(out, "  Files failed:    %d\n", result.FilesFailed)
	}
	fmt.Fprintf(out, "  Records:         %d\n", result.Records)
	fmt.Fprintf(out, "  Written:         %d\n", result.Written)
	fmt.Fprintf(out, "  Skipped:         %d\n", len(result.Skipped))

	if len(result.Skipped) > 0 || len(result.Errors) > 0 {
		fmt.Fprintf(out, "\nWarnings:\n")
		for _, s := range result.Skipped {
			fmt.Fprintf(out, "  - record %d (%s): %s\n", s.Index, s.ChunkID, s.Reason)
		}
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - %s\n", e)
		}
	}

	if n, err := c.Ask.Count(cmd.Context()); err == nil {
		fmt.Fprintf(out, "\nCollection %s now holds %d chunks\n", cfg.Store.Collection, n)
	}
	return nil
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
