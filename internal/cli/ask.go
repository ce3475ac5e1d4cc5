package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vetrag/internal/domain"
)

var (
	askQuery string
	askTopK  int
	askJSON  bool
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Ask a question against the knowledge base",
	Long: `Retrieve, rerank and summarize the records most relevant to a question.

Examples:
  rag ask -q "how is mastitis treated"
  rag ask -q "BVD persistent infection" --top-k 3 --json`,
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askQuery, "query", "q", "", "question (required)")
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of sources (default from config)")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output as JSON")
	askCmd.MarkFlagRequired("query")
}

func runAsk(cmd *cobra.Command, args []string) error {
	c, err := newContainer(cmd)
	if err != nil {
		return err
	}
	defer c.Close(cmd.Context())

	result := c.Ask.Ask(cmd.Context(), askQuery, askTopK)

	out := cmd.OutOrStdout()
	if askJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Fprintln(out, result.Answer)
	if len(result.Sources) == 0 {
		return nil
	}
	fmt.Fprintf(out, "\nSources:\n")
	for i, s := range result.Sources {
		page := ""
		if s.PageNumber > 0 {
			page = fmt.Sprintf(", p. %d", s.PageNumber)
		}
		c := domain.Chunk{DiseaseName: s.DiseaseName, SectionType: s.SectionType}
		fmt.Fprintf(out, "  [%d] %s (%s%s)\n", i+1, c.DisplayName(), c.DisplaySection(), page)
		fmt.Fprintf(out, "      %s\n", strings.ReplaceAll(s.ContentPreview, "\n", " "))
	}
	return nil
}
