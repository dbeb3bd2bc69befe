package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/slackvault/internal/embedding"
	"github.com/raphaelgruber/slackvault/internal/search"
	"github.com/raphaelgruber/slackvault/internal/vector"
)

var (
	searchAlpha float64
	searchLimit int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a hybrid search against the indexed corpus",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		query := strings.Join(args, " ")

		vectors := vector.New(cfg.ChromaHost, cfg.ChromaPort)
		embedder, err := embedding.New(cfg)
		if err != nil {
			return fmt.Errorf("init embedder: %w", err)
		}

		engine := search.New(docStore, vectors, embedder)
		results, err := engine.Search(ctx, query, searchAlpha, searchLimit)
		if err != nil {
			return err
		}

		if len(results) == 0 {
			fmt.Println("No results.")
			return nil
		}

		for i, r := range results {
			var sources []string
			if r.KeywordMatch {
				sources = append(sources, "keyword")
			}
			if r.SemanticMatch {
				sources = append(sources, "semantic")
			}
			fmt.Printf("%2d. [%.3f] %s  %s  (%s)\n", i+1, r.Score,
				r.TS.Format("2006-01-02 15:04"), r.ConversationID, strings.Join(sources, "+"))
			fmt.Printf("    <%s> %s\n", r.Username, r.Text)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Float64Var(&searchAlpha, "alpha", 0.5, "mixing weight: 0 = lexical only, 1 = semantic only")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum results")
	rootCmd.AddCommand(searchCmd)
}
