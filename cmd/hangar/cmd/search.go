package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"go-hangar/internal/index"
)

func init() {
	rootCmd.AddCommand(searchCmd)
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the library index",
	Long: `Searches installed games by title, tags and install metadata.
Supports bleve query syntax, e.g. '+title:spelunky' or '+installerKind:archive'.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := openLibraryIndex()
		if err != nil {
			return err
		}
		defer idx.Close()

		result, err := index.Search(idx, strings.Join(args, " "))
		if err != nil {
			return err
		}

		if result.Total == 0 {
			fmt.Println("No matches.")
			return nil
		}
		fmt.Printf("%d matches (%s):\n", result.Total, result.Took)
		for _, hit := range result.Hits {
			title, _ := hit.Fields["title"].(string)
			folder, _ := hit.Fields["installFolder"].(string)
			fmt.Printf("  %s  %s  (%s)\n", hit.ID, title, folder)
		}
		return nil
	},
}
