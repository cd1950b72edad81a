package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/camden-git/vidfaces/database"
)

var reportsOpts struct {
	Sort   string
	Limit  uint64
	Source string
}

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List processed videos from the catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !database.IsValidSortOrder(reportsOpts.Sort) {
			return fmt.Errorf("unsupported sort order %q", reportsOpts.Sort)
		}
		_, sqlDB, err := openCatalog(cfg)
		if err != nil {
			return err
		}
		defer sqlDB.Close()

		rows, err := database.ListReports(sqlDB, database.ListReportsOptions{
			Sort:   reportsOpts.Sort,
			Limit:  reportsOpts.Limit,
			Source: reportsOpts.Source,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CREATED\tSOURCE\tDURATION\tDETECTIONS\tFACES\tRELABELS\tREPORT")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%.1fs\t%d\t%d\t%d\t%s\n",
				time.Unix(r.CreatedAt, 0).Format(time.DateTime), r.SourceName, r.Duration,
				r.DetectionCount, r.UniqueFaceCount, r.RelabelCount, r.ResultsPath)
		}
		return w.Flush()
	},
}

func init() {
	reportsCmd.Flags().StringVar(&reportsOpts.Sort, "sort", database.DefaultSortOrder, "created_desc, created_asc or name_nat")
	reportsCmd.Flags().Uint64VarP(&reportsOpts.Limit, "limit", "l", 0, "Maximum rows (0 for all)")
	reportsCmd.Flags().StringVar(&reportsOpts.Source, "source", "", "Only videos whose name contains this text")
	rootCmd.AddCommand(reportsCmd)
}
