package cmd

import (
	"github.com/spf13/cobra"

	"github.com/shelfwatch/shelfwatch/internal/utils"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Sweep stored articles and refresh stale prices and availability",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := buildEngine()
		if err != nil {
			return err
		}
		defer e.Close()

		forcePrices, _ := cmd.Flags().GetBool("prices")
		forceAvailability, _ := cmd.Flags().GetBool("availability")

		articles, err := e.db.ListArticles()
		if err != nil {
			return err
		}

		for _, a := range articles {
			switch {
			case forcePrices:
				_, err = e.articles.RefreshPrices(cmd.Context(), a.EAN)
			case forceAvailability:
				_, err = e.articles.RefreshAvailability(cmd.Context(), a.EAN)
			default:
				// Upsert refreshes whichever dimension has gone stale and
				// leaves fresh articles alone.
				_, _, err = e.articles.Upsert(cmd.Context(), a.EAN, a.Name)
			}
			if err != nil {
				utils.Log.Warnf("refreshing %s: %v", a.EAN, err)
				continue
			}
			utils.Log.Infof("refreshed %s (%s)", a.EAN, a.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
	refreshCmd.Flags().Bool("prices", false, "Force a price refresh for every article")
	refreshCmd.Flags().Bool("availability", false, "Force an availability refresh for every article")
}
