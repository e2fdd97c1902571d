package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/caseflag/caseflag/pipeline"
)

var (
	forDateFlag string
	dataDirFlag string
	rootCmd     = &cobra.Command{
		Use:   "caseflag",
		Short: "Batch pipeline deriving treatment-engagement criteria per client",
	}
)

func main() {
	rootCmd.PersistentFlags().StringVar(&forDateFlag, "for-date", "", "Run for a specific date (dd/mm/yyyy) instead of today")
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Override the configured data directory")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Extract the raw tables and derive the criteria views",
		RunE: func(cmd *cobra.Command, args []string) error {
			return pipeline.Run(forDateFlag, dataDirFlag)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "extract",
		Short: "Extract the raw tables for the run date without deriving",
		RunE: func(cmd *cobra.Command, args []string) error {
			return pipeline.Extract(forDateFlag, dataDirFlag)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "derive",
		Short: "Derive the criteria views from an already extracted partition",
		RunE: func(cmd *cobra.Command, args []string) error {
			return pipeline.Derive(forDateFlag, dataDirFlag)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
