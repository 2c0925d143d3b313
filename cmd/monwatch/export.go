package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/monlabs/monwatch/internal/config"
	"github.com/monlabs/monwatch/internal/output"
	"github.com/monlabs/monwatch/internal/store"
)

var flagExportFormat string

var exportCmd = &cobra.Command{
	Use:   "export <table>",
	Short: "Export a database table to stdout as CSV or JSONL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		if cfg.Storage.PostgresDSN == "" {
			return fmt.Errorf("export requires a configured postgres_dsn")
		}

		pg, err := store.Open(cfg.Storage.PostgresDSN)
		if err != nil {
			return err
		}
		defer pg.Close()

		switch flagExportFormat {
		case "csv":
			return output.ExportCSV(cmd.Context(), pg, args[0], os.Stdout)
		case "jsonl":
			return output.ExportJSONL(cmd.Context(), pg, args[0], os.Stdout)
		default:
			return fmt.Errorf("unsupported format %q (csv or jsonl)", flagExportFormat)
		}
	},
}

func init() {
	exportCmd.Flags().StringVarP(&flagExportFormat, "format", "f", "csv", "output format (csv|jsonl)")
}
