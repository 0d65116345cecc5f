package commands

import (
	"github.com/spf13/cobra"

	cfg "github.com/beatoz/fxopgen/cmd/config"
	"github.com/beatoz/fxopgen/polycache"
)

var exportTo string

// NewCacheCmd returns the polynomial cache maintenance commands.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the polynomial cache",
	}
	export := &cobra.Command{
		Use:   "export",
		Short: "Copy the on-disk polynomial cache to another directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ExportCacheWith(rootConfig, exportTo)
		},
	}
	export.Flags().StringVar(&exportTo, "to", exportTo, "destination directory")
	_ = export.MarkFlagRequired("to")
	cmd.AddCommand(export)
	return cmd
}

func ExportCacheWith(config *cfg.Config, dst string) error {
	if xerr := polycache.Export(config.CacheDirPath(), dst); xerr != nil {
		return xerr
	}
	logger.Info("Exported cache", "from", config.CacheDirPath(), "to", dst, "backend", config.CacheBackend)
	return nil
}
