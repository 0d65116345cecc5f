package commands

import (
	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"

	cfg "github.com/beatoz/fxopgen/cmd/config"
)

var forceInit bool

// NewInitFilesCmd returns the command that writes the default config file.
func NewInitFilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the fxopgen home directory",
		RunE:  initFiles,
	}
	AddInitFlags(cmd)
	return cmd
}

func AddInitFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(
		&forceInit,
		"force",
		forceInit,
		"overwrite an existing config file with the defaults")
}

func initFiles(cmd *cobra.Command, args []string) error {
	return InitFilesWith(rootConfig, forceInit)
}

// InitFilesWith writes the config file of config and creates its cache
// directory. An existing config file is kept unless force is set.
func InitFilesWith(config *cfg.Config, force bool) error {
	if xerr := cfg.EnsureRoot(config.RootDir); xerr != nil {
		return xerr
	}
	if tmos.FileExists(config.ConfigFile()) && !force {
		logger.Info("Found config file", "path", config.ConfigFile())
	} else {
		if xerr := cfg.WriteConfigFile(config); xerr != nil {
			return xerr
		}
		logger.Info("Generated config file", "path", config.ConfigFile())
	}

	if err := tmos.EnsureDir(config.CacheDirPath(), cfg.DefaultDirPerm); err != nil {
		return err
	}
	logger.Info("Cache directory", "path", config.CacheDirPath(), "backend", config.CacheBackend)
	return nil
}
