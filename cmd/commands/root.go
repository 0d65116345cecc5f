package commands

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tendermint/tendermint/libs/cli"
	tmflags "github.com/tendermint/tendermint/libs/cli/flags"
	"github.com/tendermint/tendermint/libs/log"

	cfg "github.com/beatoz/fxopgen/cmd/config"
)

var (
	rootConfig = cfg.DefaultConfig()
	logger     = log.NewTMLogger(log.NewSyncWriter(os.Stdout))
)

func init() {
	registerFlagsRootCmd(RootCmd)
}

func registerFlagsRootCmd(cmd *cobra.Command) {
	cmd.PersistentFlags().String("log_level", rootConfig.LogLevel, "log level")
	cmd.PersistentFlags().String("log_format", rootConfig.LogFormat, "log format: plain | json")
}

// ParseConfig reads the config file, env vars and flags bound by viper.
func ParseConfig(cmd *cobra.Command) (*cfg.Config, error) {
	conf := cfg.DefaultConfig()
	if err := viper.Unmarshal(conf); err != nil {
		return nil, err
	}
	home, err := cmd.Flags().GetString(cli.HomeFlag)
	if err != nil || home == "" {
		home = viper.GetString(cli.HomeFlag)
	}
	conf.SetRoot(home)
	if xerr := cfg.EnsureRoot(conf.RootDir); xerr != nil {
		return nil, xerr
	}
	if xerr := conf.ValidateBasic(); xerr != nil {
		return nil, xerr
	}
	return conf, nil
}

// RootCmd is the root command for fxopgen.
var RootCmd = &cobra.Command{
	Use:   "fxopgen",
	Short: "Fixed-point function operator generator",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
		if cmd.Name() == VersionCmd.Name() {
			return nil
		}

		rootConfig, err = ParseConfig(cmd)
		if err != nil {
			return err
		}

		if rootConfig.LogFormat == cfg.LogFormatJSON {
			logger = log.NewTMJSONLogger(log.NewSyncWriter(os.Stdout))
		}

		logger, err = tmflags.ParseLogLevel(rootConfig.LogLevel, logger, cfg.DefaultLogLevel)
		if err != nil {
			return err
		}

		if viper.GetBool(cli.TraceFlag) {
			logger = log.NewTracingLogger(logger)
		}

		logger = logger.With("module", "main")
		return nil
	},
}
