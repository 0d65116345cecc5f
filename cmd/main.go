package main

import (
	"os"
	"path/filepath"

	"github.com/tendermint/tendermint/libs/cli"

	"github.com/beatoz/fxopgen/cmd/commands"
)

func main() {
	commands.RootCmd.AddCommand(
		commands.NewInitFilesCmd(),
		commands.NewGenCmd(),
		commands.NewCompressCmd(),
		commands.NewCacheCmd(),
		commands.VersionCmd,
	)

	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	executor := cli.PrepareBaseCmd(commands.RootCmd, "FXOPGEN", filepath.Join(home, ".fxopgen"))
	if err := executor.Execute(); err != nil {
		os.Exit(1)
	}
}
