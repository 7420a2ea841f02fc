package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnoswap-labs/sepexec/verify"
)

// initCmd: sepexec init
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new verifier configuration file",
	Run: func(cmd *cobra.Command, args []string) {
		path, err := initConfigurationFile(cfgFile)
		if err != nil {
			logger.Error("Error initializing config file", zap.Error(err))
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Configuration file created/updated: %s\n", path)
	},
}

func initConfigurationFile(configurationPath string) (string, error) {
	if configurationPath == "" {
		configurationPath = verify.DefaultConfigFile
	}
	if err := verify.WriteConfig(configurationPath, verify.DefaultConfig()); err != nil {
		return "", fmt.Errorf("error writing %s: %w", configurationPath, err)
	}
	return configurationPath, nil
}
