package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/andywolf/mountrace/internal/config"
	"github.com/andywolf/mountrace/internal/version"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mountrace",
	Short: "mountrace - search for the mount/unmount race window of a device mount point",
	Long: `mountrace drives a device mount point through repeated mount and unmount
cycles, issuing the unmount after a growing delay once the device connection is
observed in the server log. It stops when the server reports a duplicate mount
point or a lifecycle request cannot be completed.

Example:
  mountrace init
  mountrace run --log-path /opt/odl/data/log/karaf.log
  mountrace report probes.jsonl`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Set version for --version flag
	rootCmd.Version = version.Short()
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .mountrace.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable verbose output")
	_ = viper.BindPFlag("logging.verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	config.SetDefaults(viper.GetViper())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error getting working directory:", err)
			os.Exit(1)
		}

		viper.AddConfigPath(cwd)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".mountrace")
	}

	viper.SetEnvPrefix("MOUNTRACE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("logging.verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	} else if cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Warning: failed to read config file %s: %v\n", cfgFile, err)
	}
}
