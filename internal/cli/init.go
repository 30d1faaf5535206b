package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/andywolf/mountrace/internal/config"
)

const defaultConfigPath = ".mountrace.yaml"

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a .mountrace.yaml file holding every setting with its default value.

Example:
  mountrace init
  mountrace init --server http://odl.lab:8181 --log-path /opt/odl/data/log/karaf.log`,
	RunE: initProject,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().String("output", defaultConfigPath, "Path of the config file to write")
	initCmd.Flags().String("server", "", "Lifecycle server base URL")
	initCmd.Flags().String("log-path", "", "Server log file")
	initCmd.Flags().String("device-host", "", "Address of the device to mount")
	initCmd.Flags().Bool("force", false, "Overwrite existing config")
}

func initProject(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("output")

	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configPath)
	}

	cfg := config.Default()
	if v, _ := cmd.Flags().GetString("server"); v != "" {
		cfg.Server.BaseURL = v
	}
	if v, _ := cmd.Flags().GetString("log-path"); v != "" {
		cfg.Log.Path = v
	}
	if v, _ := cmd.Flags().GetString("device-host"); v != "" {
		cfg.Device.Host = v
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := `# mountrace configuration
# Every key can be overridden with an environment variable, e.g.
# MOUNTRACE_SERVER_BASE_URL or MOUNTRACE_SEARCH_CEILING.

`

	if err := os.WriteFile(configPath, append([]byte(header), data...), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created %s\n\n", configPath)
	fmt.Fprintln(out, "Next steps:")
	fmt.Fprintln(out, "  1. Point server.base_url and log.path at your lifecycle server")
	fmt.Fprintln(out, "  2. Set the device section for the mount point under test")
	fmt.Fprintln(out, "  3. Move passwords to Secret Manager (server.password_secret, device.password_secret)")
	fmt.Fprintln(out, "  4. Run 'mountrace run' to start the search")

	return nil
}
