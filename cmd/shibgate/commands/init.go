package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/campuskit/shibgate/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a sample configuration file",
	Long: `Write a configuration file with defaults to the given --config path, or
the default location. The login_url setting must be filled in before the
server will start.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.GetDefaultConfigPath()
		}

		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}

		cfg := config.GetDefaultConfig()
		if err := config.SaveConfig(cfg, path); err != nil {
			return err
		}

		fmt.Printf("Wrote %s\n", path)
		fmt.Println("Set auth.login_url to your Shibboleth session initiator, e.g. https://example.edu/Shibboleth.sso/Login")
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing config file")
}
