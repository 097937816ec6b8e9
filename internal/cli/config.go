package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/tandem/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage tandem configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}

		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Config file already exists at %s\n", path)
			return nil
		}

		if err := config.SaveTo(path, config.Default()); err != nil {
			return runtimeErr(fmt.Errorf("writing config: %w", err))
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Config file created at %s\n", path)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value by its dotted key. Valid keys:\n  " + strings.Join(config.Keys(), "\n  "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := configPath()
		if err != nil {
			return err
		}

		// Start from defaults when there is no file yet.
		cfg := config.Default()
		if err := config.LoadFile(path, &cfg); err != nil {
			return err
		}

		if err := config.SetField(&cfg, args[0], args[1]); err != nil {
			return err
		}

		if err := config.SaveTo(path, cfg); err != nil {
			return runtimeErr(fmt.Errorf("saving config: %w", err))
		}

		value := args[1]
		if strings.HasPrefix(args[0], "credentials.") {
			value = "****"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", args[0], value)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with credentials masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(nil)
		if err != nil {
			return err
		}

		data, err := json.MarshalIndent(cfg.Redacted(), "", "  ")
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configShowCmd)
}
