package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/zjrosen/flowsync/internal/config"
	"github.com/zjrosen/flowsync/internal/paths"
)

var initConfigForce bool

var initConfigCmd = &cobra.Command{
	Use:   "init-config [path]",
	Short: "Write a commented default config file",
	Long: `Write the default configuration, with comments, to .flowsync/config.yaml or
the given path. Credentials are left unset.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := filepath.Join(paths.StateDir, "config.yaml")
		if len(args) == 1 {
			path = args[0]
		}
		if fileExists(path) && !initConfigForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.WriteDefaultConfig(path); err != nil {
			return err
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return err
	},
}

var configSetCmd = &cobra.Command{
	Use:   "config:set <key> <value>",
	Short: "Set one config value, keeping the file's comments",
	Long: `Set a dotted config key in the active config file (or .flowsync/config.yaml
when none was loaded). The value is parsed as YAML, so numbers, booleans and
lists keep their types.

Examples:
  flowsync config:set remote.url https://kestra.example.com
  flowsync config:set remote.request_delay 250ms
  flowsync config:set remote.update_statuses "[409, 422]"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := viper.ConfigFileUsed()
		if path == "" {
			path = filepath.Join(paths.StateDir, "config.yaml")
		}
		value, err := parseValue(args[1])
		if err != nil {
			return err
		}
		if err := config.SetValue(path, args[0], value); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Set %s in %s\n", args[0], path)
		return err
	},
}

// parseValue decodes a command line value as a YAML scalar or flow collection.
func parseValue(raw string) (any, error) {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("parsing value %q: %w", raw, err)
	}
	if v == nil {
		return raw, nil
	}
	return v, nil
}

func init() {
	rootCmd.AddCommand(initConfigCmd, configSetCmd)
	initConfigCmd.Flags().BoolVarP(&initConfigForce, "force", "f", false, "overwrite an existing file")
}
