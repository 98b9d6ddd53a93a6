package cmd

import (
	"fmt"
	"sort"

	"github.com/audiolibrelab/recstore/internal/config"
	"gopkg.in/yaml.v3"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and manage recstore configuration settings.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		shown := *cfg
		if shown.Offload.SecretAccessKey != "" {
			shown.Offload.SecretAccessKey = "********"
		}

		out, err := yaml.Marshal(&shown)
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		fmt.Printf("# profile: %s\n", cfg.Profile)
		fmt.Print(string(out))
		return nil
	},
}

var configProfilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List configuration profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := config.ReadRootConfig(cfgFile)
		if err != nil {
			return err
		}

		for _, name := range profileNames(root) {
			marker := " "
			if name == cfg.Profile {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, name)
		}
		return nil
	},
}

var configUseCmd = &cobra.Command{
	Use:   "use [profile]",
	Short: "Set the active profile in the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]

		// Make sure the profile resolves before persisting it
		if _, err := config.LoadWithProfile(cfgFile, name); err != nil {
			return err
		}

		if err := config.UpdateActiveProfile(cfgFile, name); err != nil {
			return err
		}
		fmt.Printf("Active profile set to %s\n", name)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configProfilesCmd)
	configCmd.AddCommand(configUseCmd)
}

// profileNames returns the profiles of a config file, "default" first
func profileNames(root *config.RootConfig) []string {
	names := []string{"default"}
	for name := range root.Profiles {
		if name != "default" {
			names = append(names, name)
		}
	}
	sort.Strings(names[1:])
	return names
}
