package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dripdrop/launchsite/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

var configEnvCmd = &cobra.Command{
	Use:   "env",
	Short: "Report provider environment variable status",
	Long:  `Report which required environment variables are set for the active provider, without printing their values.`,
	RunE:  runConfigEnv,
}

func init() {
	configCmd.AddCommand(configValidateCmd, configEnvCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if cfgFile == "" {
		return fmt.Errorf("config file is required (use -c flag)")
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Listen: %s\n", cfg.Server.ListenAddr)
	fmt.Printf("  Environment: %s\n", cfg.Server.Environment)
	fmt.Printf("  Provider: %s\n", cfg.Signup.Provider)
	fmt.Printf("  Rate limit: %d requests / %s\n", cfg.RateLimit.Limit, cfg.RateLimit.Window)
	if cfg.Server.StaticDir != "" {
		fmt.Printf("  Static dir: %s\n", cfg.Server.StaticDir)
	}

	return nil
}

func runConfigEnv(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	status := cfg.EnvStatus()

	keys := make([]string, 0, len(status))
	for key := range status {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	fmt.Printf("Provider: %s\n\n", cfg.Signup.Provider)

	allConfigured := true
	for _, key := range keys {
		mark := "ok"
		if !status[key] {
			mark = "MISSING"
			allConfigured = false
		}
		fmt.Printf("  %-24s %s\n", key, mark)
	}

	fmt.Println()
	if allConfigured {
		fmt.Println("All required environment variables are configured")
	} else {
		fmt.Println("Some required environment variables are missing")
	}

	return nil
}
