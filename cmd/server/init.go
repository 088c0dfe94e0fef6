package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/prasenjit/antbee/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default configuration file and data directory",
	Long: `Creates config.yaml with default settings and the data directory used by
file and sqlite storage.

If config.yaml already exists, it will not be overwritten unless --force is used.`,
	RunE: runInit,
}

var validateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check a configuration file without starting the server",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runValidate,
}

var (
	initForce   bool
	initPath    string
	initStorage string
)

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite existing config file")
	initCmd.Flags().StringVarP(&initPath, "path", "p", ".", "Path where to initialize")
	initCmd.Flags().StringVar(&initStorage, "storage", config.StorageFile, "Storage type written to the config (memory, file, sqlite)")
}

func runInit(cmd *cobra.Command, args []string) error {
	absPath, err := filepath.Abs(initPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	configFile := filepath.Join(absPath, "config.yaml")
	dataDir := filepath.Join(absPath, "data")

	if _, err := os.Stat(configFile); err == nil && !initForce {
		return fmt.Errorf("config.yaml already exists. Use --force to overwrite")
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dataDir, err)
	}
	fmt.Printf("Created directory: %s\n", dataDir)

	cfg := config.Default()
	cfg.Storage.Type = initStorage
	if initStorage == config.StorageSQLite {
		cfg.Storage.Path = "./data/antbee.db"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to generate config: %w", err)
	}

	header := `# AntBee configuration
# Every key can be overridden with an ANTBEE_ environment variable,
# e.g. ANTBEE_SERVER_PORT=9090 or ANTBEE_AUDIT_SINKS=memory,redis

`
	if err := os.WriteFile(configFile, []byte(header+string(data)), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	fmt.Printf("Created config file: %s\n", configFile)

	fmt.Println()
	fmt.Println("Initialization complete! You can now start the server with:")
	fmt.Println()
	fmt.Printf("  cd %s\n", absPath)
	fmt.Println("  antbee serve")
	fmt.Println()

	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if len(args) == 1 {
		path = args[0]
	}
	if path == "" {
		path = "config.yaml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	fmt.Printf("%s is valid (storage: %s, audit sinks: %v)\n", path, cfg.Storage.Type, cfg.Audit.Sinks)
	return nil
}
