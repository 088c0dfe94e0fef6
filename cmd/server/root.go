package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/prasenjit/antbee/internal/config"
)

const envPrefix = "ANTBEE"

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "antbee",
		Short: "AntBee - rule driven API mock server",
		Long: `AntBee serves mock HTTP endpoints. Each endpoint owns a set of response
variants and an ordered list of rules that inspect headers, query
parameters and the JSON body to choose or override the response.`,
		SilenceUsage: true,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default: ./config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(validateCmd)
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	// A missing .env file is fine
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			cwd = "."
		}
		viper.AddConfigPath(cwd)
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults(config.Default())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setDefaults registers every key so environment variables can override it
func setDefaults(d *config.Config) {
	viper.SetDefault("server.port", d.Server.Port)
	viper.SetDefault("server.host", d.Server.Host)
	viper.SetDefault("server.readTimeout", d.Server.ReadTimeout)
	viper.SetDefault("server.writeTimeout", d.Server.WriteTimeout)
	viper.SetDefault("server.maxBodyBytes", d.Server.MaxBodyBytes)
	viper.SetDefault("server.tls.enabled", d.Server.TLS.Enabled)
	viper.SetDefault("server.tls.certFile", d.Server.TLS.CertFile)
	viper.SetDefault("server.tls.keyFile", d.Server.TLS.KeyFile)
	viper.SetDefault("server.tls.autoGenerate", d.Server.TLS.AutoGenerate)
	viper.SetDefault("server.tls.storePath", d.Server.TLS.StorePath)

	viper.SetDefault("storage.type", d.Storage.Type)
	viper.SetDefault("storage.path", d.Storage.Path)
	viper.SetDefault("storage.dsn", d.Storage.DSN)
	viper.SetDefault("storage.watch", d.Storage.Watch)

	viper.SetDefault("audit.sinks", d.Audit.Sinks)
	viper.SetDefault("audit.maxLogs", d.Audit.MaxLogs)
	viper.SetDefault("audit.retention", d.Audit.Retention)
	viper.SetDefault("audit.pruneSchedule", d.Audit.PruneSchedule)
	viper.SetDefault("audit.writeTimeout", d.Audit.WriteTimeout)
	viper.SetDefault("audit.redis.address", d.Audit.Redis.Address)
	viper.SetDefault("audit.redis.password", d.Audit.Redis.Password)
	viper.SetDefault("audit.redis.db", d.Audit.Redis.DB)
	viper.SetDefault("audit.redis.key", d.Audit.Redis.Key)

	viper.SetDefault("mock.pathPrefix", d.Mock.PathPrefix)

	viper.SetDefault("metrics.enabled", d.Metrics.Enabled)
	viper.SetDefault("metrics.path", d.Metrics.Path)

	viper.SetDefault("logging.level", d.Logging.Level)
	viper.SetDefault("logging.format", d.Logging.Format)
}

// loadConfig decodes the merged flags, environment and file settings
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
