package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/lao-tseu-is-alive/go-crowd-avoidance/internal/observability"
)

// appConfig is everything viper can fill from the config file, CROWDSIM_*
// variables and flags.
type appConfig struct {
	Log   observability.LoggerConfig `mapstructure:"log"`
	Run   runSettings                `mapstructure:"run"`
	Serve serveSettings              `mapstructure:"serve"`
}

type runSettings struct {
	Scenario string  `mapstructure:"scenario"`
	File     string  `mapstructure:"file"`
	Seed     uint64  `mapstructure:"seed"`
	Steps    int     `mapstructure:"steps"`
	Dt       float64 `mapstructure:"dt"`
	Workers  int     `mapstructure:"workers"`
	Output   string  `mapstructure:"output"`
	Format   string  `mapstructure:"format"`
	Every    int     `mapstructure:"every"`
}

type serveSettings struct {
	Addr  string  `mapstructure:"addr"`
	Speed float64 `mapstructure:"speed"`
}

// newRootCmd builds the command tree around its own viper instance so that
// every invocation (and every test) starts clean.
func newRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	root := &cobra.Command{
		Use:           "crowdsim",
		Short:         "crowdsim steps crowds of agents that avoid each other and static obstacles.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initializeConfig(v, cfgFile); err != nil {
				return err
			}
			var cfg appConfig
			if err := v.Unmarshal(&cfg); err != nil {
				observability.InitializeLogger(observability.DefaultLoggerConfig())
				return fmt.Errorf("failed to unmarshal config: %w", err)
			}
			observability.InitializeLogger(cfg.Log)
			observability.GetLogger().Debug("starting crowdsim", zap.String("version", Version))
			return nil
		},
	}
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	flags := root.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default is ./crowdsim.yaml)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log encoding (console or json)")
	flags.String("log-file", "", "also write JSON logs to this rotating file")
	if err := bindFlags(v, flags, map[string]string{
		"log.level":    "log-level",
		"log.format":   "log-format",
		"log.log_file": "log-file",
	}); err != nil {
		panic(err)
	}

	defaults := observability.DefaultLoggerConfig()
	v.SetDefault("log.level", defaults.Level)
	v.SetDefault("log.format", defaults.Format)
	v.SetDefault("log.service_name", defaults.ServiceName)
	v.SetDefault("log.max_size", defaults.MaxSize)
	v.SetDefault("log.max_backups", defaults.MaxBackups)
	v.SetDefault("log.max_age", defaults.MaxAge)

	root.AddCommand(newRunCmd(v), newServeCmd(v), newScenariosCmd(), newVersionCmd())
	return root
}

// bindFlags ties viper keys to flags so that a flag set on the command line
// beats the environment, which beats the config file.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return fmt.Errorf("binding flag %q: %w", name, err)
		}
	}
	return nil
}

// initializeConfig reads the config file, if any, and the CROWDSIM_*
// environment.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("crowdsim")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("CROWDSIM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}
