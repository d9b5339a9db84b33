package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/MeKo-Tech/codescan/internal/config"
	"github.com/MeKo-Tech/codescan/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Configuration loader for the current invocation.
	configLoader *config.Loader
	// Configuration loaded by the root command.
	globalConfig *config.Config
	// Configuration file path.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "codescan",
	Short: "Barcode, QR code and object detection for images, PDFs and camera feeds",
	Long: `codescan finds barcodes, QR codes and everyday objects in images.

Every image is decoded in four passes (original, grayscale, binary threshold
and adaptive threshold) so that low-contrast and unevenly lit codes are still
found. Objects are detected with a YOLOv8 ONNX model or a remote objectbox
service.

This tool provides:
- An HTTP detection service (POST /detect/, websocket streaming, metrics)
- Batch scanning of image files, directories and PDFs
- A live camera viewer

Examples:
  codescan scan photo.jpg
  codescan scan docs/ --recursive --format json
  codescan serve --port 8080
  codescan live --device 0`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, _ := cmd.PersistentFlags().GetBool("version")
		if v {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return nil
		}
		return cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetRootCommand returns the root command for testing purposes.
func GetRootCommand() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is search in ., $HOME, $XDG_CONFIG_HOME/codescan, /etc/codescan)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("version", false, "print version information and exit")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if _, skip := cmd.Annotations[skipConfigLoad]; skip {
			cfg := config.DefaultConfig()
			globalConfig = &cfg
			slog.SetDefault(newLogger(globalConfig))
			return nil
		}
		if err := initConfig(cmd); err != nil {
			return err
		}
		slog.SetDefault(newLogger(globalConfig))
		return nil
	}
}

// skipConfigLoad marks commands that run on the default configuration
// without reading a config file, e.g. because they write one.
const skipConfigLoad = "codescan/skip-config-load"

// initConfig reads the config file, environment variables and the flags
// bound to viper into globalConfig.
func initConfig(cmd *cobra.Command) error {
	v := viper.New()
	flags := cmd.Root().PersistentFlags()
	if err := v.BindPFlag("verbose", flags.Lookup("verbose")); err != nil {
		return err
	}
	if err := v.BindPFlag("log_level", flags.Lookup("log-level")); err != nil {
		return err
	}
	configLoader = config.NewLoaderWithViper(v)

	cfg, err := configLoader.LoadWithFile(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	globalConfig = cfg
	if used := configLoader.GetConfigFileUsed(); used != "" {
		slog.Debug("Using config file", "path", used)
	}
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	} else {
		switch cfg.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// GetConfig returns a copy of the configuration loaded for this invocation.
// Subcommands apply their flag overrides to the copy.
func GetConfig() *config.Config {
	if globalConfig == nil {
		d := config.DefaultConfig()
		return &d
	}
	cfg := *globalConfig
	return &cfg
}
