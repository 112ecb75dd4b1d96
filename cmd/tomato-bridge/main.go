package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aurora-lab/tomato-bridge/internal/invoke"
	"github.com/aurora-lab/tomato-bridge/internal/ketchup"
	"github.com/aurora-lab/tomato-bridge/internal/log"
	"github.com/aurora-lab/tomato-bridge/internal/model"
)

var (
	configPath string // actual config file used (if loaded)
	config     model.Config

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
	flagWorkdir        string
	flagJobName        string
)

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is tomato-bridge.yaml in current directory")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	// never print messages
	rootCmd.SilenceErrors = true

	rootCmd.PersistentPreRunE = initBridge

	submitCmd.Flags().StringVar(&flagWorkdir, "workdir", ".", "job working directory")
	submitCmd.Flags().StringVar(&flagJobName, "jobname", "", "job name, generated when empty")
	watchCmd.Flags().StringVar(&flagWorkdir, "workdir", ".", "job working directory")

	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("tomato-bridge failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "tomato-bridge",
	Short:        "Bridge between a workflow engine and the tomato battery cycler",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provides the version of tomato-bridge",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("tomato-bridge: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config: %s\n", configPath)
		}
		fmt.Printf("tomato-bridge: %s\n", info.Main.Version)
		fmt.Printf("go:            %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit: %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:   %s\n", s.Value)
			}
		}
	},
}

// scheduler builds the adapter from the loaded config.
func scheduler() (*ketchup.Scheduler, error) {
	timeout, err := model.ParseDuration(config.Timeout)
	if err != nil {
		return nil, fmt.Errorf("config timeout: %w", err)
	}
	runner := invoke.Runner{
		Path:    config.Ketchup,
		Timeout: timeout,
	}
	return ketchup.NewScheduler(runner, ketchup.WithAttempts(uint64(config.Retries))), nil
}

func initBridge(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("TOMATO_BRIDGE_CONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else if path := filepath.Join(".", "tomato-bridge.yaml"); exists(path) {
		configPath = path
	}

	if configPath == "" {
		config = model.DefaultConfig()
	} else {
		f, err := os.Open(configPath)
		if err != nil {
			return fmt.Errorf("opening config file: %w", err)
		}
		defer func() {
			_ = f.Close()
		}()
		cfg, err := model.LoadConfig(f)
		if err != nil {
			for _, d := range model.CueErrDetails(err) {
				slog.Error(d)
			}
			return fmt.Errorf("parsing config: %w", err)
		}
		config = *cfg
	}

	slog.SetDefault(log.New(flagVerbose))

	slog.Debug("tomato-bridge run", "configPath", configPath)
	return nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func printYAML(v any) error {
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// watchTimeout bounds a whole watch session; cycling experiments run for
// days, not weeks.
const watchTimeout = 14 * 24 * time.Hour
