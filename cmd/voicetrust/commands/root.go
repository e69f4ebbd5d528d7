package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AIINA17/Livekit-Biometric/cmd/voicetrust/internal/config"
	"github.com/AIINA17/Livekit-Biometric/pkg/voicetrust"
)

var (
	// Global flags
	verbose    bool
	configPath string
	dataDir    string
	format     string
)

var rootCmd = &cobra.Command{
	Use:   "voicetrust",
	Short: "Voice trust decision engine tooling",
	Long: `voicetrust - score, enroll, verify and calibrate voice biometrics.

Configuration and data live in the OS config directory:
  macOS:   ~/Library/Application Support/voicetrust/
  Linux:   ~/.config/voicetrust/
  Windows: %AppData%/voicetrust/

config.yaml there holds the engine configuration (thresholds, update
policy, spoof model, fusion). Calibration writes new values for it.

Examples:
  # Inspect one recording
  voicetrust score sample.wav

  # Enroll and verify
  voicetrust enroll alice home a1.wav a2.wav a3.wav a4.wav a5.wav
  voicetrust verify alice live.wav

  # Calibrate from a labeled corpus and store the results in S3
  voicetrust calibrate run ./corpus --speaker --out s3://bucket/voicetrust`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "engine config file (default: <config dir>/voicetrust/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "profile database directory (default: <config dir>/voicetrust/profiles)")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "o", "yaml", "output format: yaml, json or text")
}

// newLogger returns a stderr text logger, at debug level when verbose.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func paths() (config.Paths, error) {
	return config.Default()
}

// loadEngine loads the engine configuration honoring --config.
func loadEngine() (voicetrust.Config, error) {
	p, err := paths()
	if err != nil {
		if configPath == "" {
			return voicetrust.DefaultConfig(), nil
		}
		p = config.Paths{}
	}
	cfg, used, err := p.LoadEngine(configPath)
	if err != nil {
		return voicetrust.Config{}, err
	}
	if used != "" {
		newLogger().Debug("loaded engine config", "path", used)
	}
	return cfg, nil
}
