package commands

import (
	"fmt"
	"path"
	"time"

	"github.com/spf13/cobra"

	"github.com/AIINA17/Livekit-Biometric/pkg/antispoof"
	"github.com/AIINA17/Livekit-Biometric/pkg/artifact"
	"github.com/AIINA17/Livekit-Biometric/pkg/calibration"
	"github.com/AIINA17/Livekit-Biometric/pkg/speaker"
)

// Artifact names written per calibration run.
const (
	reportArtifact     = "report.yaml"
	spoofModelArtifact = "spoof_model.yaml"
	engineArtifact     = "config.yaml"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Fit thresholds and the spoof model from labeled data",
}

// ---------------------------------------------------------------------------
// calibrate eer
// ---------------------------------------------------------------------------

var (
	eerGenuine  string
	eerImpostor string
)

type eerOutput struct {
	Threshold float64 `json:"threshold" yaml:"threshold"`
	EER       float64 `json:"eer" yaml:"eer"`
	Genuine   int     `json:"genuine" yaml:"genuine"`
	Impostor  int     `json:"impostor" yaml:"impostor"`
}

var calibrateEERCmd = &cobra.Command{
	Use:   "eer --genuine <file> --impostor <file>",
	Short: "Find the equal error rate threshold of two score lists",
	Long: `Read one score per line from each file and report the threshold where
the false accept and false reject rates are closest. Blank lines and lines
starting with '#' are ignored.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		genuine, err := readScores(eerGenuine)
		if err != nil {
			return err
		}
		impostor, err := readScores(eerImpostor)
		if err != nil {
			return err
		}
		t, eer, err := calibration.FindEERThreshold(genuine, impostor)
		if err != nil {
			return err
		}
		return output(cmd.OutOrStdout(), eerOutput{
			Threshold: t,
			EER:       eer,
			Genuine:   len(genuine),
			Impostor:  len(impostor),
		})
	},
}

// ---------------------------------------------------------------------------
// calibrate run
// ---------------------------------------------------------------------------

var (
	runSpeaker     bool
	runFusion      bool
	runConcurrency int
	runOut         string
	runC           float64
)

type runOutput struct {
	Run      string             `json:"run" yaml:"run"`
	Location string             `json:"location" yaml:"location"`
	Report   calibration.Report `json:"report" yaml:"report"`
}

var calibrateRunCmd = &cobra.Command{
	Use:   "run <corpus-dir>",
	Short: "Calibrate from a labeled corpus directory",
	Long: `Score a labeled corpus and fit operating points. The corpus layout is

  <corpus-dir>/enroll*.wav   reference recordings of the genuine speaker
  <corpus-dir>/genuine/      genuine live speech
  <corpus-dir>/impostor/     other speakers
  <corpus-dir>/spoof/        replayed or synthetic speech

A spoof model is fitted when spoof recordings exist. With --speaker the
speaker and combined thresholds are fitted too, which needs enroll files.

Results go to --out (a directory or s3://bucket/prefix) under a run name:
report.yaml, spoof_model.yaml and config.yaml, an engine configuration
with the fitted values applied.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadEngine()
		if err != nil {
			return err
		}
		corpus, err := calibration.CorpusFromDir(args[0])
		if err != nil {
			return err
		}
		scorer, err := antispoof.NewScorer(cfg.SpoofModel.Model)
		if err != nil {
			return err
		}

		opts := []calibration.Option{
			calibration.WithLogger(newLogger()),
			calibration.WithFitOptions(calibration.FitOptions{C: runC}),
		}
		if runConcurrency > 0 {
			opts = append(opts, calibration.WithConcurrency(runConcurrency))
		}
		if runSpeaker {
			opts = append(opts, calibration.WithEmbedder(speaker.NewMelEmbedder(speaker.DefaultMelConfig())))
		}
		if runFusion {
			opts = append(opts, calibration.WithFusion(cfg.Fusion.Weights))
		}

		report, err := calibration.Calibrate(cmd.Context(), corpus, scorer, opts...)
		if err != nil {
			return err
		}

		// Apply the fitted values to the loaded engine config.
		cfg.Decision, err = report.DecisionConfig(cfg.Decision)
		if err != nil {
			return fmt.Errorf("fitted thresholds: %w", err)
		}
		if report.SpoofModel != nil {
			cfg.SpoofModel.Model = *report.SpoofModel
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("fitted config: %w", err)
		}

		loc := runOut
		if loc == "" {
			p, err := paths()
			if err != nil {
				return err
			}
			loc = p.ArtifactsDir()
		}
		store, err := openArtifacts(loc)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		run := report.CreatedAt.UTC().Format("20060102T150405Z")
		if err := artifact.Save(ctx, store, path.Join(run, reportArtifact), report); err != nil {
			return err
		}
		if report.SpoofModel != nil {
			if err := artifact.Save(ctx, store, path.Join(run, spoofModelArtifact), *report.SpoofModel); err != nil {
				return err
			}
		}
		if err := artifact.Save(ctx, store, path.Join(run, engineArtifact), cfg); err != nil {
			return err
		}
		return output(cmd.OutOrStdout(), runOutput{Run: run, Location: loc, Report: report})
	},
}

// ---------------------------------------------------------------------------
// calibrate list / show
// ---------------------------------------------------------------------------

var listFrom string

func artifactLocation() (string, error) {
	if listFrom != "" {
		return listFrom, nil
	}
	p, err := paths()
	if err != nil {
		return "", err
	}
	return p.ArtifactsDir(), nil
}

var calibrateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored calibration artifacts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		loc, err := artifactLocation()
		if err != nil {
			return err
		}
		store, err := openArtifacts(loc)
		if err != nil {
			return err
		}
		names, err := store.List(cmd.Context(), "")
		if err != nil {
			return err
		}
		for _, n := range names {
			fmt.Fprintln(cmd.OutOrStdout(), n)
		}
		return nil
	},
}

type showOutput struct {
	Run    string             `json:"run" yaml:"run"`
	Age    string             `json:"age" yaml:"age"`
	Report calibration.Report `json:"report" yaml:"report"`
}

var calibrateShowCmd = &cobra.Command{
	Use:   "show <run>",
	Short: "Show the report of a calibration run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loc, err := artifactLocation()
		if err != nil {
			return err
		}
		store, err := openArtifacts(loc)
		if err != nil {
			return err
		}
		report, err := artifact.Load[calibration.Report](cmd.Context(), store, path.Join(args[0], reportArtifact))
		if err != nil {
			return fmt.Errorf("run %s: %w", args[0], err)
		}
		return output(cmd.OutOrStdout(), showOutput{
			Run:    args[0],
			Age:    time.Since(report.CreatedAt).Round(time.Second).String(),
			Report: report,
		})
	},
}

func init() {
	calibrateEERCmd.Flags().StringVar(&eerGenuine, "genuine", "", "file of genuine scores, one per line")
	calibrateEERCmd.Flags().StringVar(&eerImpostor, "impostor", "", "file of impostor scores, one per line")
	_ = calibrateEERCmd.MarkFlagRequired("genuine")
	_ = calibrateEERCmd.MarkFlagRequired("impostor")

	calibrateRunCmd.Flags().BoolVar(&runSpeaker, "speaker", false, "also fit speaker and combined thresholds")
	calibrateRunCmd.Flags().BoolVar(&runFusion, "fusion", false, "fuse prosodic similarity into speaker scores")
	calibrateRunCmd.Flags().IntVar(&runConcurrency, "concurrency", 0, "files processed at once (default GOMAXPROCS)")
	calibrateRunCmd.Flags().StringVar(&runOut, "out", "", "artifact location: directory or s3://bucket/prefix")
	calibrateRunCmd.Flags().Float64Var(&runC, "c", 1, "inverse regularization strength of the spoof model")

	calibrateListCmd.Flags().StringVar(&listFrom, "from", "", "artifact location: directory or s3://bucket/prefix")
	calibrateShowCmd.Flags().StringVar(&listFrom, "from", "", "artifact location: directory or s3://bucket/prefix")

	calibrateCmd.AddCommand(calibrateEERCmd)
	calibrateCmd.AddCommand(calibrateRunCmd)
	calibrateCmd.AddCommand(calibrateListCmd)
	calibrateCmd.AddCommand(calibrateShowCmd)
	rootCmd.AddCommand(calibrateCmd)
}
