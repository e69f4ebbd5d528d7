package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AIINA17/Livekit-Biometric/pkg/antispoof"
	"github.com/AIINA17/Livekit-Biometric/pkg/audio/waveform"
	"github.com/AIINA17/Livekit-Biometric/pkg/prosody"
)

type scoreOutput struct {
	File       string             `json:"file" yaml:"file"`
	Duration   string             `json:"duration" yaml:"duration"`
	SpoofProb  float64            `json:"spoof_prob" yaml:"spoof_prob"`
	ReplayProb float64            `json:"replay_prob" yaml:"replay_prob"`
	Pitch      float64            `json:"pitch" yaml:"pitch"`
	Rate       float64            `json:"rate" yaml:"rate"`
	Features   antispoof.Features `json:"features" yaml:"features"`
}

var scoreCmd = &cobra.Command{
	Use:   "score <audio>...",
	Short: "Score recordings for spoofing, replay and prosody",
	Long: `Score one or more WAV or MP3 recordings with the configured spoof model.

spoof_prob is the calibrated genuineness (higher is more genuine),
replay_prob the loudspeaker playback heuristic.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadEngine()
		if err != nil {
			return err
		}
		scorer, err := antispoof.NewScorer(cfg.SpoofModel.Model)
		if err != nil {
			return err
		}
		analyzer := prosody.New(prosody.DefaultConfig())

		outs := make([]scoreOutput, 0, len(args))
		for _, path := range args {
			w, err := waveform.Load(path)
			if err != nil {
				return fmt.Errorf("load %s: %w", path, err)
			}
			res, err := scorer.Score(w)
			if err != nil {
				return fmt.Errorf("score %s: %w", path, err)
			}
			pf, err := analyzer.Analyze(w)
			if err != nil {
				return fmt.Errorf("prosody %s: %w", path, err)
			}
			outs = append(outs, scoreOutput{
				File:       path,
				Duration:   w.Duration().String(),
				SpoofProb:  res.SpoofProb,
				ReplayProb: res.ReplayProb,
				Pitch:      pf.Pitch,
				Rate:       pf.Rate,
				Features:   res.Features,
			})
		}
		if len(outs) == 1 {
			return output(cmd.OutOrStdout(), outs[0])
		}
		return output(cmd.OutOrStdout(), outs)
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)
}
