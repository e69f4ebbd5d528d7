package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AIINA17/Livekit-Biometric/pkg/audio/waveform"
)

type enrollOutput struct {
	UserID     string  `json:"user_id" yaml:"user_id"`
	Label      string  `json:"label" yaml:"label"`
	Utterances int     `json:"utterances" yaml:"utterances"`
	Dimension  int     `json:"dimension" yaml:"dimension"`
	Rate       float64 `json:"rate" yaml:"rate"`
	Voiced     int     `json:"voiced_frames" yaml:"voiced_frames"`
}

var enrollCmd = &cobra.Command{
	Use:   "enroll <user> <label> <audio>...",
	Short: "Enroll a speaker from one or more recordings",
	Long: `Enroll a (user, label) voice from recordings. Each voiced recording also
seeds the behavior profile; policy.min_samples recordings make the profile
ready for trusted updates. A user holds at most three enrollments.`,
	Args: cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, label := args[0], args[1]
		utterances := make([]waveform.Waveform, 0, len(args)-2)
		for _, path := range args[2:] {
			w, err := waveform.Load(path)
			if err != nil {
				return fmt.Errorf("load %s: %w", path, err)
			}
			utterances = append(utterances, w)
		}

		v, store, err := openVerifier()
		if err != nil {
			return err
		}
		defer store.Close()

		e, err := v.Enroll(cmd.Context(), user, label, utterances...)
		if err != nil {
			return err
		}
		return output(cmd.OutOrStdout(), enrollOutput{
			UserID:     e.UserID,
			Label:      e.Label,
			Utterances: len(utterances),
			Dimension:  len(e.Embedding),
			Rate:       e.Rate,
			Voiced:     len(e.Contour),
		})
	},
}

var unenrollCmd = &cobra.Command{
	Use:   "unenroll <user> <label>",
	Short: "Remove an enrollment and its behavior profile",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, store, err := openVerifier()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := v.Unenroll(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %s/%s\n", args[0], args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(enrollCmd)
	rootCmd.AddCommand(unenrollCmd)
}
