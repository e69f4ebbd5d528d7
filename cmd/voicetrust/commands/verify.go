package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AIINA17/Livekit-Biometric/pkg/audio/waveform"
	"github.com/AIINA17/Livekit-Biometric/pkg/voicetrust"
)

var verifyRetry bool

var verifyCmd = &cobra.Command{
	Use:   "verify <user> <audio>",
	Short: "Verify a recording against a user's enrollments",
	Long: `Run one verification attempt: speaker matching, spoof and replay
scoring, the decision engine and the trusted behavior-profile update.

--retry marks the attempt as following a REPEAT or DENIED outcome; retries
never update the profile or the user statistics.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := waveform.Load(args[1])
		if err != nil {
			return fmt.Errorf("load %s: %w", args[1], err)
		}

		v, store, err := openVerifier()
		if err != nil {
			return err
		}
		defer store.Close()

		res, err := v.Verify(cmd.Context(), voicetrust.Request{
			UserID:  args[0],
			Audio:   w,
			IsRetry: verifyRetry,
		})
		if err != nil {
			return err
		}
		return output(cmd.OutOrStdout(), res)
	},
}

func init() {
	verifyCmd.Flags().BoolVar(&verifyRetry, "retry", false, "attempt follows a REPEAT or DENIED outcome")
	rootCmd.AddCommand(verifyCmd)
}
