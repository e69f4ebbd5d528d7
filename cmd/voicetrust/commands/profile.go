package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AIINA17/Livekit-Biometric/pkg/profilestore"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Inspect stored enrollments and behavior profiles",
}

type userSummary struct {
	UserID      string   `json:"user_id" yaml:"user_id"`
	Enrollments []string `json:"enrollments" yaml:"enrollments"`
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		users, err := store.Users(ctx)
		if err != nil {
			return err
		}
		out := make([]userSummary, 0, len(users))
		for _, u := range users {
			es, err := store.Enrollments(ctx, u)
			if err != nil {
				return err
			}
			s := userSummary{UserID: u, Enrollments: make([]string, 0, len(es))}
			for _, e := range es {
				s.Enrollments = append(s.Enrollments, e.Label)
			}
			out = append(out, s)
		}
		return output(cmd.OutOrStdout(), out)
	},
}

type enrollmentSummary struct {
	Label     string    `json:"label" yaml:"label"`
	Dimension int       `json:"dimension" yaml:"dimension"`
	Voiced    int       `json:"voiced_frames" yaml:"voiced_frames"`
	Rate      float64   `json:"rate" yaml:"rate"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

type behaviorSummary struct {
	Label      string    `json:"label" yaml:"label"`
	NSamples   uint64    `json:"n_samples" yaml:"n_samples"`
	MeanPitch  float64   `json:"mean_pitch" yaml:"mean_pitch"`
	StdPitch   float64   `json:"std_pitch" yaml:"std_pitch"`
	MeanRate   float64   `json:"mean_rate" yaml:"mean_rate"`
	StdRate    float64   `json:"std_rate" yaml:"std_rate"`
	LastUpdate time.Time `json:"last_update" yaml:"last_update"`
}

type statsSummary struct {
	N          uint64  `json:"n_samples" yaml:"n_samples"`
	MeanScore  float64 `json:"mean_score" yaml:"mean_score"`
	StdScore   float64 `json:"std_score" yaml:"std_score"`
	MeanReplay float64 `json:"mean_replay" yaml:"mean_replay"`
}

type userDetail struct {
	UserID      string              `json:"user_id" yaml:"user_id"`
	Enrollments []enrollmentSummary `json:"enrollments" yaml:"enrollments"`
	Profiles    []behaviorSummary   `json:"profiles,omitempty" yaml:"profiles,omitempty"`
	Stats       *statsSummary       `json:"stats,omitempty" yaml:"stats,omitempty"`
}

var profileShowCmd = &cobra.Command{
	Use:   "show <user>",
	Short: "Show a user's enrollments, behavior profiles and statistics",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()
		user := args[0]
		es, err := store.Enrollments(ctx, user)
		if err != nil {
			return err
		}
		if len(es) == 0 {
			return fmt.Errorf("user %q is not enrolled", user)
		}
		d := userDetail{UserID: user}
		for _, e := range es {
			d.Enrollments = append(d.Enrollments, enrollmentSummary{
				Label:     e.Label,
				Dimension: len(e.Embedding),
				Voiced:    len(e.Contour),
				Rate:      e.Rate,
				CreatedAt: e.CreatedAt,
			})
		}

		ps, err := store.BehaviorProfiles(ctx, user)
		if err != nil {
			return err
		}
		for _, p := range ps {
			d.Profiles = append(d.Profiles, behaviorSummary{
				Label:      p.Label,
				NSamples:   p.NSamples,
				MeanPitch:  p.MeanPitch,
				StdPitch:   p.StdPitch(),
				MeanRate:   p.MeanRate,
				StdRate:    p.StdRate(),
				LastUpdate: p.LastUpdate,
			})
		}

		st, err := store.UserStats(ctx, user)
		switch {
		case err == nil:
			d.Stats = &statsSummary{N: st.N, MeanScore: st.MeanScore, StdScore: st.StdScore(), MeanReplay: st.MeanReplay}
		case !errors.Is(err, profilestore.ErrNotFound):
			return err
		}
		return output(cmd.OutOrStdout(), d)
	},
}

func init() {
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileShowCmd)
	rootCmd.AddCommand(profileCmd)
}
