package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/stratos/foresight/internal/api"
	"github.com/stratos/foresight/internal/types"
	"github.com/stratos/foresight/internal/validator"
)

func newRateCmd() *cobra.Command {
	var (
		agents      []string
		all         bool
		rating      int
		review      string
		suggestions string
		helpful     []string
		show        bool
	)

	cmd := &cobra.Command{
		Use:   "rate <session-id>",
		Short: "Rate agent results of a session",
		Long: `Submit one rating for one or more agents of an analysis session. Agents may
be given by name or by their number in "foresight agents".

Examples:
  foresight rate 1042 --agent 1 --agent "High Impact" --rating 4 --review "Useful"
  foresight rate 1042 --all --rating 5
  foresight rate 1042 --show`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || sessionID <= 0 {
				return fmt.Errorf("invalid session id %q", args[0])
			}

			a, err := newApp(appOptions{raw: true})
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if show {
				if err := a.ping(out); err != nil {
					return err
				}
				return showRatings(cmd, a, sessionID)
			}

			roster := a.runner.Roster()
			r := api.Review{
				SessionID:   sessionID,
				Rating:      rating,
				Text:        strings.TrimSpace(review),
				Suggestions: strings.TrimSpace(suggestions),
				Helpful:     helpful,
				UserID:      a.cfg.User.ID,
			}
			if all {
				r.Agents = append(r.Agents, roster...)
			} else {
				r.Agents, err = resolveAgents(roster, agents)
				if err != nil {
					return err
				}
			}

			if err := validator.NewReviewValidator(roster).Validate(r); err != nil {
				return err
			}
			if err := a.ping(out); err != nil {
				return err
			}

			results, err := a.client.SubmitReview(cmd.Context(), r)
			for i, res := range results {
				fmt.Fprintf(out, "%s %s %s\n", successStyle.Render("✓"), r.Agents[i],
					labelStyle.Render(fmt.Sprintf("(rating #%d)", res.RatingID)))
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("Thank you! Submitted %d rating(s): %d/5 - %s",
				len(results), r.Rating, types.RatingLabel(r.Rating))))
			return nil
		},
	}

	cmd.Flags().StringArrayVarP(&agents, "agent", "a", nil, "Agent name or number (repeatable)")
	cmd.Flags().BoolVar(&all, "all", false, "Rate every agent")
	cmd.Flags().IntVarP(&rating, "rating", "s", 0, "Rating from 1 (Poor) to 5 (Excellent)")
	cmd.Flags().StringVar(&review, "review", "", "Review text")
	cmd.Flags().StringVar(&suggestions, "suggestions", "", "Improvement suggestions")
	cmd.Flags().StringSliceVar(&helpful, "helpful", nil, "Helpful aspects, comma separated")
	cmd.Flags().BoolVar(&show, "show", false, "Show the ratings already recorded for the session")
	return cmd
}

// resolveAgents maps names or 1-based roster numbers to agents.
func resolveAgents(roster types.Roster, refs []string) ([]types.AgentName, error) {
	var out []types.AgentName
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if n, err := strconv.Atoi(ref); err == nil {
			if n < 1 || n > len(roster) {
				return nil, fmt.Errorf("agent number %d out of range 1-%d", n, len(roster))
			}
			out = append(out, roster[n-1])
			continue
		}

		found := false
		for _, name := range roster {
			if strings.EqualFold(string(name), ref) {
				out = append(out, name)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown agent %q (see foresight agents)", ref)
		}
	}
	return out, nil
}

func showRatings(cmd *cobra.Command, a *app, sessionID int64) error {
	out := cmd.OutOrStdout()
	got, err := a.client.GetSessionRatings(cmd.Context(), sessionID)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Ratings for session %d", sessionID)))
	if got.TotalRatings == 0 {
		fmt.Fprintln(out, labelStyle.Render("No ratings yet."))
		return nil
	}

	names := make([]string, 0, len(got.RatingsByAgent))
	for name := range got.RatingsByAgent {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Fprintln(out, valueStyle.Render(name))
		for _, raw := range got.RatingsByAgent[name] {
			var r struct {
				Rating     int     `json:"rating"`
				ReviewText *string `json:"review_text"`
			}
			if err := json.Unmarshal(raw, &r); err != nil {
				continue
			}
			line := fmt.Sprintf("  %s%s %s", strings.Repeat("★", clamp(r.Rating)), strings.Repeat("☆", 5-clamp(r.Rating)), types.RatingLabel(r.Rating))
			if r.ReviewText != nil && *r.ReviewText != "" {
				line += labelStyle.Render("  " + *r.ReviewText)
			}
			fmt.Fprintln(out, line)
		}
	}
	fmt.Fprintln(out, labelStyle.Render(fmt.Sprintf("%d rating(s)", got.TotalRatings)))
	return nil
}

func clamp(rating int) int {
	if rating < 0 {
		return 0
	}
	if rating > 5 {
		return 5
	}
	return rating
}
