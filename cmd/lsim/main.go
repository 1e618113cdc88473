package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"lifesim/internal/advisory"
	cl "lifesim/internal/cli"
	"lifesim/internal/config"
	"lifesim/internal/money"
	"lifesim/internal/store"
	"lifesim/internal/syncq"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "lsim",
		Short:        "Life simulation CLI client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newSignupCmd(&apiBase),
		newLoginCmd(&apiBase),
		newLogoutCmd(),
		newCatalogCmd(&apiBase),
		newHoldingsCmd(&apiBase),
		newBuyCmd(&apiBase),
		newSellCmd(&apiBase),
		newPreviewCmd(&apiBase),
		newMentorCmd(&apiBase),
		newMissionCmd(&apiBase),
		newNotificationsCmd(&apiBase),
		newSyncCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func requireSession() (cl.Session, error) {
	sess, err := cl.LoadSession()
	if err != nil {
		return cl.Session{}, fmt.Errorf("login required: %w", err)
	}
	return sess, nil
}

func newSignupCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptRequired("Password")
			if err != nil {
				return err
			}
			username, err := promptOptional("Username (optional)")
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			session, err := newClient(apiBase).Signup(ctx, email, password, username)
			if err != nil {
				return err
			}
			if strings.TrimSpace(session.AccessToken) == "" {
				printWarn("Signup created. Verify email, then run `lsim login`.")
				return nil
			}
			if err := cl.SaveSession(cl.Session{
				AccessToken:  session.AccessToken,
				RefreshToken: session.RefreshToken,
				Email:        session.User.Email,
				UserID:       session.User.ID,
				ExpiresAt:    cl.ExpiryFromNow(session.ExpiresIn),
			}); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Signup complete. Starting balance: $%s", money.Format(store.StarterBalance)))
			return nil
		},
	}
}

func newLoginCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in and save the session locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptRequired("Password")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			session, err := newClient(apiBase).Login(ctx, email, password)
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.Session{
				AccessToken:  session.AccessToken,
				RefreshToken: session.RefreshToken,
				Email:        session.User.Email,
				UserID:       session.User.ID,
				ExpiresAt:    cl.ExpiryFromNow(session.ExpiresIn),
			}); err != nil {
				return err
			}
			printSuccess("Login successful.")
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear local session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newCatalogCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List lifestyle items for sale",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			items, err := newClient(apiBase).Catalog(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			renderCatalog(items)
			return nil
		},
	}
}

func newHoldingsCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:     "holdings",
		Short:   "Show the lifestyle items you own",
		Aliases: []string{"owned"},
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			holdings, err := newClient(apiBase).Holdings(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			renderHoldings(holdings)
			return nil
		},
	}
}

func newBuyCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "buy [item-id]",
		Short: "Buy a lifestyle item from the catalog",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			itemID, err := uuidFromArgsOrPrompt(args, "Item ID")
			if err != nil {
				return err
			}
			idem := uuid.NewString()
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Buy(ctx, sess.AccessToken, itemID, idem)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Method:         "POST",
					Path:           cl.BuyPath(),
					Body:           cl.BuyBody(itemID),
					IdempotencyKey: idem,
					Label:          "buy " + itemID.String(),
				})
			}
			renderPurchase(out)
			return nil
		},
	}
}

func newSellCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sell [holding-id]",
		Short: "Sell an owned item at its depreciated value",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			holdingID, err := uuidFromArgsOrPrompt(args, "Holding ID")
			if err != nil {
				return err
			}
			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			preview, err := client.Preview(ctx, sess.AccessToken, holdingID)
			switch {
			case err == nil:
				renderPreview(preview)
			case cl.IsAPIError(err):
				return err
			default:
				printWarn("Could not reach the API for a sale preview.")
			}
			choice, err := promptChoice("Sell now", []string{"yes", "no"}, "no")
			if err != nil {
				return err
			}
			if choice != "yes" {
				printInfo("Kept.")
				return nil
			}

			idem := uuid.NewString()
			out, err := client.Sell(ctx, sess.AccessToken, holdingID, idem)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Method:         "POST",
					Path:           cl.SellPath(holdingID),
					Body:           map[string]any{},
					IdempotencyKey: idem,
					Label:          "sell " + holdingID.String(),
				})
			}
			renderSale(out)
			return nil
		},
	}
}

func newPreviewCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "preview [holding-id]",
		Short: "Show what an owned item is worth now and next month",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			holdingID, err := uuidFromArgsOrPrompt(args, "Holding ID")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			preview, err := newClient(apiBase).Preview(ctx, sess.AccessToken, holdingID)
			if err != nil {
				return err
			}
			renderPreview(preview)
			return nil
		},
	}
}

func newMentorCmd(apiBase *string) *cobra.Command {
	mentor := &cobra.Command{
		Use:     "mentor",
		Short:   "Mentor advice commands",
		Aliases: []string{"mentors"},
	}
	mentor.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Show your mentors",
			RunE: func(cmd *cobra.Command, args []string) error {
				sess, err := requireSession()
				if err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				mentors, err := newClient(apiBase).Mentors(ctx, sess.AccessToken)
				if err != nil {
					return err
				}
				renderMentors(mentors)
				return nil
			},
		},
		&cobra.Command{
			Use:   "metrics",
			Short: "Show the financial metrics your mentors see",
			RunE: func(cmd *cobra.Command, args []string) error {
				sess, err := requireSession()
				if err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				m, err := newClient(apiBase).MentorMetrics(ctx, sess.AccessToken)
				if err != nil {
					return err
				}
				renderMetrics(m)
				return nil
			},
		},
		&cobra.Command{
			Use:   "messages",
			Short: "Ask your mentors for advice right now",
			RunE: func(cmd *cobra.Command, args []string) error {
				sess, err := requireSession()
				if err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				msgs, err := newClient(apiBase).MentorMessages(ctx, sess.AccessToken)
				if err != nil {
					return err
				}
				renderMessages(msgs)
				return nil
			},
		},
		&cobra.Command{
			Use:   "stats",
			Short: "Show your engagement with mentor advice",
			RunE: func(cmd *cobra.Command, args []string) error {
				sess, err := requireSession()
				if err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				stats, err := newClient(apiBase).MentorStats(ctx, sess.AccessToken)
				if err != nil {
					return err
				}
				renderStats(stats)
				return nil
			},
		},
		&cobra.Command{
			Use:   "follow [interaction-id]",
			Short: "Mark a piece of advice as followed",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				sess, err := requireSession()
				if err != nil {
					return err
				}
				id, err := uuidFromArgsOrPrompt(args, "Interaction ID")
				if err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				it, err := newClient(apiBase).FollowAdvice(ctx, sess.AccessToken, id)
				if err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Advice followed. Points earned: %d", it.PointsEarned))
				return nil
			},
		},
	)
	return mentor
}

func newMissionCmd(apiBase *string) *cobra.Command {
	mission := &cobra.Command{
		Use:   "mission",
		Short: "Mission commands",
	}
	check := &cobra.Command{
		Use:   "check [action]",
		Short: "Check whether the active mission allows an action",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			var action string
			if len(args) > 0 {
				action = strings.TrimSpace(args[0])
			} else {
				action, err = promptChoice("Action", []string{
					advisory.ActionBuyAsset,
					advisory.ActionTakeLoan,
					advisory.ActionChangeJob,
					advisory.ActionRentProperty,
					advisory.ActionSellAsset,
					advisory.ActionBuyLifestyleItem,
				}, advisory.ActionBuyLifestyleItem)
				if err != nil {
					return err
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			d, err := newClient(apiBase).CheckAction(ctx, sess.AccessToken, action, advisory.ActionData{})
			if err != nil {
				return err
			}
			if d.Allowed {
				printSuccess(fmt.Sprintf("%s is allowed.", action))
				return nil
			}
			printWarn(fmt.Sprintf("%s is blocked: %s", action, d.Reason))
			return nil
		},
	}
	mission.AddCommand(check)
	return mission
}

func newNotificationsCmd(apiBase *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:     "notifications",
		Short:   "Show recent notifications",
		Aliases: []string{"inbox"},
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			rows, err := newClient(apiBase).Notifications(ctx, sess.AccessToken, limit)
			if err != nil {
				return err
			}
			renderNotifications(rows)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of notifications to show")
	return cmd
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay locally queued offline writes",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			queue, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()
			res, err := syncq.Replay(ctx, newClient(apiBase), sess.AccessToken)
			for _, q := range res.Rejected {
				printError("Dropped " + commandLabel(q))
			}
			for _, e := range res.Errors {
				printWarn(e.Error())
			}
			if err != nil {
				return err
			}
			remaining := len(queue) - res.Replayed - len(res.Rejected)
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d dropped=%d remaining=%d", res.Replayed, len(res.Rejected), remaining))
			return nil
		},
	}
}

func queueOnNetworkError(err error, q syncq.Command) error {
	if err == nil {
		return nil
	}
	if cl.IsAPIError(err) {
		return err
	}
	if qerr := syncq.Push(q); qerr != nil {
		return fmt.Errorf("request failed and could not be queued: %w", err)
	}
	printWarn(fmt.Sprintf("Offline: queued %s. Run `lsim sync` when back online.", commandLabel(q)))
	return nil
}

func commandLabel(q syncq.Command) string {
	if q.Label != "" {
		return q.Label
	}
	return q.Method + " " + q.Path
}

func uuidFromArgsOrPrompt(args []string, label string) (uuid.UUID, error) {
	text := ""
	if len(args) > 0 {
		text = strings.TrimSpace(args[0])
	} else {
		var err error
		text, err = promptRequired(label)
		if err != nil {
			return uuid.Nil, err
		}
	}
	id, err := uuid.Parse(text)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %q", strings.ToLower(label), text)
	}
	return id, nil
}
