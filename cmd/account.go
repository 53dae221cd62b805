package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/felipet/lacoctelera-backend/internal/audit"
	"github.com/felipet/lacoctelera-backend/internal/store"
	"github.com/felipet/lacoctelera-backend/internal/store/models"
	"github.com/felipet/lacoctelera-backend/internal/tokens"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"
)

// accountAction runs fn against a fully wired application and flushes pending
// notifications before returning
func accountAction(fn func(ctx *cli.Context, app *application) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		app, cleanup, err := newApplication()
		if err != nil {
			return err
		}
		defer cleanup()
		return fn(ctx, app)
	}
}

func accountID(ctx *cli.Context) (string, error) {
	id := strings.TrimSpace(ctx.Args().First())
	if id == "" {
		return "", errors.New("account id is required")
	}
	return id, nil
}

// withAccountID adapts an action that works on one account
func withAccountID(fn func(ctx context.Context, out io.Writer, app *application, id string) error) cli.ActionFunc {
	return accountAction(func(ctx *cli.Context, app *application) error {
		id, err := accountID(ctx)
		if err != nil {
			return err
		}
		return fn(ctx.Context, ctx.App.Writer, app, id)
	})
}

var AccountCommand = &cli.Command{
	Name:  "account",
	Usage: "Administer API accounts and their tokens",
	Flags: []cli.Flag{dbUriFlag()},
	Subcommands: []*cli.Command{
		{
			Name:  "list",
			Usage: "List accounts",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "state", Usage: "Only accounts in this state (requested, validated, enabled, disabled, rejected)"},
				&cli.IntFlag{Name: "limit", Value: 50, Usage: "Maximum number of accounts"},
				&cli.IntFlag{Name: "offset", Usage: "Accounts to skip"},
			},
			Action: accountAction(func(ctx *cli.Context, app *application) error {
				state := models.AccountState(ctx.String("state"))
				if state != "" && !state.IsKnown() {
					return fmt.Errorf("unknown state %q", state)
				}
				accounts, err := app.service.List(ctx.Context, store.AccountFilter{
					State:            state,
					PaginationParams: store.PaginationParams{Limit: ctx.Int("limit"), Offset: ctx.Int("offset")},
				})
				if err != nil {
					return err
				}
				printAccounts(ctx.App.Writer, accounts)
				return nil
			}),
		},
		{
			Name:      "show",
			Usage:     "Show an account, looked up by id or email",
			ArgsUsage: "<account-id|email>",
			Action: withAccountID(func(ctx context.Context, out io.Writer, app *application, ref string) error {
				account, err := app.service.Find(ctx, ref)
				if err != nil {
					return err
				}
				printAccount(out, account)
				return nil
			}),
		},
		{
			Name:      "validate",
			Usage:     "Mark a request as confirmed",
			ArgsUsage: "<account-id>",
			Action: withAccountID(func(ctx context.Context, out io.Writer, app *application, id string) error {
				account, err := app.service.Validate(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Account %s is %s\n", account.ID, account.State)
				return nil
			}),
		},
		{
			Name:      "enable",
			Usage:     "Enable an account, issuing a token when it holds none",
			ArgsUsage: "<account-id>",
			Action: withAccountID(func(ctx context.Context, out io.Writer, app *application, id string) error {
				result, err := app.service.Enable(ctx, id)
				if result != nil {
					fmt.Fprintf(out, "Account %s is %s\n", result.Account.ID, result.Account.State)
					if result.Token != nil {
						printIssuedToken(out, result.Token)
					}
				}
				return err
			}),
		},
		{
			Name:      "disable",
			Usage:     "Disable an account, its tokens stop working until it is enabled again",
			ArgsUsage: "<account-id>",
			Action: withAccountID(func(ctx context.Context, out io.Writer, app *application, id string) error {
				account, err := app.service.Disable(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Account %s is %s\n", account.ID, account.State)
				return nil
			}),
		},
		{
			Name:      "reject",
			Usage:     "Reject a pending request",
			ArgsUsage: "<account-id>",
			Action: withAccountID(func(ctx context.Context, out io.Writer, app *application, id string) error {
				account, err := app.service.Reject(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Account %s is %s\n", account.ID, account.State)
				return nil
			}),
		},
		{
			Name:      "delete",
			Usage:     "Delete an account and all of its tokens",
			ArgsUsage: "<account-id>",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Do not ask for confirmation"},
			},
			Action: accountAction(func(ctx *cli.Context, app *application) error {
				id, err := accountID(ctx)
				if err != nil {
					return err
				}
				account, err := app.service.Get(ctx.Context, id)
				if err != nil {
					return err
				}
				if !ctx.Bool("yes") {
					if !term.IsTerminal(int(os.Stdin.Fd())) {
						return errors.New("refusing to delete without --yes when stdin is not a terminal")
					}
					if !confirmDeletion(os.Stdin, ctx.App.Writer, account) {
						return errors.New("deletion aborted")
					}
				}
				if err := app.service.Delete(ctx.Context, id); err != nil {
					return err
				}
				fmt.Fprintf(ctx.App.Writer, "Deleted account %s\n", id)
				return nil
			}),
		},
		{
			Name:      "issue-token",
			Usage:     "Issue an additional token for an enabled account",
			ArgsUsage: "<account-id>",
			Action: withAccountID(func(ctx context.Context, out io.Writer, app *application, id string) error {
				issued, err := app.service.IssueToken(ctx, id)
				if err != nil {
					return err
				}
				printIssuedToken(out, issued)
				return nil
			}),
		},
		{
			Name:      "revoke-tokens",
			Usage:     "Revoke every token of an account",
			ArgsUsage: "<account-id>",
			Action: withAccountID(func(ctx context.Context, out io.Writer, app *application, id string) error {
				revoked, err := app.service.RevokeTokens(ctx, id)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Revoked %d token(s)\n", revoked)
				return nil
			}),
		},
		{
			Name:      "history",
			Usage:     "Show the archived lifecycle of an account, deleted accounts included",
			ArgsUsage: "<account-id>",
			Action: withAccountID(func(ctx context.Context, out io.Writer, app *application, id string) error {
				records, err := app.service.History(ctx, id)
				if errors.Is(err, audit.ErrNoHistory) {
					return fmt.Errorf("%w, set LACOCTELERA_AUDIT_STORE_TYPE to filesystem or s3", err)
				}
				if err != nil {
					return err
				}
				printHistory(out, records)
				return nil
			}),
		},
		{
			Name:      "tokens",
			Usage:     "List the tokens of an account",
			ArgsUsage: "<account-id>",
			Action: withAccountID(func(ctx context.Context, out io.Writer, app *application, id string) error {
				owned, err := app.service.ListTokens(ctx, id)
				if err != nil {
					return err
				}
				printTokens(out, owned, time.Now())
				return nil
			}),
		},
	},
}

// confirmDeletion asks the operator to type the account email
func confirmDeletion(in io.Reader, out io.Writer, account *models.APIUser) bool {
	fmt.Fprintf(out, "This deletes account %s (%s) and all of its tokens.\nType the account email to confirm: ", account.ID, account.Email)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(line), account.Email)
}

func printAccounts(out io.Writer, accounts []models.APIUser) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tSTATE\tCREATED")
	for _, a := range accounts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ID, a.Email, a.State, a.CreatedAt.UTC().Format(time.RFC3339))
	}
	w.Flush()
}

func printAccount(out io.Writer, account *models.APIUser) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", account.ID)
	fmt.Fprintf(w, "Name:\t%s\n", account.DisplayName())
	fmt.Fprintf(w, "Email:\t%s\n", account.Email)
	fmt.Fprintf(w, "State:\t%s\n", account.State)
	fmt.Fprintf(w, "Created:\t%s\n", account.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "Explanation:\t%s\n", account.Explanation)
	w.Flush()
}

func printTokens(out io.Writer, owned []models.APIToken, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REF\tCREATED\tVALID UNTIL\tSTATUS")
	for i := range owned {
		status := "active"
		switch {
		case owned[i].IsRevoked():
			status = "revoked"
		case owned[i].IsExpiredAt(now):
			status = "expired"
		case !owned[i].IsActiveAt(now):
			status = "pending"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", owned[i].Ref(),
			owned[i].Created.UTC().Format(time.RFC3339), owned[i].ValidUntil.UTC().Format(time.RFC3339), status)
	}
	w.Flush()
}

func printHistory(out io.Writer, records []audit.Record) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tEVENT\tACTOR\tSTATE\tDETAIL")
	for _, r := range records {
		detail := r.TokenRef
		if r.Event == audit.EventTokensRevoked {
			detail = fmt.Sprintf("%d token(s)", r.Count)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.OccurredAt.UTC().Format(time.RFC3339), r.Event, r.Actor, r.State, detail)
	}
	w.Flush()
}

func printIssuedToken(out io.Writer, issued *tokens.IssuedToken) {
	fmt.Fprintf(out, "Token created successfully!\n")
	fmt.Fprintf(out, "Token ref: %s\n", issued.Record.Ref())
	fmt.Fprintf(out, "Token: %s\n", issued.Token)
	fmt.Fprintf(out, "Valid until: %s\n", issued.Record.ValidUntil.UTC().Format(time.RFC3339))
	fmt.Fprintf(out, "\nSave this token - it cannot be retrieved again!\n")
}
