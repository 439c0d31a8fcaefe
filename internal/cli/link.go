package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/linkgate/internal/store"
)

// LinkResult is the outcome of link and unlink.
type LinkResult struct {
	Session string `json:"session"`
	Account int64  `json:"account,omitempty"`
	Outcome string `json:"outcome"`
}

func (r LinkResult) String() string {
	if r.Account != 0 {
		return fmt.Sprintf("%s %s -> %d", r.Outcome, r.Session, r.Account)
	}
	return fmt.Sprintf("%s %s", r.Outcome, r.Session)
}

// NewLinkCommand creates the link command.
func NewLinkCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link <session> <account>",
		Short: "Link a session to an account",
		Long: `Link a session identity to an external account id.

The session must already be known (it has joined at least once). A session
linked to a different account, or an account linked to a different session,
is refused; use unlink first.

Exit codes:
  0 - Linked
  1 - Refused (unknown session, or already linked differently)
  2 - Command error (invalid arguments, database unavailable)

Example:
  linkgate link 123e4567-e89b-12d3-a456-426614174000 555 --db ./linkgate.db`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLink(rootOpts, args[0], args[1], cmd)
		},
	}
	return cmd
}

// NewUnlinkCommand creates the unlink command.
func NewUnlinkCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unlink <session>",
		Short: "Clear the account linked to a session",
		Long: `Clear the account linked to a session so it can be linked again.

The session is frozen on its next join until it registers again.

Example:
  linkgate unlink 123e4567-e89b-12d3-a456-426614174000 --db ./linkgate.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUnlink(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runLink(opts *RootOptions, sessionArg, accountArg string, cmd *cobra.Command) error {
	out := formatter(opts, cmd)

	session, err := parseSession(sessionArg)
	if err != nil {
		return invalidArgs(out, err)
	}
	account, err := parseAccount(accountArg)
	if err != nil {
		return invalidArgs(out, err)
	}

	st, err := openStore(opts, out)
	if err != nil {
		return err
	}
	defer st.Close()

	outcome, err := st.TryLink(contextOf(cmd), session, account)
	if err != nil {
		return storeFailure(out, "link", err)
	}

	result := LinkResult{Session: session, Account: account, Outcome: outcome.String()}
	if outcome != store.LinkApplied {
		_ = out.Error(CodeLinkRejected, fmt.Sprintf("link refused: %s", outcome), result)
		return NewExitError(ExitFailure, fmt.Sprintf("link refused: %s", outcome))
	}

	out.VerboseLog("linked %s to %d", session, account)
	return out.Success(result)
}

func runUnlink(opts *RootOptions, sessionArg string, cmd *cobra.Command) error {
	out := formatter(opts, cmd)

	session, err := parseSession(sessionArg)
	if err != nil {
		return invalidArgs(out, err)
	}

	st, err := openStore(opts, out)
	if err != nil {
		return err
	}
	defer st.Close()

	cleared, err := st.Unlink(contextOf(cmd), session)
	if err != nil {
		return storeFailure(out, "unlink", err)
	}

	outcome := "unlinked"
	if !cleared {
		outcome = "not_linked"
	}
	return out.Success(LinkResult{Session: session, Outcome: outcome})
}

// parseSession accepts any uuid spelling and returns the canonical form.
func parseSession(arg string) (string, error) {
	id, err := uuid.Parse(arg)
	if err != nil {
		return "", fmt.Errorf("invalid session %q: %w", arg, err)
	}
	return id.String(), nil
}

// parseAccount parses a non-zero 64-bit account id.
func parseAccount(arg string) (int64, error) {
	account, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid account %q: %w", arg, err)
	}
	if account == 0 {
		return 0, fmt.Errorf("invalid account %q: %w", arg, store.ErrInvalidAccount)
	}
	return account, nil
}

// openStore opens the configured database, reporting failures as command errors.
func openStore(opts *RootOptions, out *OutputFormatter) (*store.Store, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		_ = out.Error(CodeConfig, err.Error(), nil)
		return nil, err
	}
	out.VerboseLog("opening database %s", cfg.Database.Path)
	st, err := store.Open(cfg.Database.Path, store.WithMaxLinks(cfg.MaxLinks))
	if err != nil {
		_ = out.Error(CodeStore, "failed to open database", err.Error())
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

func invalidArgs(out *OutputFormatter, err error) error {
	_ = out.Error(CodeInvalidArgs, err.Error(), nil)
	return WrapExitError(ExitCommandError, "invalid arguments", err)
}

func storeFailure(out *OutputFormatter, op string, err error) error {
	code := ExitFailure
	if errors.Is(err, store.ErrUnavailable) {
		code = ExitCommandError
	}
	_ = out.Error(CodeStore, fmt.Sprintf("%s failed", op), err.Error())
	return WrapExitError(code, op+" failed", err)
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
