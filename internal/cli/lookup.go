package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/linkgate/internal/store"
)

// RecordResult describes one session's link state.
type RecordResult struct {
	Session     string `json:"session"`
	Known       bool   `json:"known"`
	Linked      bool   `json:"linked"`
	Account     int64  `json:"account,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	LinkedAt    string `json:"linked_at,omitempty"`
}

func (r RecordResult) String() string {
	switch {
	case !r.Known:
		return fmt.Sprintf("%s: unknown (unlinked)", r.Session)
	case !r.Linked:
		return fmt.Sprintf("%s (%s): unlinked", r.Session, r.DisplayName)
	default:
		return fmt.Sprintf("%s (%s): linked to %d since %s", r.Session, r.DisplayName, r.Account, r.LinkedAt)
	}
}

func recordResult(rec store.LinkRecord) RecordResult {
	r := RecordResult{
		Session:     rec.SessionID,
		Known:       true,
		Linked:      rec.Linked,
		Account:     rec.AccountID,
		DisplayName: rec.DisplayName,
		CreatedAt:   rec.CreatedAt.Format(time.RFC3339),
	}
	if !rec.LinkedAt.IsZero() {
		r.LinkedAt = rec.LinkedAt.Format(time.RFC3339)
	}
	return r
}

// NewLookupCommand creates the lookup command.
func NewLookupCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup <session>",
		Short: "Show the account linked to a session",
		Long: `Show the link state of a session. A session that has never joined
reads as unlinked.

Example:
  linkgate lookup 123e4567-e89b-12d3-a456-426614174000 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLookup(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

// NewWhoisCommand creates the whois command.
func NewWhoisCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whois <account>",
		Short: "Show the session linked to an account",
		Long: `Show the session an external account is linked to.

Exit codes:
  0 - Found
  1 - No session holds the account
  2 - Command error

Example:
  linkgate whois 555`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWhois(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runLookup(opts *RootOptions, sessionArg string, cmd *cobra.Command) error {
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

	rec, err := st.Record(contextOf(cmd), session)
	if errors.Is(err, store.ErrNotFound) {
		return out.Success(RecordResult{Session: session})
	}
	if err != nil {
		return storeFailure(out, "lookup", err)
	}
	return out.Success(recordResult(rec))
}

func runWhois(opts *RootOptions, accountArg string, cmd *cobra.Command) error {
	out := formatter(opts, cmd)

	account, err := parseAccount(accountArg)
	if err != nil {
		return invalidArgs(out, err)
	}

	st, err := openStore(opts, out)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := st.FindByAccount(contextOf(cmd), account)
	if errors.Is(err, store.ErrNotFound) {
		msg := fmt.Sprintf("no session linked to account %d", account)
		_ = out.Error(CodeNotFound, msg, nil)
		return NewExitError(ExitFailure, msg)
	}
	if err != nil {
		return storeFailure(out, "whois", err)
	}
	return out.Success(recordResult(rec))
}
