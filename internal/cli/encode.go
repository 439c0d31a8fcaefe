package cli

import (
	"encoding/base64"
	"encoding/hex"

	"github.com/spf13/cobra"

	"github.com/roach88/linkgate/internal/channel"
)

// EncodeResult is an encoded registration assertion.
type EncodeResult struct {
	Channel string `json:"channel"`
	Hex     string `json:"hex"`
	Base64  string `json:"base64"`
}

func (r EncodeResult) String() string {
	return r.Hex
}

// NewEncodeCommand creates the encode command.
func NewEncodeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encode <session> <account>",
		Short: "Print the side-channel payload asserting a link",
		Long: `Encode the registration assertion the external system sends on the
side channel: an 8-byte big-endian account id followed by the
length-prefixed session identity.

Text output is hex; JSON output adds base64 for the serve bridge.

Example:
  linkgate encode 123e4567-e89b-12d3-a456-426614174000 555`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEncode(rootOpts, args[0], args[1], cmd)
		},
	}
	return cmd
}

func runEncode(opts *RootOptions, sessionArg, accountArg string, cmd *cobra.Command) error {
	out := formatter(opts, cmd)

	session, err := parseSession(sessionArg)
	if err != nil {
		return invalidArgs(out, err)
	}
	account, err := parseAccount(accountArg)
	if err != nil {
		return invalidArgs(out, err)
	}

	payload, err := channel.Encode(channel.Assertion{AccountID: account, SessionID: session})
	if err != nil {
		return invalidArgs(out, err)
	}

	return out.Success(EncodeResult{
		Channel: channel.Name,
		Hex:     hex.EncodeToString(payload),
		Base64:  base64.StdEncoding.EncodeToString(payload),
	})
}
