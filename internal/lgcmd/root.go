// Package lgcmd contains the cobra commands for the gledger binary.
package lgcmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/gordian-engine/gledger/gcrypto"
	"github.com/spf13/cobra"
)

// NewRootCmd returns the root gledger command.
// Logs are written to stderr as text, or to logOut if it is non-nil.
func NewRootCmd(logOut io.Writer) *cobra.Command {
	var logLevel string
	log := new(slog.Logger)

	root := &cobra.Command{
		Use:   "gledger",
		Short: "Sign ledger requests and submit them to a pool of validator nodes",

		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var lvl slog.Level
			if err := lvl.UnmarshalText([]byte(logLevel)); err != nil {
				return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
			}

			w := logOut
			if w == nil {
				w = os.Stderr
			}
			*log = *slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
			return nil
		},
	}

	root.PersistentFlags().StringVar(
		&logLevel, "log-level", "info", "minimum log level (debug, info, warn, error)",
	)

	root.AddCommand(
		newDIDCmd(),
		newNodeCmd(log),
		newSubmitCmd(log),
		newWalletCmd(log),
	)

	return root
}

// newRegistry returns a registry of every key type nodes may sign replies with.
func newRegistry() *gcrypto.Registry {
	reg := new(gcrypto.Registry)
	gcrypto.RegisterEd25519(reg)
	gcrypto.RegisterSecp256k1(reg)
	return reg
}

// readDocument resolves a command line JSON argument.
// "-" reads stdin and a leading "@" names a file.
func readDocument(cmd *cobra.Command, arg string) ([]byte, error) {
	switch {
	case arg == "-":
		return io.ReadAll(cmd.InOrStdin())
	case strings.HasPrefix(arg, "@"):
		return os.ReadFile(arg[1:])
	default:
		return []byte(arg), nil
	}
}
