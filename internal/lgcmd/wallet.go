package lgcmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/gordian-engine/gledger/gdid"
	"github.com/gordian-engine/gledger/gwallet"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func newWalletCmd(log *slog.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Run a signing wallet",
	}

	cmd.AddCommand(newWalletServeCmd(log))
	return cmd
}

func newWalletServeCmd(log *slog.Logger) *cobra.Command {
	var (
		listen string
		seeds  []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a wallet over HTTP for use with submit --remote-signer",
		Args:  cobra.NoArgs,

		RunE: func(cmd *cobra.Command, _ []string) error {
			w := gwallet.New(log.With("sys", "wallet"))
			for _, s := range seeds {
				b, err := gdid.ParseSeed(s)
				if err != nil {
					return fmt.Errorf("invalid --seed: %w", err)
				}
				id, err := w.CreateIdentity(b)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "identity: %s\n", id.DID)
			}

			ln, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", listen, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "url: http://%s\n", ln.Addr())

			return serveWallet(cmd.Context(), log, ln, w)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:9801", "TCP address to listen on")
	cmd.Flags().StringArrayVar(&seeds, "seed", nil, "seed of an identity to hold (repeatable)")

	return cmd
}

func serveWallet(ctx context.Context, log *slog.Logger, ln net.Listener, w *gwallet.Wallet) error {
	srv := &http.Server{
		Handler: otelhttp.NewHandler(gwallet.NewHandler(log.With("sys", "wallethttp"), w), "wallet"),

		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	log.Info("Wallet serving", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("wallet server stopped: %w", err)
	}
	return nil
}
