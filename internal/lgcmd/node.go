package lgcmd

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net"
	"strings"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gordian-engine/gledger/gcrypto"
	"github.com/gordian-engine/gledger/gdid"
	"github.com/gordian-engine/gledger/lg/lgnode"
	"github.com/gordian-engine/gledger/lg/lgpool"
	"github.com/gordian-engine/gledger/lg/lgtransport/lghttp"
	"github.com/gordian-engine/gledger/lg/lgtransport/lglibp2p"
	"github.com/libp2p/go-libp2p"
	lcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/spf13/cobra"
)

type nodeFlags struct {
	Name            string
	Listen          string
	Seed            string
	KeyType         string
	ProtocolVersion uint32
	TrusteeSeeds    []string
}

func newNodeCmd(log *slog.Logger) *cobra.Command {
	var f nodeFlags

	cmd := &cobra.Command{
		Use:   "node",
		Short: "Run a reference ledger node that serves until interrupted",
		Long: `Run a reference ledger node.

--listen selects the transport:
  http://HOST:PORT   HTTP over TCP
  unix:///PATH       HTTP over a unix socket
  /ip4/...           libp2p multiaddr

The node prints its name, its registry-encoded key for pool configuration files,
and the addresses clients should dial.`,
		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, _ []string) error {
			return runNode(cmd, log, f)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.Name, "name", "", "node name to print in the pool entry (random if empty)")
	fs.StringVar(&f.Listen, "listen", "http://127.0.0.1:9701", "listen address")
	fs.StringVar(&f.Seed, "seed", "", "seed for the node's reply signing key (random if empty)")
	fs.StringVar(&f.KeyType, "key-type", "ed25519", "reply signing key type (ed25519 or secp256k1)")
	fs.Uint32Var(&f.ProtocolVersion, "protocol-version", 2, "protocol version the node accepts")
	fs.StringArrayVar(&f.TrusteeSeeds, "trustee-seed", nil, "seed of a genesis trustee identity (repeatable)")

	return cmd
}

func runNode(cmd *cobra.Command, log *slog.Logger, f nodeFlags) error {
	ctx := cmd.Context()

	seed, err := seedOrRandom(f.Seed)
	if err != nil {
		return err
	}

	signer, err := nodeSigner(f.KeyType, seed)
	if err != nil {
		return err
	}

	if f.Name == "" {
		f.Name = petname.Generate(2, "-")
	}

	cfg := lgnode.DefaultConfig()
	cfg.Name = f.Name
	cfg.ProtocolVersion = f.ProtocolVersion
	cfg.Signer = signer
	for _, s := range f.TrusteeSeeds {
		b, err := gdid.ParseSeed(s)
		if err != nil {
			return fmt.Errorf("invalid --trustee-seed: %w", err)
		}
		id, err := gdid.NewIdentity(b)
		if err != nil {
			return err
		}
		cfg.Trustees = append(cfg.Trustees, lgnode.Identity{DID: id.DID, Verkey: id.Verkey})
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	n, err := lgnode.New(ctx, log.With("sys", "node"), cfg)
	if err != nil {
		return err
	}

	var addrs []string
	var wait func()
	if strings.HasPrefix(f.Listen, "/") {
		addrs, wait, err = serveLibp2p(ctx, log, f.Listen, seed, n)
	} else {
		addrs, wait, err = serveHTTP(ctx, log, f.Listen, n)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "name: %s\n", f.Name)
	fmt.Fprintf(out, "key: %s\n", lgpool.EncodeNodeKey(newRegistry(), signer.PubKey()))
	for _, a := range addrs {
		fmt.Fprintf(out, "address: %s\n", a)
	}

	log.Info("Node running", "addrs", addrs, "trustees", len(cfg.Trustees))

	<-ctx.Done()
	wait()
	n.Wait()
	return nil
}

func serveHTTP(ctx context.Context, log *slog.Logger, listen string, n *lgnode.Node) ([]string, func(), error) {
	var network, addr, scheme string
	switch {
	case strings.HasPrefix(listen, lghttp.UnixPrefix):
		network, addr, scheme = "unix", strings.TrimPrefix(listen, lghttp.UnixPrefix), lghttp.UnixPrefix
	case strings.HasPrefix(listen, "http://"):
		network, addr, scheme = "tcp", strings.TrimPrefix(listen, "http://"), "http://"
	default:
		return nil, nil, fmt.Errorf("unsupported listen address %q", listen)
	}

	ln, err := net.Listen(network, addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to listen on %s: %w", listen, err)
	}

	s := lghttp.NewServer(ctx, log.With("sys", "http"), lghttp.ServerConfig{
		Listener: ln,
		Handler:  n,
	})
	return []string{scheme + ln.Addr().String()}, s.Wait, nil
}

func serveLibp2p(
	ctx context.Context, log *slog.Logger, listen string, seed []byte, n *lgnode.Node,
) ([]string, func(), error) {
	priv, err := lcrypto.UnmarshalEd25519PrivateKey(ed25519.NewKeyFromSeed(seed))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to derive host key: %w", err)
	}

	h, err := libp2p.New(libp2p.ListenAddrStrings(listen), libp2p.Identity(priv))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start libp2p host: %w", err)
	}

	lglibp2p.Serve(ctx, log.With("sys", "libp2p"), h, n)

	addrs, err := lglibp2p.HostAddresses(h)
	if err != nil {
		_ = h.Close()
		return nil, nil, err
	}

	return addrs, func() {
		lglibp2p.Stop(h)
		if err := h.Close(); err != nil {
			log.Warn("Failed to close libp2p host", "err", err)
		}
	}, nil
}

func nodeSigner(keyType string, seed []byte) (gcrypto.Signer, error) {
	switch keyType {
	case "ed25519":
		return gcrypto.NewEd25519SignerFromSeed(seed)
	case "secp256k1":
		priv, err := crypto.ToECDSA(crypto.Keccak256(seed))
		if err != nil {
			return nil, fmt.Errorf("failed to derive secp256k1 key: %w", err)
		}
		return gcrypto.NewSecp256k1Signer(priv), nil
	default:
		return nil, fmt.Errorf("unsupported key type %q", keyType)
	}
}

// seedOrRandom parses s, or returns a random seed when s is empty.
func seedOrRandom(s string) ([]byte, error) {
	if s == "" {
		seed := make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			return nil, fmt.Errorf("failed to generate seed: %w", err)
		}
		return seed, nil
	}

	b, err := gdid.ParseSeed(s)
	if err != nil {
		return nil, fmt.Errorf("invalid --seed: %w", err)
	}
	return b, nil
}
