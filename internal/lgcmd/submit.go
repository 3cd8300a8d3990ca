package lgcmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gordian-engine/gledger/gdid"
	"github.com/gordian-engine/gledger/gwallet"
	"github.com/gordian-engine/gledger/lg/lgclient"
	"github.com/gordian-engine/gledger/lg/lgledger"
	"github.com/gordian-engine/gledger/lg/lgpool"
	"github.com/gordian-engine/gledger/lg/lgsign"
	"github.com/gordian-engine/gledger/lg/lgtransport"
	"github.com/gordian-engine/gledger/lg/lgtransport/lghttp"
	"github.com/gordian-engine/gledger/lg/lgtransport/lglibp2p"
	"github.com/libp2p/go-libp2p"
	"github.com/spf13/cobra"
)

type submitFlags struct {
	PoolPath     string
	Seed         string
	Identity     string
	RemoteSigner string
	Within       time.Duration
	Async        bool
}

func newSubmitCmd(log *slog.Logger) *cobra.Command {
	var f submitFlags

	cmd := &cobra.Command{
		Use:   "submit DOCUMENT",
		Short: "Sign a request and submit it to a pool",
		Long: `Sign a request and submit it to the pool described by --pool.

DOCUMENT is JSON, "-" for stdin, or @FILE.
A document with an "operation" field is a complete request whose reqId and identifier are kept.
Any other document is an operation; the request around it is built with a fresh reqId.

The outcome is printed as JSON. The command fails unless the request was committed.`,
		Args: cobra.ExactArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument(cmd, args[0])
			if err != nil {
				return fmt.Errorf("failed to read document: %w", err)
			}
			return runSubmit(cmd, log, f, doc)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&f.PoolPath, "pool", "", "path to the YAML pool configuration")
	fs.StringVar(&f.Seed, "seed", "", "seed of the signing identity, held in an in-process wallet")
	fs.StringVar(&f.Identity, "identity", "", "DID to sign as (defaults to the DID of --seed)")
	fs.StringVar(&f.RemoteSigner, "remote-signer", "", "base URL of a wallet service to sign with instead of --seed")
	fs.DurationVar(&f.Within, "within", 0, "stop waiting for the outcome after this long")
	fs.BoolVar(&f.Async, "async", false, "submit with a completion callback")
	_ = cmd.MarkFlagRequired("pool")
	cmd.MarkFlagsMutuallyExclusive("seed", "remote-signer")
	cmd.MarkFlagsMutuallyExclusive("within", "async")

	return cmd
}

func runSubmit(cmd *cobra.Command, log *slog.Logger, f submitFlags, doc []byte) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	reg := newRegistry()
	cfg, err := lgpool.LoadConfigFile(f.PoolPath, reg)
	if err != nil {
		return err
	}

	httpT := lghttp.NewTransport(lghttp.DefaultConfig())
	router := lgtransport.SchemeRouter{
		"http://":         httpT,
		"https://":        httpT,
		lghttp.UnixPrefix: httpT,
	}
	if needsLibp2p(cfg) {
		h, err := libp2p.New(libp2p.NoListenAddrs)
		if err != nil {
			return fmt.Errorf("failed to start libp2p host: %w", err)
		}
		defer h.Close()
		router["/"] = lglibp2p.NewTransport(h)
	}
	cfg.Transport = router

	signer, identity, err := submitSigner(log, f)
	if err != nil {
		return err
	}

	pool, err := lgpool.Open(ctx, log.With("sys", "pool"), cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	c, err := lgclient.New(log.With("sys", "client"), pool, signer, lgclient.DefaultConfig())
	if err != nil {
		return err
	}

	o, err := submitDocument(ctx, c, f, identity, doc)
	if o.Status != lgledger.StatusPending {
		if werr := writeOutcome(cmd, o); werr != nil {
			return werr
		}
	}
	return err
}

func submitSigner(log *slog.Logger, f submitFlags) (lgsign.Signer, string, error) {
	if f.RemoteSigner != "" {
		if f.Identity == "" {
			return nil, "", errors.New("--identity is required with --remote-signer")
		}
		return gwallet.NewRemoteSigner(f.RemoteSigner, nil), f.Identity, nil
	}

	if f.Seed == "" {
		return nil, "", errors.New("one of --seed or --remote-signer is required")
	}
	seed, err := gdid.ParseSeed(f.Seed)
	if err != nil {
		return nil, "", fmt.Errorf("invalid --seed: %w", err)
	}

	w := gwallet.New(log.With("sys", "wallet"))
	id, err := w.CreateIdentity(seed)
	if err != nil {
		return nil, "", err
	}

	identity := f.Identity
	if identity == "" {
		identity = id.DID
	} else if identity != id.DID {
		// Sign for an existing DID whose key was rotated to this seed.
		w.Import(identity, id.Signer)
	}
	return w, identity, nil
}

func submitDocument(
	ctx context.Context, c *lgclient.Client, f submitFlags, identity string, doc []byte,
) (lgledger.Outcome, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return lgledger.Outcome{}, fmt.Errorf("%w: %v", lgledger.ErrInvalidPayload, err)
	}
	if _, ok := fields["operation"]; ok {
		return c.SignAndSubmitRequest(ctx, identity, doc)
	}

	op := json.RawMessage(doc)
	switch {
	case f.Within > 0:
		return c.SignAndSubmitWithin(ctx, identity, op, f.Within)
	case f.Async:
		type result struct {
			o   lgledger.Outcome
			err error
		}
		ch := make(chan result, 1)
		c.SignAndSubmitAsync(ctx, identity, op, func(o lgledger.Outcome, err error) {
			ch <- result{o: o, err: err}
		})
		select {
		case r := <-ch:
			return r.o, r.err
		case <-ctx.Done():
			return lgledger.Outcome{}, context.Cause(ctx)
		}
	default:
		return c.SignAndSubmit(ctx, identity, op)
	}
}

func needsLibp2p(cfg lgpool.Config) bool {
	for _, n := range cfg.Nodes {
		if strings.HasPrefix(n.Address, "/") {
			return true
		}
	}
	return false
}

type outcomeOutput struct {
	Request   string          `json:"request"`
	Status    string          `json:"status"`
	Votes     int             `json:"votes"`
	Threshold int             `json:"threshold"`
	Reason    string          `json:"reason,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Signed    uint            `json:"signed"`
	Responses []nodeOutput    `json:"responses"`
}

type nodeOutput struct {
	Node  string `json:"node"`
	Error string `json:"error,omitempty"`
}

func writeOutcome(cmd *cobra.Command, o lgledger.Outcome) error {
	out := outcomeOutput{
		Request:   o.Key.String(),
		Status:    o.Status.String(),
		Votes:     o.Votes,
		Threshold: o.Threshold,
		Reason:    o.Reason,
		Responses: make([]nodeOutput, len(o.Responses)),
	}
	if o.Agreed != nil {
		out.Result = o.Agreed.Result
	}
	for i, r := range o.Responses {
		out.Responses[i].Node = r.Node
		if r.Err != nil {
			out.Responses[i].Error = r.Err.Error()
		}
	}
	if o.Proof != nil {
		out.Signed = o.Proof.Count()
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
