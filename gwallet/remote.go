package gwallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gordian-engine/gledger/lg/lgledger"
	"github.com/mr-tron/base58"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// RemoteSigner signs by calling a wallet served with [NewHandler].
type RemoteSigner struct {
	baseURL string
	client  *http.Client
}

// NewRemoteSigner returns a signer for the wallet at baseURL,
// such as "http://127.0.0.1:9100".
// A nil client uses an instrumented copy of the default transport.
func NewRemoteSigner(baseURL string, client *http.Client) RemoteSigner {
	if client == nil {
		client = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return RemoteSigner{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
	}
}

type signRequest struct {
	Identity string `json:"identity"`
	Message  string `json:"message"`
}

type signResponse struct {
	Signature string `json:"signature"`
}

type pubKeyResponse struct {
	Identity string `json:"identity"`
	Verkey   string `json:"verkey"`
}

func (s RemoteSigner) Sign(ctx context.Context, identity string, msg []byte) ([]byte, error) {
	body, err := json.Marshal(signRequest{
		Identity: identity,
		Message:  base58.Encode(msg),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sign request: %w", err)
	}

	var res signResponse
	if err := s.do(ctx, http.MethodPost, "/sign", body, &res); err != nil {
		return nil, err
	}

	sig, err := base58.Decode(res.Signature)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode signature: %v", lgledger.ErrSigningUnavailable, err)
	}
	return sig, nil
}

// Verkey returns the base58 verification key the remote wallet holds for identity.
func (s RemoteSigner) Verkey(ctx context.Context, identity string) (string, error) {
	var res pubKeyResponse
	if err := s.do(ctx, http.MethodGet, "/identities/"+identity, nil, &res); err != nil {
		return "", err
	}
	return res.Verkey, nil
}

func (s RemoteSigner) do(ctx context.Context, method, path string, body []byte, out any) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: %v", lgledger.ErrSigningUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// Handled below.
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", lgledger.ErrUnknownIdentity, readMessage(resp.Body))
	default:
		return fmt.Errorf(
			"%w: remote wallet returned %s: %s",
			lgledger.ErrSigningUnavailable, resp.Status, readMessage(resp.Body),
		)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", lgledger.ErrSigningUnavailable, err)
	}
	return nil
}

func readMessage(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 1024))
	return strings.TrimSpace(string(b))
}
