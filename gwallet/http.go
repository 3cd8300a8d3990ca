package gwallet

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gordian-engine/gledger/gcrypto"
	"github.com/gordian-engine/gledger/lg/lgledger"
	"github.com/mr-tron/base58"
)

// NewHandler serves w over HTTP:
//
//	POST /sign                 {"identity","message"} -> {"signature"}
//	GET  /identities/{id}      -> {"identity","verkey"}
//
// Messages, signatures and verkeys are base58.
// Unknown identities are 404 and a locked wallet is 423.
func NewHandler(log *slog.Logger, w *Wallet) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/sign", handleSign(log, w)).Methods("POST")
	r.HandleFunc("/identities/{identity}", handlePubKey(w)).Methods("GET")

	return r
}

func handleSign(log *slog.Logger, wal *Wallet) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		var sr signRequest
		if err := json.NewDecoder(req.Body).Decode(&sr); err != nil {
			http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}

		msg, err := base58.Decode(sr.Message)
		if err != nil {
			http.Error(w, "invalid message encoding: "+err.Error(), http.StatusBadRequest)
			return
		}

		sig, err := wal.Sign(req.Context(), sr.Identity, msg)
		if err != nil {
			writeWalletError(w, err)
			return
		}

		if err := json.NewEncoder(w).Encode(signResponse{Signature: base58.Encode(sig)}); err != nil {
			log.Warn("Failed to write sign response", "err", err)
		}
	}
}

func handlePubKey(wal *Wallet) func(w http.ResponseWriter, req *http.Request) {
	return func(w http.ResponseWriter, req *http.Request) {
		identity := mux.Vars(req)["identity"]

		pub, err := wal.PubKey(identity)
		if err != nil {
			writeWalletError(w, err)
			return
		}

		_ = json.NewEncoder(w).Encode(pubKeyResponse{
			Identity: identity,
			Verkey:   verkey(pub),
		})
	}
}

func verkey(pub gcrypto.PubKey) string {
	return base58.Encode(pub.PubKeyBytes())
}

func writeWalletError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, lgledger.ErrUnknownIdentity):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, lgledger.ErrSigningUnavailable):
		http.Error(w, err.Error(), http.StatusLocked)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
