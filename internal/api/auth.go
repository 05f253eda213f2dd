package api

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/mr-tron/base58"

	"time-ledger/internal/domain"
)

// Request signing headers. Every state-changing request carries all three.
const (
	HeaderSigner    = "X-Signer"    // base58 address, the signer's ed25519 public key
	HeaderTimestamp = "X-Timestamp" // unix milliseconds
	HeaderSignature = "X-Signature" // base58 ed25519 signature of SigningPayload
)

const (
	// signatureWindow bounds how far a request timestamp may drift from the
	// server clock.
	signatureWindow = 5 * time.Minute
	maxBodyBytes    = 1 << 20
	pruneThreshold  = 1024
)

var (
	errUnauthorized = errors.New("unauthorized")
	errForbidden    = errors.New("forbidden")
)

type signerKey struct{}

// SigningPayload returns the bytes signed for a request:
// method, path, timestamp and body separated by newlines.
func SigningPayload(method, path string, timestamp int64, body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(method)
	buf.WriteByte('\n')
	buf.WriteString(path)
	buf.WriteByte('\n')
	buf.WriteString(strconv.FormatInt(timestamp, 10))
	buf.WriteByte('\n')
	buf.Write(body)
	return buf.Bytes()
}

// SignRequest sets the signing headers on req. body must be the bytes
// req will send.
func SignRequest(req *http.Request, key ed25519.PrivateKey, at time.Time, body []byte) error {
	signer, err := domain.AddressFromPublicKey(key.Public().(ed25519.PublicKey))
	if err != nil {
		return err
	}
	ts := at.UnixMilli()
	sig := ed25519.Sign(key, SigningPayload(req.Method, req.URL.Path, ts, body))

	req.Header.Set(HeaderSigner, signer.String())
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderSignature, base58.Encode(sig))
	return nil
}

// authenticator verifies request signatures and rejects replays. A signer's
// timestamps must strictly increase.
type authenticator struct {
	now func() time.Time

	mu   sync.Mutex
	last map[domain.Address]int64
}

func newAuthenticator(now func() time.Time) *authenticator {
	return &authenticator{now: now, last: make(map[domain.Address]int64)}
}

func (a *authenticator) verify(r *http.Request, body []byte) (domain.Address, error) {
	signer, err := domain.ParseAddress(r.Header.Get(HeaderSigner))
	if err != nil {
		return domain.Address{}, fmt.Errorf("%w: signer: %v", errUnauthorized, err)
	}
	if !signer.IsOnCurve() {
		return domain.Address{}, fmt.Errorf("%w: signer %s is not a user address", errUnauthorized, signer)
	}
	ts, err := strconv.ParseInt(r.Header.Get(HeaderTimestamp), 10, 64)
	if err != nil {
		return domain.Address{}, fmt.Errorf("%w: timestamp: %v", errUnauthorized, err)
	}
	sig, err := base58.Decode(r.Header.Get(HeaderSignature))
	if err != nil || len(sig) != ed25519.SignatureSize {
		return domain.Address{}, fmt.Errorf("%w: malformed signature", errUnauthorized)
	}

	now := a.now()
	drift := now.Sub(time.UnixMilli(ts))
	if drift > signatureWindow || drift < -signatureWindow {
		return domain.Address{}, fmt.Errorf("%w: timestamp outside the accepted window", errUnauthorized)
	}
	if !ed25519.Verify(ed25519.PublicKey(signer[:]), SigningPayload(r.Method, r.URL.Path, ts, body), sig) {
		return domain.Address{}, fmt.Errorf("%w: bad signature", errUnauthorized)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if ts <= a.last[signer] {
		return domain.Address{}, fmt.Errorf("%w: replayed timestamp", errUnauthorized)
	}
	a.last[signer] = ts
	if len(a.last) > pruneThreshold {
		a.prune(now)
	}
	return signer, nil
}

// prune drops signers whose last timestamp is already outside the window;
// a replay of their requests fails the window check anyway.
func (a *authenticator) prune(now time.Time) {
	cutoff := now.Add(-signatureWindow).UnixMilli()
	for signer, ts := range a.last {
		if ts < cutoff {
			delete(a.last, signer)
		}
	}
}

// authenticate requires a valid signature on every state-changing request
// and records the signer on the request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			s.writeError(w, r, badRequest("read body: %v", err))
			return
		}
		signer, err := s.auth.verify(r, body)
		if err != nil {
			s.log.WithError(err).WithField("path", r.URL.Path).Warn("rejected request")
			s.writeError(w, r, err)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), signerKey{}, signer)))
	})
}

// requireCaller checks that the acting address is present and is the
// address that signed the request.
func requireCaller(r *http.Request, a domain.Address) error {
	if a.IsZero() {
		return badRequest("caller is required")
	}
	signer, ok := r.Context().Value(signerKey{}).(domain.Address)
	if !ok {
		return errUnauthorized
	}
	if signer != a {
		return fmt.Errorf("%w: request signed by %s cannot act for %s", errForbidden, signer.Short(), a.Short())
	}
	return nil
}
