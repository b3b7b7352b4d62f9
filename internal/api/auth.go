package api

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Headers of a signed request. The signature covers the method, request URI,
// body hash, timestamp and nonce.
const (
	CallerHeader    = "X-Wager-Caller"
	TimestampHeader = "X-Wager-Timestamp"
	NonceHeader     = "X-Wager-Nonce"
	SignatureHeader = "X-Wager-Signature"
)

const (
	DefaultSignatureWindow = 5 * time.Minute
	maxNonceLen            = 128
	maxBodyBytes           = 1 << 20
)

var (
	errUnsigned      = errors.New("signed request required")
	errBadCaller     = errors.New("invalid " + CallerHeader + " header")
	errBadSignature  = errors.New("signature does not match caller")
	errStaleRequest  = errors.New("request timestamp outside window")
	errReplayedNonce = errors.New("nonce already used")
)

// RequestDigest returns the hash a caller signs for a request. It is the
// personal_sign hash of
//
//	METHOD \n URI \n keccak256(body) \n unix-seconds \n nonce
func RequestDigest(method, uri string, body []byte, timestamp int64, nonce string) []byte {
	msg := strings.Join([]string{
		method,
		uri,
		hexutil.Encode(crypto.Keccak256(body)),
		strconv.FormatInt(timestamp, 10),
		nonce,
	}, "\n")
	return crypto.Keccak256([]byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(msg), msg)))
}

// SignRequest sets the signing headers on req for a body signed by key.
func SignRequest(req *http.Request, key *ecdsa.PrivateKey, body []byte, nonce string, at time.Time) error {
	ts := at.Unix()
	sig, err := crypto.Sign(RequestDigest(req.Method, req.URL.RequestURI(), body, ts, nonce), key)
	if err != nil {
		return fmt.Errorf("signing request: %w", err)
	}
	req.Header.Set(CallerHeader, crypto.PubkeyToAddress(key.PublicKey).Hex())
	req.Header.Set(TimestampHeader, strconv.FormatInt(ts, 10))
	req.Header.Set(NonceHeader, nonce)
	req.Header.Set(SignatureHeader, hexutil.Encode(sig))
	return nil
}

// Verifier authenticates signed requests. A nonce is accepted once per
// caller while its timestamp is inside the window.
type Verifier struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time // caller/nonce -> expiry
}

func NewVerifier(window time.Duration, now func() time.Time) *Verifier {
	if window <= 0 {
		window = DefaultSignatureWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Verifier{window: window, now: now, seen: make(map[string]time.Time)}
}

// Verify returns the address that signed r with the given body.
func (v *Verifier) Verify(r *http.Request, body []byte) (common.Address, error) {
	raw := strings.TrimSpace(r.Header.Get(CallerHeader))
	if raw == "" {
		return common.Address{}, errUnsigned
	}
	if !common.IsHexAddress(raw) {
		return common.Address{}, errBadCaller
	}
	claimed := common.HexToAddress(raw)

	tsRaw, nonce, sigRaw := r.Header.Get(TimestampHeader), r.Header.Get(NonceHeader), r.Header.Get(SignatureHeader)
	if tsRaw == "" || nonce == "" || sigRaw == "" {
		return common.Address{}, errUnsigned
	}
	if len(nonce) > maxNonceLen {
		return common.Address{}, fmt.Errorf("%w: nonce too long", errUnsigned)
	}
	ts, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: bad timestamp", errUnsigned)
	}
	now := v.now()
	signedAt := time.Unix(ts, 0)
	if signedAt.Before(now.Add(-v.window)) || signedAt.After(now.Add(v.window)) {
		return common.Address{}, errStaleRequest
	}

	sig, err := hexutil.Decode(sigRaw)
	if err != nil || len(sig) != crypto.SignatureLength {
		return common.Address{}, errBadSignature
	}
	// Wallets produce v as 27/28.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(RequestDigest(r.Method, r.URL.RequestURI(), body, ts, nonce), sig)
	if err != nil || crypto.PubkeyToAddress(*pub) != claimed {
		return common.Address{}, errBadSignature
	}

	if err := v.useNonce(claimed, nonce, now, signedAt.Add(v.window)); err != nil {
		return common.Address{}, err
	}
	return claimed, nil
}

func (v *Verifier) useNonce(who common.Address, nonce string, now, expiry time.Time) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	for k, exp := range v.seen {
		if !exp.After(now) {
			delete(v.seen, k)
		}
	}
	key := who.Hex() + "/" + nonce
	if _, used := v.seen[key]; used {
		return errReplayedNonce
	}
	v.seen[key] = expiry
	return nil
}

func authStatus(err error) int {
	if errors.Is(err, errBadCaller) {
		return http.StatusBadRequest
	}
	return http.StatusUnauthorized
}
