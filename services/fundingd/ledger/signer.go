package ledger

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"
)

const ed25519KeyPrefix = "ed25519:"

// Signer holds the oracle identity used to authenticate privileged ledger
// calls. Every oracle_* request is signed with the account's ed25519 key.
type Signer struct {
	accountID string
	key       ed25519.PrivateKey
}

// NewSigner parses an "ed25519:<base58>" encoded private key, the ledger's
// canonical key serialization, and binds it to the oracle account id.
func NewSigner(accountID, encodedKey string) (*Signer, error) {
	account := strings.TrimSpace(accountID)
	if account == "" {
		return nil, fmt.Errorf("oracle account id required")
	}
	raw := strings.TrimSpace(encodedKey)
	if !strings.HasPrefix(raw, ed25519KeyPrefix) {
		return nil, fmt.Errorf("oracle key must be %q encoded", ed25519KeyPrefix+"<base58>")
	}
	decoded := base58.Decode(strings.TrimPrefix(raw, ed25519KeyPrefix))
	switch len(decoded) {
	case ed25519.PrivateKeySize:
		return &Signer{accountID: account, key: ed25519.PrivateKey(decoded)}, nil
	case ed25519.SeedSize:
		return &Signer{accountID: account, key: ed25519.NewKeyFromSeed(decoded)}, nil
	default:
		return nil, fmt.Errorf("oracle key decodes to %d bytes, want %d or %d", len(decoded), ed25519.SeedSize, ed25519.PrivateKeySize)
	}
}

// AccountID returns the oracle account this signer authenticates as.
func (s *Signer) AccountID() string { return s.accountID }

// Sign produces a hex signature over sha256(account|method|timestamp|payload).
func (s *Signer) Sign(method string, timestampMs int64, payload []byte) string {
	digest := sha256.New()
	digest.Write([]byte(s.accountID))
	digest.Write([]byte("|"))
	digest.Write([]byte(method))
	digest.Write([]byte(fmt.Sprintf("|%d|", timestampMs)))
	digest.Write(payload)
	return hex.EncodeToString(ed25519.Sign(s.key, digest.Sum(nil)))
}

// Verify checks a signature produced by Sign. Primarily used in tests.
func (s *Signer) Verify(method string, timestampMs int64, payload []byte, signature string) bool {
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	digest := sha256.New()
	digest.Write([]byte(s.accountID))
	digest.Write([]byte("|"))
	digest.Write([]byte(method))
	digest.Write([]byte(fmt.Sprintf("|%d|", timestampMs)))
	digest.Write(payload)
	return ed25519.Verify(s.key.Public().(ed25519.PublicKey), digest.Sum(nil), sig)
}
