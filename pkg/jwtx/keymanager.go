package jwtx

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/aussiebroadwan/tollgate/pkg/cryptox"
)

// KeyManager owns the signing keys of an instance and the KeySet used to
// verify and publish them.
type KeyManager struct {
	Verifier Verifier
	KeySet   *KeySet

	mu      sync.RWMutex
	signers []Signer
}

// KeyManagerOptions configures NewKeyManager.
type KeyManagerOptions struct {
	// Algorithm is "EdDSA" (default) or "ES256".
	Algorithm string
	Issuer    string
	Audience  []string

	// NumKeys is clamped to [1, 10]; zero means 2.
	NumKeys int

	// PEMKeys loads existing keys instead of generating. The map key is the kid.
	PEMKeys map[string][]byte
}

// NewKeyManager creates the key set. When opts.PEMKeys is empty the keys are
// generated in memory and tokens do not survive a restart.
func NewKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	if opts.Issuer == "" {
		return nil, fmt.Errorf("jwtx: issuer is required")
	}

	km := &KeyManager{KeySet: NewKeySet()}
	km.Verifier = NewVerifier(km.KeySet, opts.Issuer, opts.Audience)

	if len(opts.PEMKeys) > 0 {
		for kid, pemKey := range opts.PEMKeys {
			s, err := NewSigner(kid, pemKey)
			if err != nil {
				return nil, fmt.Errorf("jwtx: load key %q: %w", kid, err)
			}
			if err := km.AddSigner(s); err != nil {
				return nil, err
			}
		}
		return km, nil
	}

	n := min(max(opts.NumKeys, 0), 10)
	if n == 0 {
		n = 2
	}
	for i := range n {
		pemKey, err := generateKey(opts.Algorithm)
		if err != nil {
			return nil, fmt.Errorf("jwtx: generate key %d: %w", i+1, err)
		}
		s, err := NewSigner("tollgate-"+cryptox.MustGenerateSecret()[:16], pemKey)
		if err != nil {
			return nil, err
		}
		if err := km.AddSigner(s); err != nil {
			return nil, err
		}
	}
	return km, nil
}

func generateKey(alg string) ([]byte, error) {
	switch alg {
	case "", AlgorithmEdDSA:
		return cryptox.GenerateEd25519Key()
	case AlgorithmES256:
		return cryptox.GenerateES256Key()
	default:
		return nil, fmt.Errorf("unsupported algorithm %q", alg)
	}
}

// AddSigner makes s available for signing and publishes its public key.
func (km *KeyManager) AddSigner(s Signer) error {
	if err := km.KeySet.Add(s.PublicJWK()); err != nil {
		return fmt.Errorf("jwtx: publish key: %w", err)
	}
	km.mu.Lock()
	km.signers = append(km.signers, s)
	km.mu.Unlock()
	return nil
}

// GetSigner picks one of the active signers at random.
func (km *KeyManager) GetSigner() Signer {
	km.mu.RLock()
	defer km.mu.RUnlock()
	switch len(km.signers) {
	case 0:
		return nil
	case 1:
		return km.signers[0]
	}
	return km.signers[rand.IntN(len(km.signers))]
}

// Sign signs claims with a randomly chosen active key.
func (km *KeyManager) Sign(c Claims) (string, error) {
	s := km.GetSigner()
	if s == nil {
		return "", ErrNoKey
	}
	return s.Sign(c)
}

func (km *KeyManager) IsReady() bool { return km.KeySet.IsReady() }
