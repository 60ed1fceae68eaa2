package security

import (
	"golang.org/x/crypto/bcrypt"
)

// Hasher produces the bcrypt password hashes stored for fleet accounts. The tracker only
// verifies tokens; hashes are written by the seed command for the issuing service.
type Hasher struct {
	Cost int
}

// NewHasher clamps cost to bcrypt's range; cost <= 0 selects bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	switch {
	case cost <= 0:
		cost = bcrypt.DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash returns a new bcrypt hash of password.
func (h *Hasher) Hash(password []byte) (string, error) {
	b, err := bcrypt.GenerateFromPassword(password, h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare returns nil if password matches hash.
func (h *Hasher) Compare(hash string, password []byte) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), password)
}

// Reuse returns existing when it already hashes password at h.Cost, and a fresh hash
// otherwise. reused reports which.
func (h *Hasher) Reuse(existing string, password []byte) (hash string, reused bool, err error) {
	if existing != "" && h.Compare(existing, password) == nil {
		if cost, err := bcrypt.Cost([]byte(existing)); err == nil && cost == h.Cost {
			return existing, true, nil
		}
	}
	hash, err = h.Hash(password)
	return hash, false, err
}
