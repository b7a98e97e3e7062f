// Package keyvault holds the logged-in user's identity key pair.
//
// The vault moves through Locked -> Unlocking -> Unlocked -> Locked. The
// private key exists in memory only while Unlocked and is zeroed by Lock.
// Key material at rest is a models.UserKeyMaterial whose private key is
// sealed with AES-256-GCM under an Argon2id key derived from the password.
package keyvault

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/cryptox"
	"github.com/dmitrijs2005/gophchat/internal/models"
)

// State of a Vault.
type State int

const (
	Locked State = iota
	Unlocking
	Unlocked
)

func (s State) String() string {
	switch s {
	case Locked:
		return "locked"
	case Unlocking:
		return "unlocking"
	case Unlocked:
		return "unlocked"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrBusy is returned when Unlock is called while another unlock is running.
var ErrBusy = errors.New("unlock already in progress")

// Vault is safe for concurrent use; it serves a single identity at a time.
type Vault struct {
	params cryptox.KDFParams
	now    func() time.Time
	derive func(ctx context.Context, password, salt []byte, p cryptox.KDFParams) ([]byte, error)

	mu    sync.RWMutex
	state State
	// gen advances on every unlock attempt and every wipe; an attempt only
	// commits if gen is unchanged when its key derivation returns.
	gen        uint64
	userID     string
	publicKey  []byte
	privateKey []byte
}

// New returns a locked vault that uses params for newly registered key
// material. Existing material is always unlocked with its own stored params.
func New(params cryptox.KDFParams) *Vault {
	return &Vault{params: params, now: time.Now, derive: cryptox.AwaitKey}
}

// State returns the current state.
func (v *Vault) State() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

// UserID returns the unlocked identity, or "" when locked.
func (v *Vault) UserID() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.userID
}

// PublicKey returns a copy of the unlocked identity's public key.
func (v *Vault) PublicKey() ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.state != Unlocked {
		return nil, common.ErrLocked
	}
	return common.CloneBytes(v.publicKey), nil
}

// WithPrivateKey runs fn with the private key. The slice is only valid
// inside fn and must not be retained.
func (v *Vault) WithPrivateKey(fn func(priv []byte) error) error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.state != Unlocked {
		return common.ErrLocked
	}
	return fn(v.privateKey)
}

// Enrollment is freshly generated key material together with the key pair
// it protects. Install it with Adopt or drop it with Discard.
type Enrollment struct {
	Material *models.UserKeyMaterial
	keys     *cryptox.KeyPair
}

// Discard zeroes the private key. It is safe to call more than once.
func (e *Enrollment) Discard() {
	if e == nil {
		return
	}
	e.keys.Wipe()
	e.keys = nil
}

// Register creates key material for a new user: a fresh X25519 pair whose
// private half is encrypted under KDF(password, salt). The vault itself is
// not changed; Adopt the enrollment to start a session with it.
func (v *Vault) Register(ctx context.Context, userID string, password []byte) (*Enrollment, error) {
	if userID == "" {
		return nil, fmt.Errorf("empty user id: %w", common.ErrInvalidInput)
	}

	kp, err := cryptox.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	m, err := v.protect(ctx, userID, password, kp)
	if err != nil {
		kp.Wipe()
		return nil, err
	}
	return &Enrollment{Material: m, keys: kp}, nil
}

// ResetKeys generates a brand-new identity for userID. Channel keys wrapped
// to the old public key can no longer be opened with the new private key.
// The currently unlocked key stays in place until the caller has stored the
// returned material and calls Adopt, so a failed remote write leaves the
// previous identity usable.
func (v *Vault) ResetKeys(ctx context.Context, userID string, newPassword []byte) (*Enrollment, error) {
	return v.Register(ctx, userID, newPassword)
}

func (v *Vault) protect(ctx context.Context, userID string, password []byte, kp *cryptox.KeyPair) (*models.UserKeyMaterial, error) {
	salt, err := cryptox.NewSalt()
	if err != nil {
		return nil, err
	}

	key, err := v.derive(ctx, password, salt, v.params)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	ct, iv, err := cryptox.Encrypt(kp.Private, key, []byte(userID))
	if err != nil {
		return nil, err
	}

	return &models.UserKeyMaterial{
		UserID:              userID,
		PublicKey:           common.CloneBytes(kp.Public),
		EncryptedPrivateKey: ct,
		PrivateKeyIV:        iv,
		Salt:                salt,
		KDF:                 v.params,
		UpdatedAt:           v.now().UTC(),
	}, nil
}

// Open decrypts the private key in material with password without touching
// vault state. A wrong password yields common.ErrAuthenticationFailed.
func Open(ctx context.Context, password []byte, material *models.UserKeyMaterial) ([]byte, error) {
	return open(ctx, cryptox.AwaitKey, password, material)
}

func open(ctx context.Context, derive func(context.Context, []byte, []byte, cryptox.KDFParams) ([]byte, error),
	password []byte, material *models.UserKeyMaterial) ([]byte, error) {
	if err := material.Validate(); err != nil {
		return nil, err
	}

	key, err := derive(ctx, password, material.Salt, material.KDF)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	priv, err := cryptox.Decrypt(material.EncryptedPrivateKey, material.PrivateKeyIV, key, []byte(material.UserID))
	if err != nil {
		if errors.Is(err, common.ErrDecryptionFailed) {
			return nil, common.ErrAuthenticationFailed
		}
		return nil, err
	}

	if !cryptox.Matches(material.PublicKey, priv) {
		common.WipeByteArray(priv)
		return nil, fmt.Errorf("private key does not match public key: %w", common.ErrAuthenticationFailed)
	}
	return priv, nil
}

// Unlock re-derives the password key from material's salt, decrypts the
// private key and moves the vault to Unlocked. Any key from a previous
// session is wiped first. If Lock or another attempt supersedes this one
// while the key is being derived, Unlock leaves the vault alone and
// returns the derivation error or common.ErrLocked.
func (v *Vault) Unlock(ctx context.Context, userID string, password []byte, material *models.UserKeyMaterial) error {
	if material != nil && material.UserID != userID {
		return fmt.Errorf("key material belongs to another user: %w", common.ErrInvalidInput)
	}

	v.mu.Lock()
	if v.state == Unlocking {
		v.mu.Unlock()
		return ErrBusy
	}
	v.wipeLocked()
	v.state = Unlocking
	gen := v.gen
	v.mu.Unlock()

	priv, err := open(ctx, v.derive, password, material)

	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen {
		common.WipeByteArray(priv)
		if err != nil {
			return err
		}
		return common.ErrLocked
	}
	if err != nil {
		v.state = Locked
		return err
	}
	v.install(userID, material.PublicKey, priv)
	return nil
}

// Adopt switches the vault to a stored enrollment without deriving the
// password key again. The previous key is wiped and e is consumed.
func (v *Vault) Adopt(e *Enrollment) error {
	if e == nil || e.keys == nil {
		return fmt.Errorf("enrollment already used: %w", common.ErrInvalidInput)
	}
	priv := common.CloneBytes(e.keys.Private)
	e.Discard()

	v.mu.Lock()
	defer v.mu.Unlock()
	v.wipeLocked()
	v.install(e.Material.UserID, e.Material.PublicKey, priv)
	return nil
}

func (v *Vault) install(userID string, pub, priv []byte) {
	v.userID = userID
	v.publicKey = common.CloneBytes(pub)
	v.privateKey = priv
	v.state = Unlocked
}

// Lock zeroes the private key and returns to Locked. An unlock still
// deriving its key will not complete.
func (v *Vault) Lock() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.wipeLocked()
}

func (v *Vault) wipeLocked() {
	common.WipeByteArray(v.privateKey)
	v.privateKey = nil
	v.publicKey = nil
	v.userID = ""
	v.state = Locked
	v.gen++
}
