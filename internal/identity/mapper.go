package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/crossjohn/internal/directory"
	"github.com/dropDatabas3/crossjohn/internal/observability/logger"
	"github.com/dropDatabas3/crossjohn/internal/security/password"
	"github.com/dropDatabas3/crossjohn/internal/store"
	"github.com/dropDatabas3/crossjohn/internal/util"
)

const (
	partAccount = "account"
	partMapping = "mapping"
)

func accountKey(id string) store.Key {
	return store.Key{Partition: partAccount, Row: id}
}

func mappingKey(method, subject string) store.Key {
	return store.Key{Partition: partMapping, Row: method + "|" + subject}
}

// Directory is the slice of the directory client the mapper consumes.
type Directory interface {
	Create(ctx context.Context, rec directory.UserRecord) error
	Delete(ctx context.Context, subject string) error
}

// Mapper implements account creation, credential linking and subject
// resolution over the backing store and the external directory.
//
// The store offers no multi-key transactions; consistency comes from write
// ordering. Creation order is directory record, then mapping, then account:
// a failure at any step leaves no local record claiming an account the
// directory never saw.
type Mapper struct {
	KV        store.KV
	Directory Directory // nil cuando no hay directorio externo configurado
	Policy    password.Policy
	Hashing   password.Params
}

func NewMapper(kv store.KV, dir Directory) *Mapper {
	return &Mapper{KV: kv, Directory: dir, Policy: password.DefaultPolicy, Hashing: password.Default}
}

// CreateAccount creates the account and its first (local) credential
// mapping. The subject doubles as the local username.
func (m *Mapper) CreateAccount(ctx context.Context, displayName, subject string, isEmailLike bool, secret string, forceChange bool) (string, error) {
	log := logger.From(ctx).With(logger.Layer("identity"), logger.Op("CreateAccount"))

	if subject == "" {
		return "", fmt.Errorf("identity: subject required")
	}
	phc := ""
	if secret != "" {
		if ok, reasons := m.Policy.Validate(secret); !ok {
			return "", &PasswordPolicyError{Reasons: reasons}
		}
		var err error
		phc, err = password.Hash(m.Hashing, secret)
		if err != nil {
			return "", fmt.Errorf("identity: hash secret: %w", err)
		}
	}

	if m.Directory != nil {
		err := m.Directory.Create(ctx, directory.UserRecord{
			Subject:     subject,
			DisplayName: displayName,
			EmailLike:   isEmailLike,
		})
		if errors.Is(err, directory.ErrAlreadyExists) {
			existing, _ := m.ResolveBySubject(ctx, "local", subject)
			return "", &AlreadyExistsError{AccountID: existing}
		}
		if err != nil {
			return "", fmt.Errorf("identity: directory create: %w", err)
		}
	}

	accountID := uuid.NewString()
	now := time.Now().UTC()

	isNew, rec, err := m.KV.CreateOrGet(ctx, mappingKey("local", subject), mustJSON(Mapping{
		Method:    "local",
		Subject:   subject,
		AccountID: accountID,
		CreatedAt: now,
	}))
	if err != nil {
		return "", fmt.Errorf("identity: create mapping: %w", err)
	}
	if !isNew {
		var existing Mapping
		_ = json.Unmarshal(rec.Value, &existing)
		return "", &AlreadyExistsError{AccountID: existing.AccountID}
	}

	account := Account{
		ID:               accountID,
		DisplayName:      displayName,
		EmailLike:        isEmailLike,
		ForceChange:      forceChange,
		SecretPHC:        phc,
		DirectorySubject: subject,
		Mappings:         map[string]string{"local": subject},
		CreatedAt:        now,
	}
	if _, _, err := m.KV.CreateOrGet(ctx, accountKey(accountID), mustJSON(account)); err != nil {
		return "", fmt.Errorf("identity: create account: %w", err)
	}

	// El subject puede ser un email; nunca va entero al log.
	log.Info("account created", logger.AccountID(accountID), logger.String("subject", util.MaskEmail(subject)))
	return accountID, nil
}

// LinkCredential maps (method, subject) to an existing account. Linking the
// same pair to the same account is idempotent; linking it to another
// account is AlreadyAssociatedError with no mutation.
func (m *Mapper) LinkCredential(ctx context.Context, accountID, method, subject string) error {
	account, err := m.getAccount(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrAuthorizationNotFound
	}
	if err != nil {
		return err
	}
	if prev, ok := account.Mappings[method]; ok && prev != subject {
		return ErrMethodAlreadyLinked
	}

	isNew, rec, err := m.KV.CreateOrGet(ctx, mappingKey(method, subject), mustJSON(Mapping{
		Method:    method,
		Subject:   subject,
		AccountID: accountID,
		CreatedAt: time.Now().UTC(),
	}))
	if err != nil {
		return fmt.Errorf("identity: create mapping: %w", err)
	}
	if !isNew {
		var existing Mapping
		_ = json.Unmarshal(rec.Value, &existing)
		if existing.AccountID != accountID {
			return &AlreadyAssociatedError{AccountID: existing.AccountID}
		}
		return nil
	}

	_, err = m.KV.UpdateIfMatch(ctx, accountKey(accountID), func(current []byte) ([]byte, error) {
		var a Account
		if err := json.Unmarshal(current, &a); err != nil {
			return nil, err
		}
		if a.Mappings == nil {
			a.Mappings = map[string]string{}
		}
		a.Mappings[method] = subject
		return json.Marshal(a)
	})
	if err != nil {
		return fmt.Errorf("identity: record mapping on account: %w", err)
	}
	return nil
}

// ResolveBySubject is the read path used on every redemption: turns an
// external (method, subject) into an internal account id.
func (m *Mapper) ResolveBySubject(ctx context.Context, method, subject string) (string, error) {
	rec, err := m.KV.Get(ctx, mappingKey(method, subject))
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	var mp Mapping
	if err := json.Unmarshal(rec.Value, &mp); err != nil {
		return "", fmt.Errorf("identity: decode mapping: %w", err)
	}
	return mp.AccountID, nil
}

// EnsureAccount resolves (method, subject), auto-provisioning an account
// with that single mapping on first sight. Used for federated logins where
// the account materializes on first successful redemption.
func (m *Mapper) EnsureAccount(ctx context.Context, method, subject, displayName string) (string, error) {
	if id, err := m.ResolveBySubject(ctx, method, subject); err == nil {
		return id, nil
	} else if !errors.Is(err, ErrNotFound) {
		return "", err
	}

	accountID := uuid.NewString()
	now := time.Now().UTC()
	isNew, rec, err := m.KV.CreateOrGet(ctx, mappingKey(method, subject), mustJSON(Mapping{
		Method:    method,
		Subject:   subject,
		AccountID: accountID,
		CreatedAt: now,
	}))
	if err != nil {
		return "", fmt.Errorf("identity: create mapping: %w", err)
	}
	if !isNew {
		// Perdimos la carrera: otro callback aprovisionó primero.
		var existing Mapping
		_ = json.Unmarshal(rec.Value, &existing)
		return existing.AccountID, nil
	}

	account := Account{
		ID:          accountID,
		DisplayName: displayName,
		Mappings:    map[string]string{method: subject},
		CreatedAt:   now,
	}
	if _, _, err := m.KV.CreateOrGet(ctx, accountKey(accountID), mustJSON(account)); err != nil {
		return "", fmt.Errorf("identity: create account: %w", err)
	}
	logger.From(ctx).With(logger.Layer("identity"), logger.Op("EnsureAccount")).
		Info("account provisioned", logger.AccountID(accountID), logger.Provider(method),
			logger.String("subject", util.MaskEmail(subject)))
	return accountID, nil
}

// RotateSecret replaces the local secret of an account, subject to the same
// policy as creation.
func (m *Mapper) RotateSecret(ctx context.Context, accountID, newSecret string) error {
	if ok, reasons := m.Policy.Validate(newSecret); !ok {
		return &PasswordPolicyError{Reasons: reasons}
	}
	phc, err := password.Hash(m.Hashing, newSecret)
	if err != nil {
		return fmt.Errorf("identity: hash secret: %w", err)
	}
	_, err = m.KV.UpdateIfMatch(ctx, accountKey(accountID), func(current []byte) ([]byte, error) {
		var a Account
		if err := json.Unmarshal(current, &a); err != nil {
			return nil, err
		}
		a.SecretPHC = phc
		a.ForceChange = false
		return json.Marshal(a)
	})
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// DeleteAccount removes the account, all its mappings and the directory
// record. Missing pieces are tolerated so a partially deleted account can
// be deleted again.
func (m *Mapper) DeleteAccount(ctx context.Context, accountID string) error {
	account, err := m.getAccount(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	for method, subject := range account.Mappings {
		if err := m.KV.Delete(ctx, mappingKey(method, subject)); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("identity: delete mapping %s: %w", method, err)
		}
	}
	if m.Directory != nil && account.DirectorySubject != "" {
		if err := m.Directory.Delete(ctx, account.DirectorySubject); err != nil && !errors.Is(err, directory.ErrNotFound) {
			return fmt.Errorf("identity: directory delete: %w", err)
		}
	}
	if err := m.KV.Delete(ctx, accountKey(accountID)); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	logger.From(ctx).With(logger.Layer("identity"), logger.Op("DeleteAccount")).
		Info("account deleted", logger.AccountID(accountID))
	return nil
}

// LookupLocalCredential resolves a username to (account id, stored secret
// hash) for the local provider.
func (m *Mapper) LookupLocalCredential(ctx context.Context, method, username string) (string, string, bool, error) {
	accountID, err := m.ResolveBySubject(ctx, method, username)
	if errors.Is(err, ErrNotFound) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}
	account, err := m.getAccount(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, err
	}
	if account.SecretPHC == "" {
		return "", "", false, nil
	}
	return accountID, account.SecretPHC, true, nil
}

// GetAccount reads one account. ErrNotFound when absent.
func (m *Mapper) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	a, err := m.getAccount(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return a, err
}

func (m *Mapper) getAccount(ctx context.Context, accountID string) (*Account, error) {
	rec, err := m.KV.Get(ctx, accountKey(accountID))
	if err != nil {
		return nil, err
	}
	var a Account
	if err := json.Unmarshal(rec.Value, &a); err != nil {
		return nil, fmt.Errorf("identity: decode account: %w", err)
	}
	return &a, nil
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
