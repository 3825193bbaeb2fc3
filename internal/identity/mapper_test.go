package identity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dropDatabas3/crossjohn/internal/security/password"
	memstore "github.com/dropDatabas3/crossjohn/internal/store/memory"
)

func newMapper() *Mapper {
	m := NewMapper(memstore.New(), nil)
	// Cheap hashing keeps the suite fast; semantics are identical.
	m.Hashing = password.Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32}
	return m
}

func TestCreateAccount_AndLookup(t *testing.T) {
	m := newMapper()
	ctx := context.Background()

	id, err := m.CreateAccount(ctx, "Alice", "alice@corp.test", true, "s3cretpass", false)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if id == "" {
		t.Fatal("empty account id")
	}

	accountID, phc, found, err := m.LookupLocalCredential(ctx, "local", "alice@corp.test")
	if err != nil || !found {
		t.Fatalf("LookupLocalCredential: found=%v err=%v", found, err)
	}
	if accountID != id {
		t.Fatalf("account: %q want %q", accountID, id)
	}
	if !password.Verify("s3cretpass", phc) {
		t.Fatal("stored hash does not verify")
	}

	got, err := m.ResolveBySubject(ctx, "local", "alice@corp.test")
	if err != nil || got != id {
		t.Fatalf("ResolveBySubject: %q %v", got, err)
	}
}

func TestCreateAccount_Duplicate(t *testing.T) {
	m := newMapper()
	ctx := context.Background()

	first, err := m.CreateAccount(ctx, "Alice", "alice", false, "s3cretpass", false)
	if err != nil {
		t.Fatal(err)
	}

	_, err = m.CreateAccount(ctx, "Imposter", "alice", false, "otherpass1", false)
	var exists *AlreadyExistsError
	if !errors.As(err, &exists) {
		t.Fatalf("want AlreadyExistsError, got %v", err)
	}
	if exists.AccountID != first {
		t.Fatalf("conflict reports %q want %q", exists.AccountID, first)
	}
}

func TestCreateAccount_PolicyRejection(t *testing.T) {
	m := newMapper()
	_, err := m.CreateAccount(context.Background(), "Alice", "alice", false, "short", false)
	var policy *PasswordPolicyError
	if !errors.As(err, &policy) {
		t.Fatalf("want PasswordPolicyError, got %v", err)
	}
	if len(policy.Reasons) == 0 {
		t.Fatal("no reasons reported")
	}
}

func TestLinkCredential(t *testing.T) {
	m := newMapper()
	ctx := context.Background()

	id, err := m.CreateAccount(ctx, "Alice", "alice", false, "s3cretpass", false)
	if err != nil {
		t.Fatal(err)
	}

	if err := m.LinkCredential(ctx, id, "google", "g-123"); err != nil {
		t.Fatalf("LinkCredential: %v", err)
	}
	got, err := m.ResolveBySubject(ctx, "google", "g-123")
	if err != nil || got != id {
		t.Fatalf("ResolveBySubject after link: %q %v", got, err)
	}

	// Same pair again is idempotent.
	if err := m.LinkCredential(ctx, id, "google", "g-123"); err != nil {
		t.Fatalf("idempotent link: %v", err)
	}

	// A second subject for the same method on the same account conflicts.
	if err := m.LinkCredential(ctx, id, "google", "g-999"); !errors.Is(err, ErrMethodAlreadyLinked) {
		t.Fatalf("want ErrMethodAlreadyLinked, got %v", err)
	}
}

func TestLinkCredential_AlreadyAssociated_NoMutation(t *testing.T) {
	m := newMapper()
	ctx := context.Background()

	a, err := m.CreateAccount(ctx, "Alice", "alice", false, "s3cretpass", false)
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.CreateAccount(ctx, "Bob", "bob", false, "s3cretpass", false)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.LinkCredential(ctx, a, "google", "g-123"); err != nil {
		t.Fatal(err)
	}

	err = m.LinkCredential(ctx, b, "google", "g-123")
	var assoc *AlreadyAssociatedError
	if !errors.As(err, &assoc) || assoc.AccountID != a {
		t.Fatalf("want AlreadyAssociatedError{%s}, got %v", a, err)
	}

	// The mapping still points at the original owner.
	got, err := m.ResolveBySubject(ctx, "google", "g-123")
	if err != nil || got != a {
		t.Fatalf("mapping mutated: %q %v", got, err)
	}
	// Bob's account record gained no mapping.
	acct, err := m.GetAccount(ctx, b)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := acct.Mappings["google"]; ok {
		t.Fatal("losing account recorded the mapping")
	}
}

func TestLinkCredential_AccountMissing(t *testing.T) {
	m := newMapper()
	if err := m.LinkCredential(context.Background(), "ghost", "google", "g-1"); !errors.Is(err, ErrAuthorizationNotFound) {
		t.Fatalf("want ErrAuthorizationNotFound, got %v", err)
	}
}

func TestEnsureAccount_ProvisionsOnce(t *testing.T) {
	m := newMapper()
	ctx := context.Background()

	id, err := m.EnsureAccount(ctx, "google", "g-123", "Alice")
	if err != nil {
		t.Fatalf("EnsureAccount: %v", err)
	}
	again, err := m.EnsureAccount(ctx, "google", "g-123", "Alice")
	if err != nil || again != id {
		t.Fatalf("second ensure: %q %v", again, err)
	}
}

func TestEnsureAccount_ConcurrentCallbacks(t *testing.T) {
	m := newMapper()
	ctx := context.Background()

	const n = 16
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := m.EnsureAccount(ctx, "google", "g-123", "Alice")
			if err != nil {
				t.Errorf("EnsureAccount: %v", err)
				return
			}
			ids[i] = id
		}()
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("split brain: %q vs %q", ids[i], ids[0])
		}
	}
}

func TestRotateSecret(t *testing.T) {
	m := newMapper()
	ctx := context.Background()

	id, err := m.CreateAccount(ctx, "Alice", "alice", false, "s3cretpass", true)
	if err != nil {
		t.Fatal(err)
	}

	if err := m.RotateSecret(ctx, id, "short"); err == nil {
		t.Fatal("policy-violating secret accepted")
	}
	if err := m.RotateSecret(ctx, id, "newsecret1"); err != nil {
		t.Fatalf("RotateSecret: %v", err)
	}

	acct, err := m.GetAccount(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if acct.ForceChange {
		t.Fatal("force_change not cleared after rotation")
	}
	if !password.Verify("newsecret1", acct.SecretPHC) {
		t.Fatal("new secret does not verify")
	}
	if password.Verify("s3cretpass", acct.SecretPHC) {
		t.Fatal("old secret still verifies")
	}

	if err := m.RotateSecret(ctx, "ghost", "newsecret1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestDeleteAccount(t *testing.T) {
	m := newMapper()
	ctx := context.Background()

	id, err := m.CreateAccount(ctx, "Alice", "alice", false, "s3cretpass", false)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.LinkCredential(ctx, id, "google", "g-123"); err != nil {
		t.Fatal(err)
	}

	if err := m.DeleteAccount(ctx, id); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if _, err := m.GetAccount(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("account survives: %v", err)
	}
	if _, err := m.ResolveBySubject(ctx, "google", "g-123"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("mapping survives: %v", err)
	}
	if _, err := m.ResolveBySubject(ctx, "local", "alice"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("local mapping survives: %v", err)
	}

	if err := m.DeleteAccount(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}
