package password

import (
	"strings"
	"testing"
)

var fast = Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32}

func TestHashVerify_RoundTrip(t *testing.T) {
	phc, err := Hash(fast, "s3cretpass")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !strings.HasPrefix(phc, "$argon2id$v=19$") {
		t.Fatalf("phc format: %q", phc)
	}
	if !Verify("s3cretpass", phc) {
		t.Fatal("correct secret rejected")
	}
	if Verify("wrong", phc) {
		t.Fatal("wrong secret accepted")
	}
}

func TestHash_SaltedPerCall(t *testing.T) {
	a, err := Hash(fast, "s3cretpass")
	if err != nil {
		t.Fatal(err)
	}
	b, err := Hash(fast, "s3cretpass")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("two hashes of the same secret are identical")
	}
	if !Verify("s3cretpass", a) || !Verify("s3cretpass", b) {
		t.Fatal("either salted hash fails to verify")
	}
}

func TestHash_EmptySecret(t *testing.T) {
	if _, err := Hash(fast, ""); err == nil {
		t.Fatal("empty secret hashed")
	}
}

func TestVerify_MalformedPHC(t *testing.T) {
	for _, phc := range []string{"", "plain", "$bcrypt$whatever", "$argon2id$v=18$m=1,t=1,p=1$x$y"} {
		if Verify("secret", phc) {
			t.Fatalf("malformed phc verified: %q", phc)
		}
	}
}

func TestPolicy_Validate(t *testing.T) {
	p := Policy{MinLength: 8, RequireDigit: true}

	ok, reasons := p.Validate("longenough1")
	if !ok || len(reasons) != 0 {
		t.Fatalf("valid secret rejected: %v", reasons)
	}

	ok, reasons = p.Validate("short")
	if ok {
		t.Fatal("short secret accepted")
	}
	if len(reasons) != 2 {
		// too_short and missing_digit
		t.Fatalf("reasons: %v", reasons)
	}

	ok, reasons = p.Validate("longenough")
	if ok || len(reasons) != 1 || reasons[0] != "missing_digit" {
		t.Fatalf("digit policy: ok=%v reasons=%v", ok, reasons)
	}
}
