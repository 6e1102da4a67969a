package password

import (
	"strings"
	"testing"
)

func testConfig() Config {
	return Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestHashVerifyRoundTrip(t *testing.T) {
	h, err := NewHasher(testConfig())
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}

	encoded, err := h.Hash("Str0ng!Pass")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$") {
		t.Fatalf("expected PHC format, got %s", encoded)
	}

	ok, err := h.Verify("Str0ng!Pass", encoded)
	if err != nil || !ok {
		t.Fatalf("expected verify success, ok=%v err=%v", ok, err)
	}
}

func TestVerifyRejectsSingleCharacterMutations(t *testing.T) {
	h, err := NewHasher(testConfig())
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}

	const pass = "Str0ng!Pass"
	encoded, err := h.Hash(pass)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	for i := 0; i < len(pass); i++ {
		mutated := []byte(pass)
		mutated[i] ^= 0x01
		ok, err := h.Verify(string(mutated), encoded)
		if err != nil {
			t.Fatalf("Verify errored on mutation %d: %v", i, err)
		}
		if ok {
			t.Fatalf("mutation at index %d unexpectedly verified", i)
		}
	}
}

func TestTwoHashesOfSamePasswordDiffer(t *testing.T) {
	h, err := NewHasher(testConfig())
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}

	a, err := h.Hash("Str0ng!Pass")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	b, err := h.Hash("Str0ng!Pass")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct salts to produce distinct hashes")
	}
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	h, err := NewHasher(testConfig())
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}

	for _, encoded := range []string{
		"",
		"plain",
		"$argon2id$v=19$m=8192,t=1,p=1$short$short",
		"$bcrypt$v=19$m=8192,t=1,p=1$AAAAAAAAAAAAAAAAAAAAAA==$AAAA",
	} {
		if _, err := h.Verify("anything", encoded); err == nil {
			t.Fatalf("expected error for malformed hash %q", encoded)
		}
	}
}

func TestSaltExtraction(t *testing.T) {
	h, err := NewHasher(testConfig())
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	encoded, err := h.Hash("Str0ng!Pass")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	salt, err := Salt(encoded)
	if err != nil {
		t.Fatalf("Salt failed: %v", err)
	}
	if salt == "" {
		t.Fatal("expected non-empty salt")
	}
	if !strings.Contains(encoded, salt) {
		t.Fatal("expected salt segment to appear in the PHC string")
	}
}

func TestPolicy(t *testing.T) {
	p := DefaultPolicy()

	cases := []struct {
		password string
		want     bool
	}{
		{"Str0ng!Pass", true},
		{"lowercase1!", true},   // lower + digit + special
		{"Short1!", false},      // below min length
		{"alllowercase", false}, // one class
		{"alllower123", false},  // two classes
		{"ALLUPPER123!", true},  // upper + digit + special
	}
	for _, tc := range cases {
		if got := p.Check(tc.password); got != tc.want {
			t.Fatalf("Check(%q) = %v, want %v", tc.password, got, tc.want)
		}
	}
}
