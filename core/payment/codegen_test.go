package payment

import (
	"regexp"
	"testing"
)

var codeFormatRegex = regexp.MustCompile(`^[A-Z0-9]{2}-[A-Z0-9]{2}-[A-Z0-9]{2}-[A-Z0-9]{2}$`)

func TestGenerateFormat(t *testing.T) {
	gen := NewCodeGenerator()

	for i := 0; i < 1000; i++ {
		code, err := gen.Generate()
		if err != nil {
			t.Fatalf("Generate(): %v", err)
		}
		if !codeFormatRegex.MatchString(code) {
			t.Fatalf("Generate() = %q; want XX-XX-XX-XX over [A-Z0-9]", code)
		}
	}
}

func TestHashCodeDeterministic(t *testing.T) {
	code := "AB-3F-9K-Q2"
	want := HashCode(code)
	for i := 0; i < 10; i++ {
		if got := HashCode(code); got != want {
			t.Fatalf("HashCode(%q) = %q; want %q", code, got, want)
		}
	}
	if len(want) != 64 {
		t.Errorf("HashCode() len = %d; want 64 hex chars", len(want))
	}
	if other := HashCode("AB-3F-9K-Q3"); other == want {
		t.Errorf("distinct codes hashed to the same digest %q", want)
	}
}

func TestGenerateCollisionSampling(t *testing.T) {
	if testing.Short() {
		t.Skip("sampling 100k generations")
	}
	gen := NewCodeGenerator()

	seen := make(map[string]struct{}, 100000)
	for i := 0; i < 100000; i++ {
		code, err := gen.Generate()
		if err != nil {
			t.Fatalf("Generate(): %v", err)
		}
		hash := HashCode(code)
		if _, dup := seen[hash]; dup {
			t.Fatalf("hash collision after %d generations: %q", i, code)
		}
		seen[hash] = struct{}{}
	}
}
