package contenthash

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileDigestsKnownVectors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abc.bin")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}

	sum, err := New(SHA256).File(path)
	if err != nil {
		t.Fatalf("sha256: %v", err)
	}
	if sum != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("unexpected sha256 %s", sum)
	}

	b3, err := New(BLAKE3).File(path)
	if err != nil {
		t.Fatalf("blake3: %v", err)
	}
	if b3 != "6437b3ac38465133ffb63b75273a8db548c558465d79db03fd359c6cd5bd9d85" {
		t.Fatalf("unexpected blake3 %s", b3)
	}
	if !Valid(sum) || !Valid(b3) {
		t.Fatal("expected digests to be valid keys")
	}
}

func TestReaderMatchesFile(t *testing.T) {
	h := New("")
	if h.Algorithm() != SHA256 {
		t.Fatalf("expected sha256 default, got %s", h.Algorithm())
	}
	a, err := h.Reader(strings.NewReader("same bytes"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := h.Reader(strings.NewReader("same bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("expected identical digests for identical bytes")
	}
}

func TestParseAlgorithm(t *testing.T) {
	if alg, err := ParseAlgorithm(" BLAKE3 "); err != nil || alg != BLAKE3 {
		t.Fatalf("ParseAlgorithm(BLAKE3) = %q, %v", alg, err)
	}
	if _, err := ParseAlgorithm("md5"); err == nil {
		t.Fatal("expected error for md5")
	}
}

func TestValid(t *testing.T) {
	cases := map[string]bool{
		strings.Repeat("a", 64): true,
		strings.Repeat("A", 64): false,
		strings.Repeat("a", 63): false,
		strings.Repeat("g", 64): false,
		"":                      false,
	}
	for key, want := range cases {
		if got := Valid(key); got != want {
			t.Fatalf("Valid(%q) = %v, want %v", key, got, want)
		}
	}
}
