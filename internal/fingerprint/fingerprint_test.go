package fingerprint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFile(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.csv")
	b := filepath.Join(dir, "b.csv")
	for _, p := range []string{a, b} {
		if err := os.WriteFile(p, []byte("payload,sentiment\nx,positive\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	fa, err := File(a)
	if err != nil {
		t.Fatal(err)
	}
	fb, _ := File(b)
	if fa != fb {
		t.Error("same content should give same fingerprint")
	}
	if !strings.HasPrefix(fa, "sha256:") || len(fa) != len("sha256:")+64 {
		t.Errorf("fingerprint = %q", fa)
	}
	if fa != Bytes([]byte("payload,sentiment\nx,positive\n")) {
		t.Error("File and Bytes disagree")
	}

	if err := os.WriteFile(b, []byte("payload,sentiment\nx,negative\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if fb, _ = File(b); fa == fb {
		t.Error("changed content should change fingerprint")
	}
	if _, err := File(filepath.Join(dir, "missing")); err == nil {
		t.Error("missing file should fail")
	}
}
