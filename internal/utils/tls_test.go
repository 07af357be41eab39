package utils

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureSelfSignedCert(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "certs", "server.crt")
	key := filepath.Join(dir, "certs", "server.key")
	if err := EnsureSelfSignedCert(cert, key, "county.local"); err != nil {
		t.Fatalf("EnsureSelfSignedCert: %v", err)
	}
	if _, err := tls.LoadX509KeyPair(cert, key); err != nil {
		t.Fatalf("generated pair does not load: %v", err)
	}
	before, _ := os.ReadFile(cert)
	if err := EnsureSelfSignedCert(cert, key, "county.local"); err != nil {
		t.Fatal(err)
	}
	after, _ := os.ReadFile(cert)
	if string(before) != string(after) {
		t.Error("existing certificate was overwritten")
	}
}
