package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed fingerprints.
// Version suffix enables future algorithm migration.
const (
	DomainFunc   = "gpuflat/func/v1"
	DomainModule = "gpuflat/module/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte (0x00) separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint computes a content hash of f's structure, attributes and
// locations. Two functions have the same fingerprint exactly when their
// canonical trees are identical, so a rewrite that leaves f untouched
// leaves its fingerprint untouched.
func Fingerprint(f *Func) (string, error) {
	canonical, err := MarshalCanonical(FuncTree(f))
	if err != nil {
		return "", fmt.Errorf("Fingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainFunc, canonical), nil
}

// FingerprintModule computes a content hash of every function in m.
func FingerprintModule(m *Module) (string, error) {
	canonical, err := MarshalCanonical(ModuleTree(m))
	if err != nil {
		return "", fmt.Errorf("FingerprintModule: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainModule, canonical), nil
}

// MustFingerprint is like Fingerprint but panics on error.
// Use only in tests or when the function is known to be well formed.
func MustFingerprint(f *Func) string {
	fp, err := Fingerprint(f)
	if err != nil {
		panic(err)
	}
	return fp
}
