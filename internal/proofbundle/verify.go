package proofbundle

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/nooterra/substrate/internal/canon"
)

// VerificationReport is verify/verification_report.json: a single
// top-level pass/fail over a whole bundle, with one top-level error code
// on failure; strict mode rejects any compatibility warning.
type VerificationReport struct {
	OK       bool     `json:"ok"`
	Code     string   `json:"code,omitempty"`
	Message  string   `json:"message,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Verify re-hashes every file manifest.json lists and recomputes the
// manifest hash, failing closed on any mismatch or missing file. strict
// additionally fails on any warning; Verify itself records none, and files
// present on disk but absent from the manifest are not detected.
func Verify(dir string, strict bool) (*VerificationReport, error) {
	manifestBytes, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return &VerificationReport{OK: false, Code: "BUNDLE_VERIFICATION_FAILED", Message: "manifest.json missing or unreadable"}, nil
	}
	var manifest ManifestV1
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return &VerificationReport{OK: false, Code: "BUNDLE_VERIFICATION_FAILED", Message: "manifest.json is not valid JSON"}, nil
	}

	wantHash, err := canon.HashJSON(map[string]any{"v": manifest.V, "files": manifest.Files, "generatedAt": manifest.GeneratedAt})
	if err != nil {
		return nil, err
	}
	if wantHash != manifest.ManifestHash {
		return &VerificationReport{OK: false, Code: "BUNDLE_VERIFICATION_FAILED", Message: "manifestHash does not match manifest contents"}, nil
	}

	var warnings []string
	for path, wantFileHash := range manifest.Files {
		content, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(path)))
		if err != nil {
			return &VerificationReport{OK: false, Code: "BUNDLE_VERIFICATION_FAILED", Message: "missing file: " + path}, nil
		}
		if canon.Hash(content) != wantFileHash {
			return &VerificationReport{OK: false, Code: "BUNDLE_VERIFICATION_FAILED", Message: "hash mismatch for file: " + path}, nil
		}
	}

	if strict && len(warnings) > 0 {
		return &VerificationReport{OK: false, Code: "BUNDLE_VERIFICATION_FAILED", Message: "strict mode rejects compatibility warnings", Warnings: warnings}, nil
	}

	return &VerificationReport{OK: true, Warnings: warnings}, nil
}

// WriteReport persists a VerificationReport to verify/verification_report.json.
func WriteReport(dir string, r *VerificationReport) error {
	if err := os.MkdirAll(filepath.Join(dir, "verify"), 0o755); err != nil {
		return err
	}
	b, err := canon.Marshal(r)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "verify", "verification_report.json"), b, 0o644)
}
