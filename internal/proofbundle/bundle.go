// Package proofbundle exports a JobProofBundle.v1 directory and wraps one
// or more of them into an InvoiceBundle.v1. Every file's bytes are
// canonical JSON (or JSON Lines of canonical JSON records) so a manifest
// hash computed over them is reproducible independent of map key order.
package proofbundle

import (
	"os"
	"path/filepath"
	"time"

	"github.com/nooterra/substrate/internal/canon"
	"github.com/nooterra/substrate/internal/eventchain"
)

// ManifestV1 is ProofBundleManifest.v1: every exported file's SHA-256 plus
// a top-level hash over the manifest itself.
type ManifestV1 struct {
	V           int               `json:"v"`
	Files       map[string]string `json:"files"`
	GeneratedAt time.Time         `json:"generatedAt"`
	ManifestHash string           `json:"manifestHash"`
}

// Attestation optionally signs a bundle's manifestHash.
type Attestation struct {
	ManifestHash string `json:"manifestHash"`
	SignerKeyID  string `json:"signerKeyId"`
	Signature    string `json:"signature"`
	SignedAt     time.Time `json:"signedAt"`
}

// Signer produces the optional bundle_head_attestation.json signature.
type Signer interface {
	Sign(payloadHashHex, purpose string, context any) (sigHex, keyID string, err error)
}

const signPurposeBundleHead = "proof_bundle_head"

// JobSnapshot is the job/snapshot.json payload: a point-in-time summary of
// the job (gate/hold/case) the bundle documents.
type JobSnapshot struct {
	TenantID      string    `json:"tenantId"`
	AgreementHash string    `json:"agreementHash"`
	GeneratedAt   time.Time `json:"generatedAt"`
	Detail        any       `json:"detail"`
}

// PublicKeyEntry is one row of keys/public_keys.json.
type PublicKeyEntry struct {
	KeyID string `json:"keyId"`
	PEM   string `json:"pem"`
}

// Builder assembles a JobProofBundle.v1 directory on disk.
type Builder struct {
	signer Signer
}

func NewBuilder(signer Signer) *Builder { return &Builder{signer: signer} }

// BuildParams are the inputs to a single JobProofBundle export.
type BuildParams struct {
	OutDir            string
	TenantID          string
	AgreementHash     string
	Events            []eventchain.Event
	PayloadMaterial   []map[string]any
	GovernanceEvents  []eventchain.Event
	GovernancePayload []map[string]any
	GovernanceSnap    eventchain.Snapshot
	PublicKeys        []PublicKeyEntry
	JobDetail         any
	Attest            bool
	Now               time.Time
}

// Build writes a full JobProofBundle.v1 to params.OutDir and returns its
// manifest.
func (b *Builder) Build(p BuildParams) (*ManifestV1, error) {
	dirs := []string{"events", "governance/events", "keys", "job"}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(p.OutDir, d), 0o755); err != nil {
			return nil, err
		}
	}

	files := map[string][]byte{}

	eventsJSONL, err := jsonLines(toAny(p.Events))
	if err != nil {
		return nil, err
	}
	files["events/events.jsonl"] = eventsJSONL

	payloadJSONL, err := jsonLines(toAny(p.PayloadMaterial))
	if err != nil {
		return nil, err
	}
	files["events/payload_material.jsonl"] = payloadJSONL

	govEventsJSONL, err := jsonLines(toAny(p.GovernanceEvents))
	if err != nil {
		return nil, err
	}
	files["governance/events/events.jsonl"] = govEventsJSONL

	govPayloadJSONL, err := jsonLines(toAny(p.GovernancePayload))
	if err != nil {
		return nil, err
	}
	files["governance/events/payload_material.jsonl"] = govPayloadJSONL

	govSnap, err := canon.Marshal(p.GovernanceSnap)
	if err != nil {
		return nil, err
	}
	files["governance/snapshot.json"] = govSnap

	keysJSON, err := canon.Marshal(p.PublicKeys)
	if err != nil {
		return nil, err
	}
	files["keys/public_keys.json"] = keysJSON

	jobSnap := JobSnapshot{TenantID: p.TenantID, AgreementHash: p.AgreementHash, GeneratedAt: p.Now, Detail: p.JobDetail}
	jobSnapJSON, err := canon.Marshal(jobSnap)
	if err != nil {
		return nil, err
	}
	files["job/snapshot.json"] = jobSnapJSON

	for path, content := range files {
		full := filepath.Join(p.OutDir, filepath.FromSlash(path))
		if err := os.WriteFile(full, content, 0o644); err != nil {
			return nil, err
		}
	}

	manifest := ManifestV1{V: 1, Files: map[string]string{}, GeneratedAt: p.Now}
	for path, content := range files {
		manifest.Files[path] = canon.Hash(content)
	}
	manifestHash, err := canon.HashJSON(map[string]any{"v": manifest.V, "files": manifest.Files, "generatedAt": manifest.GeneratedAt})
	if err != nil {
		return nil, err
	}
	manifest.ManifestHash = manifestHash

	manifestBytes, err := canon.Marshal(manifest)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(p.OutDir, "manifest.json"), manifestBytes, 0o644); err != nil {
		return nil, err
	}

	if p.Attest && b.signer != nil {
		sig, keyID, err := b.signer.Sign(manifestHash, signPurposeBundleHead, map[string]any{"tenantId": p.TenantID})
		if err != nil {
			return nil, err
		}
		att := Attestation{ManifestHash: manifestHash, SignerKeyID: keyID, Signature: sig, SignedAt: p.Now}
		attBytes, err := canon.Marshal(att)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Join(p.OutDir, "attestation"), 0o755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(filepath.Join(p.OutDir, "attestation", "bundle_head_attestation.json"), attBytes, 0o644); err != nil {
			return nil, err
		}
	}

	return &manifest, nil
}

func toAny[T any](items []T) []any {
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = it
	}
	return out
}

func jsonLines(items []any) ([]byte, error) {
	var out []byte
	for _, it := range items {
		b, err := canon.Marshal(it)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
		out = append(out, '\n')
	}
	return out, nil
}
