package proofbundle

import (
	"time"
)

// PricingMatrixEntry prices one tool/provider/risk-class combination.
type PricingMatrixEntry struct {
	ProviderID  string `json:"providerId"`
	ToolID      string `json:"toolId"`
	RiskClass   string `json:"riskClass"`
	UnitCents   int64  `json:"unitCents"`
}

// SignedPricingMatrix is a pricing table bound into the invoice by
// signature, so the price a payer was actually charged cannot be disputed
// independent of the bundle it accompanies.
type SignedPricingMatrix struct {
	Entries     []PricingMatrixEntry `json:"entries"`
	EffectiveAt time.Time            `json:"effectiveAt"`
	SignerKeyID string               `json:"signerKeyId"`
	Signature   string               `json:"signature"`
	MatrixHash  string               `json:"matrixHash"`
}

// MeteringFacts is the derived usage/reputation summary a tenant's
// metering layer (internal/reputation) computes over a period.
type MeteringFacts struct {
	TenantID          string `json:"tenantId"`
	AgentID           string `json:"agentId"`
	PeriodStart       time.Time `json:"periodStart"`
	PeriodEnd         time.Time `json:"periodEnd"`
	GrossCents        int64  `json:"grossCents"`
	AutoReleasedCents int64  `json:"autoReleasedCents"`
	DisputedCents     int64  `json:"disputedCents"`
	RefundedCents     int64  `json:"refundedCents"`
	CallCount         int    `json:"callCount"`
	DisputeCount      int    `json:"disputeCount"`
}

// InvoiceBundleV1 is InvoiceBundle.v1: one or more JobProofBundles plus
// pricing, metering, and a verification report.
type InvoiceBundleV1 struct {
	InvoiceID     string              `json:"invoiceId"`
	TenantID      string              `json:"tenantId"`
	JobManifests  []ManifestV1        `json:"jobManifests"`
	Pricing       SignedPricingMatrix `json:"pricing"`
	Metering      []MeteringFacts     `json:"metering"`
	VerifyReport  VerificationReport  `json:"verifyReport"`
	GeneratedAt   time.Time           `json:"generatedAt"`
}

// ArtifactID derives a deterministic id for a tenant-period-party
// statement: pstmt_<tenant>_<party>_<period>_<hash>.
func ArtifactID(tenantID, party, period, hash string) string {
	return "pstmt_" + tenantID + "_" + party + "_" + period + "_" + hash
}
