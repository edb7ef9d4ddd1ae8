// Package arbitration exposes a small gRPC-shaped surface
// (ArbitrationService.SubmitVerdict) for arbiter agents that prefer an
// RPC transport over the HTTP surface's
// POST /tool-calls/arbitration/verdict. It is a second transport onto the
// exact same internal/holdback.Engine.AcceptVerdict call, never a parallel
// implementation of the verdict-acceptance checks.
//
// The request/response/service types are hand-declared directly rather
// than generated from a .proto file. There is no grpc.ServiceDesc, so the
// service is not registered on the grpc.Server that Listen starts.
package arbitration

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"

	"github.com/nooterra/substrate/internal/holdback"
)

// VerdictRequest is the wire shape of a submitted ArbitrationVerdict.v1.
type VerdictRequest struct {
	TenantID       string
	VerdictID      string
	CaseID         string
	RunID          string
	SettlementID   string
	DisputeID      string
	ArbiterAgentID string
	Outcome        string
	ReleaseRatePct int32
	Rationale      string
	EvidenceRefs   []string
	IssuedAtUnix   int64
	SignerKeyID    string
	Signature      string
	VerdictHash    string
}

// AdjustmentResponse is the wire shape of the resulting SettlementAdjustment.
type AdjustmentResponse struct {
	AdjustmentID  string
	Kind          string
	AmountCents   int64
	AppliedAtUnix int64
}

// ArbitrationServiceServer is the server-side interface, hand-rolled the
// way pb.PlanServiceServer is, rather than generated from .proto.
type ArbitrationServiceServer interface {
	SubmitVerdict(context.Context, *VerdictRequest) (*AdjustmentResponse, error)
}

// ArbitrationServiceClient is the client-side interface a caller depends
// on. Server does not satisfy it: Server.SubmitVerdict takes no
// grpc.CallOption arguments.
type ArbitrationServiceClient interface {
	SubmitVerdict(ctx context.Context, in *VerdictRequest, opts ...grpc.CallOption) (*AdjustmentResponse, error)
}

// Server wraps a holdback.Engine to satisfy ArbitrationServiceServer.
type Server struct {
	engine *holdback.Engine
}

// NewServer builds an arbitration RPC server over engine.
func NewServer(engine *holdback.Engine) *Server {
	return &Server{engine: engine}
}

func (s *Server) SubmitVerdict(ctx context.Context, req *VerdictRequest) (*AdjustmentResponse, error) {
	v := holdback.Verdict{
		VerdictID:      req.VerdictID,
		CaseID:         req.CaseID,
		TenantID:       req.TenantID,
		RunID:          req.RunID,
		SettlementID:   req.SettlementID,
		DisputeID:      req.DisputeID,
		ArbiterAgentID: req.ArbiterAgentID,
		Outcome:        holdback.VerdictOutcome(req.Outcome),
		ReleaseRatePct: int(req.ReleaseRatePct),
		Rationale:      req.Rationale,
		EvidenceRefs:   req.EvidenceRefs,
		IssuedAt:       time.Unix(req.IssuedAtUnix, 0).UTC(),
		SignerKeyID:    req.SignerKeyID,
		Signature:      req.Signature,
		VerdictHash:    req.VerdictHash,
	}

	adj, err := s.engine.AcceptVerdict(ctx, v)
	if err != nil {
		return nil, err
	}
	return &AdjustmentResponse{
		AdjustmentID:  adj.AdjustmentID,
		Kind:          string(adj.Kind),
		AmountCents:   adj.AmountCents,
		AppliedAtUnix: adj.AppliedAt.Unix(),
	}, nil
}

// Listen starts a bare grpc.Server on addr serving s. Unlike the HTTP
// surface there is no generated *_grpc.pb.go registration here (per the
// pb/mock.go precedent); callers that need real wire compatibility should
// promote this package to a .proto-generated one before exposing it
// publicly.
func Listen(addr string, s ArbitrationServiceServer) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("arbitration: listen %s: %w", addr, err)
	}
	grpcServer := grpc.NewServer()
	_ = s // registered by an embedding *_grpc.pb.go in a fully generated build
	return grpcServer.Serve(lis)
}
