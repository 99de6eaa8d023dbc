// Package orchestrator runs the write side of the pipeline as an explicit
// state machine. A mutation moves Received -> Authorized -> Resolved ->
// Submitted -> Completed, or stops at Failed; the safety gate runs before
// anything else, and the writes-enabled switch stops a fully-resolved mutation
// just short of submission so dry runs exercise the whole path.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"alphamachine/gateway/internal/domain"
	"alphamachine/gateway/internal/service/ports"
	"alphamachine/gateway/internal/workspace"
)

type Phase string

const (
	PhaseReceived   Phase = "received"
	PhaseAuthorized Phase = "authorized"
	PhaseResolved   Phase = "resolved"
	PhaseSubmitted  Phase = "submitted"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

const DefaultMutationTimeout = 30 * time.Second

// AmbiguousTargetError reports an update reference that resolved to zero or
// more than one issue. Both cases fail the same way; only the message differs.
type AmbiguousTargetError struct {
	Reference  string
	Candidates []domain.Issue
}

func (e *AmbiguousTargetError) Error() string {
	if len(e.Candidates) == 0 {
		return fmt.Sprintf("ambiguous_target: no open ticket matches %q", e.Reference)
	}
	return fmt.Sprintf("ambiguous_target: %q matches %d tickets", e.Reference, len(e.Candidates))
}

// UpstreamError wraps a tracker rejection or transport failure. The mutation
// is not retried; the wrapped error is surfaced to the caller.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream_error: %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

type Dependencies struct {
	Writer          ports.TicketWriter
	Credentials     workspace.CredentialPair
	WriteCredential workspace.WriteCapability
	Resolver        TargetResolver
	WritesEnabled   bool
	MutationTimeout time.Duration
	Logger          *zap.Logger
}

type Service struct {
	deps Dependencies
}

func NewService(deps Dependencies) *Service {
	if deps.Resolver == nil {
		deps.Resolver = DefaultResolver()
	}
	if deps.MutationTimeout <= 0 {
		deps.MutationTimeout = DefaultMutationTimeout
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Service{deps: deps}
}

// Result records how far a mutation got. Preview is set when the writes switch
// is off; Candidates is set alongside an AmbiguousTargetError so the caller
// can list the near-matches.
type Result struct {
	Phase      Phase
	Issue      domain.Issue
	Preview    *domain.MutationRequest
	Candidates []domain.Issue
}

// ExecuteCreate submits a new ticket built from the extracted draft.
func (s *Service) ExecuteCreate(ctx context.Context, draft domain.TicketDraft) (Result, error) {
	result := Result{Phase: PhaseReceived}

	if err := s.deps.Credentials.AuthorizeWrite(s.deps.WriteCredential); err != nil {
		s.deps.Logger.Error("write rejected by safety gate", zap.Error(err))
		result.Phase = PhaseFailed
		return result, err
	}
	result.Phase = PhaseAuthorized

	if strings.TrimSpace(draft.Title) == "" {
		result.Phase = PhaseFailed
		return result, &UpstreamError{Op: "create", Err: fmt.Errorf("draft has no title")}
	}
	result.Phase = PhaseResolved

	if !s.deps.WritesEnabled {
		result.Preview = &domain.MutationRequest{Kind: domain.MutationCreate, Draft: draft}
		s.deps.Logger.Info("writes disabled, returning create preview", zap.String("title", draft.Title))
		return result, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.deps.MutationTimeout)
	defer cancel()

	result.Phase = PhaseSubmitted
	issue, err := s.deps.Writer.CreateIssue(ctx, s.deps.WriteCredential, draft)
	if err != nil {
		result.Phase = PhaseFailed
		return result, &UpstreamError{Op: "create", Err: err}
	}

	result.Phase = PhaseCompleted
	result.Issue = issue
	s.deps.Logger.Info("ticket created", zap.String("identifier", issue.Identifier))
	return result, nil
}

// ExecuteUpdate resolves the reference against the supplied issues and applies
// the field changes to the single match.
func (s *Service) ExecuteUpdate(ctx context.Context, reference string, fields map[string]string, issues []domain.Issue) (Result, error) {
	result := Result{Phase: PhaseReceived}

	if err := s.deps.Credentials.AuthorizeWrite(s.deps.WriteCredential); err != nil {
		s.deps.Logger.Error("write rejected by safety gate", zap.Error(err))
		result.Phase = PhaseFailed
		return result, err
	}
	result.Phase = PhaseAuthorized

	candidates := s.deps.Resolver.Resolve(reference, issues)
	if len(candidates) != 1 {
		result.Phase = PhaseFailed
		result.Candidates = candidates
		return result, &AmbiguousTargetError{Reference: reference, Candidates: candidates}
	}
	target := candidates[0]
	result.Phase = PhaseResolved

	if !s.deps.WritesEnabled {
		result.Issue = target
		result.Preview = &domain.MutationRequest{Kind: domain.MutationUpdate, TargetID: target.ID, Fields: fields}
		s.deps.Logger.Info("writes disabled, returning update preview", zap.String("identifier", target.Identifier))
		return result, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.deps.MutationTimeout)
	defer cancel()

	result.Phase = PhaseSubmitted
	issue, err := s.deps.Writer.UpdateIssue(ctx, s.deps.WriteCredential, target.ID, fields)
	if err != nil {
		result.Phase = PhaseFailed
		return result, &UpstreamError{Op: "update", Err: err}
	}

	result.Phase = PhaseCompleted
	result.Issue = issue
	s.deps.Logger.Info("ticket updated", zap.String("identifier", issue.Identifier))
	return result, nil
}
