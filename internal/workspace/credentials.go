// Package workspace models the two-key credential policy: one Linear API key may
// only read the shared workspace, a second, distinct key is required for any
// mutation, which lands in the isolated workspace. The keys are wrapped in
// separate capability types so a read credential cannot be handed to a write
// path by accident; AuthorizeWrite re-checks token identity at runtime and is
// the first statement of every mutating call.
package workspace

import (
	"errors"
	"fmt"
)

const ErrorCodeSafetyViolation = "safety_violation"

var (
	ErrMissingReadToken  = errors.New("read token is required")
	ErrMissingWriteToken = errors.New("write token is required")
	ErrTokensIdentical   = errors.New("read and write tokens must differ")
)

type SafetyViolationError struct {
	Reason string
}

func (e *SafetyViolationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", ErrorCodeSafetyViolation, e.Reason)
}

func IsSafetyViolation(err error) bool {
	var violation *SafetyViolationError
	return errors.As(err, &violation)
}

// ReadCapability authorizes queries against the shared workspace.
type ReadCapability struct {
	token     string
	workspace string
}

func (c ReadCapability) Token() string     { return c.token }
func (c ReadCapability) Workspace() string { return c.workspace }

// WriteCapability authorizes mutations against the isolated workspace.
type WriteCapability struct {
	token     string
	workspace string
}

func (c WriteCapability) Token() string     { return c.token }
func (c WriteCapability) Workspace() string { return c.workspace }

// NewWriteCapability exists so tests and alternate wiring can construct a write
// credential directly; AuthorizeWrite still rejects it if it carries the pair's
// read token.
func NewWriteCapability(token, workspace string) WriteCapability {
	return WriteCapability{token: token, workspace: workspace}
}

// CredentialPair is loaded once at startup and immutable afterwards.
type CredentialPair struct {
	read  ReadCapability
	write WriteCapability
}

func NewCredentialPair(readToken, writeToken, sharedWorkspace, isolatedWorkspace string) (CredentialPair, error) {
	if readToken == "" {
		return CredentialPair{}, ErrMissingReadToken
	}
	if writeToken == "" {
		return CredentialPair{}, ErrMissingWriteToken
	}
	if readToken == writeToken {
		return CredentialPair{}, ErrTokensIdentical
	}
	return CredentialPair{
		read:  ReadCapability{token: readToken, workspace: sharedWorkspace},
		write: WriteCapability{token: writeToken, workspace: isolatedWorkspace},
	}, nil
}

func (p CredentialPair) Read() ReadCapability   { return p.read }
func (p CredentialPair) Write() WriteCapability { return p.write }

// AuthorizeWrite validates a write credential before any network I/O. It must
// be called at the top of every mutating path, never as a response-time check.
func (p CredentialPair) AuthorizeWrite(cap WriteCapability) error {
	if cap.token == "" {
		return &SafetyViolationError{Reason: "write credential is empty"}
	}
	if cap.token == p.read.token {
		return &SafetyViolationError{
			Reason: fmt.Sprintf("read-only credential for workspace %q used on a write path", p.read.workspace),
		}
	}
	return nil
}
