package orchestrator

import (
	"strings"

	"alphamachine/gateway/internal/domain"
)

// TargetResolver maps a natural-language ticket reference ("ALP-123", "the
// login bug") to candidate issues. Resolution strategies are pluggable so the
// state machine stays independent of how fuzzy the matching is.
type TargetResolver interface {
	Resolve(reference string, issues []domain.Issue) []domain.Issue
}

// IdentifierResolver matches the exact issue identifier or id,
// case-insensitively.
type IdentifierResolver struct{}

func (IdentifierResolver) Resolve(reference string, issues []domain.Issue) []domain.Issue {
	needle := strings.ToLower(strings.TrimSpace(reference))
	if needle == "" {
		return nil
	}
	var out []domain.Issue
	for _, issue := range issues {
		if strings.ToLower(issue.Identifier) == needle || strings.ToLower(issue.ID) == needle {
			out = append(out, issue)
		}
	}
	return out
}

// TitleResolver matches case-insensitive substrings of the issue title.
type TitleResolver struct{}

func (TitleResolver) Resolve(reference string, issues []domain.Issue) []domain.Issue {
	needle := strings.ToLower(strings.TrimSpace(reference))
	if needle == "" {
		return nil
	}
	var out []domain.Issue
	for _, issue := range issues {
		if strings.Contains(strings.ToLower(issue.Title), needle) {
			out = append(out, issue)
		}
	}
	return out
}

// ChainResolver tries each strategy in order and returns the first non-empty
// candidate set.
type ChainResolver []TargetResolver

func (c ChainResolver) Resolve(reference string, issues []domain.Issue) []domain.Issue {
	for _, resolver := range c {
		if candidates := resolver.Resolve(reference, issues); len(candidates) > 0 {
			return candidates
		}
	}
	return nil
}

func DefaultResolver() TargetResolver {
	return ChainResolver{IdentifierResolver{}, TitleResolver{}}
}
