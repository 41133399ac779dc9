package moderation

import (
	"context"
	"strings"
)

// KeywordAnalyzer is the built-in fallback analyzer: a case-insensitive
// blocklist scan. Deployments with a model endpoint swap in their own
// Analyzer; this keeps the queue functional without one.
type KeywordAnalyzer struct {
	Blocklist []string
}

func NewKeywordAnalyzer(blocklist []string) *KeywordAnalyzer {
	return &KeywordAnalyzer{Blocklist: blocklist}
}

func (a *KeywordAnalyzer) Analyze(ctx context.Context, job *Job) (Result, error) {
	content := strings.ToLower(job.Content)

	hits := 0
	for _, word := range a.Blocklist {
		if word == "" {
			continue
		}
		if strings.Contains(content, strings.ToLower(word)) {
			hits++
		}
	}

	switch {
	case hits == 0:
		return Result{Verdict: VerdictApproved}, nil
	case hits < 3:
		return Result{Verdict: VerdictFlagged, Severity: hits}, nil
	default:
		return Result{Verdict: VerdictRejected, Severity: hits}, nil
	}
}
