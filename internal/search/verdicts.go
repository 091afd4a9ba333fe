package search

import (
	"strings"

	"github.com/tbourn/veritas-backend/internal/domain"
)

// FromVerdicts turns history verdicts into documents made of the claim and
// its reasoning bullets. Verdicts without an ID are keyed by claim.
func FromVerdicts(vs []domain.Verdict) []Doc {
	out := make([]Doc, 0, len(vs))
	for _, v := range vs {
		id := v.ID
		if id == "" {
			id = domain.NormalizeClaim(v.Claim)
		}
		var b strings.Builder
		b.WriteString(v.Claim)
		for _, r := range v.ReasoningBullets {
			b.WriteByte('\n')
			b.WriteString(r)
		}
		out = append(out, Doc{ID: id, Text: b.String()})
	}
	return out
}

// RankVerdicts returns the verdicts in vs matching query, best match first,
// at most k of them (all matches when k <= 0).
func RankVerdicts(vs []domain.Verdict, query string, k int, opts ...Option) []domain.Verdict {
	docs := FromVerdicts(vs)
	byID := make(map[string]domain.Verdict, len(vs))
	for i, d := range docs {
		if _, dup := byID[d.ID]; !dup {
			byID[d.ID] = vs[i]
		}
	}
	res := NewIndex(docs, opts...).TopK(query, k)
	out := make([]domain.Verdict, 0, len(res))
	seen := make(map[string]struct{}, len(res))
	for _, r := range res {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, byID[r.ID])
	}
	return out
}
