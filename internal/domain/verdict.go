// Package domain defines the value objects and persistence models of the
// verification pipeline: claims, verdicts, history entries, and the flat
// key-value rows backing the storage surface.
package domain

import (
	"strings"
)

// Flag is the categorical outcome of a verification attempt.
type Flag string

const (
	FlagFact           Flag = "Fact"
	FlagMisinformation Flag = "Misinformation"
	FlagCaution        Flag = "Caution"
	FlagError          Flag = "Error"
	// FlagLoading marks an in-progress verification. It is never persisted to
	// history or the result cache.
	FlagLoading Flag = "Loading"
)

// Keyword returns the upper-case keyword the model is asked to emit for f
// (FACT, MISINFORMATION, CAUTION, ERROR, LOADING).
func (f Flag) Keyword() string { return strings.ToUpper(string(f)) }

// Valid reports whether f is one of the known flags.
func (f Flag) Valid() bool {
	switch f {
	case FlagFact, FlagMisinformation, FlagCaution, FlagError, FlagLoading:
		return true
	}
	return false
}

// Terminal reports whether f is a final outcome (anything but Loading).
func (f Flag) Terminal() bool { return f.Valid() && f != FlagLoading }

// Source is a cited reference. A Source with an empty URL is the
// "no external sources detected" sentinel.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// NoSourcesTitle is the title carried by the no-sources sentinel.
const NoSourcesTitle = "(No external sources detected)"

// NoExternalSources returns the sentinel source list used when neither the
// model text nor grounding metadata yielded a citation.
func NoExternalSources() []Source {
	return []Source{{Title: NoSourcesTitle}}
}

// IsSentinel reports whether s is the no-sources marker.
func (s Source) IsSentinel() bool { return s.URL == "" }

// Backend names the model path that produced a verdict.
type Backend string

const (
	BackendCloud Backend = "cloud"
	BackendLocal Backend = "local"
	BackendCache Backend = "cache"
	BackendNone  Backend = "none"
)

// LoadingMessage is shown while a verification is in flight.
const LoadingMessage = "Veritas is verifying this claim..."

// Verdict is the structured result of a verification attempt.
//
// Invariants: an Error verdict carries no reasoning bullets (DebugInfo and
// Message explain the failure instead), and a Loading verdict is transient.
// Timestamp (ms since epoch) is set only when the verdict is committed to
// history.
type Verdict struct {
	ID               string   `json:"id,omitempty"`
	Flag             Flag     `json:"flag"`
	Claim            string   `json:"claim"`
	ReasoningBullets []string `json:"reasoning"`
	Sources          []Source `json:"sources"`
	Timestamp        int64    `json:"timestamp,omitempty"`
	DebugInfo        string   `json:"debug_info,omitempty"`

	// Message is the user-facing text for Error and Loading verdicts.
	Message string `json:"message,omitempty"`

	// LocalOnly marks verdicts produced by the on-device model without
	// real-time grounding; Notice carries the warning to display.
	LocalOnly bool   `json:"local_only,omitempty"`
	Notice    string `json:"notice,omitempty"`

	Contextual bool    `json:"contextual,omitempty"`
	Backend    Backend `json:"backend,omitempty"`
	Cached     bool    `json:"cached,omitempty"`
}

// IsError reports whether v is an Error verdict.
func (v Verdict) IsError() bool { return v.Flag == FlagError }

// Cacheable reports whether v may enter the result cache or history.
func (v Verdict) Cacheable() bool { return v.Flag.Terminal() && v.Flag != FlagError }

// Clone returns a deep copy so cached or stored verdicts are never aliased.
func (v Verdict) Clone() Verdict {
	out := v
	if v.ReasoningBullets != nil {
		out.ReasoningBullets = append([]string(nil), v.ReasoningBullets...)
	}
	if v.Sources != nil {
		out.Sources = append([]Source(nil), v.Sources...)
	}
	return out
}

// ErrorVerdict builds an Error verdict for claim.
func ErrorVerdict(claim, message, debug string) Verdict {
	return Verdict{
		Flag:      FlagError,
		Claim:     claim,
		Message:   message,
		DebugInfo: debug,
		Backend:   BackendNone,
	}
}

// LoadingVerdict builds the transient placeholder stored while a check runs.
func LoadingVerdict(claim string) Verdict {
	return Verdict{Flag: FlagLoading, Claim: claim, Message: LoadingMessage}
}
