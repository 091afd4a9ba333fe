// Package verdict turns raw model output into structured verdicts and renders
// them back into the compact text form shown by clients.
//
// Parse never produces an Error verdict: text that does not follow the
// expected KEYWORD=Reason/Link layout degrades to Caution with best-effort
// reasoning. Error verdicts come only from transport or upstream failures.
package verdict

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/veritas-backend/internal/domain"
)

// NoReasoningBullet is the synthetic bullet used when the model returned
// nothing usable.
const NoReasoningBullet = "No reasoning was returned by the model."

// maxFallbackRunes bounds the synthetic bullet built from unstructured text.
const maxFallbackRunes = 200

var (
	// leading markdown noise some models put before the keyword
	leadNoise = "*#>_ \t"

	keywordRE  = regexp.MustCompile(`^(FACT|MISINFORMATION|CAUTION)\b`)
	stripRE    = regexp.MustCompile(`(?i)^[*#>_ \t]*(FACT|MISINFORMATION|CAUTION)\b[*_]*\s*(=|:)?\s*`)
	linkHeadRE = regexp.MustCompile(`(?mi)^[ \t]*[*_]*links?[*_]*[ \t]*:`)
	mdLinkRE   = regexp.MustCompile(`\[([^\]]*)\]\(([^)\s]+)\)`)
	spaceRE    = regexp.MustCompile(`\s+`)
)

var keywordFlags = map[string]domain.Flag{
	"FACT":           domain.FlagFact,
	"MISINFORMATION": domain.FlagMisinformation,
	"CAUTION":        domain.FlagCaution,
}

// Parse converts rawText into a Verdict for claim. Sources are assembled
// from the grounding metadata plus any markdown links found in a "Link:"
// section of the text, deduplicated by URL with the first-seen title kept.
func Parse(rawText, claim string, metadata []domain.Source) domain.Verdict {
	text := strings.TrimSpace(normalizeNewlines(rawText))

	v := domain.Verdict{
		Flag:  domain.FlagCaution,
		Claim: claim,
	}
	if text == "" {
		v.ReasoningBullets = []string{NoReasoningBullet}
		v.Sources = MergeSources(metadata)
		return v
	}

	firstLine := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		firstLine = text[:i]
	}
	firstLine = strings.ToUpper(strings.TrimLeft(strings.TrimSpace(firstLine), leadNoise))
	body := text
	if kw := keywordRE.FindString(firstLine); kw != "" {
		v.Flag = keywordFlags[kw]
		body = strings.TrimSpace(stripRE.ReplaceAllString(text, ""))
	}

	if i := strings.Index(body, "Reason:"); i >= 0 {
		body = strings.TrimSpace(body[i+len("Reason:"):])
	}

	reasoning, links := body, ""
	if loc := linkHeadRE.FindStringIndex(body); loc != nil {
		reasoning = strings.TrimSpace(body[:loc[0]])
		links = body[loc[1]:]
	}

	v.ReasoningBullets = bullets(reasoning)
	if len(v.ReasoningBullets) == 0 {
		v.ReasoningBullets = []string{fallbackBullet(reasoning)}
	}

	all := make([]domain.Source, 0, len(metadata)+4)
	all = append(all, metadata...)
	all = append(all, linksFrom(links)...)
	v.Sources = MergeSources(all)
	return v
}

// bullets extracts "-" prefixed lines in order, dropping repeats that are
// identical after trimming and lower-casing.
func bullets(body string) []string {
	lower := cases.Lower(language.Und)
	seen := make(map[string]struct{})
	var out []string
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "-") {
			continue
		}
		item := strings.TrimSpace(strings.TrimPrefix(line, "-"))
		if item == "" {
			continue
		}
		key := lower.String(item)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, item)
	}
	return out
}

func fallbackBullet(body string) string {
	flat := strings.TrimSpace(spaceRE.ReplaceAllString(body, " "))
	if flat == "" {
		return NoReasoningBullet
	}
	if utf8.RuneCountInString(flat) <= maxFallbackRunes {
		return flat
	}
	r := []rune(flat)
	return strings.TrimSpace(string(r[:maxFallbackRunes])) + "…"
}

func linksFrom(section string) []domain.Source {
	if section == "" {
		return nil
	}
	var out []domain.Source
	for _, m := range mdLinkRE.FindAllStringSubmatch(section, -1) {
		out = append(out, domain.Source{Title: strings.TrimSpace(m[1]), URL: strings.TrimSpace(m[2])})
	}
	return out
}

// MergeSources drops entries without a URL, deduplicates by URL keeping the
// first-seen title, titles untitled entries with the URL host, and returns
// the no-sources sentinel when nothing remains.
func MergeSources(in []domain.Source) []domain.Source {
	seen := make(map[string]struct{}, len(in))
	out := make([]domain.Source, 0, len(in))
	for _, s := range in {
		u := strings.TrimSpace(s.URL)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		title := strings.TrimSpace(s.Title)
		if title == "" {
			title = HostOf(u)
		}
		out = append(out, domain.Source{Title: title, URL: u})
	}
	if len(out) == 0 {
		return domain.NoExternalSources()
	}
	return out
}

// HostOf returns the host part of raw, or raw itself when it does not parse.
func HostOf(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		return u.Host
	}
	return raw
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\r", "\n")
}
