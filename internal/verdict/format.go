package verdict

import (
	"fmt"
	"strings"

	"github.com/tbourn/veritas-backend/internal/domain"
)

// Format renders v in the compact text layout clients display:
//
//	FACT=**"claim"**
//	Reason:
//	- point
//	Link:
//	- [title](url)
//
// Error and Loading verdicts render as KEYWORD=message.
func Format(v domain.Verdict) string {
	var b strings.Builder
	b.WriteString(v.Flag.Keyword())
	b.WriteByte('=')

	if v.Flag == domain.FlagError || v.Flag == domain.FlagLoading {
		b.WriteString(v.Message)
		return b.String()
	}

	fmt.Fprintf(&b, "**%q**\nReason:\n", v.Claim)
	for _, r := range v.ReasoningBullets {
		b.WriteString("- ")
		b.WriteString(r)
		b.WriteByte('\n')
	}
	if v.LocalOnly && v.Notice != "" {
		fmt.Fprintf(&b, "[%s]\n", v.Notice)
	}
	b.WriteString("Link:")
	srcs := v.Sources
	if len(srcs) == 0 {
		srcs = domain.NoExternalSources()
	}
	for _, s := range srcs {
		if s.IsSentinel() {
			fmt.Fprintf(&b, "\n- %s", s.Title)
			continue
		}
		fmt.Fprintf(&b, "\n- [%s](%s)", s.Title, s.URL)
	}
	return b.String()
}

// Summary returns the first reasoning bullet, or the message for verdicts
// without reasoning. Used for compact panels and notifications.
func Summary(v domain.Verdict) string {
	if len(v.ReasoningBullets) > 0 {
		return v.ReasoningBullets[0]
	}
	return v.Message
}
