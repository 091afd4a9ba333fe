package domain

import "strings"

// PageContext is page text attached to a claim for URL-based checks.
type PageContext struct {
	URL            string `json:"url"`
	ContentSnippet string `json:"content_snippet"`
}

// Claim is the assertion submitted for verification, optionally paired with
// an image or page context. Treat it as immutable once built.
type Claim struct {
	Text          string
	ImageBytes    []byte
	ImageMimeType string
	Page          *PageContext
}

// NormalizeClaim returns the cache/history lookup key for text.
func NormalizeClaim(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Key is the normalized claim text.
func (c Claim) Key() string { return NormalizeClaim(c.Text) }

// IsMultimodal reports whether an image is attached.
func (c Claim) IsMultimodal() bool { return len(c.ImageBytes) > 0 }

// HasPageContext reports whether page text is attached.
func (c Claim) HasPageContext() bool { return c.Page != nil }
