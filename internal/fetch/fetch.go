// Package fetch retrieves the auxiliary content attached to URL-based and
// image-URL checks: page text (HTML stripped, truncated) and image bytes
// with their MIME type.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/microcosm-cc/bluemonday"
)

// Defaults applied by New for zero-valued options.
const (
	DefaultMaxContent = 15000
	DefaultMaxImage   = 8 << 20
	DefaultTimeout    = 20 * time.Second
	DefaultImageType  = "image/jpeg"
	maxPageBytes      = 4 << 20
	maxRedirects      = 10
)

var (
	ErrInvalidURL = errors.New("fetch: url must be absolute http or https")
	ErrTooLarge   = errors.New("fetch: response exceeds size limit")
	ErrNotImage   = errors.New("fetch: content is not an image")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch: unexpected status %s", e.Status)
}

// Options configures a Fetcher.
type Options struct {
	MaxContent int   // characters of page text kept
	MaxImage   int64 // bytes
	Timeout    time.Duration
	UserAgent  string
	Client     *http.Client
}

// Fetcher performs page and image retrieval.
type Fetcher struct {
	opts   Options
	client *http.Client
	policy *bluemonday.Policy
}

// New returns a Fetcher. The HTTP client follows up to 10 redirects.
func New(opts Options) *Fetcher {
	if opts.MaxContent <= 0 {
		opts.MaxContent = DefaultMaxContent
	}
	if opts.MaxImage <= 0 {
		opts.MaxImage = DefaultMaxImage
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "veritas-backend/1.0"
	}
	c := opts.Client
	if c == nil {
		c = &http.Client{}
	}
	cc := *c
	cc.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("fetch: stopped after %d redirects", maxRedirects)
		}
		return nil
	}
	policy := bluemonday.StrictPolicy()
	policy.AddSpaceWhenStrippingTag(true)
	return &Fetcher{opts: opts, client: &cc, policy: policy}
}

// Page is fetched page text.
type Page struct {
	FinalURL string
	Content  string
}

// Page fetches rawURL, follows redirects, strips markup and truncates the
// text to MaxContent characters.
func (f *Fetcher) Page(ctx context.Context, rawURL string) (Page, error) {
	resp, err := f.get(ctx, rawURL, "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return Page{}, fmt.Errorf("fetch: read body: %w", err)
	}
	return Page{
		FinalURL: resp.Request.URL.String(),
		Content:  Truncate(f.Text(string(body)), f.opts.MaxContent),
	}, nil
}

// Image fetches rawURL and returns its bytes and MIME type. The type comes
// from the Content-Type header, falls back to sniffing when the header is
// not an image type, and defaults to image/jpeg when the header is absent.
func (f *Fetcher) Image(ctx context.Context, rawURL string) ([]byte, string, error) {
	resp, err := f.get(ctx, rawURL, "image/*")
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.ContentLength > f.opts.MaxImage {
		return nil, "", ErrTooLarge
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxImage+1))
	if err != nil {
		return nil, "", fmt.Errorf("fetch: read image: %w", err)
	}
	if int64(len(data)) > f.opts.MaxImage {
		return nil, "", ErrTooLarge
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		return data, DefaultImageType, nil
	}
	if mt, _, err := mime.ParseMediaType(ct); err == nil && strings.HasPrefix(mt, "image/") {
		return data, mt, nil
	}
	mt, err := ImageType(data, "")
	if err != nil {
		return nil, "", err
	}
	return data, mt, nil
}

// ImageType returns declared when it is an image MIME type, otherwise the
// sniffed type of data. ErrNotImage is returned when neither is an image.
func ImageType(data []byte, declared string) (string, error) {
	if mt, _, err := mime.ParseMediaType(declared); err == nil && strings.HasPrefix(mt, "image/") {
		return mt, nil
	}
	if len(data) == 0 {
		return "", ErrNotImage
	}
	m := mimetype.Detect(data)
	for ; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "image/") {
			mt, _, _ := mime.ParseMediaType(m.String())
			return mt, nil
		}
	}
	return "", ErrNotImage
}

func (f *Fetcher) get(ctx context.Context, rawURL, accept string) (*http.Response, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", accept)

	resp, err := f.client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		cancel()
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	resp.Body = cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// ValidateURL parses raw and requires an absolute http(s) URL with a host.
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidURL
	}
	return u, nil
}

var spaceRE = regexp.MustCompile(`\s+`)

// Text strips all markup from doc and collapses whitespace.
func (f *Fetcher) Text(doc string) string {
	s := f.policy.Sanitize(doc)
	s = html.UnescapeString(s)
	return strings.TrimSpace(spaceRE.ReplaceAllString(s, " "))
}

// Truncate returns the first n characters of s.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
