// Package research fetches a website a lead mentions and reduces it to a
// short summary the extractor can use as sector context.
package research

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html"

	"github.com/wolfman30/sdr-ai-platform/pkg/logging"
)

const (
	defaultTimeout = 8 * time.Second
	maxBodyBytes   = 512 * 1024
	maxSummaryLen  = 400
)

var (
	ErrNoURL       = errors.New("research: no url")
	ErrUnsupported = errors.New("research: unsupported content")
	urlRE          = regexp.MustCompile(`(?i)\b(?:https?://)?(?:www\.)?[a-z0-9][a-z0-9\-]*(?:\.[a-z0-9\-]+)*\.(?:com|com\.br|net|net\.br|org|org\.br|io|br|app|co|med\.br|adv\.br|ind\.br)(?:/[^\s]*)?`)
	whitespaceRE   = regexp.MustCompile(`\s+`)
)

// Summary is what the site says about itself.
type Summary struct {
	URL         string
	Title       string
	Description string
	Heading     string
}

// String renders the summary as one line, trimmed to a prompt-friendly size.
func (s Summary) String() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{s.Title, s.Heading, s.Description} {
		if p != "" && !containsFold(parts, p) {
			parts = append(parts, p)
		}
	}
	out := strings.Join(parts, " | ")
	if r := []rune(out); len(r) > maxSummaryLen {
		out = string(r[:maxSummaryLen]) + "…"
	}
	return out
}

func (s Summary) IsEmpty() bool {
	return s.Title == "" && s.Description == "" && s.Heading == ""
}

// Researcher downloads and summarizes a single page.
type Researcher struct {
	client *resty.Client
	logger *logging.Logger
}

func NewResearcher(timeout time.Duration, logger *logging.Logger) *Researcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRedirectPolicy(resty.FlexibleRedirectPolicy(5)).
		SetHeader("User-Agent", "Mozilla/5.0 (compatible; sdr-agent/1.0)").
		SetHeader("Accept", "text/html,application/xhtml+xml")
	return &Researcher{client: client, logger: logger}
}

// ExtractURL returns the first website-looking token in text, with a scheme.
func ExtractURL(text string) (string, bool) {
	for _, loc := range urlRE.FindAllStringIndex(text, -1) {
		// skip the domain half of an e-mail address
		if loc[0] > 0 && text[loc[0]-1] == '@' {
			continue
		}
		candidate := strings.TrimRight(text[loc[0]:loc[1]], ".,;:!?)")
		if strings.Contains(candidate, "@") {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(candidate), "http") {
			candidate = "https://" + candidate
		}
		if u, err := url.Parse(candidate); err == nil && u.Host != "" {
			return u.String(), true
		}
	}
	return "", false
}

// Research fetches rawURL and summarizes it.
func (r *Researcher) Research(ctx context.Context, rawURL string) (Summary, error) {
	if strings.TrimSpace(rawURL) == "" {
		return Summary{}, ErrNoURL
	}
	resp, err := r.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(rawURL)
	if err != nil {
		return Summary{}, fmt.Errorf("research: fetch %s: %w", rawURL, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.IsError() {
		return Summary{}, fmt.Errorf("research: fetch %s: status %d", rawURL, resp.StatusCode())
	}
	if ct := resp.Header().Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return Summary{}, fmt.Errorf("%w: %s", ErrUnsupported, ct)
	}

	raw, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return Summary{}, fmt.Errorf("research: read %s: %w", rawURL, err)
	}
	summary := parseHTML(raw)
	summary.URL = rawURL
	r.logger.Debug("website researched", "url", rawURL, "title", summary.Title)
	return summary, nil
}

// parseHTML walks tokens once, collecting the title, the first h1 and the
// description meta tags.
func parseHTML(raw []byte) Summary {
	var s Summary
	var ogDescription, ogTitle string
	z := html.NewTokenizer(bytes.NewReader(raw))
	var inTitle, inH1 bool
	for {
		switch z.Next() {
		case html.ErrorToken:
			if s.Description == "" {
				s.Description = ogDescription
			}
			if s.Title == "" {
				s.Title = ogTitle
			}
			return s
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.Data {
			case "title":
				inTitle = s.Title == ""
			case "h1":
				inH1 = s.Heading == ""
			case "meta":
				name, content := metaAttrs(tok)
				switch name {
				case "description":
					s.Description = clean(content)
				case "og:description":
					ogDescription = clean(content)
				case "og:title", "og:site_name":
					if ogTitle == "" {
						ogTitle = clean(content)
					}
				}
			}
		case html.EndTagToken:
			switch z.Token().Data {
			case "title":
				inTitle = false
			case "h1":
				inH1 = false
			}
		case html.TextToken:
			text := clean(string(z.Text()))
			if text == "" {
				continue
			}
			if inTitle {
				s.Title = strings.TrimSpace(s.Title + " " + text)
			} else if inH1 {
				s.Heading = strings.TrimSpace(s.Heading + " " + text)
			}
		}
	}
}

func metaAttrs(tok html.Token) (name, content string) {
	for _, attr := range tok.Attr {
		switch strings.ToLower(attr.Key) {
		case "name", "property":
			name = strings.ToLower(attr.Val)
		case "content":
			content = attr.Val
		}
	}
	return name, content
}

func clean(s string) string {
	return strings.TrimSpace(whitespaceRE.ReplaceAllString(s, " "))
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
