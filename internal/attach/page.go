// Package attach fetches web pages and turns them into conversation context.
package attach

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"

	"github.com/pocketomega/reasonloop/internal/conversation"
)

const (
	fetchTimeout      = 15 * time.Second
	maxBody           = 2 << 20 // 2MB
	maxRunes          = 8000    // keeps the attachment well inside the model context
	userAgent         = "ReasonLoop/0.1 (Page Attachment)"
	maxRedirects      = 10
	truncationMarker  = "\n\n...(truncated)"
	emptyPageFallback = "(no readable text found)"
)

// ErrUnsupportedURL is returned for anything that is not an http(s) URL.
var ErrUnsupportedURL = errors.New("attach: url must start with http:// or https://")

// httpClient has an explicit timeout and redirect limit.
var httpClient = &http.Client{
	Timeout: fetchTimeout,
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	},
}

// Page is the readable part of a fetched HTML document.
type Page struct {
	URL       string
	Title     string
	Text      string
	Truncated bool
}

// Item renders the page as a plain text item that can be added to a user
// message.
func (p Page) Item() conversation.PlainTextItem {
	var sb strings.Builder
	sb.WriteString("Attached page: ")
	if p.Title != "" {
		sb.WriteString(p.Title)
		sb.WriteString(" (")
		sb.WriteString(p.URL)
		sb.WriteString(")")
	} else {
		sb.WriteString(p.URL)
	}
	sb.WriteString("\n\n")
	if p.Text == "" {
		sb.WriteString(emptyPageFallback)
	} else {
		sb.WriteString(p.Text)
	}
	return conversation.PlainTextItem{Text: sb.String()}
}

// FetchPage downloads url, transcodes it to UTF-8 and extracts the title and
// body text, truncated to a fixed number of runes.
func FetchPage(ctx context.Context, url string) (Page, error) {
	url = strings.TrimSpace(url)
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return Page{}, ErrUnsupportedURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Page{}, fmt.Errorf("attach: build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := httpClient.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("attach: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Page{}, fmt.Errorf("attach: fetch %s: HTTP %d", url, resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, maxBody)
	body, err := charset.NewReaderLabel(extractCharset(resp.Header.Get("Content-Type")), limited)
	if err != nil {
		// Unknown label: assume UTF-8.
		body = limited
	}

	title, text, err := extractContent(body)
	if err != nil {
		return Page{}, fmt.Errorf("attach: parse %s: %w", url, err)
	}

	page := Page{URL: url, Title: title, Text: text}
	if runes := []rune(text); len(runes) > maxRunes {
		page.Text = string(runes[:maxRunes]) + truncationMarker
		page.Truncated = true
	}
	log.Printf("[Attach] %s: %q, %d runes (truncated=%v)", url, title, len([]rune(page.Text)), page.Truncated)
	return page, nil
}

// extractCharset extracts the charset value from a Content-Type header.
// Example: "text/html; charset=gbk" → "gbk". Empty means UTF-8.
func extractCharset(contentType string) string {
	for _, part := range strings.Split(contentType, ";") {
		part = strings.ToLower(strings.TrimSpace(part))
		if strings.HasPrefix(part, "charset=") {
			return strings.Trim(strings.TrimPrefix(part, "charset="), `"`)
		}
	}
	return ""
}

var skipTags = map[string]bool{
	"script": true, "style": true, "noscript": true,
	"nav": true, "footer": true, "header": true,
	"aside": true, "iframe": true, "svg": true,
}

// extractContent parses HTML and extracts the <title> and body text,
// skipping non-content elements.
func extractContent(r io.Reader) (title string, content string, err error) {
	tokenizer := html.NewTokenizer(r)

	var (
		sb        strings.Builder
		inTitle   bool
		skipDepth int
	)
	lastByte := func() byte {
		s := sb.String()
		if s == "" {
			return 0
		}
		return s[len(s)-1]
	}

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			result := collapseBlankLines(strings.TrimSpace(sb.String()))
			if err := tokenizer.Err(); err != io.EOF {
				return title, result, err
			}
			return title, result, nil

		case html.StartTagToken:
			tn, _ := tokenizer.TagName()
			tag := string(tn)
			if tag == "title" {
				inTitle = true
			}
			if skipTags[tag] {
				skipDepth++
			}
			if isBlockElement(tag) && sb.Len() > 0 && lastByte() != '\n' {
				sb.WriteByte('\n')
			}
			if (tag == "td" || tag == "th") && sb.Len() > 0 && lastByte() != '\n' {
				sb.WriteString("| ")
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			tag := string(tn)
			if tag == "title" {
				inTitle = false
			}
			if skipTags[tag] && skipDepth > 0 {
				skipDepth--
			}

		case html.TextToken:
			text := strings.TrimSpace(string(tokenizer.Text()))
			if text == "" {
				continue
			}
			if inTitle {
				if title == "" {
					title = text
				}
				continue
			}
			if skipDepth == 0 {
				sb.WriteString(text)
				sb.WriteByte(' ')
			}
		}
	}
}

// collapseBlankLines reduces runs of blank lines to a single one.
func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	result := lines[:0]
	blank := 0
	for _, line := range lines {
		line = strings.TrimRight(line, " ")
		if line == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		result = append(result, line)
	}
	return strings.Join(result, "\n")
}

func isBlockElement(tag string) bool {
	switch tag {
	case "p", "div", "h1", "h2", "h3", "h4", "h5", "h6",
		"li", "tr", "br", "hr", "blockquote", "pre",
		"article", "section", "main",
		"table", "thead", "tbody", "tfoot":
		return true
	}
	return false
}
