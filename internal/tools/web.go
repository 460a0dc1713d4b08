package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"

	"github.com/seneschal/seneschal/internal/capability"
)

const (
	webUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_7_2) AppleWebKit/537.36"
	maxRedirects = 5
	maxBodyBytes = 4 << 20
)

// NewWebReadTool builds the web_read tool: fetch a URL and return its
// readable text. maxChars caps the returned text; 0 uses the default.
func NewWebReadTool(maxChars int) *capability.Tool {
	if maxChars <= 0 {
		maxChars = 8000
	}
	client := &http.Client{
		Timeout: 30 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	params := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "URL to fetch (http or https)",
			},
			"maxChars": map[string]any{
				"type":        "integer",
				"description": "Cap on returned characters",
			},
		},
		"required": []any{"url"},
	}

	handler := func(ctx context.Context, args map[string]any, _ capability.CallContext) (string, error) {
		rawURL, _ := args["url"].(string)
		if rawURL == "" {
			return "Error: url is required", nil
		}
		if err := validateURL(rawURL); err != nil {
			return fmt.Sprintf("Error: %v", err), nil
		}

		limit := maxChars
		if v, ok := args["maxChars"].(float64); ok && int(v) > 0 {
			limit = int(v)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return fmt.Sprintf("Error: %v", err), nil
		}
		req.Header.Set("User-Agent", webUserAgent)

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Sprintf("Error: fetch %s: %v", rawURL, err), nil
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return fmt.Sprintf("Error: read %s: %v", rawURL, err), nil
		}
		if resp.StatusCode >= 400 {
			return fmt.Sprintf("Error: %s returned status %d", rawURL, resp.StatusCode), nil
		}

		return extractText(body, rawURL, limit), nil
	}

	return capability.NewTool(
		"web_read",
		"Fetch a web page and return its readable text content.",
		params,
		handler,
	)
}

// extractText runs readability extraction with a strip-tags fallback and
// clips the result to limit characters.
func extractText(body []byte, rawURL string, limit int) string {
	pageURL, _ := url.Parse(rawURL)

	var title, text string
	if article, err := readability.FromReader(bytes.NewReader(body), pageURL); err == nil {
		title = strings.TrimSpace(article.Title)
		text = strings.TrimSpace(article.TextContent)
	}
	if text == "" {
		text = stripTags(string(body))
	}
	if title != "" {
		text = "# " + title + "\n\n" + text
	}

	if len(text) > limit {
		text = text[:limit] + "\n\n[content truncated]"
	}
	return text
}

func validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("only http/https allowed, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing domain in URL")
	}
	return nil
}

var (
	reScript   = regexp.MustCompile(`(?is)<script[\s\S]*?</script>`)
	reStyle    = regexp.MustCompile(`(?is)<style[\s\S]*?</style>`)
	reTags     = regexp.MustCompile(`<[^>]+>`)
	reSpaces   = regexp.MustCompile(`[ \t]+`)
	reNewlines = regexp.MustCompile(`\n{3,}`)
)

// stripTags removes all HTML tags and normalizes whitespace.
func stripTags(text string) string {
	text = reScript.ReplaceAllString(text, "")
	text = reStyle.ReplaceAllString(text, "")
	text = reTags.ReplaceAllString(text, "")
	text = reSpaces.ReplaceAllString(text, " ")
	text = reNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
