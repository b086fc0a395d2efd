package backend

import (
	"bytes"
	"encoding/json"
	"strings"

	"golang.org/x/net/html"
)

// maxErrorText bounds the server message shown to the user
const maxErrorText = 300

// ErrorText turns an error response body into a short readable message.
// JSON bodies yield their message field, HTML error pages their text.
func ErrorText(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}

	if body[0] == '{' {
		var obj map[string]any
		if err := json.Unmarshal(body, &obj); err == nil {
			for _, k := range []string{"message", "Message", "error", "title", "detail"} {
				if s, ok := obj[k].(string); ok && s != "" {
					return truncate(s, maxErrorText)
				}
			}
		}
	}

	if looksLikeHTML(body) {
		if text := extractText(string(body)); text != "" {
			return truncate(text, maxErrorText)
		}
	}

	return truncate(strings.Join(strings.Fields(string(body)), " "), maxErrorText)
}

func looksLikeHTML(body []byte) bool {
	head := strings.ToLower(string(body[:min(len(body), 512)]))
	return strings.HasPrefix(head, "<!doctype html") ||
		strings.Contains(head, "<html") ||
		strings.Contains(head, "<body")
}

// extractText parses HTML and returns readable text content
func extractText(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}

	var sb strings.Builder
	var extract func(*html.Node)

	// Tags to skip (non-content)
	skipTags := map[string]bool{
		"script": true, "style": true, "head": true,
		"noscript": true, "iframe": true,
	}

	extract = func(n *html.Node) {
		if n.Type == html.ElementNode && skipTags[n.Data] {
			return
		}

		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				sb.WriteString(text)
				sb.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}

	extract(doc)

	return strings.Join(strings.Fields(sb.String()), " ")
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
