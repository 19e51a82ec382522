package research

import (
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// parseResults extracts result anchors (class "result__a") from a DuckDuckGo
// HTML results page. The anchor text becomes the label and the redirect
// target becomes the URL.
func parseResults(htmlContent string, maxResults int) ([]Source, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var results []Source
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= maxResults {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "result__a") {
			s := Source{
				Label: textContent(n),
				URL:   resolveRedirect(attrValue(n, "href")),
			}
			if s.Label != "" && s.URL != "" {
				results = append(results, s)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return results, nil
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg= redirect links.
func resolveRedirect(href string) string {
	if href == "" {
		return ""
	}
	raw := href
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

func hasClass(n *html.Node, class string) bool {
	for _, f := range strings.Fields(attrValue(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}

// attrValue returns the value of an attribute.
func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// textContent returns all text content within a node, whitespace-collapsed.
func textContent(n *html.Node) string {
	var sb strings.Builder
	var getText func(*html.Node)
	getText = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			getText(c)
		}
	}
	getText(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
