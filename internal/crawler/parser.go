package crawler

import (
	"bytes"
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/nao1215/darkcrawl/internal/classify"
	"github.com/nao1215/darkcrawl/internal/model"
)

// HTML element name constants for form field detection.
const (
	htmlElementInput    = "input"
	htmlElementSelect   = "select"
	htmlElementTextarea = "textarea"
)

// HyphanetBaseURL is the placeholder origin used to resolve relative links
// on Hyphanet pages. Resolved links look like FProxy gateway URLs, which the
// Hyphanet classifier accepts.
const HyphanetBaseURL = "http://" + classify.GatewayPlaceholderHost

// Parser extracts information from HTML content.
// It identifies links, forms, metadata, and other interesting elements.
//
// Design decision: We use golang.org/x/net/html for parsing rather than
// regex because:
//  1. It correctly handles malformed HTML common on hidden services
//  2. Provides a proper DOM-like structure
//  3. Relative URL resolution needs the element context anyway
//
// Raw-byte scanning for addresses hidden in scripts and attributes is done
// separately by the discovery package.
type Parser struct {
	// baseURL is the URL of the page being parsed, used for resolving relative URLs.
	baseURL *url.URL
}

// ParseResult contains all information extracted from an HTML page.
type ParseResult struct {
	// Title is the page title from <title> tag.
	Title string

	// Text is the visible body text, whitespace collapsed, at most
	// MaxTextLength bytes.
	Text string

	// Links contains all resolved <a href> targets, in document order.
	Links []string

	// Forms contains information about HTML forms.
	Forms []model.Form

	// Scripts contains resolved script sources.
	Scripts []string

	// Icons contains resolved <link rel="icon"> targets.
	Icons []string

	// MetaTags contains meta tag information.
	MetaTags map[string]string

	// Comments contains HTML comments.
	Comments []string
}

// NewParser creates a new HTML parser with the given base URL.
// The base URL is used to resolve relative links.
func NewParser(baseURL string) (*Parser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Parser{baseURL: u}, nil
}

// Parse parses HTML content and extracts all relevant information.
func (p *Parser) Parse(content io.Reader) (*ParseResult, error) {
	doc, err := html.Parse(content)
	if err != nil {
		return nil, err
	}

	result := &ParseResult{
		Links:    make([]string, 0),
		Forms:    make([]model.Form, 0),
		Scripts:  make([]string, 0),
		Icons:    make([]string, 0),
		MetaTags: make(map[string]string),
		Comments: make([]string, 0),
	}

	var text strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if n.Data == "base" {
				p.applyBase(n)
			}
			p.processElement(n, result)
		case html.CommentNode:
			result.Comments = append(result.Comments, n.Data)
		case html.TextNode:
			if visibleText(n) {
				appendText(&text, n.Data)
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(doc)
	result.Text = text.String()

	return result, nil
}

// MaxTextLength bounds ParseResult.Text.
const MaxTextLength = 4096

// visibleText reports whether a text node is rendered as page text.
func visibleText(n *html.Node) bool {
	if n.Parent == nil || n.Parent.Type != html.ElementNode {
		return true
	}
	switch n.Parent.Data {
	case "script", "style", "noscript", "template", "title":
		return false
	}
	return true
}

// appendText adds the words of s to b until b holds MaxTextLength bytes.
func appendText(b *strings.Builder, s string) {
	for _, word := range strings.Fields(s) {
		need := len(word)
		if b.Len() > 0 {
			need++
		}
		if b.Len()+need > MaxTextLength {
			return
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(word)
	}
}

// applyBase honours <base href>, which changes how later relative links
// resolve.
func (p *Parser) applyBase(n *html.Node) {
	href := strings.TrimSpace(getAttr(n, "href"))
	if href == "" {
		return
	}
	u, err := url.Parse(href)
	if err != nil {
		return
	}
	p.baseURL = p.baseURL.ResolveReference(u)
}

// processElement handles HTML element nodes.
func (p *Parser) processElement(n *html.Node, result *ParseResult) {
	switch n.Data {
	case "title":
		if n.FirstChild != nil && n.FirstChild.Type == html.TextNode && result.Title == "" {
			result.Title = strings.TrimSpace(n.FirstChild.Data)
		}

	case "a", "area":
		if href := getAttr(n, "href"); href != "" {
			if resolved := p.resolveURL(href); resolved != "" {
				result.Links = append(result.Links, resolved)
			}
		}

	case "form":
		action := getAttr(n, "action")
		form := model.Form{
			Action: p.resolveURL(action),
			Method: strings.ToUpper(strings.TrimSpace(getAttr(n, "method"))),
			Role:   strings.ToLower(getAttr(n, "role")),
			Inputs: make([]model.FormInput, 0),
		}
		if strings.TrimSpace(action) == "" {
			form.Action = p.baseURL.String()
		}
		if form.Method == "" {
			form.Method = "GET"
		}
		p.extractFormFields(n, &form)
		result.Forms = append(result.Forms, form)

	case "script":
		if src := getAttr(n, "src"); src != "" {
			if resolved := p.resolveURL(src); resolved != "" {
				result.Scripts = append(result.Scripts, resolved)
			}
		}

	case "meta":
		// OpenGraph uses property instead of name.
		name := getAttr(n, "name")
		if name == "" {
			name = getAttr(n, "property")
		}
		if name == "" {
			name = getAttr(n, "http-equiv")
		}
		content := getAttr(n, "content")
		if name != "" && content != "" {
			result.MetaTags[strings.ToLower(name)] = content
		}

	case "link":
		if href := getAttr(n, "href"); href != "" {
			rel := strings.ToLower(getAttr(n, "rel"))
			if rel == "icon" || rel == "shortcut icon" || rel == "apple-touch-icon" {
				if resolved := p.resolveURL(href); resolved != "" {
					result.Icons = append(result.Icons, resolved)
				}
			}
		}
	}
}

// extractFormFields recursively extracts form fields from a form element.
func (p *Parser) extractFormFields(n *html.Node, form *model.Form) {
	if n.Type == html.ElementNode && (n.Data == htmlElementInput || n.Data == htmlElementSelect || n.Data == htmlElementTextarea) {
		field := model.FormInput{
			Name:  getAttr(n, "name"),
			Type:  strings.ToLower(getAttr(n, "type")),
			Value: getAttr(n, "value"),
		}
		if field.Type == "" {
			switch n.Data {
			case htmlElementTextarea:
				field.Type = htmlElementTextarea
			case htmlElementSelect:
				field.Type = htmlElementSelect
			default:
				field.Type = "text"
			}
		}
		if field.Name != "" {
			form.Inputs = append(form.Inputs, field)
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.extractFormFields(c, form)
	}
}

// resolveURL resolves a relative URL against the base URL.
// Fragments are dropped; pseudo-schemes resolve to "".
func (p *Parser) resolveURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}

	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "tel:") ||
		strings.HasPrefix(lower, "data:") ||
		strings.HasPrefix(href, "#") {
		return ""
	}

	// Hyphanet keys are absolute even without a scheme.
	if strings.HasPrefix(lower, "usk@") || strings.HasPrefix(lower, "ssk@") || strings.HasPrefix(lower, "chk@") {
		href = "/" + href
	}

	u, err := url.Parse(href)
	if err != nil {
		return ""
	}

	resolved := p.baseURL.ResolveReference(u)
	resolved.Fragment = ""
	return resolved.String()
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// BaseURL returns the URL relative links on page resolve against.
// Hyphanet pages resolve against HyphanetBaseURL plus the gateway path, with
// a trailing slash when the last segment names a site or edition rather
// than a file.
func BaseURL(page *model.PageResult) string {
	u := page.URL()
	if page.Network != model.NetworkHyphanet || !strings.HasPrefix(u, classify.HyphanetScheme) {
		return u
	}

	path := classify.HyphanetGatewayPath(u)
	last := path[strings.LastIndexByte(path, '/')+1:]
	if !strings.Contains(last, ".") {
		path += "/"
	}
	return HyphanetBaseURL + path
}

// Populate parses an HTML page body and fills the parsed fields of page.
// Non-HTML pages are left untouched.
func Populate(page *model.PageResult) error {
	if !page.IsHTML() || len(page.Body) == 0 {
		return nil
	}

	parser, err := NewParser(BaseURL(page))
	if err != nil {
		return err
	}
	result, err := parser.Parse(bytes.NewReader(page.Body))
	if err != nil {
		return err
	}

	page.Title = result.Title
	page.Text = result.Text
	page.Links = result.Links
	page.Forms = result.Forms
	page.Scripts = result.Scripts
	page.Icons = result.Icons
	page.MetaTags = result.MetaTags
	page.Comments = result.Comments
	return nil
}
