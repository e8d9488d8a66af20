package correlation

import (
	"net/http"
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"github.com/nao1215/darkcrawl/internal/model"
)

// signatureHeaders identify the server software. Their values go into the
// server signature.
var signatureHeaders = []string{"Server", "X-Powered-By", "Via"}

// frameworkCookies maps session cookie names to the framework that sets
// them. Names are matched case-insensitively.
var frameworkCookies = map[string]string{
	"phpsessid":         "php_session",
	"laravel_session":   "laravel",
	"connect.sid":       "express_nodejs",
	"rack.session":      "ruby_rack",
	"asp.net_sessionid": "aspnet",
	"jsessionid":        "java_servlet",
	"csrftoken":         "django",
	"sessionid":         "django",
	"_session_id":       "rails",
	"ci_session":        "codeigniter",
}

// maxCookieNameLength drops cookie names that are really random tokens.
const maxCookieNameLength = 50

func detectHeaders(page *model.PageResult, facts *factSet) {
	facts.add(model.CorrelationServerSignature, ServerSignature(page.Headers))
	facts.add(model.CorrelationServerHeader, page.Header("Server"))
	facts.add(model.CorrelationPoweredBy, page.Header("X-Powered-By"))
	facts.add(model.CorrelationETag, page.Header("ETag"))
	if len(page.HeaderOrder) > 0 {
		facts.add(model.CorrelationHeaderOrderHash, sha256Hex([]byte(strings.Join(page.HeaderOrder, ","))))
	}
}

// ServerSignature returns the hex SHA-256 of the normalized server
// signature of a response: the Server, X-Powered-By and Via values
// case-folded with whitespace collapsed, followed by the sorted set of
// header names. It returns "" when there are no headers.
func ServerSignature(h http.Header) string {
	if len(h) == 0 {
		return ""
	}

	fold := cases.Fold()
	var b strings.Builder
	for _, name := range signatureHeaders {
		value := strings.Join(strings.Fields(fold.String(strings.Join(h.Values(name), " "))), " ")
		b.WriteString(strings.ToLower(name))
		b.WriteByte('=')
		b.WriteString(value)
		b.WriteByte('\n')
	}

	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, strings.ToLower(name))
	}
	slices.Sort(names)
	names = slices.Compact(names)
	b.WriteString(strings.Join(names, ","))

	return sha256Hex([]byte(b.String()))
}

func detectCookies(page *model.PageResult, facts *factSet) {
	for _, line := range page.Headers.Values("Set-Cookie") {
		name := cookieName(line)
		if name == "" || len(name) >= maxCookieNameLength {
			continue
		}
		facts.add(model.CorrelationCookieName, name)
		if fw, ok := frameworkCookies[strings.ToLower(name)]; ok {
			facts.add(model.CorrelationFramework, fw)
		}
	}
}

// cookieName returns the name of a Set-Cookie header value.
func cookieName(line string) string {
	if c, err := http.ParseSetCookie(line); err == nil {
		return c.Name
	}
	// ParseSetCookie rejects names and values net/http would not send.
	name, _, ok := strings.Cut(line, "=")
	if !ok {
		return ""
	}
	return strings.TrimSpace(name)
}
