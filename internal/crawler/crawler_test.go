package crawler

import (
	"slices"
	"strings"
	"testing"

	"github.com/nao1215/darkcrawl/internal/model"
)

const testOnion = "http://aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaam2dqd.onion"

func mustParse(t *testing.T, base, body string) *ParseResult {
	t.Helper()

	parser, err := NewParser(base)
	if err != nil {
		t.Fatalf("failed to create parser: %v", err)
	}
	result, err := parser.Parse(strings.NewReader(body))
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	return result
}

// TestParser tests HTML parsing functionality.
func TestParser(t *testing.T) {
	t.Parallel()

	t.Run("extracts title", func(t *testing.T) {
		t.Parallel()

		result := mustParse(t, testOnion+"/page", `<html><head><title> Test Page </title></head><body></body></html>`)
		if result.Title != "Test Page" {
			t.Errorf("expected title 'Test Page', got %q", result.Title)
		}
	})

	t.Run("resolves links in document order", func(t *testing.T) {
		t.Parallel()

		html := `<html><body>
			<a href="/internal">Internal Link</a>
			<a href="http://forum.i2p/">Eepsite</a>
			<a href="sub/page#frag">Relative</a>
			<map><area href="/map-target"></map>
		</body></html>`

		result := mustParse(t, testOnion+"/dir/page", html)
		want := []string{
			testOnion + "/internal",
			"http://forum.i2p/",
			testOnion + "/dir/sub/page",
			testOnion + "/map-target",
		}
		if !slices.Equal(result.Links, want) {
			t.Errorf("links = %v, want %v", result.Links, want)
		}
	})

	t.Run("extracts forms", func(t *testing.T) {
		t.Parallel()

		html := `<html><body>
			<form action="/login" method="post">
				<input type="text" name="username">
				<input type="PASSWORD" name="password">
				<input type="hidden" name="csrf" value="token123">
				<input type="submit" value="Login">
			</form>
			<form role="Search">
				<input type="search" name="q">
			</form>
		</body></html>`

		result := mustParse(t, testOnion+"/account", html)
		if len(result.Forms) != 2 {
			t.Fatalf("expected 2 forms, got %d", len(result.Forms))
		}

		login := result.Forms[0]
		if login.Action != testOnion+"/login" {
			t.Errorf("unexpected action %q", login.Action)
		}
		if login.Method != "POST" {
			t.Errorf("expected POST, got %q", login.Method)
		}
		if len(login.Inputs) != 3 {
			t.Errorf("expected 3 named inputs, got %d", len(login.Inputs))
		}
		if login.Inputs[1].Type != "password" {
			t.Errorf("input types are lowercased, got %q", login.Inputs[1].Type)
		}

		search := result.Forms[1]
		if search.Action != testOnion+"/account" {
			t.Errorf("empty action should resolve to the page URL, got %q", search.Action)
		}
		if search.Method != "GET" || search.Role != "search" {
			t.Errorf("unexpected search form %+v", search)
		}
	})

	t.Run("extracts scripts meta icons and comments", func(t *testing.T) {
		t.Parallel()

		html := `<html><head>
			<meta name="Generator" content="WordPress 6.4">
			<meta property="og:title" content="Market">
			<link rel="icon" href="/static/fav.ico">
			<script src="/js/app.js"></script>
			<!-- staging: http://forum.i2p/ -->
		</head></html>`

		result := mustParse(t, testOnion+"/", html)
		if result.MetaTags["generator"] != "WordPress 6.4" {
			t.Errorf("meta generator = %q", result.MetaTags["generator"])
		}
		if result.MetaTags["og:title"] != "Market" {
			t.Errorf("og:title = %q", result.MetaTags["og:title"])
		}
		if !slices.Equal(result.Icons, []string{testOnion + "/static/fav.ico"}) {
			t.Errorf("icons = %v", result.Icons)
		}
		if !slices.Equal(result.Scripts, []string{testOnion + "/js/app.js"}) {
			t.Errorf("scripts = %v", result.Scripts)
		}
		if len(result.Comments) != 1 || !strings.Contains(result.Comments[0], "forum.i2p") {
			t.Errorf("comments = %v", result.Comments)
		}
	})

	t.Run("honours base element", func(t *testing.T) {
		t.Parallel()

		html := `<html><head><base href="/mirror/"></head><body><a href="index.html">x</a></body></html>`
		result := mustParse(t, testOnion+"/a/b", html)
		if !slices.Equal(result.Links, []string{testOnion + "/mirror/index.html"}) {
			t.Errorf("links = %v", result.Links)
		}
	})
}

// TestParserFormFieldTypes tests default field types.
// TestParserText tests visible text extraction.
func TestParserText(t *testing.T) {
	t.Parallel()

	t.Run("skips scripts, styles and the title", func(t *testing.T) {
		t.Parallel()

		result := mustParse(t, testOnion+"/", `<html><head><title>Market</title>
<style>body { color: red }</style><script>var x = 1;</script></head>
<body><h1>Welcome   to
the market</h1><p>Escrow <b>only</b>.</p><noscript>enable js</noscript></body></html>`)
		if result.Text != "Welcome to the market Escrow only ." {
			t.Errorf("unexpected text %q", result.Text)
		}
	})

	t.Run("is bounded", func(t *testing.T) {
		t.Parallel()

		body := "<p>" + strings.Repeat("word ", MaxTextLength) + "</p>"
		result := mustParse(t, testOnion+"/", body)
		if len(result.Text) > MaxTextLength {
			t.Errorf("text is %d bytes, expected at most %d", len(result.Text), MaxTextLength)
		}
		if !strings.HasPrefix(result.Text, "word word") || strings.HasSuffix(result.Text, " ") {
			t.Errorf("unexpected text bounds %q", result.Text[:20])
		}
	})
}

func TestParserFormFieldTypes(t *testing.T) {
	t.Parallel()

	html := `<html><body>
		<form action="/submit" method="POST">
			<textarea name="message">Default text</textarea>
			<select name="country"><option value="us">US</option></select>
			<input name="noTypeField">
		</form>
	</body></html>`

	result := mustParse(t, testOnion, html)
	if len(result.Forms) != 1 {
		t.Fatalf("expected 1 form, got %d", len(result.Forms))
	}

	want := map[string]string{
		"message":     "textarea",
		"country":     "select",
		"noTypeField": "text",
	}
	for _, in := range result.Forms[0].Inputs {
		if want[in.Name] != in.Type {
			t.Errorf("field %q has type %q, want %q", in.Name, in.Type, want[in.Name])
		}
	}
}

// TestParserErrorCases tests error handling in the parser.
func TestParserErrorCases(t *testing.T) {
	t.Parallel()

	t.Run("returns error for invalid base URL", func(t *testing.T) {
		t.Parallel()

		if _, err := NewParser("://invalid-url"); err == nil {
			t.Error("expected error for invalid URL")
		}
	})

	t.Run("skips pseudo links", func(t *testing.T) {
		t.Parallel()

		html := `<html><body>
			<a href="">Empty</a>
			<a href="mailto:test@example.com">Email</a>
			<a href="JavaScript:void(0)">JS</a>
			<a href="data:text/plain,hi">Data</a>
			<a href="#section1">Jump</a>
			<a href="tel:+100">Call</a>
		</body></html>`

		result := mustParse(t, testOnion+"/page", html)
		if len(result.Links) != 0 {
			t.Errorf("expected no links, got %v", result.Links)
		}
	})
}

// TestResolveURLEdgeCases tests edge cases in URL resolution.
func TestResolveURLEdgeCases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		base string
		href string
		want string
	}{
		{name: "parent directory", base: testOnion + "/dir/page", href: "../up.html", want: testOnion + "/up.html"},
		{name: "protocol relative", base: testOnion + "/", href: "//forum.i2p/x", want: "http://forum.i2p/x"},
		{name: "query only", base: testOnion + "/search", href: "?q=1", want: testOnion + "/search?q=1"},
		{name: "fragment dropped", base: testOnion + "/", href: "/a#b", want: testOnion + "/a"},
		{name: "bare hyphanet key", base: HyphanetBaseURL + "/USK@abc/site/1/", href: "SSK@xyz/other-2/", want: HyphanetBaseURL + "/SSK@xyz/other-2/"},
		{name: "whitespace", base: testOnion + "/", href: "  /spaced  ", want: testOnion + "/spaced"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			parser, err := NewParser(tt.base)
			if err != nil {
				t.Fatal(err)
			}
			if got := parser.resolveURL(tt.href); got != tt.want {
				t.Errorf("resolveURL(%q) = %q, want %q", tt.href, got, tt.want)
			}
		})
	}
}

// TestBaseURL tests the resolution base per network.
func TestBaseURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		page model.PageResult
		want string
	}{
		{
			name: "final address wins",
			page: model.PageResult{Address: testOnion + "/a", FinalAddress: testOnion + "/a/", Network: model.NetworkTor},
			want: testOnion + "/a/",
		},
		{
			name: "hyphanet edition gets a trailing slash",
			page: model.PageResult{Address: "hyphanet:USK@abc,def,AQACAAE/sone/76", Network: model.NetworkHyphanet},
			want: HyphanetBaseURL + "/USK@abc,def,AQACAAE/sone/76/",
		},
		{
			name: "hyphanet file keeps its name",
			page: model.PageResult{Address: "hyphanet:USK@abc,def,AQACAAE/sone/76/index.html", Network: model.NetworkHyphanet},
			want: HyphanetBaseURL + "/USK@abc,def,AQACAAE/sone/76/index.html",
		},
		{
			name: "hyphanet gateway address is used as is",
			page: model.PageResult{Address: "hyphanet:USK@abc,def,AQACAAE/sone/76", FinalAddress: "http://127.0.0.1:8888/USK@abc,def,AQACAAE/sone/77/", Network: model.NetworkHyphanet},
			want: "http://127.0.0.1:8888/USK@abc,def,AQACAAE/sone/77/",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := BaseURL(&tt.page); got != tt.want {
				t.Errorf("BaseURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestPopulate tests that Populate fills the parsed page fields.
func TestPopulate(t *testing.T) {
	t.Parallel()

	t.Run("html page", func(t *testing.T) {
		t.Parallel()

		page := &model.PageResult{
			Address:     testOnion + "/",
			Network:     model.NetworkTor,
			ContentType: "text/html",
			Body:        []byte(`<title>Hi</title><a href="/next">n</a><form><input name="q"></form>`),
		}
		if err := Populate(page); err != nil {
			t.Fatal(err)
		}
		if page.Title != "Hi" {
			t.Errorf("title = %q", page.Title)
		}
		if !slices.Equal(page.Links, []string{testOnion + "/next"}) {
			t.Errorf("links = %v", page.Links)
		}
		if len(page.Forms) != 1 {
			t.Errorf("forms = %v", page.Forms)
		}
	})

	t.Run("non html page is untouched", func(t *testing.T) {
		t.Parallel()

		page := &model.PageResult{
			Address:     testOnion + "/robots.txt",
			ContentType: "text/plain",
			Body:        []byte(`<a href="/x">x</a>`),
		}
		if err := Populate(page); err != nil {
			t.Fatal(err)
		}
		if page.Links != nil {
			t.Errorf("expected no links, got %v", page.Links)
		}
	})
}

// TestMatchPattern tests glob matching of URL paths.
func TestMatchPattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pattern string
		path    string
		want    bool
	}{
		{"admin prefix match", "/admin/*", "/admin/dashboard", true},
		{"admin prefix exact", "/admin/*", "/admin", true},
		{"admin prefix no match", "/admin/*", "/user/profile", false},
		{"admin prefix partial no match", "/admin/*", "/administrator", false},
		{"pdf extension", "*.pdf", "/docs/file.pdf", true},
		{"pdf extension nested", "*.pdf", "/a/b/c/report.pdf", true},
		{"pdf extension no match", "*.pdf", "/docs/file.txt", false},
		{"exact match", "/logout", "/logout", true},
		{"exact no match", "/logout", "/login", false},
		{"wildcard middle", "/api/v?/users", "/api/v1/users", true},
		{"wildcard middle no match", "/api/v?/users", "/api/v10/users", false},
		{"root path", "/", "/", true},
		{"root no match prefix", "/admin/*", "/", false},
		{"nested admin", "/admin/*", "/admin/users/edit", true},
		{"bare segment pattern", "logout*", "/account/logout.php", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := matchPattern(tt.pattern, tt.path); got != tt.want {
				t.Errorf("matchPattern(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
			}
		})
	}
}

// TestScopeAllows tests URL filtering based on ignore and follow patterns.
func TestScopeAllows(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		ignore []string
		follow []string
		url    string
		want   bool
	}{
		{name: "no patterns", url: testOnion + "/anything", want: true},
		{name: "ignored", ignore: []string{"/logout*"}, url: testOnion + "/logout?x=1", want: false},
		{name: "ignored extension", ignore: []string{"*.zip"}, url: "http://forum.i2p/dump.zip", want: false},
		{name: "follow match", follow: []string{"/forum/*"}, url: "http://forum.i2p/forum/7", want: true},
		{name: "follow miss", follow: []string{"/forum/*"}, url: "http://forum.i2p/wiki/7", want: false},
		{name: "ignore beats follow", ignore: []string{"/forum/admin"}, follow: []string{"/forum/*"}, url: "http://forum.i2p/forum/admin", want: false},
		{name: "root defaults to slash", follow: []string{"/"}, url: "http://forum.i2p", want: true},
		{name: "opaque hyphanet", ignore: []string{"*.zip"}, url: "hyphanet:USK@abc,def,AQACAAE/site/1/a.zip", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := NewScope(tt.ignore, tt.follow).Allows(tt.url); got != tt.want {
				t.Errorf("Allows(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}

	var nilScope *Scope
	if !nilScope.Allows("x") {
		t.Error("nil scope must allow everything")
	}
}
