package model

import (
	"net/http"
	"testing"
)

// TestPageResultHash tests the Hash method.
func TestPageResultHash(t *testing.T) {
	t.Parallel()

	t.Run("computes SHA256 hash of body", func(t *testing.T) {
		t.Parallel()

		page := &PageResult{Body: []byte("Hello, World!")}

		expected := "dffd6021bb2bd5b0af676290809ec3a53191dd81c7f70a4b28688a362182986f"
		if got := page.Hash(); got != expected {
			t.Errorf("got %q, expected %q", got, expected)
		}
	})

	t.Run("empty body produces empty hash", func(t *testing.T) {
		t.Parallel()

		page := &PageResult{}
		if got := page.Hash(); got != "" {
			t.Errorf("expected empty hash, got %q", got)
		}
	})
}

// TestPageResultContentType tests the content type helpers.
func TestPageResultContentType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		contentType string
		html        bool
		image       bool
		text        bool
	}{
		{contentType: "text/html", html: true, text: true},
		{contentType: "application/xhtml+xml", html: true, text: true},
		{contentType: "text/plain", text: true},
		{contentType: "application/javascript", text: true},
		{contentType: "image/png", image: true},
		{contentType: "image/x-icon", image: true},
		{contentType: "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			t.Parallel()

			page := &PageResult{ContentType: tt.contentType}
			if page.IsHTML() != tt.html {
				t.Errorf("IsHTML() = %v, expected %v", page.IsHTML(), tt.html)
			}
			if page.IsImage() != tt.image {
				t.Errorf("IsImage() = %v, expected %v", page.IsImage(), tt.image)
			}
			if page.IsText() != tt.text {
				t.Errorf("IsText() = %v, expected %v", page.IsText(), tt.text)
			}
		})
	}
}

// TestPageResultHeader tests header lookup.
func TestPageResultHeader(t *testing.T) {
	t.Parallel()

	page := &PageResult{Headers: http.Header{"Server": []string{"nginx"}}}
	if got := page.Header("server"); got != "nginx" {
		t.Errorf("Header(server) = %q, expected nginx", got)
	}

	empty := &PageResult{}
	if got := empty.Header("Server"); got != "" {
		t.Errorf("expected empty header on nil map, got %q", got)
	}
}

// TestPageResultURL tests that redirects are preferred.
func TestPageResultURL(t *testing.T) {
	t.Parallel()

	page := &PageResult{Address: "http://a.i2p/", FinalAddress: "http://a.i2p/home"}
	if page.URL() != "http://a.i2p/home" {
		t.Errorf("URL() = %q", page.URL())
	}
	page.FinalAddress = ""
	if page.URL() != "http://a.i2p/" {
		t.Errorf("URL() = %q", page.URL())
	}
}
