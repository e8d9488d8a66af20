package correlation

import (
	"regexp"
	"strings"

	"github.com/nao1215/darkcrawl/internal/model"
)

// Tracker ids. The whole match is the value unless the pattern has a group.
var trackerPatterns = []struct {
	typ model.CorrelationType
	re  *regexp.Regexp
}{
	{model.CorrelationGoogleUA, regexp.MustCompile(`\bUA-\d{4,10}-\d{1,4}\b`)},
	{model.CorrelationGoogleG, regexp.MustCompile(`\bG-[A-Z0-9]{10,12}\b`)},
	{model.CorrelationGoogleTag, regexp.MustCompile(`\bGTM-[A-Z0-9]{4,8}\b`)},
	{model.CorrelationFacebookPixel, regexp.MustCompile(`fbq\s*\(\s*['"]init['"]\s*,\s*['"](\d{15,16})['"]`)},
}

var (
	pgpBlockPattern = regexp.MustCompile(`(?s)-----BEGIN PGP PUBLIC KEY BLOCK-----.+?-----END PGP PUBLIC KEY BLOCK-----`)

	// generatorPattern finds generator meta tags in bodies the HTML parser
	// did not see, in either attribute order.
	generatorPattern = regexp.MustCompile(`(?i)<meta[^>]+(?:name=["']generator["'][^>]+content=["']([^"']+)["']|content=["']([^"']+)["'][^>]+name=["']generator["'])`)
)

// cmsMarkers detect content management systems from body text (lowercased)
// and headers. The first marker found names the CMS.
var cmsMarkers = []struct {
	name    string
	body    []string
	headers []string
}{
	{name: "wordpress", body: []string{"/wp-content/", "/wp-includes/", "wp-json"}, headers: []string{"X-Pingback"}},
	{name: "drupal", body: []string{"drupal.settings", "/sites/default/files/", "drupal"}, headers: []string{"X-Drupal-Cache", "X-Drupal-Dynamic-Cache"}},
	{name: "joomla", body: []string{"/components/com_", "joomla!"}},
	{name: "phpbb", body: []string{"phpbb", "viewtopic.php?"}},
	{name: "mybb", body: []string{"mybb", "showthread.php?tid="}},
	{name: "smf", body: []string{"simple machines forum", "index.php?topic="}},
	{name: "xenforo", body: []string{"xenforo"}},
	{name: "discourse", body: []string{"discourse-assets"}, headers: []string{"X-Discourse-Route"}},
	{name: "ghost", body: []string{"ghost-portal", "content=\"ghost"}},
}

func detectContent(page *model.PageResult, facts *factSet) {
	body := string(page.Body)

	for _, p := range trackerPatterns {
		for _, m := range p.re.FindAllStringSubmatch(body, -1) {
			value := m[0]
			if len(m) > 1 {
				value = m[1]
			}
			facts.add(p.typ, value)
		}
	}

	for _, block := range pgpBlockPattern.FindAllString(body, -1) {
		facts.add(model.CorrelationPGPKeyHash, sha256Hex([]byte(normalizePGP(block))))
	}

	generator := page.MetaTags["generator"]
	if generator == "" {
		if m := generatorPattern.FindStringSubmatch(body); m != nil {
			generator = m[1] + m[2]
		}
	}
	facts.add(model.CorrelationMetaGenerator, generator)

	facts.add(model.CorrelationCMS, detectCMS(page, strings.ToLower(body), strings.ToLower(generator)))
}

// normalizePGP strips carriage returns and trailing spaces so the same key
// pasted on two sites hashes the same.
func normalizePGP(block string) string {
	lines := strings.Split(strings.ReplaceAll(block, "\r", ""), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.Join(lines, "\n")
}

func detectCMS(page *model.PageResult, lowerBody, lowerGenerator string) string {
	for _, m := range cmsMarkers {
		if strings.HasPrefix(lowerGenerator, m.name) {
			return m.name
		}
	}
	for _, m := range cmsMarkers {
		for _, h := range m.headers {
			if page.Header(h) != "" {
				return m.name
			}
		}
		for _, marker := range m.body {
			if strings.Contains(lowerBody, marker) {
				return m.name
			}
		}
	}
	return ""
}
