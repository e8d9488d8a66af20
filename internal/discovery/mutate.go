package discovery

import (
	"net/url"
	"regexp"
	"strconv"

	"github.com/nao1215/darkcrawl/internal/model"
)

var (
	// namedNumericPattern matches numeric ids after segment names that
	// usually index content. Group 1 is the prefix, group 2 the number.
	namedNumericPattern = regexp.MustCompile(`(/(?:product|item|listing|user|post|thread|id|page|topic|article|view|node|profile|member|message|order|invoice|ticket|category|tag|p|t|u|f)/|/showthread\.php\?t=)(\d+)\b`)

	// genericNumericPattern matches any /segment/N.
	genericNumericPattern = regexp.MustCompile(`(/[a-z_-]+/)(\d+)\b`)
)

// mutatePatterns emits the numeric neighbours of URLs on the page, and of
// the page itself, that look like sequential ids.
func (e *Engine) mutatePatterns(page *model.PageResult, emit emitFunc) bool {
	k := e.cfg.MaxEnumerate
	if k == 0 {
		return true
	}

	seenPatterns := make(map[string]struct{})
	urls := append([]string{page.URL()}, page.Links...)
	for _, raw := range urls {
		for _, m := range mutate(raw, k, seenPatterns) {
			if !emit(m, model.MethodPatternMutation) {
				return false
			}
		}
	}
	return true
}

// mutate returns the neighbours of the first numeric pattern in raw. A
// host and segment pair already in seen yields nothing.
func mutate(raw string, k int, seen map[string]struct{}) []string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil
	}

	// Match against path?query so showthread.php?t=N is visible.
	target := u.EscapedPath()
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}

	loc := namedNumericPattern.FindStringSubmatchIndex(target)
	if loc == nil {
		loc = genericNumericPattern.FindStringSubmatchIndex(target)
	}
	if loc == nil {
		return nil
	}

	prefix := target[loc[2]:loc[3]]
	key := u.Host + ":" + prefix
	if _, dup := seen[key]; dup {
		return nil
	}
	seen[key] = struct{}{}

	n, err := strconv.Atoi(target[loc[4]:loc[5]])
	if err != nil {
		return nil
	}

	var out []string
	for i := max(1, n-k); i <= n+k; i++ {
		if i == n {
			continue
		}
		mutated := target[:loc[4]] + strconv.Itoa(i) + target[loc[5]:]
		ref, err := url.Parse(mutated)
		if err != nil {
			continue
		}
		v := *u
		v.Path = ref.Path
		v.RawPath = ref.RawPath
		v.RawQuery = ref.RawQuery
		v.Fragment = ""
		out = append(out, v.String())
	}
	return out
}
