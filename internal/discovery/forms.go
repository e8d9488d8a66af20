package discovery

import (
	"net/url"
	"strings"

	"github.com/nao1215/darkcrawl/internal/model"
)

// searchQueries are submitted to every search form, in order. The empty
// query often lists everything.
var searchQueries = []string{"", "a", "e", "test", "admin", "market"}

// spiderForms submits search queries to the GET and role=search forms of a
// page. Login forms (any password input) are skipped.
func (e *Engine) spiderForms(page *model.PageResult, emit emitFunc) bool {
	for _, form := range page.Forms {
		for _, u := range e.formURLs(form) {
			if !emit(u, model.MethodFormSpidering) {
				return false
			}
		}
	}
	return true
}

// formURLs returns the query URLs generated for one form, at most
// MaxFormVariants of them.
func (e *Engine) formURLs(form model.Form) []string {
	if !strings.EqualFold(form.Method, "GET") && !strings.EqualFold(form.Role, "search") {
		return nil
	}

	var (
		param  string
		hidden url.Values = make(url.Values)
	)
	for _, in := range form.Inputs {
		switch strings.ToLower(in.Type) {
		case "password":
			return nil
		case "text", "search":
			if in.Name != "" {
				param = in.Name
			}
		case "hidden":
			if in.Name != "" {
				hidden.Add(in.Name, in.Value)
			}
		}
	}
	if param == "" {
		return nil
	}

	action, err := url.Parse(form.Action)
	if err != nil || action.Host == "" {
		return nil
	}
	action.Fragment = ""

	var out []string
	for _, q := range searchQueries {
		if len(out) >= e.cfg.MaxFormVariants {
			break
		}
		values := action.Query()
		for k, vs := range hidden {
			values[k] = append([]string(nil), vs...)
		}
		values.Set(param, q)

		u := *action
		u.RawQuery = values.Encode()
		out = append(out, u.String())
	}
	return out
}
