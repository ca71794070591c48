package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// The helpers below report whether the selector matched so callers can tell
// a missing node from an empty one.

func firstText(scope *goquery.Selection, m goquery.Matcher) (string, bool) {
	sel := scope.FindMatcher(m).First()
	if sel.Length() == 0 {
		return "", false
	}
	return strings.TrimSpace(sel.Text()), true
}

func allText(scope *goquery.Selection, m goquery.Matcher) ([]string, bool) {
	sel := scope.FindMatcher(m)
	if sel.Length() == 0 {
		return []string{}, false
	}
	out := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, strings.TrimSpace(s.Text()))
	})
	return out, true
}

func firstAttr(scope *goquery.Selection, m goquery.Matcher, attr string) (string, bool) {
	if attr == "" {
		return "", false
	}
	return scope.FindMatcher(m).First().Attr(attr)
}

func exists(scope *goquery.Selection, m goquery.Matcher) bool {
	return scope.FindMatcher(m).Length() > 0
}
