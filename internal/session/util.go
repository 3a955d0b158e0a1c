package session

import "regexp"

func regexpExact(url string) *regexp.Regexp {
	return regexp.MustCompile("^" + regexp.QuoteMeta(url) + "/?$")
}
