package feed

import "net/url"

// isAbsoluteHTTPURL reports whether s is a well-formed absolute URL
// with an http or https scheme, the only kind an enclosure or image
// URL is ever allowed to be under the validate-urls policy.
func isAbsoluteHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	if !u.IsAbs() {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}
