package sharing

import (
	"errors"
	"fmt"
	"net/url"
)

// ShareParam is the query parameter that carries a token.
const ShareParam = "share"

var ErrSizeLimitExceeded = errors.New("quiz is too large for a link")

// BuildURL places token in the share parameter of base. A maxLen above zero
// caps the length of the finished URL; longer URLs return
// ErrSizeLimitExceeded.
func BuildURL(base, token string, maxLen int) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid share base URL: %w", err)
	}

	q := u.Query()
	q.Set(ShareParam, token)
	u.RawQuery = q.Encode()
	u.Fragment = ""

	shareURL := u.String()
	if maxLen > 0 && len(shareURL) > maxLen {
		return "", fmt.Errorf("%w: %d characters exceeds %d", ErrSizeLimitExceeded, len(shareURL), maxLen)
	}
	return shareURL, nil
}

// TokenFromURL returns the share token carried by rawURL, if any.
func TokenFromURL(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	token := u.Query().Get(ShareParam)
	return token, token != ""
}

// StripShareParam removes the share parameter so that reloading the URL does
// not import the quiz a second time. Other parameters are kept.
func StripShareParam(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if _, ok := q[ShareParam]; !ok {
		return rawURL
	}
	q.Del(ShareParam)
	u.RawQuery = q.Encode()
	return u.String()
}
