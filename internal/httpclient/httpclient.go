// Package httpclient builds the HTTP clients used for hosted-backend and
// corpus requests: bounded timeouts, a redirect cap, and scheme
// validation on redirect targets.
package httpclient

import (
	"net/http"
	"net/url"
	"time"

	"github.com/docsieve/docsieve/errors"
)

const maxRedirects = 10

// New returns an HTTP client with the given total-request timeout and a
// redirect policy that caps redirect chains and rejects non-HTTP(S)
// redirect targets.
func New(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return errors.Newf("stopped after %d redirects", maxRedirects)
			}
			if err := validateURL(req.URL); err != nil {
				return errors.Wrap(err, "redirect blocked")
			}
			return nil
		},
	}
}

func validateURL(u *url.URL) error {
	switch u.Scheme {
	case "http", "https":
		return nil
	default:
		return errors.Newf("scheme %q not allowed", u.Scheme)
	}
}
