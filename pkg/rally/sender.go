package rally

import (
	"errors"
	"net"
	"net/url"
	"strings"
)

// SenderPolicy decides whether a message may be processed at all. It must
// not look at the message itself.
type SenderPolicy interface {
	Authenticate(sender Sender) error
}

// CompanionPolicy accepts messages from exactly one extension.
type CompanionPolicy struct {
	ExtensionID string
}

func (p CompanionPolicy) Authenticate(sender Sender) error {
	if p.ExtensionID == "" || sender.ID != p.ExtensionID {
		return &SenderMismatchError{SenderID: sender.ID}
	}
	return nil
}

// WebOriginPolicy accepts messages from pages served by one origin.
//
// The website must never be trusted beyond the origin check: other add-ons
// can inject content scripts there and impersonate it.
type WebOriginPolicy struct {
	Origin string
}

func (p WebOriginPolicy) Authenticate(sender Sender) error {
	want, err := Origin(p.Origin)
	if err != nil {
		return &OriginMismatchError{URL: sender.URL, Unparseable: true}
	}
	got, err := Origin(sender.URL)
	if err != nil {
		return &OriginMismatchError{URL: sender.URL, Unparseable: true}
	}
	if got != want {
		return &OriginMismatchError{URL: sender.URL}
	}
	return nil
}

// Origin returns the scheme://host[:port] of rawURL. Default ports are
// dropped so that https://a and https://a:443 compare equal.
func Origin(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" || u.Opaque != "" {
		return "", &url.Error{Op: "origin", URL: rawURL, Err: errNoOrigin}
	}
	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (scheme == "https" && port == "443") || (scheme == "http" && port == "80") {
		port = ""
	}
	if port != "" {
		return scheme + "://" + net.JoinHostPort(host, port), nil
	}
	if strings.Contains(host, ":") {
		return scheme + "://[" + host + "]", nil
	}
	return scheme + "://" + host, nil
}

var errNoOrigin = errors.New("url has no origin")
