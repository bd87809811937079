package runner

import (
	"fmt"
	"net/url"

	"github.com/aretw0/capture/pkg/domain"
)

// NavigationURL appends the capture parameters to the test page URL so the
// instrumented page knows where to post and which session it belongs to.
func NavigationURL(target, serverURL, sessionID, filter string) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid target url %q: %w", target, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid target url %q: scheme and host are required", target)
	}

	q := u.Query()
	q.Set("nojshint", "true")
	if filter != "" {
		q.Set(domain.FieldFilter, filter)
	}
	q.Set(domain.FieldServerURL, serverURL)
	q.Set(domain.FieldClientID, sessionID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
