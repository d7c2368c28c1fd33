package crawler

import (
	"errors"
	"fmt"
)

// Conditions that abort a whole run.
var (
	ErrHomepageUnreachable = errors.New("homepage unreachable")
	ErrNoNavigationMenu    = errors.New("navigation menu container not found")
	ErrNoCategories        = errors.New("no category links resolved")
)

// FetchErrorKind separates transport failures from HTTP status failures and
// requests refused by robots.txt.
type FetchErrorKind string

// Fetch failure kinds.
const (
	FetchErrorNetwork FetchErrorKind = "network"
	FetchErrorStatus  FetchErrorKind = "status"
	FetchErrorBlocked FetchErrorKind = "blocked"
)

// FetchError is returned by Fetcher implementations for any failed GET.
type FetchError struct {
	URL        string
	Kind       FetchErrorKind
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchErrorStatus:
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	case FetchErrorBlocked:
		return fmt.Sprintf("fetch %s: blocked by robots.txt", e.URL)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure was at the transport level. Nothing in
// the pipeline retries; callers use it to label logs and metrics.
func (e *FetchError) Retryable() bool {
	return e.Kind == FetchErrorNetwork
}

// AsFetchError unwraps err into a *FetchError when possible.
func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}
