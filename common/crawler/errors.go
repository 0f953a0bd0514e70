package crawler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
)

var (
	// ErrTimeout is wrapped by every TimeoutError returned from Until
	ErrTimeout = errors.New("condition not met before timeout")

	// ErrStaleElement marks a read that hit a node detached by a re-render
	ErrStaleElement = errors.New("element is detached from the page")

	// ErrBrowserSetup is returned when the browser cannot be launched or reached
	ErrBrowserSetup = errors.New("browser setup failed")
)

// TimeoutError reports a polling wait that gave up, with the last transient
// error seen while polling, if any.
type TimeoutError struct {
	Timeout time.Duration
	Last    error
}

func (e *TimeoutError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("timed out after %s: %v", e.Timeout, e.Last)
	}
	return fmt.Sprintf("timed out after %s", e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// IsTimeout reports whether err came from an expired polling wait.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

var staleMarkers = []string{
	"cannot find context with specified id",
	"execution context was destroyed",
	"could not find object with given id",
	"could not find node with given id",
	"node with given id does not belong to the document",
	"no node with given id found",
	"detached",
	"stale element",
}

// IsStaleElement classifies errors raised when a DOM node was replaced
// between lookup and read.
func IsStaleElement(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStaleElement) {
		return true
	}

	var objErr *rod.ObjectNotFoundError
	if errors.As(err, &objErr) {
		return true
	}

	var cdpErr *cdp.Error
	if errors.As(err, &cdpErr) {
		return containsAny(strings.ToLower(cdpErr.Message), staleMarkers)
	}

	return containsAny(strings.ToLower(err.Error()), staleMarkers)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
