// Package validation holds the small input validators shared by config
// loading and the command-line tools.
package validation

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"
)

var (
	ErrInvalidAddr  = errors.New("invalid listen address")
	ErrInvalidURL   = errors.New("invalid server URL")
	ErrEmptyValue   = errors.New("value must not be empty")
	ErrNegativeTime = errors.New("duration must not be negative")
)

// ListenAddr checks that addr is a resolvable host:port listen address.
func ListenAddr(addr string) error {
	if addr == "" {
		return ErrInvalidAddr
	}
	if _, err := net.ResolveTCPAddr("tcp", addr); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAddr, err)
	}
	return nil
}

// ServerURL checks that raw is an absolute http(s) URL.
func ServerURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return nil
}

// NonEmpty checks that a named value is set.
func NonEmpty(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s", ErrEmptyValue, name)
	}
	return nil
}

// NonNegativeDuration checks that a named duration is zero or positive.
func NonNegativeDuration(name string, d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: %s", ErrNegativeTime, name)
	}
	return nil
}
