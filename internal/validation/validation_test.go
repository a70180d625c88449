package validation

import (
	"errors"
	"testing"
	"time"
)

func TestListenAddr(t *testing.T) {
	for _, good := range []string{":8791", "127.0.0.1:80", "localhost:9000"} {
		if err := ListenAddr(good); err != nil {
			t.Errorf("ListenAddr(%q) = %v", good, err)
		}
	}
	for _, bad := range []string{"", "no-port", ":notaport"} {
		if err := ListenAddr(bad); !errors.Is(err, ErrInvalidAddr) {
			t.Errorf("ListenAddr(%q) = %v, want ErrInvalidAddr", bad, err)
		}
	}
}

func TestServerURL(t *testing.T) {
	for _, good := range []string{"http://127.0.0.1:8791", "https://vault.example.com"} {
		if err := ServerURL(good); err != nil {
			t.Errorf("ServerURL(%q) = %v", good, err)
		}
	}
	for _, bad := range []string{"", "127.0.0.1:8791", "ftp://host", "http://"} {
		if err := ServerURL(bad); !errors.Is(err, ErrInvalidURL) {
			t.Errorf("ServerURL(%q) = %v, want ErrInvalidURL", bad, err)
		}
	}
}

func TestNonEmpty(t *testing.T) {
	if err := NonEmpty("field", "set"); err != nil {
		t.Errorf("NonEmpty(set) = %v", err)
	}
	if err := NonEmpty("field", ""); !errors.Is(err, ErrEmptyValue) {
		t.Errorf("NonEmpty(empty) = %v, want ErrEmptyValue", err)
	}
}

func TestNonNegativeDuration(t *testing.T) {
	if err := NonNegativeDuration("ttl", 0); err != nil {
		t.Errorf("NonNegativeDuration(0) = %v", err)
	}
	if err := NonNegativeDuration("ttl", -time.Second); !errors.Is(err, ErrNegativeTime) {
		t.Errorf("NonNegativeDuration(-1s) = %v, want ErrNegativeTime", err)
	}
}
