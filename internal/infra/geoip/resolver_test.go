package geoip

import (
	"errors"
	"net"
	"testing"

	"github.com/oschwald/geoip2-golang"
)

type stubReader struct {
	calls int
	code  string
}

func (s *stubReader) Country(ip net.IP) (*geoip2.Country, error) {
	s.calls++
	rec := &geoip2.Country{}
	rec.Country.IsoCode = s.code
	return rec, nil
}

func (s *stubReader) Close() error { return nil }

func TestNilResolverIsUnavailable(t *testing.T) {
	r, err := NewResolver("  ")
	if err != nil || r != nil {
		t.Fatalf("expected nil resolver, got %v, %v", r, err)
	}
	if _, err := r.CountryCode("81.2.69.142"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestCountryCodeCachesLookups(t *testing.T) {
	reader := &stubReader{code: "GB"}
	r := newResolver(reader)
	for i := 0; i < 3; i++ {
		code, err := r.CountryCode("81.2.69.142")
		if err != nil || code != "GB" {
			t.Fatalf("lookup %d = %q, %v", i, code, err)
		}
	}
	if reader.calls != 1 {
		t.Fatalf("expected one database lookup, got %d", reader.calls)
	}
}

func TestCountryCodeSkipsPrivateAddresses(t *testing.T) {
	reader := &stubReader{code: "GB"}
	r := newResolver(reader)
	for _, ip := range []string{"127.0.0.1", "10.1.2.3", "192.168.0.10", "::1"} {
		code, err := r.CountryCode(ip)
		if err != nil || code != "" {
			t.Fatalf("%s = %q, %v", ip, code, err)
		}
	}
	if reader.calls != 0 {
		t.Fatalf("private addresses must not be looked up, got %d", reader.calls)
	}
	if _, err := r.CountryCode("not-an-ip"); err == nil {
		t.Fatal("expected invalid ip error")
	}
}
