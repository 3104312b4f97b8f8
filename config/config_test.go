package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"PORT", "STORE", "REMOTE_TIMEOUT", "RETRY_ATTEMPTS", "ALLOWED_ORIGINS", "PUBLIC_URL"} {
		t.Setenv(k, "")
	}
	c := Load()
	if c.Port != ":8080" {
		t.Errorf("port = %q", c.Port)
	}
	if c.Store != "mongo" {
		t.Errorf("store = %q", c.Store)
	}
	if c.Retry.Attempts != 3 || c.Retry.Timeout != 5*time.Second {
		t.Errorf("retry = %+v", c.Retry)
	}
	if len(c.AllowedOrigins) != 1 || c.AllowedOrigins[0] != "*" {
		t.Errorf("origins = %v", c.AllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("STORE", "Memory")
	t.Setenv("REMOTE_TIMEOUT", "250ms")
	t.Setenv("RETRY_ATTEMPTS", "5")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("PUBLIC_URL", "https://gig.example/")

	c := Load()
	if c.Port != ":9000" || c.Store != "memory" {
		t.Fatalf("got %q %q", c.Port, c.Store)
	}
	if c.Retry.Timeout != 250*time.Millisecond || c.Retry.Attempts != 5 {
		t.Fatalf("retry = %+v", c.Retry)
	}
	if len(c.AllowedOrigins) != 2 || c.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("origins = %v", c.AllowedOrigins)
	}
	if c.PublicURL != "https://gig.example" {
		t.Fatalf("public url = %q", c.PublicURL)
	}
}
