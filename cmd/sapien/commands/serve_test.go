package commands

import "testing"

// TestResolveServerAddr_EnvOverridesDefaults verifies that SERVER_HOST and
// SERVER_PORT (set by config.Load from the YAML file) reach the bind address
// when the flags are left at their defaults.
func TestResolveServerAddr_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("SERVER_HOST", "0.0.0.0")
	t.Setenv("SERVER_PORT", "9191")

	host, port := resolveServerAddr(false, false, "127.0.0.1", 8080)

	if host != "0.0.0.0" {
		t.Errorf("host: expected 0.0.0.0 from env, got %q", host)
	}
	if port != 9191 {
		t.Errorf("port: expected 9191 from env, got %d", port)
	}
}

// TestResolveServerAddr_FlagWinsOverEnv verifies that an explicitly set flag
// takes precedence over the env vars.
func TestResolveServerAddr_FlagWinsOverEnv(t *testing.T) {
	t.Setenv("SERVER_HOST", "0.0.0.0")
	t.Setenv("SERVER_PORT", "9191")

	host, port := resolveServerAddr(true, true, "10.1.2.3", 9090)

	if host != "10.1.2.3" {
		t.Errorf("host: expected flag value 10.1.2.3, got %q", host)
	}
	if port != 9090 {
		t.Errorf("port: expected flag value 9090, got %d", port)
	}
}

// TestResolveServerAddr_Defaults verifies the flag defaults survive when
// neither flags nor env vars are set.
func TestResolveServerAddr_Defaults(t *testing.T) {
	t.Setenv("SERVER_HOST", "")
	t.Setenv("SERVER_PORT", "")

	host, port := resolveServerAddr(false, false, "127.0.0.1", 8080)

	if host != "127.0.0.1" {
		t.Errorf("host: expected default 127.0.0.1, got %q", host)
	}
	if port != 8080 {
		t.Errorf("port: expected default 8080, got %d", port)
	}
}

// TestResolveServerAddr_BadPortIgnored verifies that a malformed SERVER_PORT
// falls back to the flag default rather than failing.
func TestResolveServerAddr_BadPortIgnored(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-port")

	_, port := resolveServerAddr(false, false, "127.0.0.1", 8080)

	if port != 8080 {
		t.Errorf("port: expected default 8080 for malformed env, got %d", port)
	}
}
