package idserver

import (
	"flag"
	"testing"
)

func TestParseFlagsDefaults(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	flags, err := ParseFlags(fs, nil)
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	if flags.ConfigPath != "" {
		t.Errorf("ConfigPath = %q, want empty", flags.ConfigPath)
	}
}

func TestParseFlagsConfigPath(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	flags, err := ParseFlags(fs, []string{"-config", "/etc/silvermint.toml"})
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	if flags.ConfigPath != "/etc/silvermint.toml" {
		t.Errorf("ConfigPath = %q, want /etc/silvermint.toml", flags.ConfigPath)
	}
}

func TestParseFlagsUnknownFlag(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(discard{})
	if _, err := ParseFlags(fs, []string{"-bogus"}); err == nil {
		t.Error("expected error for unknown flag")
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
