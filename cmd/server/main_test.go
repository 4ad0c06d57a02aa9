package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"esp32-testserver/internal/config"
)

func TestRootCommandFlags(t *testing.T) {
	cmd := newRootCommand()

	for _, name := range []string{"host", "port", "https-port", "tls", "log-level", "env-file"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "flag %s should exist", name)
	}
	assert.Equal(t, "p", cmd.Flags().Lookup("port").Shorthand)
	assert.Error(t, cmd.Args(cmd, []string{"extra"}), "positional arguments are rejected")
}

func TestApplyFlagsOverridesConfig(t *testing.T) {
	cmd := newRootCommand()
	require.NoError(t, cmd.Flags().Parse([]string{
		"--host", "127.0.0.1",
		"-p", "5000",
		"--https-port", "5443",
		"--tls", "SelfSigned",
		"--log-level", "debug",
	}))

	cfg := &config.Config{Host: "0.0.0.0", HTTPPort: 80, HTTPSPort: 443, TLSMode: config.TLSOff, LogLevel: "INFO"}
	require.NoError(t, applyFlags(cfg, cmd.Flags()))

	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, 5000, cfg.HTTPPort)
	assert.Equal(t, 5443, cfg.HTTPSPort)
	assert.Equal(t, config.TLSSelfSigned, cfg.TLSMode)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestApplyFlagsKeepsUnsetValues(t *testing.T) {
	cmd := newRootCommand()
	require.NoError(t, cmd.Flags().Parse([]string{"--port", "8080"}))

	cfg := &config.Config{Host: "0.0.0.0", HTTPPort: 80, HTTPSPort: 443, TLSMode: config.TLSOff, LogLevel: "INFO"}
	require.NoError(t, applyFlags(cfg, cmd.Flags()))

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 443, cfg.HTTPSPort)
	assert.Equal(t, config.TLSOff, cfg.TLSMode)
	assert.Equal(t, "INFO", cfg.LogLevel)
}

func TestExecuteRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"non-numeric port", []string{"--port", "abc"}, "invalid argument"},
		{"unknown flag", []string{"--bogus"}, "unknown flag"},
		{"invalid tls mode", []string{"--env-file", "missing.env", "--tls", "maybe"}, "invalid configuration"},
		{"acme off port 80", []string{"--env-file", "missing.env", "--tls", "acme", "--port", "5000"}, "invalid configuration"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			cmd := newRootCommand()
			cmd.SetOut(&out)
			cmd.SetErr(&out)
			cmd.SetArgs(tt.args)

			err := cmd.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
