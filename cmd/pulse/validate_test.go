package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mercator-hq/pulse/pkg/cli"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestValidateFile(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantErr  bool
		contains []string
	}{
		{
			name:     "defaults",
			body:     "collector:\n  mode: local\n",
			contains: []string{"is valid (mode local)"},
		},
		{
			name: "invalid fields",
			body: "collector:\n  mode: hybrid\nsampler:\n  default_rate: 2\n",
			contains: []string{
				"2 invalid fields",
				"collector.mode",
				"sampler.default_rate",
			},
			wantErr: true,
		},
		{
			name:    "malformed yaml",
			body:    "collector: [",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			err := validateFile(buf, writeConfig(t, tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateFile() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && cli.ExitCode(err) != cli.ExitConfig {
				t.Errorf("ExitCode() = %d, want %d", cli.ExitCode(err), cli.ExitConfig)
			}
			for _, want := range tt.contains {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output missing %q:\n%s", want, buf.String())
				}
			}
		})
	}
}

func TestValidateFileMissing(t *testing.T) {
	err := validateFile(&bytes.Buffer{}, filepath.Join(t.TempDir(), "absent.yaml"))
	if cli.ExitCode(err) != cli.ExitConfig {
		t.Errorf("ExitCode() = %d, want %d", cli.ExitCode(err), cli.ExitConfig)
	}
}
