// SPDX-License-Identifier: MPL-2.0

package launcher

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"instagent/internal/testutil"
)

func TestParseEnvFile_BasicKeyValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		content  string
		expected map[string]string
	}{
		{
			name:     "simple key value",
			content:  "FOO=bar",
			expected: map[string]string{"FOO": "bar"},
		},
		{
			name:     "multiple key values",
			content:  "FOO=bar\nBAZ=qux",
			expected: map[string]string{"FOO": "bar", "BAZ": "qux"},
		},
		{
			name:     "empty value",
			content:  "EMPTY=",
			expected: map[string]string{"EMPTY": ""},
		},
		{
			name:     "value with equals sign",
			content:  "URL=https://example.com?foo=bar",
			expected: map[string]string{"URL": "https://example.com?foo=bar"},
		},
		{
			name:     "export prefix ignored",
			content:  "export FOO=bar",
			expected: map[string]string{"FOO": "bar"},
		},
		{
			name:     "windows line endings",
			content:  "FOO=bar\r\nBAZ=qux\r\n",
			expected: map[string]string{"FOO": "bar", "BAZ": "qux"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := make(map[string]string)
			err := ParseEnvFile(env, []byte(tt.content), "test.env")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			for k, v := range tt.expected {
				if env[k] != v {
					t.Errorf("expected %s=%q, got %s=%q", k, v, k, env[k])
				}
			}
		})
	}
}

func TestParseEnvFile_CommentsAndQuoting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		content  string
		expected map[string]string
	}{
		{
			name:     "comment line",
			content:  "# This is a comment\nFOO=bar",
			expected: map[string]string{"FOO": "bar"},
		},
		{
			name:     "inline comment unquoted",
			content:  "FOO=bar # this is an inline comment",
			expected: map[string]string{"FOO": "bar"},
		},
		{
			name:     "no inline comment without space",
			content:  "FOO=bar#not-a-comment",
			expected: map[string]string{"FOO": "bar#not-a-comment"},
		},
		{
			name:     "double quoted",
			content:  `FOO="hello world"`,
			expected: map[string]string{"FOO": "hello world"},
		},
		{
			name:     "single quoted",
			content:  `FOO='hello world'`,
			expected: map[string]string{"FOO": "hello world"},
		},
		{
			name:     "double quoted with escape sequences",
			content:  `FOO="hello\nworld"`,
			expected: map[string]string{"FOO": "hello\nworld"},
		},
		{
			name:     "single quoted preserves escapes",
			content:  `FOO='hello\nworld'`,
			expected: map[string]string{"FOO": `hello\nworld`},
		},
		{
			name:     "escaped dollar",
			content:  `FOO="cost: \$5"`,
			expected: map[string]string{"FOO": "cost: $5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := make(map[string]string)
			err := ParseEnvFile(env, []byte(tt.content), "test.env")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			for k, v := range tt.expected {
				if env[k] != v {
					t.Errorf("expected %s=%q, got %s=%q", k, v, k, env[k])
				}
			}
		})
	}
}

func TestParseEnvFile_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantIn  string
	}{
		{
			name:    "missing equals",
			content: "NOEQUALS",
			wantIn:  "missing '='",
		},
		{
			name:    "empty key",
			content: "=value",
			wantIn:  "empty variable name",
		},
		{
			name:    "unterminated double quote",
			content: `FOO="oops`,
			wantIn:  "unterminated double quote",
		},
		{
			name:    "unterminated single quote",
			content: `FOO='oops`,
			wantIn:  "unterminated single quote",
		},
		{
			name:    "error names file and line",
			content: "GOOD=1\nBROKEN",
			wantIn:  "test.env:2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := make(map[string]string)
			err := ParseEnvFile(env, []byte(tt.content), "test.env")
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantIn) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantIn)
			}
		})
	}
}

func TestMergeEnvFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	testutil.MustWriteFile(t, path, []byte("GREETING=bonjour\nVERBOSE=1\n"), 0o600)

	env := map[string]string{"VERBOSE": "0", "KEEP": "yes"}
	found, err := MergeEnvFile(env, path)
	if err != nil {
		t.Fatalf("MergeEnvFile() returned error: %v", err)
	}
	if !found {
		t.Error("MergeEnvFile() found = false, want true")
	}

	want := map[string]string{"GREETING": "bonjour", "VERBOSE": "1", "KEEP": "yes"}
	if !reflect.DeepEqual(env, want) {
		t.Errorf("merged env = %v, want %v", env, want)
	}
}

func TestMergeEnvFile_MissingIsSilent(t *testing.T) {
	t.Parallel()

	env := map[string]string{"KEEP": "yes"}
	found, err := MergeEnvFile(env, filepath.Join(t.TempDir(), "absent.env"))
	if err != nil {
		t.Fatalf("missing env file should not error, got: %v", err)
	}
	if found {
		t.Error("MergeEnvFile() found = true for missing file")
	}
	if len(env) != 1 || env["KEEP"] != "yes" {
		t.Errorf("env mutated by missing file: %v", env)
	}
}

func TestEnvToSlice_SortedDeterministic(t *testing.T) {
	t.Parallel()

	got := envToSlice(map[string]string{"B": "2", "A": "1", "C": "3"})
	want := []string{"A=1", "B=2", "C=3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("envToSlice() = %v, want %v", got, want)
	}
}
