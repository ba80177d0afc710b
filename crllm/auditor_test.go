package crllm_test

import (
	"strings"
	"testing"

	"github.com/callrec/callrec/crllm"
)

func TestStripFences(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name string
		in   string
		want string
	}{
		{"plain", "# Audit\n\nno findings", "# Audit\n\nno findings"},
		{"fenced", "```markdown\n# Audit\n\nno findings\n```", "# Audit\n\nno findings"},
		{"fenced with trailing newline", "```markdown\n# Audit\n```\n", "# Audit"},
		{"prefix only", "```markdown\n# Audit", "# Audit"},
		{"suffix only", "# Audit\n```", "# Audit"},
		{"bare fence kept", "```\n# Audit", "```\n# Audit"},
		{"empty", "", ""},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if want, have := tc.want, crllm.StripFences(tc.in); want != have {
				t.Errorf("want %q, have %q", want, have)
			}
		})
	}
}

func TestPrompt(t *testing.T) {
	t.Parallel()

	report := "=== Call Execution Flow ===\n\nCALL 1:\n  Function ID: 1"
	prompt := crllm.Prompt(report)

	for _, want := range []string{
		report,
		"senior Go auditor",
		"Errors & Exceptions",
		"Security Issues",
		"Performance Hotspots",
		"Runtime Concerns",
		"Architectural Notes",
		"raw markdown",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt is missing %q", want)
		}
	}
}

func TestNewProviderSelection(t *testing.T) {
	for _, tc := range []struct {
		provider string
		wantErr  string
	}{
		{"", ""},
		{"openai", ""},
		{"OpenAI", ""},
		{"anthropic", ""},
		{"google", ""},
		{"cohere", `unsupported provider "cohere"`},
	} {
		t.Run("provider="+tc.provider, func(t *testing.T) {
			auditor, err := crllm.New(crllm.Config{Provider: tc.provider, APIKey: "test-key"})

			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("New: %v", err)
				}
				if auditor == nil {
					t.Fatal("New returned a nil auditor")
				}
				return
			}

			if err == nil {
				t.Fatal("expected an error")
			}
			if want, have := tc.wantErr, err.Error(); !strings.Contains(have, want) {
				t.Errorf("want error containing %q, have %q", want, have)
			}
		})
	}
}

func TestNewMissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	for provider, envVar := range map[string]string{
		"openai":    "OPENAI_API_KEY",
		"anthropic": "ANTHROPIC_API_KEY",
		"google":    "GOOGLE_API_KEY",
	} {
		_, err := crllm.New(crllm.Config{Provider: provider})
		if err == nil {
			t.Fatalf("%s: expected an error without a key", provider)
		}
		if want, have := envVar+" not set", err.Error(); want != have {
			t.Errorf("%s: want error %q, have %q", provider, want, have)
		}
	}
}

func TestNewKeyFromEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")

	if _, err := crllm.New(crllm.Config{Provider: "anthropic"}); err != nil {
		t.Fatalf("New: %v", err)
	}
}

func TestDefaultProvider(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "")
	if want, have := "openai", crllm.DefaultProvider(); want != have {
		t.Errorf("want %q, have %q", want, have)
	}

	t.Setenv("LLM_PROVIDER", "Anthropic")
	if want, have := "anthropic", crllm.DefaultProvider(); want != have {
		t.Errorf("want %q, have %q", want, have)
	}
}
