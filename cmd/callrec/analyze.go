package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffval"

	"github.com/callrec/callrec/crdump"
	"github.com/callrec/callrec/crllm"
	"github.com/callrec/callrec/crstore"
)

type analyzeConfig struct {
	*rootConfig

	provider string
	model    string
	apiKey   string
}

func (cfg *analyzeConfig) register(fs *ff.FlagSet) {
	fs.AddFlag(ff.FlagConfig{
		ShortName:   'p',
		LongName:    "provider",
		Value:       ffval.NewValue(&cfg.provider),
		Usage:       "model provider: openai, anthropic, google (default: $LLM_PROVIDER or openai)",
		Placeholder: "NAME",
		NoDefault:   true,
	})
	fs.AddFlag(ff.FlagConfig{
		ShortName:   'm',
		LongName:    "model",
		Value:       ffval.NewValue(&cfg.model),
		Usage:       "override the provider's default model",
		Placeholder: "MODEL",
		NoDefault:   true,
	})
	fs.AddFlag(ff.FlagConfig{
		LongName:    "api-key",
		Value:       ffval.NewValue(&cfg.apiKey),
		Usage:       "override the provider's key environment variable",
		Placeholder: "KEY",
		NoDefault:   true,
	})
}

func (cfg *analyzeConfig) Exec(ctx context.Context, args []string) error {
	path, err := cfg.resolveDB(args)
	if err != nil {
		return err
	}

	store, err := crstore.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := crdump.Render(ctx, store)
	if err != nil {
		return err
	}

	provider := cfg.provider
	if provider == "" {
		provider = crllm.DefaultProvider()
	}

	auditor, err := crllm.New(crllm.Config{
		Provider: provider,
		Model:    cfg.model,
		APIKey:   cfg.apiKey,
	})
	if err != nil {
		return err
	}

	cfg.info.Printf("auditing %s with %s", path, provider)

	audit, err := auditor.Audit(ctx, report)
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	audit = crllm.StripFences(audit)

	outPath := filepath.Join(filepath.Dir(path), "audit_results.md")
	if err := os.WriteFile(outPath, []byte(audit+"\n"), 0o644); err != nil {
		return fmt.Errorf("save audit: %w", err)
	}

	fmt.Fprintln(cfg.stdout, audit)
	cfg.info.Printf("audit saved to %s", outPath)

	return nil
}
