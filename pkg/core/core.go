package core

import (
	"bytes"
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/redactyl/cfnsanitizer/internal/document"
	"github.com/redactyl/cfnsanitizer/internal/engine"
	"github.com/redactyl/cfnsanitizer/internal/rules"
	"github.com/redactyl/cfnsanitizer/internal/types"
)

// Re-exported so callers can depend on a stable import path.
type Finding = types.Finding
type RuleSet = rules.Set
type Format = document.Format

const (
	FormatJSON = document.FormatJSON
	FormatYAML = document.FormatYAML
)

// Options tune a sanitize call. The zero value scans with GOMAXPROCS
// workers, no CDK cleanup and no logging.
type Options struct {
	Threads         int
	CleanCDK        bool
	KeepCDKMetadata bool
	Logger          *zerolog.Logger
}

func (o Options) engineConfig() engine.Config {
	cfg := engine.Config{
		Threads:         o.Threads,
		CleanCDK:        o.CleanCDK,
		KeepCDKMetadata: o.KeepCDKMetadata,
		Logger:          zerolog.Nop(),
	}
	if o.Logger != nil {
		cfg.Logger = *o.Logger
	}
	return cfg
}

// DefaultRules returns the built-in rule set.
func DefaultRules() (*RuleSet, error) { return rules.Default() }

// LoadRules parses a rule source (YAML or JSON). Any invalid rule fails the
// whole load.
func LoadRules(src []byte) (*RuleSet, error) { return rules.Load(src) }

// Sanitize decodes one template, redacts every secret found and encodes the
// result in format (the input's own format when empty, guessed as JSON when
// src starts with '{'). Findings are in report order.
func Sanitize(rs *RuleSet, src []byte, format Format, opts Options) ([]byte, []Finding, error) {
	outs, err := SanitizeAll(context.Background(), rs, []Input{{Name: "", Data: src, Format: format}}, opts)
	if err != nil {
		return nil, nil, err
	}
	return outs[0].Data, outs[0].Findings, outs[0].Err
}

// Input is one template to sanitize.
type Input struct {
	Name   string
	Data   []byte
	Format Format // output format; empty keeps the input's
}

// Output is the sanitized form of one Input. Data is nil when Err is set.
type Output struct {
	Name     string
	Data     []byte
	Format   Format
	Findings []Finding
	Err      error
}

// SanitizeAll sanitizes inputs concurrently; outputs keep input order and a
// failing input does not affect the others. The error is only non-nil when
// ctx is cancelled.
func SanitizeAll(ctx context.Context, rs *RuleSet, inputs []Input, opts Options) ([]Output, error) {
	outs := make([]Output, len(inputs))
	docs := make([]engine.Document, 0, len(inputs))
	index := make([]int, 0, len(inputs))
	for i, in := range inputs {
		outs[i] = Output{Name: in.Name, Format: in.Format}
		if outs[i].Format == "" {
			outs[i].Format = sniffFormat(in.Data)
		}
		root, err := document.Decode(in.Data)
		if err != nil {
			outs[i].Err = fmt.Errorf("decode %s: %w", displayName(in.Name), err)
			continue
		}
		docs = append(docs, engine.Document{Name: in.Name, Root: root})
		index = append(index, i)
	}

	results, err := engine.New(rs, opts.engineConfig()).ScanAll(ctx, docs)
	for j, res := range results {
		o := &outs[index[j]]
		o.Findings = res.Findings
		if res.Err != nil {
			o.Err = res.Err
			continue
		}
		var buf bytes.Buffer
		if err := document.Encode(&buf, res.Sanitized, o.Format); err != nil {
			o.Err = fmt.Errorf("encode %s: %w", displayName(o.Name), err)
			continue
		}
		o.Data = buf.Bytes()
	}
	return outs, err
}

func displayName(name string) string {
	if name == "" {
		return "template"
	}
	return name
}

// sniffFormat treats input whose first non-space byte opens a JSON object or
// array as JSON.
func sniffFormat(b []byte) Format {
	t := bytes.TrimLeft(b, " \t\r\n\ufeff")
	if len(t) > 0 && (t[0] == '{' || t[0] == '[') {
		return FormatJSON
	}
	return FormatYAML
}
