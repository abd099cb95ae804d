package hclcheck

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/checkgrid/internal/check"
	"github.com/vk/checkgrid/internal/ctxlog"
	"github.com/vk/checkgrid/internal/fsutil"
	"github.com/vk/checkgrid/internal/testcase"
)

// Loader reads check definitions from HCL files.
type Loader struct {
	prefix string
}

// NewLoader returns a loader whose checks keep their stage and output
// directories under prefix.
func NewLoader(prefix string) *Loader {
	return &Loader{prefix: prefix}
}

// Load parses every .hcl file found under paths and returns their checks in
// file order. Check names must be unique across all files.
func (l *Loader) Load(ctx context.Context, paths ...string) ([]testcase.Check, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := fsutil.FindFiles(paths, ".hcl")
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(files))

	parser := hclparse.NewParser()
	var checks []testcase.Check
	seen := make(map[string]string)

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		for _, b := range root.Checks {
			if prev, dup := seen[b.Name]; dup {
				return nil, fmt.Errorf("check %q in %s is already defined in %s", b.Name, file, prev)
			}
			seen[b.Name] = file

			c, err := l.translate(ctx, b, filepath.Dir(file))
			if err != nil {
				return nil, fmt.Errorf("in %s: %w", file, err)
			}
			checks = append(checks, c)
		}
	}

	logger.Debug("HCL loading complete.", "files", len(files), "checks", len(checks))
	return checks, nil
}

// translate turns a decoded block into a Check.
func (l *Loader) translate(ctx context.Context, b *checkBlock, sourceDir string) (*Check, error) {
	logger := ctxlog.FromContext(ctx).With("check", b.Name)
	ctx = ctxlog.WithLogger(ctx, logger)

	def := &definition{
		name:        b.Name,
		description: b.Description,
		sourceDir:   sourceDir,
		command:     b.Command,
		keepFiles:   b.KeepFiles,
	}
	if isExprDefined(ctx, b.BuildCommand, "build_command") {
		def.buildCommand = b.BuildCommand
	}
	if isExprDefined(ctx, b.SanityPatterns, "sanity_patterns") {
		def.sanity = b.SanityPatterns
	}

	for _, p := range b.Performance {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("check %q: invalid pattern of performance variable %q: %w", b.Name, p.Name, err)
		}
		if p.Lower > 0 || p.Upper < 0 {
			return nil, fmt.Errorf("check %q: performance variable %q: lower must be <= 0 and upper >= 0", b.Name, p.Name)
		}
		def.perf = append(def.perf, perfReference{
			name:      p.Name,
			pattern:   re,
			reference: p.Reference,
			lower:     p.Lower,
			upper:     p.Upper,
			unit:      p.Unit,
			warnOnly:  p.WarnOnly,
		})
	}

	c := &Check{Base: check.NewBase(b.Name), def: def}
	c.SetPrefix(l.prefix)
	c.SetLocal(b.Local)
	if len(b.ValidSystems) > 0 {
		c.SetValidSystems(b.ValidSystems...)
	}
	if len(b.ValidEnvirons) > 0 {
		c.SetValidEnvirons(b.ValidEnvirons...)
	}

	for _, d := range b.DependsOn {
		kind, err := testcase.ParseDependencyKind(d.How)
		if err != nil {
			return nil, fmt.Errorf("check %q: dependency on %q: %w", b.Name, d.Target, err)
		}
		if kind != testcase.DependExact && len(d.Envs) > 0 {
			return nil, fmt.Errorf("check %q: dependency on %q: envs is only valid with how = \"exact\"", b.Name, d.Target)
		}
		c.DependsOn(d.Target, kind, d.Envs)
	}

	logger.Debug("Check translated.", "dependencies", len(b.DependsOn), "performance_refs", len(def.perf))
	return c, nil
}

// isExprDefined reports whether an optional attribute was written in the
// source. Omitted attributes decode to zero-width placeholder expressions.
func isExprDefined(ctx context.Context, expr hcl.Expression, attrName string) bool {
	if expr == nil {
		return false
	}
	r := expr.Range()
	defined := r.End.Byte > r.Start.Byte
	ctxlog.FromContext(ctx).Debug("Checking if HCL attribute was explicitly defined.", "attribute", attrName, "is_defined", defined)
	return defined
}
