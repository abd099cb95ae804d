package hclcheck

import "github.com/hashicorp/hcl/v2"

// fileRoot decodes the top-level blocks of a check file.
type fileRoot struct {
	Checks []*checkBlock `hcl:"check,block"`
	Remain hcl.Body      `hcl:",remain"`
}

type checkBlock struct {
	Name           string         `hcl:"name,label"`
	Description    string         `hcl:"description,optional"`
	ValidSystems   []string       `hcl:"valid_systems,optional"`
	ValidEnvirons  []string       `hcl:"valid_environs,optional"`
	Local          bool           `hcl:"local,optional"`
	BuildCommand   hcl.Expression `hcl:"build_command,optional"`
	Command        hcl.Expression `hcl:"command"`
	SanityPatterns hcl.Expression `hcl:"sanity_patterns,optional"`
	KeepFiles      []string       `hcl:"keep_files,optional"`

	DependsOn   []*dependsOnBlock   `hcl:"depends_on,block"`
	Performance []*performanceBlock `hcl:"performance,block"`
}

type dependsOnBlock struct {
	Target string              `hcl:"target,label"`
	How    string              `hcl:"how,optional"`
	Envs   map[string][]string `hcl:"envs,optional"`
}

// performanceBlock bounds a value extracted from the job output. Lower and
// Upper are fractions of Reference; zero leaves that side unbounded.
type performanceBlock struct {
	Name      string  `hcl:"name,label"`
	Pattern   string  `hcl:"pattern"`
	Reference float64 `hcl:"reference"`
	Lower     float64 `hcl:"lower,optional"`
	Upper     float64 `hcl:"upper,optional"`
	Unit      string  `hcl:"unit,optional"`
	WarnOnly  bool    `hcl:"warn_only,optional"`
}
