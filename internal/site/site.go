// Package site loads the description of the systems checks run on: their
// partitions and the programming environments those partitions offer.
package site

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/vk/checkgrid/internal/testcase"
	"gopkg.in/yaml.v3"
)

// File is the YAML layout of a site file.
type File struct {
	Systems      []SystemConfig  `yaml:"systems"`
	Environments []EnvironConfig `yaml:"environments"`
}

type SystemConfig struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Partitions  []PartitionConfig `yaml:"partitions"`
}

type PartitionConfig struct {
	Name     string   `yaml:"name"`
	MaxJobs  int      `yaml:"max_jobs"`
	Environs []string `yaml:"environs"`
}

type EnvironConfig struct {
	Name      string            `yaml:"name"`
	Variables map[string]string `yaml:"variables,omitempty"`
}

// Site is a validated site description.
type Site struct {
	systems []*testcase.System
}

// Load reads and parses the site file at path.
func Load(path string) (*Site, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read site file: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid site file %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a site description. Unknown keys are rejected.
func Parse(data []byte) (*Site, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode YAML: %w", err)
	}
	return f.build()
}

func (f *File) build() (*Site, error) {
	if len(f.Systems) == 0 {
		return nil, errors.New("no systems defined")
	}

	environs := make(map[string]*testcase.Environ, len(f.Environments))
	var envList []*testcase.Environ
	for _, e := range f.Environments {
		if e.Name == "" {
			return nil, errors.New("environment without a name")
		}
		if _, dup := environs[e.Name]; dup {
			return nil, fmt.Errorf("environment %q defined twice", e.Name)
		}
		env := &testcase.Environ{Name: e.Name, Variables: e.Variables}
		environs[e.Name] = env
		envList = append(envList, env)
	}

	s := &Site{}
	seen := make(map[string]bool)
	for _, sc := range f.Systems {
		if sc.Name == "" {
			return nil, errors.New("system without a name")
		}
		if seen[sc.Name] {
			return nil, fmt.Errorf("system %q defined twice", sc.Name)
		}
		seen[sc.Name] = true

		sys := &testcase.System{Name: sc.Name, Environs: envList}
		parts := make(map[string]bool)
		for _, pc := range sc.Partitions {
			if pc.Name == "" {
				return nil, fmt.Errorf("system %q: partition without a name", sc.Name)
			}
			if parts[pc.Name] {
				return nil, fmt.Errorf("system %q: partition %q defined twice", sc.Name, pc.Name)
			}
			parts[pc.Name] = true
			if pc.MaxJobs < 0 {
				return nil, fmt.Errorf("partition %s:%s: max_jobs must not be negative", sc.Name, pc.Name)
			}
			for _, e := range pc.Environs {
				if _, ok := environs[e]; !ok {
					return nil, fmt.Errorf("partition %s:%s: unknown environment %q", sc.Name, pc.Name, e)
				}
			}
			sys.Partitions = append(sys.Partitions, &testcase.Partition{
				System:   sc.Name,
				Name:     pc.Name,
				MaxJobs:  pc.MaxJobs,
				Environs: pc.Environs,
			})
		}
		if len(sys.Partitions) == 0 {
			return nil, fmt.Errorf("system %q has no partitions", sc.Name)
		}
		s.systems = append(s.systems, sys)
	}
	return s, nil
}

// Systems returns every system of the site in file order.
func (s *Site) Systems() []*testcase.System { return s.systems }

// System resolves a system by name. An empty name selects the first system.
func (s *Site) System(name string) (*testcase.System, error) {
	if name == "" {
		return s.systems[0], nil
	}
	for _, sys := range s.systems {
		if sys.Name == name {
			return sys, nil
		}
	}
	return nil, fmt.Errorf("unknown system %q", name)
}

// Default is the site used when no site file is given: a single
// "generic:default" partition offering the "builtin" environment.
func Default() *Site {
	builtin := &testcase.Environ{Name: "builtin"}
	return &Site{systems: []*testcase.System{{
		Name: "generic",
		Partitions: []*testcase.Partition{
			{System: "generic", Name: "default", Environs: []string{"builtin"}},
		},
		Environs: []*testcase.Environ{builtin},
	}}}
}
