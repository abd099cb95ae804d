package testcase

import "fmt"

// Environ is a programming environment that a case is executed under.
type Environ struct {
	Name      string
	Variables map[string]string
}

// Partition is a schedulable resource pool of a system.
type Partition struct {
	System string
	Name   string
	// MaxJobs bounds the number of concurrently running jobs. Zero or a
	// negative value means no limit. Policies read it on every scheduling
	// decision, so it may be changed between runs.
	MaxJobs int
	// Environs lists the names of the environments available on the partition.
	Environs []string
}

// FullName returns the fully qualified "system:partition" name.
func (p *Partition) FullName() string {
	return fmt.Sprintf("%s:%s", p.System, p.Name)
}

// System groups partitions and the environments they refer to.
type System struct {
	Name       string
	Partitions []*Partition
	Environs   []*Environ
}

// Environ looks up an environment definition by name.
func (s *System) Environ(name string) (*Environ, bool) {
	for _, e := range s.Environs {
		if e.Name == name {
			return e, true
		}
	}
	return nil, false
}

// Partition looks up a partition by its short name.
func (s *System) Partition(name string) (*Partition, bool) {
	for _, p := range s.Partitions {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}
