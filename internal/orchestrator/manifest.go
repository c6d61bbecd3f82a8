package orchestrator

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/triad-sh/triad/internal/coord"
)

// Manifest declares the work to orchestrate: domains of clusters, each
// cluster holding the task descriptions its workers will execute. Three
// tasks per cluster feeds the convergence fan-in exactly.
type Manifest struct {
	Project    string   `yaml:"project" json:"project"`
	Multiplier int      `yaml:"multiplier,omitempty" json:"multiplier,omitempty"`
	Domains    []Domain `yaml:"domains" json:"domains"`
}

// Domain is one topic area grouping several clusters. Domains become the
// level-2 meta convergences.
type Domain struct {
	Key      string    `yaml:"key" json:"key"`
	Name     string    `yaml:"name" json:"name"`
	Clusters []Cluster `yaml:"clusters" json:"clusters"`
}

// Cluster is one fan-in group of task descriptions.
type Cluster struct {
	Name  string   `yaml:"name" json:"name"`
	Tasks []string `yaml:"tasks" json:"tasks"`
}

// LoadManifest reads a YAML manifest from disk.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Save writes the manifest to disk as YAML.
func (m Manifest) Save(path string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Validate checks the manifest shape before any task is generated.
func (m Manifest) Validate() error {
	if m.Project == "" {
		return coord.MissingField("project")
	}
	if len(m.Domains) == 0 {
		return coord.MissingField("domains")
	}
	for _, d := range m.Domains {
		if d.Name == "" {
			return coord.MissingField("domain name")
		}
		if len(d.Clusters) == 0 {
			return &coord.ValidationError{Field: "domains", Reason: fmt.Sprintf("domain %s has no clusters", d.Name)}
		}
		for _, c := range d.Clusters {
			if c.Name == "" {
				return coord.MissingField("cluster name")
			}
			if len(c.Tasks) == 0 {
				return &coord.ValidationError{Field: "clusters", Reason: fmt.Sprintf("cluster %s has no tasks", c.Name)}
			}
		}
	}
	return nil
}

// TaskCount returns the number of tasks one setup pass generates.
func (m Manifest) TaskCount() int {
	mult := m.Multiplier
	if mult <= 0 {
		mult = 1
	}
	n := 0
	for _, d := range m.Domains {
		for _, c := range d.Clusters {
			n += len(c.Tasks) * mult
		}
	}
	return n
}

// ClusterNames returns every cluster name, in manifest order.
func (m Manifest) ClusterNames() []string {
	var names []string
	for _, d := range m.Domains {
		for _, c := range d.Clusters {
			names = append(names, c.Name)
		}
	}
	return names
}

// DefaultManifest is a compact research compendium used when no manifest
// file is configured.
func DefaultManifest() Manifest {
	return Manifest{
		Project: "Knowledge Compendium",
		Domains: []Domain{
			{
				Key:  "technology",
				Name: "Technology Frontier",
				Clusters: []Cluster{
					{
						Name: "AI-ML-Research",
						Tasks: []string{
							"Comprehensive analysis of transformer architecture evolution",
							"Survey of multimodal AI systems: capabilities, limitations, and future directions",
							"Deep dive into AI alignment research: current approaches and open problems",
						},
					},
					{
						Name: "Distributed-Systems",
						Tasks: []string{
							"Distributed systems design: consistency, availability, partition tolerance",
							"Microservices vs monoliths: decision frameworks and tradeoffs",
							"Modern web application architecture: patterns and anti-patterns",
						},
					},
				},
			},
			{
				Key:  "science",
				Name: "Scientific Foundations",
				Clusters: []Cluster{
					{
						Name: "Physics-Frontiers",
						Tasks: []string{
							"Quantum mechanics and emergent phenomena: latest experimental results",
							"Cosmology and the early universe: recent findings and implications",
							"Condensed matter physics: exotic materials and quantum states",
						},
					},
				},
			},
			{
				Key:  "integration",
				Name: "Integration & Synthesis",
				Clusters: []Cluster{
					{
						Name: "Meta-Patterns",
						Tasks: []string{
							"Universal patterns across domains: emergence, feedback, optimization",
							"Systems thinking: holistic approaches to complex problems",
							"Information theory and its applications across disciplines",
						},
					},
				},
			},
		},
	}
}
