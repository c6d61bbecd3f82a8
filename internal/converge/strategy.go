package converge

import (
	"fmt"
	"strings"

	"github.com/triad-sh/triad/internal/tasks"
)

// Strategy selects the synthesis prompt template for a cluster convergence.
type Strategy string

const (
	StrategyComprehensive Strategy = "comprehensive"
	StrategyExecutive     Strategy = "executive"
	StrategyTechnical     Strategy = "technical"
	StrategyNarrative     Strategy = "narrative"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyComprehensive, StrategyExecutive, StrategyTechnical, StrategyNarrative:
		return true
	}
	return false
}

// clusterPrompt builds the level-1 synthesis prompt, embedding the worker
// outputs verbatim. Unknown strategies fall back to comprehensive.
func clusterPrompt(strategy Strategy, clusterName string, outputs []tasks.Output) string {
	switch strategy {
	case StrategyExecutive:
		return executivePrompt(clusterName, outputs)
	case StrategyTechnical:
		return technicalPrompt(clusterName, outputs)
	case StrategyNarrative:
		return narrativePrompt(clusterName, outputs)
	default:
		return comprehensivePrompt(clusterName, outputs)
	}
}

func comprehensivePrompt(clusterName string, outputs []tasks.Output) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Cluster Synthesis: %s\n\n", clusterName)
	fmt.Fprintf(&b, "You are synthesizing outputs from %d workers into 1 unified, comprehensive result.\n\n", len(outputs))
	b.WriteString("## Input Outputs:\n")
	for i, o := range outputs {
		fmt.Fprintf(&b, "\n### Worker %d Output:\n%s\n", i+1, orPlaceholder(o.Content))
	}
	b.WriteString(`
## Your Task:

Synthesize these outputs into ONE comprehensive, cohesive result that:

1. **Integrates all key information** from all workers
2. **Eliminates redundancy** while preserving unique insights
3. **Maintains logical flow** and narrative coherence
4. **Highlights connections** between different aspects
5. **Provides actionable conclusions** based on the combined insights

Structure your synthesis with:
- **Executive Summary**: Key findings in 3-5 sentences
- **Detailed Synthesis**: Comprehensive integration of all insights
- **Key Takeaways**: 5-7 bullet points of critical information
- **Recommendations**: Based on the synthesized analysis

Create a single, authoritative document that represents the best of all inputs.`)
	return b.String()
}

func executivePrompt(clusterName string, outputs []tasks.Output) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Executive Synthesis: %s\n\n", clusterName)
	b.WriteString("Synthesize these worker outputs into a concise executive summary:\n")
	for i, o := range outputs {
		fmt.Fprintf(&b, "\n**Worker %d**: %s\n", i+1, truncate(o.Content, 500))
	}
	b.WriteString(`
Provide:
1. **Key Findings** (3-5 points)
2. **Critical Insights** (2-3 points)
3. **Recommended Actions** (2-3 points)

Keep it concise, actionable, and executive-focused.`)
	return b.String()
}

func technicalPrompt(clusterName string, outputs []tasks.Output) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Technical Synthesis: %s\n\n", clusterName)
	b.WriteString(`Synthesize these technical outputs with focus on:
- Technical accuracy and precision
- Implementation details
- Architecture and design patterns
- Best practices and recommendations

Inputs:
`)
	for i, o := range outputs {
		fmt.Fprintf(&b, "\n## Input %d:\n%s\n", i+1, orPlaceholder(o.Content))
	}
	b.WriteString("\nCreate a technically rigorous, implementation-ready synthesis.")
	return b.String()
}

func narrativePrompt(clusterName string, outputs []tasks.Output) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Narrative Synthesis: %s\n\n", clusterName)
	b.WriteString("Weave these perspectives into a compelling narrative:\n")
	for i, o := range outputs {
		fmt.Fprintf(&b, "\n**Perspective %d**: %s\n", i+1, orPlaceholder(o.Content))
	}
	b.WriteString("\nCreate a cohesive story that maintains engagement while conveying all key information.")
	return b.String()
}

// metaPrompt builds the level-2 prompt from the named cluster records.
func metaPrompt(metaName string, inputs []Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Meta Synthesis: %s\n\n", metaName)
	fmt.Fprintf(&b, "You are performing a meta-level synthesis of %d cluster convergences.\n\n", len(inputs))
	b.WriteString("Each cluster convergence represents the synthesized output of several workers. Your task is to integrate these cluster-level syntheses into ONE higher-level meta synthesis.\n\n")
	b.WriteString("## Cluster Convergences:\n\n")
	for i, c := range inputs {
		fmt.Fprintf(&b, "### Cluster %d: %s\n", i+1, c.GroupKey)
		fmt.Fprintf(&b, "Strategy used: %s\n", c.Strategy)
		if c.Output != "" {
			fmt.Fprintf(&b, "Synthesis:\n%s\n", c.Output)
		}
		b.WriteString("\n")
	}
	b.WriteString(`## Your Task:

Create a meta-level synthesis that:

1. **Identifies cross-cluster patterns** and themes
2. **Integrates insights** across different domains
3. **Reveals emergent connections** not visible in individual clusters
4. **Provides holistic understanding** of the combined work
5. **Generates higher-order insights** from the synthesis

Structure:
- **Overview**: What this meta-synthesis covers
- **Cross-Cluster Analysis**: Patterns and connections
- **Integrated Insights**: Higher-order understanding
- **Synthesis**: Unified perspective across all clusters
- **Implications**: What this means at scale

This meta-synthesis will feed into the final master convergence.`)
	return b.String()
}

// ultimatePrompt builds the level-3 prompt from the meta records.
func ultimatePrompt(projectName string, inputs []Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# MASTER SYNTHESIS: %s\n\n", projectName)
	b.WriteString("This is the final convergence, the apex of the hierarchical synthesis.\n\n")
	fmt.Fprintf(&b, "You are synthesizing %d meta-convergences, each of which synthesized multiple cluster convergences, each of which synthesized several worker outputs.\n\n", len(inputs))
	b.WriteString("## Meta Convergences:\n\n")
	for i, m := range inputs {
		fmt.Fprintf(&b, "### Meta %d: %s\n", i+1, m.GroupKey)
		if len(m.Clusters) > 0 {
			fmt.Fprintf(&b, "Clusters included: %s\n", strings.Join(m.Clusters, ", "))
		}
		if m.Output != "" {
			fmt.Fprintf(&b, "Synthesis:\n%s\n", m.Output)
		}
		b.WriteString("\n")
	}
	b.WriteString(`## Your Task:

Create the MASTER OUTPUT that:

1. **Synthesizes ALL meta-level insights** into one coherent whole
2. **Reveals the complete picture** across all domains
3. **Identifies universal patterns** and principles
4. **Provides comprehensive understanding** of the entire project
5. **Generates definitive conclusions** based on all the work

Structure:
- **Executive Overview**: The complete picture in 1 page
- **Domain Integration**: How all areas connect
- **Universal Insights**: Patterns across everything
- **Comprehensive Analysis**: The full synthesis
- **Master Conclusions**: Definitive findings
- **Future Directions**: Where this leads

This is THE definitive output. Make it comprehensive, authoritative, and permanently valuable.`)
	return b.String()
}

func orPlaceholder(s string) string {
	if s == "" {
		return "(no output)"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
