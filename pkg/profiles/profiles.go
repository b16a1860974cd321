// Package profiles holds the static query-augmentation presets. A profile is
// an instruction sentence appended to the user's query before it reaches the
// upstream; profiles never change per request.
package profiles

import (
	"sort"
	"strings"
)

// Profile names.
const (
	Research        = "research"
	CodeAnalysis    = "code_analysis"
	Troubleshooting = "troubleshooting"
	Documentation   = "documentation"
	Architecture    = "architecture"
	Security        = "security"
	Performance     = "performance"
	Tutorial        = "tutorial"
	Comparison      = "comparison"
	Trending        = "trending"
	BestPractices   = "best_practices"
	Integration     = "integration"
	Debugging       = "debugging"
	Optimization    = "optimization"
)

var instructions = map[string]string{
	Research:        "do a detailed research on this and provide me with most recent information about this be very detailed about it also make sure u are reffering to multiple sources like this",
	CodeAnalysis:    "analyze this code in detail, explain the logic, identify potential issues, suggest improvements, and provide best practices for this type of implementation",
	Troubleshooting: "help me troubleshoot this issue step by step, identify common causes, provide solutions, and include preventative measures for similar problems",
	Documentation:   "provide comprehensive documentation for this, including setup instructions, usage examples, configuration options, and maintenance guidelines",
	Architecture:    "analyze the architectural implications, discuss design patterns, scalability considerations, and provide architectural recommendations",
	Security:        "evaluate security implications, identify vulnerabilities, suggest security measures, and provide security best practices for this context",
	Performance:     "analyze performance characteristics, identify bottlenecks, suggest optimizations, and provide performance benchmarks and monitoring strategies",
	Tutorial:        "create a step-by-step tutorial with clear explanations, code examples, common pitfalls, and practice exercises",
	Comparison:      "provide detailed comparisons between alternatives, including pros and cons, use cases, and recommendations for different scenarios",
	Trending:        "focus on the latest trends, recent developments, emerging technologies, and current best practices in this area",
	BestPractices:   "provide industry best practices, coding standards, guidelines, and recommendations for professional implementation",
	Integration:     "explain how to integrate this with existing systems, compatibility considerations, API requirements, and integration patterns",
	Debugging:       "provide systematic debugging approach, common debugging techniques, tools, and methods to identify and fix issues",
	Optimization:    "suggest specific optimizations, performance tuning strategies, resource usage improvements, and measurable enhancement techniques",
}

// Validate normalizes a profile name and reports whether it exists. The empty
// name is valid and means "no profile".
func Validate(name string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "", true
	}
	_, ok := instructions[normalized]
	return normalized, ok
}

// Instruction returns the instruction text for a profile, empty for unknown
// or empty names.
func Instruction(name string) string {
	normalized, ok := Validate(name)
	if !ok {
		return ""
	}
	return instructions[normalized]
}

// Apply appends the profile instruction to a query. Unknown or empty profiles
// leave the query untouched.
func Apply(query, profile string) string {
	instruction := Instruction(profile)
	if instruction == "" {
		return query
	}
	return query + ". " + instruction
}

// List returns profile name → truncated description, sorted by name. The
// truncation keeps listings readable; Instruction returns the full text.
func List() map[string]string {
	out := make(map[string]string, len(instructions))
	for name, instruction := range instructions {
		if len(instruction) > 100 {
			instruction = instruction[:100] + "..."
		}
		out[name] = instruction
	}
	return out
}

// Names returns the profile names in sorted order.
func Names() []string {
	names := make([]string, 0, len(instructions))
	for name := range instructions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
