// Package bench drives the embedded and network memory paths through
// identical workloads and reduces the timings into comparable reports.
package bench

import (
	"fmt"
	"math/rand"
	"strings"

	"MemHarness/internal/memory"
)

// template is a parameterised memory text with its type and base tags.
type template struct {
	text     string
	memType  memory.MemoryType
	baseTags []string
}

var templates = []template{
	{"User prefers {adj} mode for {feature}", memory.Decision, []string{"preference", "ui"}},
	{"API endpoint {action} to {endpoint}", memory.Context, []string{"api", "architecture"}},
	{"Database {operation} completed in {duration}ms", memory.Discovery, []string{"database", "performance"}},
	{"{framework} version updated to {version}", memory.Learning, []string{"dependency", "update"}},
	{"Error rate {direction} after {change}", memory.Pattern, []string{"monitoring", "ops"}},
	{"Cache hit ratio is {percentage}%", memory.Observation, []string{"cache", "performance"}},
	{"Authentication tokens expire after {duration}", memory.Learning, []string{"auth", "security"}},
	{"Load balancer {status} for {service}", memory.Context, []string{"infrastructure", "ops"}},
	{"Memory usage {direction} by {amount}MB", memory.Discovery, []string{"memory", "performance"}},
	{"Test coverage reached {percentage}%", memory.Learning, []string{"testing", "quality"}},
}

// Queries is the fixed recall panel issued at every scale point.
var Queries = []string{
	"user preferences",
	"API changes",
	"database performance",
	"authentication",
	"error monitoring",
	"cache optimization",
	"memory usage",
	"test coverage",
	"infrastructure status",
	"framework updates",
}

// Synthetic is one generated memory.
type Synthetic struct {
	Content string
	Type    memory.MemoryType
	Tags    []string
}

// Generator produces synthetic memories. Output depends only on the seed and
// the index, so both paths and repeated runs see reproducible content.
type Generator struct {
	seed int64
}

// NewGenerator creates a generator for seed.
func NewGenerator(seed int64) *Generator {
	return &Generator{seed: seed}
}

// Generate returns the memory for index. Content is prefixed "[index]" and
// tags gain "batch-<index/50>".
func (g *Generator) Generate(index int) Synthetic {
	rng := rand.New(rand.NewSource(g.seed + int64(index)))
	t := templates[rng.Intn(len(templates))]

	replacements := map[string]string{
		"adj":        pickRandom(rng, "dark", "light", "compact", "expanded"),
		"feature":    pickRandom(rng, "better visibility", "accessibility", "performance", "usability"),
		"action":     pickRandom(rng, "changed", "migrated", "updated", "deprecated"),
		"endpoint":   pickRandom(rng, "/v2/auth", "/api/users", "/graphql", "/health"),
		"operation":  pickRandom(rng, "migration", "backup", "optimization", "replication"),
		"duration":   fmt.Sprint(50 + rng.Intn(451)),
		"framework":  pickRandom(rng, "React", "Vue", "Angular", "Svelte"),
		"version":    fmt.Sprintf("%d.%d.%d", 1+rng.Intn(5), rng.Intn(21), rng.Intn(11)),
		"direction":  pickRandom(rng, "increased", "decreased", "stabilized"),
		"change":     pickRandom(rng, "deployment", "refactor", "config update"),
		"percentage": fmt.Sprint(70 + rng.Intn(30)),
		"status":     pickRandom(rng, "healthy", "degraded", "recovering"),
		"service":    pickRandom(rng, "api-gateway", "auth-service", "data-processor"),
		"amount":     fmt.Sprint(50 + rng.Intn(451)),
	}

	content := t.text
	for key, value := range replacements {
		content = strings.ReplaceAll(content, "{"+key+"}", value)
	}

	tags := make([]string, 0, len(t.baseTags)+1)
	tags = append(tags, t.baseTags...)
	tags = append(tags, fmt.Sprintf("batch-%d", index/50))

	return Synthetic{
		Content: fmt.Sprintf("[%d] %s", index, content),
		Type:    t.memType,
		Tags:    tags,
	}
}

func pickRandom(rng *rand.Rand, options ...string) string {
	return options[rng.Intn(len(options))]
}
