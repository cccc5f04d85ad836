package gateway

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/tosin2013/metrics-gateway/pkg/models"
)

// WindowPlaceholder is substituted with the window length in whole seconds
const WindowPlaceholder = "${window}"

// QueryTemplate is a PromQL pattern for one metric kind
type QueryTemplate struct {
	Kind    models.MetricKind
	Pattern string
}

// Windowed reports whether the pattern depends on a measurement window
func (t QueryTemplate) Windowed() bool {
	return strings.Contains(t.Pattern, WindowPlaceholder)
}

// Render fills the window placeholder. Non-windowed patterns are returned as is.
func (t QueryTemplate) Render(windowSeconds int) string {
	if !t.Windowed() {
		return t.Pattern
	}
	return strings.ReplaceAll(t.Pattern, WindowPlaceholder, strconv.Itoa(windowSeconds))
}

// Catalog maps every metric kind to its query template. It is read-only after construction.
type Catalog struct {
	templates map[models.MetricKind]QueryTemplate
}

// defaultPatterns are the stock cAdvisor and node-exporter queries
var defaultPatterns = map[models.MetricKind]string{
	models.MetricKindPodCPU:     `sum(rate(container_cpu_usage_seconds_total{container!=""}[${window}s])) by (pod)`,
	models.MetricKindPodMemory:  `sum(container_memory_working_set_bytes{container!=""}) by (pod)`,
	models.MetricKindPodHits:    `sum(rate(http_server_requests_seconds_count{container!=""}[${window}s])) by (pod)`,
	models.MetricKindNodeCPU:    `sum(rate(node_cpu_seconds_total{mode!="idle"}[${window}s])) by (instance)`,
	models.MetricKindNodeMemory: `sum(node_memory_MemTotal_bytes - node_memory_MemAvailable_bytes) by (instance) / sum(node_memory_MemTotal_bytes) by (instance) * 100`,
}

// DefaultCatalog returns the built-in templates
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(nil)
	if err != nil {
		// defaults are static, an error here is a programming bug
		panic(err)
	}
	return c
}

// NewCatalog builds a catalog from overrides keyed by kind; kinds not overridden keep their default
func NewCatalog(overrides map[string]string) (*Catalog, error) {
	templates := make(map[models.MetricKind]QueryTemplate, len(defaultPatterns))
	for kind, pattern := range defaultPatterns {
		templates[kind] = QueryTemplate{Kind: kind, Pattern: pattern}
	}

	var problems []string
	for name, pattern := range overrides {
		if !models.IsValidMetricKind(name) {
			problems = append(problems, fmt.Sprintf("unknown metric kind %q", name))
			continue
		}
		if strings.TrimSpace(pattern) == "" {
			problems = append(problems, fmt.Sprintf("empty query for metric kind %q", name))
			continue
		}
		kind := models.MetricKind(name)
		if !kind.IsWindowed() && strings.Contains(pattern, WindowPlaceholder) {
			problems = append(problems, fmt.Sprintf("metric kind %q does not take a window", name))
			continue
		}
		templates[kind] = QueryTemplate{Kind: kind, Pattern: strings.TrimSpace(pattern)}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, fmt.Errorf("invalid query catalog:\n  - %s", strings.Join(problems, "\n  - "))
	}

	return &Catalog{templates: templates}, nil
}

// catalogFile is the on-disk override format
type catalogFile struct {
	Queries map[string]string `json:"queries"`
}

// LoadCatalogFile reads a YAML file of the form
//
//	queries:
//	  pod_cpu: 'sum(rate(container_cpu_usage_seconds_total{container!=""}[${window}s])) by (pod)'
//
// An empty path yields the default catalog.
func LoadCatalogFile(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}

	data, err := os.ReadFile(path) //#nosec G304 -- operator-configured catalog path
	if err != nil {
		return nil, fmt.Errorf("failed to read query catalog %s: %w", path, err)
	}

	var file catalogFile
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse query catalog %s: %w", path, err)
	}

	return NewCatalog(file.Queries)
}

// TemplateFor returns the template for kind. Asking for a kind outside
// models.ValidMetricKinds is a programming error and panics.
func (c *Catalog) TemplateFor(kind models.MetricKind) QueryTemplate {
	t, ok := c.templates[kind]
	if !ok {
		panic(fmt.Sprintf("no query template for metric kind %q", kind))
	}
	return t
}

// Templates returns all templates in models.ValidMetricKinds order
func (c *Catalog) Templates() []QueryTemplate {
	kinds := models.ValidMetricKinds()
	out := make([]QueryTemplate, 0, len(kinds))
	for _, kind := range kinds {
		out = append(out, c.templates[kind])
	}
	return out
}
