package shapes

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// defaultShapes is the built-in AWS general-purpose catalog used when neither
// a catalog file nor cloud credentials are available. Capacities are
// published on-demand specs (as of 2024-Q4) and may lag new generations.
var defaultShapes = []Shape{
	{Name: "t3.small", Cloud: "AWS", CPU: 2, MemoryGB: 2, NetworkGbps: 5, IOPS: 11800, Series: "t3", FamilyType: "general"},
	{Name: "t3.medium", Cloud: "AWS", CPU: 2, MemoryGB: 4, NetworkGbps: 5, IOPS: 11800, Series: "t3", FamilyType: "general"},
	{Name: "t3.large", Cloud: "AWS", CPU: 2, MemoryGB: 8, NetworkGbps: 5, IOPS: 15700, Series: "t3", FamilyType: "general"},
	{Name: "t3.xlarge", Cloud: "AWS", CPU: 4, MemoryGB: 16, NetworkGbps: 5, IOPS: 15700, Series: "t3", FamilyType: "general"},
	{Name: "m5.large", Cloud: "AWS", CPU: 2, MemoryGB: 8, NetworkGbps: 10, IOPS: 18750, Series: "m5", FamilyType: "general"},
	{Name: "m5.xlarge", Cloud: "AWS", CPU: 4, MemoryGB: 16, NetworkGbps: 10, IOPS: 18750, Series: "m5", FamilyType: "general"},
	{Name: "m5.2xlarge", Cloud: "AWS", CPU: 8, MemoryGB: 32, NetworkGbps: 10, IOPS: 18750, Series: "m5", FamilyType: "general"},
	{Name: "m5.4xlarge", Cloud: "AWS", CPU: 16, MemoryGB: 64, NetworkGbps: 10, IOPS: 18750, Series: "m5", FamilyType: "general"},
	{Name: "m5.8xlarge", Cloud: "AWS", CPU: 32, MemoryGB: 128, NetworkGbps: 10, IOPS: 30000, Series: "m5", FamilyType: "general"},
	{Name: "m6i.large", Cloud: "AWS", CPU: 2, MemoryGB: 8, NetworkGbps: 12, IOPS: 20000, Series: "m6i", FamilyType: "general"},
	{Name: "m6i.xlarge", Cloud: "AWS", CPU: 4, MemoryGB: 16, NetworkGbps: 12, IOPS: 20000, Series: "m6i", FamilyType: "general"},
	{Name: "m6i.2xlarge", Cloud: "AWS", CPU: 8, MemoryGB: 32, NetworkGbps: 12, IOPS: 20000, Series: "m6i", FamilyType: "general"},
	{Name: "c5.large", Cloud: "AWS", CPU: 2, MemoryGB: 4, NetworkGbps: 10, IOPS: 20000, Series: "c5", FamilyType: "compute"},
	{Name: "c5.xlarge", Cloud: "AWS", CPU: 4, MemoryGB: 8, NetworkGbps: 10, IOPS: 20000, Series: "c5", FamilyType: "compute"},
	{Name: "c5.2xlarge", Cloud: "AWS", CPU: 8, MemoryGB: 16, NetworkGbps: 10, IOPS: 20000, Series: "c5", FamilyType: "compute"},
	{Name: "c5.4xlarge", Cloud: "AWS", CPU: 16, MemoryGB: 32, NetworkGbps: 10, IOPS: 27000, Series: "c5", FamilyType: "compute"},
	{Name: "r5.large", Cloud: "AWS", CPU: 2, MemoryGB: 16, NetworkGbps: 10, IOPS: 18750, Series: "r5", FamilyType: "memory"},
	{Name: "r5.xlarge", Cloud: "AWS", CPU: 4, MemoryGB: 32, NetworkGbps: 10, IOPS: 18750, Series: "r5", FamilyType: "memory"},
	{Name: "r5.2xlarge", Cloud: "AWS", CPU: 8, MemoryGB: 64, NetworkGbps: 10, IOPS: 18750, Series: "r5", FamilyType: "memory"},
	{Name: "r5.4xlarge", Cloud: "AWS", CPU: 16, MemoryGB: 128, NetworkGbps: 10, IOPS: 18750, Series: "r5", FamilyType: "memory"},
}

// StaticCatalog serves shapes from memory. It backs offline runs and tests;
// production runs layer the cloud catalog on top.
type StaticCatalog struct {
	mu     sync.RWMutex
	shapes []Shape
	byName map[string]Shape
}

// NewStaticCatalog builds a catalog from the given shapes. With no shapes it
// falls back to the built-in default table.
func NewStaticCatalog(shapes []Shape) *StaticCatalog {
	if len(shapes) == 0 {
		shapes = defaultShapes
	}
	c := &StaticCatalog{byName: make(map[string]Shape, len(shapes))}
	for _, s := range shapes {
		if s.Series == "" {
			s.Series, _ = SeriesPrefix(s.Name)
		}
		c.shapes = append(c.shapes, s)
		c.byName[s.Name] = s
	}
	sort.Slice(c.shapes, func(i, j int) bool { return c.shapes[i].Name < c.shapes[j].Name })
	return c
}

// LoadCatalogFile reads a YAML shape catalog from disk.
func LoadCatalogFile(path string) (*StaticCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}
	var doc struct {
		Shapes []Shape `yaml:"shapes"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing catalog file %s: %w", path, err)
	}
	if len(doc.Shapes) == 0 {
		return nil, fmt.Errorf("catalog file %s contains no shapes", path)
	}
	return NewStaticCatalog(doc.Shapes), nil
}

// List returns all shapes for the cloud. resourceType is accepted for
// interface parity; the static catalog only holds VM shapes.
func (c *StaticCatalog) List(_ context.Context, cloud, _ string) ([]Shape, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Shape, 0, len(c.shapes))
	for _, s := range c.shapes {
		if cloud == "" || strings.EqualFold(s.Cloud, cloud) {
			out = append(out, s)
		}
	}
	return out, nil
}

// Get returns the shape with the given name.
func (c *StaticCatalog) Get(_ context.Context, name string) (Shape, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.byName[name]
	if !ok {
		return Shape{}, fmt.Errorf("unknown shape: %s", name)
	}
	return s, nil
}

// Replace swaps the catalog contents. Used by the cloud catalog refresh.
func (c *StaticCatalog) Replace(shapes []Shape) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shapes = c.shapes[:0]
	c.byName = make(map[string]Shape, len(shapes))
	for _, s := range shapes {
		if s.Series == "" {
			s.Series, _ = SeriesPrefix(s.Name)
		}
		c.shapes = append(c.shapes, s)
		c.byName[s.Name] = s
	}
	sort.Slice(c.shapes, func(i, j int) bool { return c.shapes[i].Name < c.shapes[j].Name })
}
