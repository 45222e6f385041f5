package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/blueprintfs/blueprintfs/internal/logging"
	"github.com/blueprintfs/blueprintfs/pkg/types"
	"github.com/blueprintfs/blueprintfs/pkg/utils"
)

// Configuration is the complete process configuration.
type Configuration struct {
	Store     StoreConfig     `yaml:"store"`
	Mount     MountConfig     `yaml:"mount"`
	Templates TemplatesConfig `yaml:"templates"`
	Logging   logging.Config  `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// StoreConfig locates the physical tree and the project layout inside it.
type StoreConfig struct {
	// Root is the directory that backs everything visible through the mount.
	Root string `yaml:"root"`
	// Collection is the directory under Root that holds project roots.
	Collection string `yaml:"collection"`
	// Marker is the project marker path relative to a project root. A
	// directory carrying this file is treated as a project root.
	Marker string `yaml:"marker"`
}

// MountConfig controls the mounted view.
type MountConfig struct {
	Point string `yaml:"point"`
	// Viewport is the hidden directory name that exposes the merged
	// template tree inside every project.
	Viewport   string `yaml:"viewport"`
	Foreground bool   `yaml:"foreground"`
	AllowOther bool   `yaml:"allow_other"`
}

// TemplatesConfig names the template trees merged into every viewport.
type TemplatesConfig struct {
	// Root is the directory holding one subdirectory per template.
	Root string `yaml:"root"`
	// Use lists the templates applied to projects, in no significant order.
	Use []TemplateUse `yaml:"use"`
}

// TemplateUse pairs a template name with its inheritance mode.
type TemplateUse struct {
	Name string `yaml:"name"`
	Mode string `yaml:"mode"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// NewDefault returns a configuration with sensible defaults. Store root,
// mount point and templates root have no defaults and must be supplied.
func NewDefault() *Configuration {
	return &Configuration{
		Store: StoreConfig{
			Collection: "projects",
			Marker:     ".blueprintfs/project.md",
		},
		Mount: MountConfig{
			Viewport:   ".blueprint",
			Foreground: false,
			AllowOther: false,
		},
		Logging: logging.DefaultConfig(),
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9530",
		},
	}
}

// LoadFromFile merges configuration from a YAML file.
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv merges configuration from BLUEPRINTFS_* environment variables.
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("BLUEPRINTFS_STORE_ROOT"); val != "" {
		c.Store.Root = val
	}
	if val := os.Getenv("BLUEPRINTFS_COLLECTION"); val != "" {
		c.Store.Collection = val
	}
	if val := os.Getenv("BLUEPRINTFS_MARKER"); val != "" {
		c.Store.Marker = val
	}

	if val := os.Getenv("BLUEPRINTFS_MOUNT_POINT"); val != "" {
		c.Mount.Point = val
	}
	if val := os.Getenv("BLUEPRINTFS_VIEWPORT"); val != "" {
		c.Mount.Viewport = val
	}
	if val := os.Getenv("BLUEPRINTFS_FOREGROUND"); val != "" {
		c.Mount.Foreground = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("BLUEPRINTFS_ALLOW_OTHER"); val != "" {
		c.Mount.AllowOther = strings.ToLower(val) == "true"
	}

	if val := os.Getenv("BLUEPRINTFS_TEMPLATES_ROOT"); val != "" {
		c.Templates.Root = val
	}
	if val := os.Getenv("BLUEPRINTFS_TEMPLATES"); val != "" {
		use, err := ParseTemplateList(val)
		if err != nil {
			return fmt.Errorf("BLUEPRINTFS_TEMPLATES: %w", err)
		}
		c.Templates.Use = use
	}

	if val := os.Getenv("BLUEPRINTFS_LOG_LEVEL"); val != "" {
		c.Logging.Level = val
	}
	if val := os.Getenv("BLUEPRINTFS_LOG_FORMAT"); val != "" {
		c.Logging.Format = val
	}
	if val := os.Getenv("BLUEPRINTFS_LOG_FILE"); val != "" {
		c.Logging.File = val
	}

	if val := os.Getenv("BLUEPRINTFS_METRICS_ENABLED"); val != "" {
		c.Metrics.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("BLUEPRINTFS_METRICS_ADDRESS"); val != "" {
		c.Metrics.Address = val
	}

	return nil
}

// SaveToFile writes the configuration to a YAML file.
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ParseTemplateList parses a comma-separated list of name=mode pairs. The
// mode may be omitted, in which case the template inherits dynamically.
func ParseTemplateList(val string) ([]TemplateUse, error) {
	var use []TemplateUse
	for _, item := range strings.Split(val, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, mode, _ := strings.Cut(item, "=")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("template entry %q has no name", item)
		}
		use = append(use, TemplateUse{Name: name, Mode: strings.TrimSpace(mode)})
	}
	return use, nil
}

// TemplateRefs converts the configured template list into typed references
// with parsed inheritance modes.
func (c *Configuration) TemplateRefs() ([]types.TemplateRef, error) {
	refs := make([]types.TemplateRef, 0, len(c.Templates.Use))
	for _, use := range c.Templates.Use {
		mode, err := types.ParseInheritMode(use.Mode)
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", use.Name, err)
		}
		refs = append(refs, types.TemplateRef{ID: use.Name, Mode: mode})
	}
	return refs, nil
}

// Validate checks the configuration for consistency.
func (c *Configuration) Validate() error {
	if c.Store.Root == "" {
		return fmt.Errorf("store root must be set")
	}
	if !filepath.IsAbs(c.Store.Root) {
		return fmt.Errorf("store root must be an absolute path: %s", c.Store.Root)
	}

	if c.Mount.Point == "" {
		return fmt.Errorf("mount point must be set")
	}
	if !filepath.IsAbs(c.Mount.Point) {
		return fmt.Errorf("mount point must be an absolute path: %s", c.Mount.Point)
	}
	if within(c.Store.Root, c.Mount.Point) {
		return fmt.Errorf("mount point %s must not be inside store root %s", c.Mount.Point, c.Store.Root)
	}

	if err := utils.ValidateSegment(c.Store.Collection); err != nil {
		return fmt.Errorf("invalid collection name %q: %w", c.Store.Collection, err)
	}

	if err := utils.ValidateSegment(c.Mount.Viewport); err != nil {
		return fmt.Errorf("invalid viewport name %q: %w", c.Mount.Viewport, err)
	}
	if !utils.IsHidden(c.Mount.Viewport) {
		return fmt.Errorf("viewport name %q must be hidden (start with a dot)", c.Mount.Viewport)
	}

	if _, err := utils.SplitPath(c.Store.Marker); err != nil {
		return fmt.Errorf("invalid marker path %q: %w", c.Store.Marker, err)
	}
	if c.Store.Marker == "" {
		return fmt.Errorf("marker path must be set")
	}

	if len(c.Templates.Use) > 0 {
		if c.Templates.Root == "" {
			return fmt.Errorf("templates root must be set when templates are configured")
		}
		if !filepath.IsAbs(c.Templates.Root) {
			return fmt.Errorf("templates root must be an absolute path: %s", c.Templates.Root)
		}
	}
	seen := make(map[string]bool, len(c.Templates.Use))
	for _, use := range c.Templates.Use {
		if err := utils.ValidateSegment(use.Name); err != nil {
			return fmt.Errorf("invalid template name %q: %w", use.Name, err)
		}
		if seen[use.Name] {
			return fmt.Errorf("template %q listed more than once", use.Name)
		}
		seen[use.Name] = true
		if _, err := types.ParseInheritMode(use.Mode); err != nil {
			return fmt.Errorf("template %q: %w", use.Name, err)
		}
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return fmt.Errorf("metrics address must be set when metrics are enabled")
	}

	return nil
}

// within reports whether path sits at or below root lexically.
func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
