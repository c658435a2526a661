// Package catalog loads and caches the immutable virtual sensor catalog.
//
// The catalog is parsed once from a bundled JSON document (or an external
// JSON/YAML file) and then served read-only for the process lifetime.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	_ "embed"

	"github.com/BTreeMap/PulsePoll/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed sensors.json
var embeddedSensors []byte

// Error variables for catalog failure modes.
var (
	ErrSensorNotFound = errors.New("sensor not found in catalog")
	ErrCatalogParse   = errors.New("failed to parse sensor catalog")
	ErrCatalogRead    = errors.New("failed to read sensor catalog")
)

// listDocument is the on-disk shape of the catalog: { "sensors": [...] }.
type listDocument struct {
	Sensors []models.SensorDefinition `json:"sensors" yaml:"sensors"`
}

// Opts holds configuration options for the catalog.
type Opts struct {
	Path string // external catalog file; empty means the embedded catalog
	Data []byte // raw catalog bytes, overrides Path (used in tests)
}

// Option defines a configuration option for the catalog.
type Option func(*Opts)

// WithPath points the catalog at an external JSON or YAML file.
func WithPath(path string) Option {
	return func(o *Opts) { o.Path = path }
}

// WithData supplies raw catalog bytes directly.
func WithData(data []byte) Option {
	return func(o *Opts) { o.Data = data }
}

// Catalog owns the canonical sensor definition list. Load parses the backing
// data exactly once; all later calls serve the cached result. The cache has
// no teardown and is safe for concurrent readers.
type Catalog struct {
	opts Opts

	mu     sync.Mutex
	loaded bool
	defs   []models.SensorDefinition
	index  map[string]models.SensorDefinition
	err    error
}

// New creates a catalog, applying any provided options.
func New(opts ...Option) *Catalog {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("Catalog created", "path_set", cfg.Path != "", "inline_data", len(cfg.Data) > 0)
	return &Catalog{opts: cfg}
}

// Load returns the sensor definitions, parsing the backing data on first
// call. On read or parse failure it returns an empty sequence together with
// the error, so callers degrade to "no sensors" while still being able to
// log or surface the failure. The failed result is cached; the catalog never
// re-parses.
func (c *Catalog) Load() ([]models.SensorDefinition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded {
		return c.defs, c.err
	}
	c.loaded = true

	data, isYAML, err := c.readSource()
	if err != nil {
		slog.Error("Catalog Load read failed", "error", err)
		c.defs = []models.SensorDefinition{}
		c.err = err
		return c.defs, c.err
	}

	var doc listDocument
	if isYAML {
		err = yaml.Unmarshal(data, &doc)
	} else {
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		slog.Error("Catalog Load parse failed", "error", err)
		c.defs = []models.SensorDefinition{}
		c.err = fmt.Errorf("%w: %v", ErrCatalogParse, err)
		return c.defs, c.err
	}

	// Malformed entries are skipped rather than poisoning the whole catalog.
	defs := make([]models.SensorDefinition, 0, len(doc.Sensors))
	index := make(map[string]models.SensorDefinition, len(doc.Sensors))
	for _, def := range doc.Sensors {
		if err := def.Validate(); err != nil {
			slog.Warn("Catalog Load skipping malformed sensor definition", "error", err, "sensor_id", def.ID)
			continue
		}
		if _, dup := index[def.ID]; dup {
			slog.Warn("Catalog Load skipping duplicate sensor id", "sensor_id", def.ID)
			continue
		}
		defs = append(defs, def)
		index[def.ID] = def
	}

	c.defs = defs
	c.index = index
	slog.Info("Catalog loaded", "sensors", len(defs), "skipped", len(doc.Sensors)-len(defs))
	return c.defs, nil
}

// readSource resolves the catalog bytes and whether they are YAML.
func (c *Catalog) readSource() ([]byte, bool, error) {
	if len(c.opts.Data) > 0 {
		return c.opts.Data, false, nil
	}
	if c.opts.Path == "" {
		return embeddedSensors, false, nil
	}
	data, err := os.ReadFile(c.opts.Path)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrCatalogRead, err)
	}
	ext := strings.ToLower(c.opts.Path)
	isYAML := strings.HasSuffix(ext, ".yaml") || strings.HasSuffix(ext, ".yml")
	return data, isYAML, nil
}

// Definitions returns the cached definitions, loading on first use. Load
// errors have already been surfaced once; here they only produce the empty
// degraded catalog.
func (c *Catalog) Definitions() []models.SensorDefinition {
	defs, _ := c.Load()
	return defs
}

// Lookup resolves a definition by sensor id from the cached catalog.
func (c *Catalog) Lookup(sensorID string) (models.SensorDefinition, error) {
	c.Load()

	c.mu.Lock()
	defer c.mu.Unlock()
	def, ok := c.index[sensorID]
	if !ok {
		return models.SensorDefinition{}, fmt.Errorf("%w: %q", ErrSensorNotFound, sensorID)
	}
	return def, nil
}
