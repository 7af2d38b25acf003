package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/wricardo/horse-race-game/game/race"
	"github.com/wricardo/horse-race-game/game/service"
)

var (
	ErrConfigNotFound = service.ErrConfigNotFound
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// Extensions lists the ruleset file formats in lookup order
var Extensions = []string{".json", ".hcl"}

// Manager handles ruleset loading and caching
type Manager struct {
	configDir     string
	defaultConfig *race.Rules
	configs       map[string]*race.Rules
	mu            sync.RWMutex
}

// NewManager creates a new configuration manager
func NewManager(configDir string) (*Manager, error) {
	// Ensure config directory exists
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("config directory does not exist: %s", configDir)
	}

	m := &Manager{
		configDir: configDir,
		configs:   make(map[string]*race.Rules),
	}
	m.loadDefaultConfig()
	return m, nil
}

// LoadConfig loads a ruleset by name, with or without its file extension
func (m *Manager) LoadConfig(name string) (*race.Rules, error) {
	name = trimExtension(name)
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("%w: %q", ErrConfigNotFound, name)
	}

	m.mu.RLock()
	if rules, exists := m.configs[name]; exists {
		m.mu.RUnlock()
		return rules, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if rules, exists := m.configs[name]; exists {
		return rules, nil
	}

	for _, ext := range Extensions {
		path := filepath.Join(m.configDir, name+ext)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		rules, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		m.configs[name] = rules
		return rules, nil
	}

	return nil, ErrConfigNotFound
}

// ListConfigs returns information about all valid rulesets in the directory
func (m *Manager) ListConfigs() ([]*service.ConfigInfo, error) {
	entries, err := os.ReadDir(m.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	var configs []*service.ConfigInfo
	seen := map[string]bool{}

	for _, entry := range entries {
		if entry.IsDir() || !hasExtension(entry.Name()) {
			continue
		}

		name := trimExtension(entry.Name())
		if seen[name] {
			continue
		}

		rules, err := m.LoadConfig(name)
		if err != nil {
			// Skip invalid rulesets
			continue
		}
		seen[name] = true

		configs = append(configs, &service.ConfigInfo{
			Filename:    entry.Name(),
			ConfigID:    name, // This is the identifier to use for session creation
			Name:        rules.Name,
			Description: rules.Description,
			RosterSize:  rules.RosterSize,
			FieldSize:   rules.FieldSize,
			Races:       len(rules.Distances),
		})
	}

	sort.Slice(configs, func(i, j int) bool {
		return configs[i].ConfigID < configs[j].ConfigID
	})
	return configs, nil
}

// GetDefault returns the default ruleset
func (m *Manager) GetDefault() *race.Rules {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultConfig
}

// loadDefaultConfig uses classic from the directory when it is valid and the
// built-in classic ruleset otherwise
func (m *Manager) loadDefaultConfig() {
	rules, err := m.LoadConfig("classic")
	if err != nil {
		rules = race.DefaultRules()
	}

	m.mu.Lock()
	m.defaultConfig = rules
	m.mu.Unlock()
}

// LoadFile reads, defaults and validates a single ruleset file
func LoadFile(path string) (*race.Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var rules race.Rules
	switch filepath.Ext(path) {
	case ".json":
		if err := json.Unmarshal(data, &rules); err != nil {
			return nil, fmt.Errorf("%w: failed to parse %s: %v", ErrInvalidConfig, filepath.Base(path), err)
		}
	case ".hcl":
		if err := decodeHCL(path, data, &rules); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unsupported file type %s", ErrInvalidConfig, filepath.Ext(path))
	}

	rules.ApplyDefaults()
	if err := race.ValidateRules(&rules); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &rules, nil
}

func decodeHCL(path string, data []byte, rules *race.Rules) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filepath.Base(path))
	if diags.HasErrors() {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, diags.Error())
	}

	diags = gohcl.DecodeBody(file.Body, nil, rules)
	if diags.HasErrors() {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, diags.Error())
	}
	return nil
}

func hasExtension(filename string) bool {
	for _, ext := range Extensions {
		if strings.HasSuffix(filename, ext) {
			return true
		}
	}
	return false
}

func trimExtension(name string) string {
	for _, ext := range Extensions {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}
