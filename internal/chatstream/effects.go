package chatstream

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/andrewdmason/undercurrent-sub000/internal/domain/models/chat"
)

//go:embed config/tools.yaml
var configFiles embed.FS

// EffectKind names what a resolved tool call does to the host.
type EffectKind string

const (
	EffectScriptUpdate   EffectKind = "script_update"
	EffectIdeaRegenerate EffectKind = "idea_regenerate"
)

// Payload sources for script updates
const (
	SourceArguments = "arguments"
	SourceResult    = "result"
)

// ErrPayloadNotFound is returned when a tool's script text cannot be located.
var ErrPayloadNotFound = errors.New("tool payload not found")

// ToolEffect describes the side effect of one tool.
type ToolEffect struct {
	Name           string     `yaml:"name"`
	Effect         EffectKind `yaml:"effect"`
	Source         string     `yaml:"source"`
	Path           string     `yaml:"path"`
	RequireSuccess bool       `yaml:"require_success"`
	Schema         string     `yaml:"schema"`

	compiled *jsonschema.Schema
}

type effectFile struct {
	Tools []ToolEffect `yaml:"tools"`
}

// EffectCatalog maps tool names to their side effects.
type EffectCatalog struct {
	effects map[string]*ToolEffect
	mu      sync.RWMutex
}

// NewEffectCatalog creates an empty catalog.
func NewEffectCatalog() *EffectCatalog {
	return &EffectCatalog{effects: make(map[string]*ToolEffect)}
}

// DefaultEffectCatalog loads the embedded tool catalog.
func DefaultEffectCatalog() (*EffectCatalog, error) {
	data, err := configFiles.ReadFile("config/tools.yaml")
	if err != nil {
		return nil, fmt.Errorf("failed to read tools.yaml: %w", err)
	}
	return ParseEffectCatalog(data)
}

// ParseEffectCatalog builds a catalog from YAML.
func ParseEffectCatalog(data []byte) (*EffectCatalog, error) {
	var file effectFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tool catalog: %w", err)
	}

	c := NewEffectCatalog()
	for _, effect := range file.Tools {
		if err := c.Register(effect); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register adds or replaces the effect of a tool.
func (c *EffectCatalog) Register(effect ToolEffect) error {
	if effect.Name == "" {
		return errors.New("tool effect missing name")
	}

	switch effect.Effect {
	case EffectScriptUpdate:
		if effect.Source != SourceArguments && effect.Source != SourceResult {
			return fmt.Errorf("tool %s: unknown payload source %q", effect.Name, effect.Source)
		}
		if effect.Path == "" {
			return fmt.Errorf("tool %s: script_update needs a path", effect.Name)
		}
	case EffectIdeaRegenerate:
	default:
		return fmt.Errorf("tool %s: unknown effect %q", effect.Name, effect.Effect)
	}

	if strings.TrimSpace(effect.Schema) != "" {
		compiler := jsonschema.NewCompiler()
		resource := effect.Name + ".json"
		if err := compiler.AddResource(resource, strings.NewReader(effect.Schema)); err != nil {
			return fmt.Errorf("tool %s: add schema: %w", effect.Name, err)
		}
		compiled, err := compiler.Compile(resource)
		if err != nil {
			return fmt.Errorf("tool %s: compile schema: %w", effect.Name, err)
		}
		effect.compiled = compiled
	}

	c.mu.Lock()
	c.effects[effect.Name] = &effect
	c.mu.Unlock()
	return nil
}

// Lookup returns the effect registered for a tool name.
func (c *EffectCatalog) Lookup(name string) (*ToolEffect, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	effect, ok := c.effects[name]
	return effect, ok
}

// Applies reports whether the effect fires for this result.
func (e *ToolEffect) Applies(result *chat.ToolResult) bool {
	if !e.RequireSuccess {
		return true
	}
	return result != nil && result.Success
}

// ScriptContent locates the script text in the call arguments or in the
// result object, depending on the tool.
func (e *ToolEffect) ScriptContent(arguments json.RawMessage, result *chat.ToolResult) (string, error) {
	var doc json.RawMessage
	switch e.Source {
	case SourceArguments:
		doc = arguments
	case SourceResult:
		if result != nil {
			doc = result.Raw
		}
	}

	if len(doc) == 0 {
		return "", fmt.Errorf("%w: %s has no %s", ErrPayloadNotFound, e.Name, e.Source)
	}

	if e.compiled != nil {
		var v interface{}
		if err := json.Unmarshal(doc, &v); err != nil {
			return "", fmt.Errorf("%w: %s %s: %v", ErrPayloadNotFound, e.Name, e.Source, err)
		}
		if err := e.compiled.Validate(v); err != nil {
			return "", fmt.Errorf("%w: %s %s: %v", ErrPayloadNotFound, e.Name, e.Source, err)
		}
	}

	value := gjson.GetBytes(doc, e.Path)
	if !value.Exists() || value.Type != gjson.String {
		return "", fmt.Errorf("%w: %s %s has no string at %q", ErrPayloadNotFound, e.Name, e.Source, e.Path)
	}
	return value.String(), nil
}
