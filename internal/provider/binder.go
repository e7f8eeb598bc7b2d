package provider

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/dbarchiver/internal/archive"
)

// Defaulter is implemented by settings that fill in defaults after decoding.
type Defaulter interface {
	SetDefaults()
}

// Validator is implemented by settings that can check themselves after
// defaults are applied.
type Validator interface {
	Validate() error
}

// SecretHolder is implemented by settings that carry credentials. The
// returned values are redacted from logs.
type SecretHolder interface {
	Secrets() []string
}

// BindSource decodes node into the source settings shape of the named
// provider.
func BindSource(name string, node *yaml.Node) (archive.SourceSettings, error) {
	info, err := Resolve(name, CapSource)
	if err != nil {
		return nil, err
	}
	settings := info.Source.NewSettings()
	if err := bind(node, settings); err != nil {
		return nil, fmt.Errorf("%w: source %s: %w", archive.ErrConfigurationBinding, info.Name, err)
	}
	return settings, nil
}

// BindTarget decodes node into the target settings shape of the named
// provider.
func BindTarget(name string, node *yaml.Node) (archive.TargetSettings, error) {
	info, err := Resolve(name, CapTarget)
	if err != nil {
		return nil, err
	}
	settings := info.Target.NewSettings()
	if err := bind(node, settings); err != nil {
		return nil, fmt.Errorf("%w: target %s: %w", archive.ErrConfigurationBinding, info.Name, err)
	}
	return settings, nil
}

// Secrets returns the credentials carried by settings, if any.
func Secrets(settings any) []string {
	if h, ok := settings.(SecretHolder); ok {
		return h.Secrets()
	}
	return nil
}

func bind(node *yaml.Node, out any) error {
	if !isEmpty(node) {
		if err := decodeStrict(node, out); err != nil {
			return err
		}
	}
	if d, ok := out.(Defaulter); ok {
		d.SetDefaults()
	}
	if v, ok := out.(Validator); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// decodeStrict decodes node into out, rejecting unknown fields.
// yaml.Node.Decode has no strict mode, so the node is re-encoded and read
// back through a Decoder with KnownFields set.
func decodeStrict(node *yaml.Node, out any) error {
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("settings must be a mapping, got %s", kindName(node.Kind))
	}
	raw, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func isEmpty(node *yaml.Node) bool {
	if node == nil || node.Kind == 0 {
		return true
	}
	return node.Kind == yaml.ScalarNode && node.Tag == "!!null"
}

func kindName(k yaml.Kind) string {
	switch k {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "empty"
	}
}
