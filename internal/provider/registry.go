// Package provider maps provider names from job configuration to storage
// adapters. Adapter packages register themselves from init(); the registry
// is read-only once jobs start.
package provider

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/flemzord/dbarchiver/internal/archive"
)

// Capability is the role a provider can play in a transfer.
type Capability uint8

const (
	// CapSource marks providers that can read and delete records.
	CapSource Capability = 1 << iota
	// CapTarget marks providers that can insert records and run scripts.
	CapTarget
)

func (c Capability) String() string {
	switch c {
	case CapSource:
		return "source"
	case CapTarget:
		return "target"
	case CapSource | CapTarget:
		return "source+target"
	default:
		return "none"
	}
}

// Deps carries the shared resources handed to adapter constructors.
type Deps struct {
	Logger *slog.Logger
}

// SourceInfo describes a provider's source capability.
type SourceInfo struct {
	// NewSettings returns a pointer to a zero settings value to decode into.
	NewSettings func() archive.SourceSettings
	New         func(Deps) archive.Source
}

// TargetInfo describes a provider's target capability.
type TargetInfo struct {
	NewSettings func() archive.TargetSettings
	New         func(Deps) archive.Target
}

// Info describes a registered provider.
type Info struct {
	Name        string
	Aliases     []string
	Description string
	Source      *SourceInfo
	Target      *TargetInfo
}

// Capabilities returns the roles the provider supports.
func (i Info) Capabilities() Capability {
	var c Capability
	if i.Source != nil {
		c |= CapSource
	}
	if i.Target != nil {
		c |= CapTarget
	}
	return c
}

func (i Info) matches(name string) bool {
	if strings.EqualFold(i.Name, name) {
		return true
	}
	for _, a := range i.Aliases {
		if strings.EqualFold(a, name) {
			return true
		}
	}
	return false
}

func (i Info) names() []string {
	return append([]string{i.Name}, i.Aliases...)
}

var (
	providers   []Info
	providersMu sync.RWMutex
)

// Register adds a provider. It panics if the name is empty, if the provider
// offers no capability, or if one of its names is already registered for
// an overlapping capability. Intended to be called from init() functions.
func Register(info Info) {
	if info.Name == "" {
		panic("provider name must not be empty")
	}
	if info.Capabilities() == 0 {
		panic(fmt.Sprintf("provider %s: must offer a source or a target", info.Name))
	}
	if info.Source != nil && (info.Source.New == nil || info.Source.NewSettings == nil) {
		panic(fmt.Sprintf("provider %s: source constructors must not be nil", info.Name))
	}
	if info.Target != nil && (info.Target.New == nil || info.Target.NewSettings == nil) {
		panic(fmt.Sprintf("provider %s: target constructors must not be nil", info.Name))
	}

	providersMu.Lock()
	defer providersMu.Unlock()

	for _, existing := range providers {
		if existing.Capabilities()&info.Capabilities() == 0 {
			continue
		}
		for _, n := range info.names() {
			if existing.matches(n) {
				panic(fmt.Sprintf("provider already registered: %s", n))
			}
		}
	}
	providers = append(providers, info)
}

// Resolve returns the single provider named name (case-insensitive, aliases
// included) that offers capability. Zero or several candidates yield
// archive.ErrProviderNotFound.
func Resolve(name string, capability Capability) (Info, error) {
	providersMu.RLock()
	defer providersMu.RUnlock()

	var found []Info
	for _, info := range providers {
		if info.Capabilities()&capability == 0 {
			continue
		}
		if info.matches(name) {
			found = append(found, info)
		}
	}

	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return Info{}, fmt.Errorf("%w: no %s provider named %q", archive.ErrProviderNotFound, capability, name)
	default:
		return Info{}, fmt.Errorf("%w: %d %s providers match %q", archive.ErrProviderNotFound, len(found), capability, name)
	}
}

// NewSource constructs a fresh source adapter for the named provider.
func NewSource(name string, deps Deps) (archive.Source, error) {
	info, err := Resolve(name, CapSource)
	if err != nil {
		return nil, err
	}
	return info.Source.New(withDefaults(deps, info.Name)), nil
}

// NewTarget constructs a fresh target adapter for the named provider.
func NewTarget(name string, deps Deps) (archive.Target, error) {
	info, err := Resolve(name, CapTarget)
	if err != nil {
		return nil, err
	}
	return info.Target.New(withDefaults(deps, info.Name)), nil
}

func withDefaults(deps Deps, name string) Deps {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = deps.Logger.With("provider", name)
	return deps
}

// List returns all registered providers sorted by name.
func List() []Info {
	providersMu.RLock()
	defer providersMu.RUnlock()

	result := slices.Clone(providers)
	slices.SortFunc(result, func(a, b Info) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return result
}

// resetRegistry clears the registry. Only for testing.
func resetRegistry() {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers = nil
}
