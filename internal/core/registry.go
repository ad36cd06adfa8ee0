package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// FormatReader enumerates raw channel descriptors from one artifact.
//
// Channels that cannot be classified are skipped by the reader with a logged
// warning. An error means the artifact as a whole could not be read.
type FormatReader interface {
	Read(ctx context.Context, path string) ([]RawChannelDescriptor, error)
}

// ReaderOptions configures readers created from a FormatDefinition.
type ReaderOptions struct {
	// SaveFiles keeps extracted archive contents next to the archive.
	SaveFiles bool
}

// FormatInfo contains display information about an input format.
type FormatInfo struct {
	Key       string // Unique identifier: "tdms"
	Label     string // Display name: "NI TDMS waveform"
	Extension string // File extension including the dot: ".tdms"
}

// FormatDefinition contains everything needed to read one input format.
type FormatDefinition struct {
	Info      FormatInfo
	NewReader func(opts ReaderOptions) FormatReader
}

var (
	registry   = make(map[string]FormatDefinition)
	registryMu sync.RWMutex
)

// Register adds a format definition to the registry.
// Panics if a format with the same key is already registered.
func Register(def FormatDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Info.Key]; exists {
		panic(fmt.Sprintf("format already registered: %s", def.Info.Key))
	}
	if def.NewReader == nil {
		panic(fmt.Sprintf("format %s has no reader", def.Info.Key))
	}
	registry[def.Info.Key] = def
}

// Get returns a format definition by key.
// Returns false if not found.
func Get(key string) (FormatDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[key]
	return def, ok
}

// All returns all registered format definitions sorted by key.
func All() []FormatDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]FormatDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Info.Key < result[j].Info.Key
	})
	return result
}

// FormatCount returns the number of registered formats.
func FormatCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// Clear removes all registered formats.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]FormatDefinition)
}
