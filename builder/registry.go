package builder

import (
	"fmt"
	"sort"
	"sync"

	"github.com/corey-cole/riot/models"
)

// SourceFactory creates a Source from a configuration
type SourceFactory func(cfg map[string]any, vars map[string]any) (models.Source, error)

// SinkFactory creates a Sink from a configuration
type SinkFactory func(cfg map[string]any, vars map[string]any) (models.Sink, error)

// ProcessorFactory creates a record Transformer from a configuration
type ProcessorFactory func(cfg map[string]any, vars map[string]any) (models.Transformer, error)

var (
	// registries contain all registered factories by type
	sources    = make(map[string]SourceFactory)
	sinks      = make(map[string]SinkFactory)
	processors = make(map[string]ProcessorFactory)
	mu         sync.RWMutex
)

// RegisterSourceType registers a factory for a source type.
// This function is called by init() in connector packages.
func RegisterSourceType(sourceType string, factory SourceFactory) {
	mu.Lock()
	defer mu.Unlock()
	sources[sourceType] = factory
}

// RegisterSinkType registers a factory for a sink type
func RegisterSinkType(sinkType string, factory SinkFactory) {
	mu.Lock()
	defer mu.Unlock()
	sinks[sinkType] = factory
}

// RegisterProcessorType registers a factory for a processor type
func RegisterProcessorType(processorType string, factory ProcessorFactory) {
	mu.Lock()
	defer mu.Unlock()
	processors[processorType] = factory
}

// GetSourceFactory returns the factory for a source type
func GetSourceFactory(sourceType string) (SourceFactory, error) {
	mu.RLock()
	defer mu.RUnlock()

	factory, exists := sources[sourceType]
	if !exists {
		return nil, fmt.Errorf("unknown source type: %s", sourceType)
	}
	return factory, nil
}

// GetSinkFactory returns the factory for a sink type
func GetSinkFactory(sinkType string) (SinkFactory, error) {
	mu.RLock()
	defer mu.RUnlock()

	factory, exists := sinks[sinkType]
	if !exists {
		return nil, fmt.Errorf("unknown sink type: %s", sinkType)
	}
	return factory, nil
}

// GetProcessorFactory returns the factory for a processor type
func GetProcessorFactory(processorType string) (ProcessorFactory, error) {
	mu.RLock()
	defer mu.RUnlock()

	factory, exists := processors[processorType]
	if !exists {
		return nil, fmt.Errorf("unknown processor type: %s", processorType)
	}
	return factory, nil
}

// ListSourceTypes returns all registered source types, sorted
func ListSourceTypes() []string {
	mu.RLock()
	defer mu.RUnlock()
	return sortedTypes(sources)
}

// ListSinkTypes returns all registered sink types, sorted
func ListSinkTypes() []string {
	mu.RLock()
	defer mu.RUnlock()
	return sortedTypes(sinks)
}

// ListProcessorTypes returns all registered processor types, sorted
func ListProcessorTypes() []string {
	mu.RLock()
	defer mu.RUnlock()
	return sortedTypes(processors)
}

func sortedTypes[F any](registry map[string]F) []string {
	types := make([]string, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
