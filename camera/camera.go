// Package camera defines the acquisition collaborator that produces point
// clouds, and a registry of source models constructed from config attributes.
package camera

import (
	"context"
	"sort"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"

	"github.com/capturescene/capturescene/logging"
	"github.com/capturescene/capturescene/pointcloud"
)

// Source produces point clouds on demand.
type Source interface {
	// NextPointCloud blocks until a complete cloud is available.
	NextPointCloud(ctx context.Context) (*pointcloud.PointCloud, error)
	Close(ctx context.Context) error
}

// Attributes are the model specific settings of a source.
type Attributes map[string]interface{}

// Constructor builds a source from its attributes.
type Constructor func(ctx context.Context, attrs Attributes, logger logging.Logger) (Source, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Constructor{}
)

// Register makes a model available to New. It panics if the model is
// registered twice.
func Register(model string, constructor Constructor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[model]; ok {
		panic(errors.Errorf("camera model %q already registered", model))
	}
	registry[model] = constructor
}

// RegisteredModels lists the registered model names in order.
func RegisteredModels() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	models := make([]string, 0, len(registry))
	for m := range registry {
		models = append(models, m)
	}
	sort.Strings(models)
	return models
}

// IsRegistered reports whether a model can be constructed.
func IsRegistered(model string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[model]
	return ok
}

// New constructs a source of the given model.
func New(ctx context.Context, model string, attrs Attributes, logger logging.Logger) (Source, error) {
	registryMu.RLock()
	constructor, ok := registry[model]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Errorf("unknown camera model %q", model)
	}
	return constructor(ctx, attrs, logger.Sublogger(model))
}

// DecodeAttributes decodes attrs into out using its json tags. Numbers and
// strings are converted where it is unambiguous.
func DecodeAttributes(attrs Attributes, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           out,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	return errors.Wrap(decoder.Decode(map[string]interface{}(attrs)), "invalid camera attributes")
}
