package storage

import (
	"fmt"

	"github.com/nutrilog/gatekeeper/logger"
)

// Factory is the factory function to create a storage backend.
type Factory func(config map[string]string, log logger.Logger) (Backend, error)

var backends = map[string]Factory{
	"inmem":    newInmemFromConfig,
	"file":     NewFileBackend,
	"postgres": NewPostgresBackend,
}

// NewBackend creates the backend named by config["type"].
func NewBackend(config map[string]string, log logger.Logger) (Backend, error) {
	typ := config["type"]
	factory, ok := backends[typ]
	if !ok {
		return nil, fmt.Errorf("unknown storage type %q", typ)
	}
	return factory(config, log)
}

func newInmemFromConfig(config map[string]string, log logger.Logger) (Backend, error) {
	return NewInmemBackend(), nil
}
