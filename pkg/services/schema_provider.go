package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ekaya-inc/ekaya-intake/pkg/models"
)

// SchemaProvider describes the destination schema items are reconciled into.
type SchemaProvider interface {
	DescribeSchema(ctx context.Context) (*models.DestinationSchema, error)
}

// DefaultSchema is used when no schema file is configured.
func DefaultSchema() *models.DestinationSchema {
	return &models.DestinationSchema{
		Name:    "inventory",
		Version: "1",
		Fields: []models.SchemaField{
			{Name: models.TargetFieldPartNumber, Type: "string", Required: true, Description: "manufacturer or internal part number"},
			{Name: models.TargetFieldSerialNumber, Type: "string", Description: "unit serial number"},
			{Name: models.TargetFieldQuantity, Type: "integer", Required: true, Constraints: []string{">= 0"}},
			{Name: "description", Type: "string"},
			{Name: "manufacturer", Type: "string"},
			{Name: "location", Type: "string", Description: "warehouse, bin or shelf"},
			{Name: "unit_cost", Type: "decimal"},
			{Name: "condition", Type: "string", Constraints: []string{"new", "used", "refurbished"}},
		},
	}
}

type staticSchemaProvider struct {
	schema *models.DestinationSchema
}

// NewStaticSchemaProvider always returns schema.
func NewStaticSchemaProvider(schema *models.DestinationSchema) SchemaProvider {
	return &staticSchemaProvider{schema: schema}
}

func (p *staticSchemaProvider) DescribeSchema(ctx context.Context) (*models.DestinationSchema, error) {
	return p.schema, nil
}

// FileSchemaProvider loads the destination schema from a YAML file and, when
// watched, reloads it on change. A reload that fails validation keeps the
// previous schema.
type FileSchemaProvider struct {
	path   string
	logger *zap.Logger

	mu     sync.RWMutex
	schema *models.DestinationSchema
}

var _ SchemaProvider = (*FileSchemaProvider)(nil)

// NewFileSchemaProvider loads and validates the schema at path.
func NewFileSchemaProvider(path string, logger *zap.Logger) (*FileSchemaProvider, error) {
	p := &FileSchemaProvider{path: path, logger: logger.Named("schema-provider")}
	schema, err := loadSchemaFile(path)
	if err != nil {
		return nil, err
	}
	p.schema = schema
	return p, nil
}

// DescribeSchema implements SchemaProvider.
func (p *FileSchemaProvider) DescribeSchema(ctx context.Context) (*models.DestinationSchema, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.schema, nil
}

// Reload re-reads the schema file.
func (p *FileSchemaProvider) Reload() error {
	schema, err := loadSchemaFile(p.path)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.schema = schema
	p.mu.Unlock()
	p.logger.Info("Destination schema reloaded",
		zap.String("schema", schema.Name),
		zap.String("version", schema.Version),
		zap.Int("fields", len(schema.Fields)))
	return nil
}

// Watch reloads the schema whenever the file changes until ctx is done.
// The parent directory is watched so editors that replace the file are seen.
func (p *FileSchemaProvider) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create schema watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch schema directory: %w", err)
	}

	go func() {
		defer watcher.Close()
		const debounce = 250 * time.Millisecond
		var timer *time.Timer
		reload := make(chan struct{}, 1)

		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(p.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, func() {
					select {
					case reload <- struct{}{}:
					default:
					}
				})
			case <-reload:
				if err := p.Reload(); err != nil {
					p.logger.Warn("Keeping previous destination schema", zap.Error(err))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				p.logger.Warn("Schema watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

func loadSchemaFile(path string) (*models.DestinationSchema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	var schema models.DestinationSchema
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parse schema file: %w", err)
	}
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("invalid schema file: %w", err)
	}
	return &schema, nil
}
