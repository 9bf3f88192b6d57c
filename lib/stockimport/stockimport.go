// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package stockimport validates an uploaded stock file and adds its
// lines to a product's inventory.
//
// Validation happens before any inventory is touched: the declared
// size against the limit, the extension against the allow-list, then
// (after download) the actual size, UTF-8 decoding, and the presence
// of at least one non-empty line. Any failure is a *ValidationError.
//
// Items are then added one at a time in file order. A failed item is
// counted and the batch continues; earlier successes are not rolled
// back. Every run satisfies Added + Failed == Total.
package stockimport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/bureau-foundation/shopkeep/lib/progress"
)

// Defaults applied when Config leaves a field unset.
const (
	DefaultMaxSize = 100 * 1024
)

// DefaultExtensions is the allow-list used when Config has none.
var DefaultExtensions = []string{"txt"}

// maxRecordedFailures caps Result.Failures. Counts are always exact.
const maxRecordedFailures = 20

// ValidationError reports an artifact rejected before import began.
// Reason is suitable for showing to the uploader.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "stockimport: " + e.Reason
}

// IsValidationError reports whether err is a *ValidationError.
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// Artifact is an uploaded file. Size and Name are known up front;
// Open fetches the content and is only called once both pass
// validation.
type Artifact struct {
	Name string
	Size int64
	Open func(ctx context.Context) ([]byte, error)
}

// Catalog receives the items. actor is recorded with each one.
type Catalog interface {
	AddStockItem(ctx context.Context, code, item, actor string) error
}

// Config configures a Pipeline.
type Config struct {
	Catalog Catalog
	// MaxSize is the largest accepted artifact in bytes.
	MaxSize int64
	// AllowedExtensions lists accepted extensions, without the dot,
	// compared case-insensitively.
	AllowedExtensions []string
	// Progress sets the reporting cadence.
	Progress progress.Config
	Logger   *slog.Logger
}

// Failure is one item that could not be added.
type Failure struct {
	Line int
	Item string
	Err  error
}

// Result summarizes one import.
type Result struct {
	BatchID string
	Total   int
	Added   int
	Failed  int
	// Failures holds the first few failed items in file order.
	Failures []Failure
}

// Pipeline imports stock files. Safe for concurrent use; each Import
// is independent.
type Pipeline struct {
	catalog    Catalog
	maxSize    int64
	extensions []string
	progress   progress.Config
	logger     *slog.Logger
}

// New creates a Pipeline.
func New(config Config) (*Pipeline, error) {
	if config.Catalog == nil {
		return nil, fmt.Errorf("stockimport: Catalog is required")
	}
	maxSize := config.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	extensions := config.AllowedExtensions
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	normalized := make([]string, 0, len(extensions))
	for _, extension := range extensions {
		normalized = append(normalized, strings.ToLower(strings.TrimPrefix(extension, ".")))
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		catalog:    config.Catalog,
		maxSize:    maxSize,
		extensions: normalized,
		progress:   config.Progress,
		logger:     logger,
	}, nil
}

// Import validates artifact and adds each of its lines to the product
// ownerCode as actor. report, if non-nil, receives (processed, total)
// at the configured cadence. The error is non-nil only when nothing
// was imported: a *ValidationError, or a failure to download.
func (p *Pipeline) Import(ctx context.Context, artifact Artifact, ownerCode, actor string, report progress.Func) (Result, error) {
	if err := p.checkMetadata(artifact); err != nil {
		return Result{}, err
	}
	if artifact.Open == nil {
		return Result{}, fmt.Errorf("stockimport: artifact %q has no content source", artifact.Name)
	}
	data, err := artifact.Open(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("stockimport: reading %q: %w", artifact.Name, err)
	}
	items, err := p.parse(data)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		BatchID: uuid.NewString(),
		Total:   len(items),
	}
	logger := p.logger.With(
		"batch_id", result.BatchID,
		"product_code", ownerCode,
		"actor", actor,
		"file", artifact.Name,
	)
	logger.Info("stock import started", "items", result.Total)

	reporter := progress.New(result.Total, p.progress, report)
	for index, item := range items {
		if err := p.catalog.AddStockItem(ctx, ownerCode, item, actor); err != nil {
			result.Failed++
			if len(result.Failures) < maxRecordedFailures {
				result.Failures = append(result.Failures, Failure{Line: index + 1, Item: item, Err: err})
			}
			logger.Debug("stock item rejected", "line", index+1, "error", err)
		} else {
			result.Added++
		}
		reporter.Step()
	}

	logger.Info("stock import finished",
		"total", result.Total,
		"added", result.Added,
		"failed", result.Failed,
	)
	return result, nil
}

func (p *Pipeline) checkMetadata(artifact Artifact) error {
	if artifact.Size > p.maxSize {
		return p.tooLarge()
	}
	extension := strings.ToLower(strings.TrimPrefix(path.Ext(artifact.Name), "."))
	if extension == "" || !slices.Contains(p.extensions, extension) {
		return &ValidationError{Reason: fmt.Sprintf("Invalid file format! Supported formats: %s",
			strings.Join(p.extensions, ", "))}
	}
	return nil
}

func (p *Pipeline) tooLarge() error {
	return &ValidationError{Reason: fmt.Sprintf("File too large! Maximum size is %dKB", (p.maxSize+512)/1024)}
}

// parse decodes content into trimmed, non-empty lines in file order.
// The declared size is not trusted: the content is checked again.
func (p *Pipeline) parse(data []byte) ([]string, error) {
	if int64(len(data)) > p.maxSize {
		return nil, p.tooLarge()
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return nil, &ValidationError{Reason: "File is not valid UTF-8 text!"}
	}

	var items []string
	for line := range strings.SplitSeq(string(data), "\n") {
		if item := strings.TrimSpace(line); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return nil, &ValidationError{Reason: "No valid items found in file!"}
	}
	return items, nil
}
