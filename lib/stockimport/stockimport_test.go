// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package stockimport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/bureau-foundation/shopkeep/lib/progress"
)

var errDuplicate = errors.New("duplicate item")

// recordingCatalog records every AddStockItem call in order and fails
// the items listed in reject.
type recordingCatalog struct {
	calls  []string
	reject map[string]bool
}

func (c *recordingCatalog) AddStockItem(ctx context.Context, code, item, actor string) error {
	c.calls = append(c.calls, item)
	if c.reject[item] {
		return errDuplicate
	}
	return nil
}

func textArtifact(name, content string) Artifact {
	return Artifact{
		Name: name,
		Size: int64(len(content)),
		Open: func(context.Context) ([]byte, error) { return []byte(content), nil },
	}
}

func newPipeline(t *testing.T, catalog Catalog, config Config) *Pipeline {
	t.Helper()
	config.Catalog = catalog
	pipeline, err := New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return pipeline
}

func TestImportAppliesInFileOrderWithIsolatedFailures(t *testing.T) {
	var lines []string
	for i := 1; i <= 25; i++ {
		lines = append(lines, fmt.Sprintf("  item-%02d  ", i))
	}
	content := strings.Join(lines, "\r\n") + "\n\n"

	catalog := &recordingCatalog{reject: map[string]bool{"item-03": true, "item-17": true, "item-25": true}}
	pipeline := newPipeline(t, catalog, Config{Progress: progress.Config{Every: 10}})

	var reports [][2]int
	result, err := pipeline.Import(context.Background(), textArtifact("stock.txt", content), "DIRT", "@admin:example.org",
		func(processed, total int) { reports = append(reports, [2]int{processed, total}) })
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	if result.Total != 25 || result.Added != 22 || result.Failed != 3 {
		t.Errorf("result = %+v, want total=25 added=22 failed=3", result)
	}
	if result.Added+result.Failed != result.Total {
		t.Errorf("added + failed = %d, want %d", result.Added+result.Failed, result.Total)
	}
	for i, item := range catalog.calls {
		if want := fmt.Sprintf("item-%02d", i+1); item != want {
			t.Fatalf("call %d = %q, want %q", i, item, want)
		}
	}
	if len(result.Failures) != 3 || result.Failures[0].Line != 3 || !errors.Is(result.Failures[0].Err, errDuplicate) {
		t.Errorf("failures = %+v", result.Failures)
	}
	if len(reports) != 2 || reports[0] != [2]int{10, 25} || reports[1] != [2]int{20, 25} {
		t.Errorf("progress reports = %v, want [[10 25] [20 25]]", reports)
	}
	if result.BatchID == "" {
		t.Error("BatchID not set")
	}
}

func TestImportAllFailing(t *testing.T) {
	catalog := &recordingCatalog{reject: map[string]bool{"a": true, "b": true}}
	pipeline := newPipeline(t, catalog, Config{})

	result, err := pipeline.Import(context.Background(), textArtifact("x.txt", "a\nb\n"), "DIRT", "admin", nil)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if result.Total != 2 || result.Added != 0 || result.Failed != 2 {
		t.Errorf("result = %+v", result)
	}
}

func TestValidationTouchesNothing(t *testing.T) {
	tests := []struct {
		name     string
		artifact Artifact
		reason   string
	}{
		{
			name:     "declared size over limit",
			artifact: Artifact{Name: "big.txt", Size: 2048, Open: func(context.Context) ([]byte, error) { t.Fatal("opened oversize artifact"); return nil, nil }},
			reason:   "File too large! Maximum size is 1KB",
		},
		{
			name:     "actual size over limit",
			artifact: Artifact{Name: "liar.txt", Size: 10, Open: func(context.Context) ([]byte, error) { return []byte(strings.Repeat("x\n", 1024)), nil }},
			reason:   "File too large!",
		},
		{
			name:     "wrong extension",
			artifact: textArtifact("stock.csv", "a\n"),
			reason:   "Invalid file format! Supported formats: txt",
		},
		{
			name:     "no extension",
			artifact: textArtifact("stock", "a\n"),
			reason:   "Invalid file format!",
		},
		{
			name:     "only blank lines",
			artifact: textArtifact("stock.txt", "  \n\t\n\n"),
			reason:   "No valid items found in file!",
		},
		{
			name:     "not utf-8",
			artifact: textArtifact("stock.txt", "\xff\xfe\x00a"),
			reason:   "not valid UTF-8",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			catalog := &recordingCatalog{}
			pipeline := newPipeline(t, catalog, Config{MaxSize: 1024})

			_, err := pipeline.Import(context.Background(), test.artifact, "DIRT", "admin", nil)
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("error = %v, want *ValidationError", err)
			}
			if !strings.Contains(validationErr.Reason, test.reason) {
				t.Errorf("reason = %q, want it to contain %q", validationErr.Reason, test.reason)
			}
			if len(catalog.calls) != 0 {
				t.Errorf("catalog touched %d times after validation failure", len(catalog.calls))
			}
		})
	}
}

func TestExtensionCaseInsensitive(t *testing.T) {
	catalog := &recordingCatalog{}
	pipeline := newPipeline(t, catalog, Config{AllowedExtensions: []string{".TXT", "list"}})

	for _, name := range []string{"STOCK.TXT", "stock.List"} {
		if _, err := pipeline.Import(context.Background(), textArtifact(name, "one\n"), "DIRT", "admin", nil); err != nil {
			t.Errorf("Import(%q): %v", name, err)
		}
	}
}

func TestByteOrderMarkStripped(t *testing.T) {
	catalog := &recordingCatalog{}
	pipeline := newPipeline(t, catalog, Config{})
	if _, err := pipeline.Import(context.Background(), textArtifact("a.txt", "\xef\xbb\xbffirst\nsecond"), "DIRT", "admin", nil); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if catalog.calls[0] != "first" {
		t.Errorf("first item = %q, want BOM stripped", catalog.calls[0])
	}
}

func TestDownloadFailureIsNotValidation(t *testing.T) {
	pipeline := newPipeline(t, &recordingCatalog{}, Config{})
	artifact := Artifact{Name: "a.txt", Size: 3, Open: func(context.Context) ([]byte, error) {
		return nil, errors.New("media server unavailable")
	}}
	_, err := pipeline.Import(context.Background(), artifact, "DIRT", "admin", nil)
	if err == nil || IsValidationError(err) {
		t.Errorf("error = %v, want non-validation error", err)
	}
}

func TestNewRequiresCatalog(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New without catalog succeeded")
	}
}
