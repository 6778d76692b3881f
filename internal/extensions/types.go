// Package extensions discovers extension manifests on disk and merges the
// results of several scan roots into one deduplicated set.
package extensions

import (
	"context"
	"fmt"
	"strings"

	"github.com/GriffinCanCode/AgentOS/agent/internal/shared/uri"
)

// Identifier names an extension. Comparison is case-insensitive.
type Identifier struct {
	Publisher string `json:"publisher"`
	Name      string `json:"name"`
}

// String returns the display form publisher.name
func (id Identifier) String() string {
	return id.Publisher + "." + id.Name
}

// Key returns the normalized identity used for deduplication
func (id Identifier) Key() string {
	return strings.ToLower(id.String())
}

// Extension describes one discovered extension
type Extension struct {
	Identifier         Identifier             `json:"identifier"`
	Location           uri.URI                `json:"extensionLocation"`
	Version            string                 `json:"version"`
	Engines            map[string]string      `json:"engines,omitempty"`
	Manifest           map[string]interface{} `json:"packageJSON"`
	IsBuiltin          bool                   `json:"isBuiltin"`
	IsUnderDevelopment bool                   `json:"isUnderDevelopment"`
}

// Translations maps an extension id to the translation file for it. The
// table is opaque to the pipeline and passed through to the scanner.
type Translations map[string]string

// Scanner turns one root directory into extension descriptors
type Scanner interface {
	Scan(ctx context.Context, root string, builtin, underDevelopment bool, locale string, translations Translations) ([]Extension, error)
}

// TranslationLoader loads the translation table for a locale
type TranslationLoader interface {
	Load(ctx context.Context, locale, dataRoot string) (Translations, error)
}

// ScanError reports that one root could not be scanned
type ScanError struct {
	Root    string
	Builtin bool
	Err     error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan extensions in %s: %v", e.Root, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }
