package extensions

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/GriffinCanCode/AgentOS/agent/internal/shared/uri"
	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

const (
	manifestFile = "package.json"
	nlsFile      = "package.nls.json"

	// defaultPublisher is used when a manifest omits its publisher
	defaultPublisher = "undefined_publisher"
)

// ManifestScanner treats every subdirectory of a root that holds a
// package.json as an extension
type ManifestScanner struct {
	logger *zap.Logger
}

// NewManifestScanner creates a manifest scanner
func NewManifestScanner(logger *zap.Logger) *ManifestScanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ManifestScanner{logger: logger}
}

// Scan reads the manifests below root. A missing root yields no extensions.
// Invalid manifests are skipped, only an unreadable root is an error.
func (s *ManifestScanner) Scan(ctx context.Context, root string, builtin, underDevelopment bool, locale string, translations Translations) ([]Extension, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var result []Extension
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}

		dir := filepath.Join(root, entry.Name())
		ext, err := s.scanOne(dir, locale, translations)
		if err != nil {
			s.logger.Debug("skipping extension", zap.String("path", dir), zap.Error(err))
			continue
		}
		ext.IsBuiltin = builtin
		ext.IsUnderDevelopment = underDevelopment
		result = append(result, ext)
	}
	return result, nil
}

func (s *ManifestScanner) scanOne(dir, locale string, translations Translations) (Extension, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return Extension{}, err
	}

	var manifest map[string]interface{}
	if err := sonic.Unmarshal(data, &manifest); err != nil {
		return Extension{}, fmt.Errorf("parse %s: %w", manifestFile, err)
	}

	name, _ := manifest["name"].(string)
	version, _ := manifest["version"].(string)
	if name == "" || version == "" {
		return Extension{}, fmt.Errorf("%s: name and version are required", manifestFile)
	}
	publisher, _ := manifest["publisher"].(string)
	if publisher == "" {
		publisher = defaultPublisher
	}
	id := Identifier{Publisher: publisher, Name: name}

	if messages := s.messages(dir, id, locale, translations); len(messages) > 0 {
		manifest = localize(manifest, messages).(map[string]interface{})
	}

	return Extension{
		Identifier: id,
		Location:   uri.File(dir),
		Version:    version,
		Engines:    engines(manifest),
		Manifest:   manifest,
	}, nil
}

// messages resolves the localization table for one extension. A
// translation file from the language pack wins over the bundled files.
func (s *ManifestScanner) messages(dir string, id Identifier, locale string, translations Translations) map[string]string {
	if path, ok := lookupTranslation(translations, id); ok {
		messages, err := readPackTranslation(path)
		if err == nil {
			return messages
		}
		s.logger.Debug("ignoring translation file", zap.String("path", path), zap.Error(err))
	}

	messages, _ := readNLS(filepath.Join(dir, nlsFile))
	if locale == "" {
		return messages
	}
	localized, err := readNLS(filepath.Join(dir, "package.nls."+strings.ToLower(locale)+".json"))
	if err != nil {
		return messages
	}
	if messages == nil {
		return localized
	}
	for k, v := range localized {
		messages[k] = v
	}
	return messages
}

func lookupTranslation(translations Translations, id Identifier) (string, bool) {
	if path, ok := translations[id.Key()]; ok {
		return path, true
	}
	for k, path := range translations {
		if strings.EqualFold(k, id.Key()) {
			return path, true
		}
	}
	return "", false
}

// readNLS reads a package.nls file. Values are either plain strings or
// objects carrying a message.
func readNLS(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return flattenMessages(raw), nil
}

// readPackTranslation reads a language pack translation file, whose
// manifest strings live under contents.package
func readPackTranslation(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Contents struct {
			Package map[string]interface{} `json:"package"`
		} `json:"contents"`
	}
	if err := sonic.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return flattenMessages(doc.Contents.Package), nil
}

func flattenMessages(raw map[string]interface{}) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			out[k] = val
		case map[string]interface{}:
			if msg, ok := val["message"].(string); ok {
				out[k] = msg
			}
		}
	}
	return out
}

// localize replaces "%key%" string values with their message. Unknown keys
// are left as is.
func localize(v interface{}, messages map[string]string) interface{} {
	switch val := v.(type) {
	case string:
		if len(val) > 2 && strings.HasPrefix(val, "%") && strings.HasSuffix(val, "%") {
			if msg, ok := messages[val[1:len(val)-1]]; ok {
				return msg
			}
		}
		return val
	case map[string]interface{}:
		for k, item := range val {
			val[k] = localize(item, messages)
		}
		return val
	case []interface{}:
		for i, item := range val {
			val[i] = localize(item, messages)
		}
		return val
	}
	return v
}

func engines(manifest map[string]interface{}) map[string]string {
	raw, ok := manifest["engines"].(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
