package extensions

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
)

// LanguagePacksFile lists installed language packs below the data root
const LanguagePacksFile = "languagepacks.json"

// DefaultLocale needs no translations
const DefaultLocale = "en"

// FileTranslationLoader reads translation tables from languagepacks.json
type FileTranslationLoader struct{}

type languagePack struct {
	Hash         string            `json:"hash"`
	Translations map[string]string `json:"translations"`
}

// Load returns the translation table for locale. The default locale and a
// missing languagepacks.json yield an empty table.
func (FileTranslationLoader) Load(ctx context.Context, locale, dataRoot string) (Translations, error) {
	locale = strings.ToLower(locale)
	if locale == "" || locale == DefaultLocale || locale == "pseudo" {
		return Translations{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(dataRoot, LanguagePacksFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Translations{}, nil
		}
		return nil, err
	}

	var packs map[string]languagePack
	if err := sonic.Unmarshal(data, &packs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	// Fall back from a regional locale to its language: pt-br, then pt
	candidates := []string{locale}
	if i := strings.IndexByte(locale, '-'); i > 0 {
		candidates = append(candidates, locale[:i])
	}
	for _, candidate := range candidates {
		if pack, ok := packs[candidate]; ok {
			out := make(Translations, len(pack.Translations))
			for id, file := range pack.Translations {
				out[strings.ToLower(id)] = file
			}
			return out, nil
		}
	}
	return Translations{}, nil
}
