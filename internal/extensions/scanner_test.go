package extensions

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestManifestScannerReadsExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "git", "package.json"), `{
		"name": "git",
		"publisher": "vscode",
		"version": "1.0.0",
		"engines": {"vscode": "^1.70.0"},
		"displayName": "%displayName%",
		"contributes": {"commands": [{"title": "%command.clone%"}]}
	}`)
	writeFile(t, filepath.Join(root, "git", "package.nls.json"), `{
		"displayName": "Git",
		"command.clone": {"message": "Clone", "comment": ["verb"]}
	}`)
	writeFile(t, filepath.Join(root, "broken", "package.json"), `{not json`)
	writeFile(t, filepath.Join(root, "noversion", "package.json"), `{"name": "x"}`)
	writeFile(t, filepath.Join(root, ".hidden", "package.json"), `{"name": "h", "version": "1.0.0"}`)
	writeFile(t, filepath.Join(root, "README.md"), "not an extension")

	exts, err := NewManifestScanner(nil).Scan(context.Background(), root, true, false, "", nil)
	require.NoError(t, err)
	require.Len(t, exts, 1)

	e := exts[0]
	assert.Equal(t, Identifier{Publisher: "vscode", Name: "git"}, e.Identifier)
	assert.Equal(t, filepath.Join(root, "git"), e.Location.FSPath())
	assert.Equal(t, "1.0.0", e.Version)
	assert.Equal(t, map[string]string{"vscode": "^1.70.0"}, e.Engines)
	assert.True(t, e.IsBuiltin)
	assert.False(t, e.IsUnderDevelopment)
	assert.Equal(t, "Git", e.Manifest["displayName"])

	commands := e.Manifest["contributes"].(map[string]interface{})["commands"].([]interface{})
	assert.Equal(t, "Clone", commands[0].(map[string]interface{})["title"])
}

func TestManifestScannerPrefersLocaleFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "ext", "package.json"),
		`{"name": "ext", "publisher": "p", "version": "1.0.0", "displayName": "%name%", "description": "%desc%"}`)
	writeFile(t, filepath.Join(root, "ext", "package.nls.json"), `{"name": "Name", "desc": "Description"}`)
	writeFile(t, filepath.Join(root, "ext", "package.nls.de.json"), `{"name": "Name (de)"}`)

	exts, err := NewManifestScanner(nil).Scan(context.Background(), root, false, true, "de", nil)
	require.NoError(t, err)
	require.Len(t, exts, 1)
	assert.Equal(t, "Name (de)", exts[0].Manifest["displayName"])
	assert.Equal(t, "Description", exts[0].Manifest["description"])
	assert.True(t, exts[0].IsUnderDevelopment)
}

func TestManifestScannerUsesLanguagePackTranslation(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "ext", "package.json"),
		`{"name": "ext", "publisher": "Pub", "version": "1.0.0", "displayName": "%name%"}`)
	writeFile(t, filepath.Join(root, "ext", "package.nls.json"), `{"name": "Name"}`)

	pack := filepath.Join(t.TempDir(), "pub.ext.i18n.json")
	writeFile(t, pack, `{"contents": {"package": {"name": "Nom"}}}`)

	exts, err := NewManifestScanner(nil).Scan(context.Background(), root, false, false, "fr",
		Translations{"pub.ext": pack})
	require.NoError(t, err)
	require.Len(t, exts, 1)
	assert.Equal(t, "Nom", exts[0].Manifest["displayName"])
}

func TestManifestScannerDefaultsPublisher(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "ext", "package.json"), `{"name": "ext", "version": "0.1.0"}`)

	exts, err := NewManifestScanner(nil).Scan(context.Background(), root, false, false, "", nil)
	require.NoError(t, err)
	require.Len(t, exts, 1)
	assert.Equal(t, defaultPublisher, exts[0].Identifier.Publisher)
}

func TestManifestScannerMissingRoot(t *testing.T) {
	exts, err := NewManifestScanner(nil).Scan(context.Background(), filepath.Join(t.TempDir(), "missing"), true, false, "", nil)
	require.NoError(t, err)
	assert.Empty(t, exts)
}

func TestManifestScannerRootIsAFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	writeFile(t, file, "x")

	_, err := NewManifestScanner(nil).Scan(context.Background(), file, true, false, "", nil)
	assert.Error(t, err)
}

func TestFileTranslationLoader(t *testing.T) {
	dataRoot := t.TempDir()
	writeFile(t, filepath.Join(dataRoot, LanguagePacksFile), `{
		"de": {"hash": "abc", "translations": {"vscode": "/packs/de/main.json", "MS-Python.Python": "/packs/de/python.json"}},
		"pt": {"hash": "def", "translations": {"vscode": "/packs/pt/main.json"}}
	}`)

	var loader FileTranslationLoader
	ctx := context.Background()

	tr, err := loader.Load(ctx, "de", dataRoot)
	require.NoError(t, err)
	assert.Equal(t, Translations{"vscode": "/packs/de/main.json", "ms-python.python": "/packs/de/python.json"}, tr)

	tr, err = loader.Load(ctx, "pt-BR", dataRoot)
	require.NoError(t, err)
	assert.Equal(t, "/packs/pt/main.json", tr["vscode"])

	tr, err = loader.Load(ctx, "en", dataRoot)
	require.NoError(t, err)
	assert.Empty(t, tr)

	tr, err = loader.Load(ctx, "ja", dataRoot)
	require.NoError(t, err)
	assert.Empty(t, tr)

	tr, err = loader.Load(ctx, "de", t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, tr)
}

func TestFileTranslationLoaderRejectsMalformedFile(t *testing.T) {
	dataRoot := t.TempDir()
	writeFile(t, filepath.Join(dataRoot, LanguagePacksFile), `[`)

	_, err := FileTranslationLoader{}.Load(context.Background(), "de", dataRoot)
	assert.Error(t, err)
}
