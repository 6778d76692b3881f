// Package remap rewrites the virtual resource locators a remote client uses
// for static assets and webview resources into real server locations.
package remap

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/GriffinCanCode/AgentOS/agent/internal/shared/uri"
	"github.com/bytedance/sonic"
)

const (
	// StaticPrefix marks assets served from the application root
	StaticPrefix = "/static/"

	// WebviewResourcePath marks a webview resource request whose query
	// carries the real location
	WebviewResourcePath = "/vscode-resource"
)

// Remapper maps virtual locators to local ones. The zero value passes
// everything through except static assets, which resolve against "/".
type Remapper struct {
	AppRoot string
}

// New creates a remapper rooted at the application directory
func New(appRoot string) *Remapper {
	return &Remapper{AppRoot: appRoot}
}

type webviewQuery struct {
	RequestResourcePath *string `json:"requestResourcePath"`
}

// Remap returns the local form of u. It never fails: anything it cannot
// interpret is returned unchanged.
func (r *Remapper) Remap(u uri.URI) uri.URI {
	if strings.HasPrefix(u.Path, StaticPrefix) {
		// Rooting rest before cleaning keeps ".." from leaving the app root
		rest := path.Clean("/" + strings.TrimPrefix(u.Path, StaticPrefix))
		return uri.File(filepath.Join(r.AppRoot, filepath.FromSlash(rest)))
	}

	if u.Path == WebviewResourcePath && u.Query != "" {
		if p, ok := decodeWebviewQuery(u.Query); ok {
			return uri.File(p)
		}
	}

	return u
}

// decodeWebviewQuery extracts requestResourcePath from a raw or
// percent-encoded JSON query. Any decode error reports ok=false.
func decodeWebviewQuery(raw string) (string, bool) {
	candidates := []string{raw}
	if unescaped, err := url.QueryUnescape(raw); err == nil && unescaped != raw {
		candidates = append(candidates, unescaped)
	}

	for _, c := range candidates {
		var q webviewQuery
		if err := sonic.UnmarshalString(c, &q); err != nil {
			continue
		}
		if q.RequestResourcePath == nil || *q.RequestResourcePath == "" {
			return "", false
		}
		return absolute(*q.RequestResourcePath), true
	}
	return "", false
}

func absolute(p string) string {
	p = filepath.ToSlash(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}
