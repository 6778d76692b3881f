// Package uri provides the resource locator exchanged with remote clients
// and the translation between its remote and server-local forms.
package uri

import (
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// Schemes understood by the agent
const (
	SchemeFile   = "file"
	SchemeRemote = "vscode-remote"
)

// URI is a structured resource locator. It travels over the wire as its
// components rather than as a formatted string.
type URI struct {
	Scheme    string `json:"scheme"`
	Authority string `json:"authority,omitempty"`
	Path      string `json:"path"`
	Query     string `json:"query,omitempty"`
	Fragment  string `json:"fragment,omitempty"`
}

// File returns a file URI for a local filesystem path
func File(fsPath string) URI {
	p := filepath.ToSlash(fsPath)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return URI{Scheme: SchemeFile, Path: path.Clean(p)}
}

// Parse parses a formatted URI string
func Parse(raw string) (URI, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return URI{}, fmt.Errorf("invalid uri %q: %w", raw, err)
	}
	if u.Scheme == "" {
		return URI{}, fmt.Errorf("invalid uri %q: missing scheme", raw)
	}
	return URI{
		Scheme:    u.Scheme,
		Authority: u.Host,
		Path:      u.Path,
		Query:     u.RawQuery,
		Fragment:  u.Fragment,
	}, nil
}

// String formats the URI
func (u URI) String() string {
	out := url.URL{
		Scheme:   u.Scheme,
		Host:     u.Authority,
		Path:     u.Path,
		RawQuery: u.Query,
		Fragment: u.Fragment,
	}
	return out.String()
}

// FSPath returns the path component as a local filesystem path
func (u URI) FSPath() string {
	return filepath.FromSlash(u.Path)
}

// IsZero reports whether the URI carries no location
func (u URI) IsZero() bool {
	return u.Scheme == "" && u.Path == ""
}
