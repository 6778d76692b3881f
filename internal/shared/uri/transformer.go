package uri

// Transformer converts resource locators between the remote-relative form
// a client uses and the local form the server operates on.
type Transformer interface {
	ToLocal(u URI) URI
	ToRemote(u URI) URI
}

// NewTransformer returns a transformer bound to one remote authority. An
// empty authority yields a transformer that leaves local URIs untouched.
func NewTransformer(remoteAuthority string) Transformer {
	return authorityTransformer{authority: remoteAuthority}
}

type authorityTransformer struct {
	authority string
}

func (t authorityTransformer) ToLocal(u URI) URI {
	if u.Scheme != SchemeRemote {
		return u
	}
	return URI{Scheme: SchemeFile, Path: u.Path, Query: u.Query, Fragment: u.Fragment}
}

func (t authorityTransformer) ToRemote(u URI) URI {
	if u.Scheme != SchemeFile || t.authority == "" {
		return u
	}
	return URI{
		Scheme:    SchemeRemote,
		Authority: t.authority,
		Path:      u.Path,
		Query:     u.Query,
		Fragment:  u.Fragment,
	}
}
