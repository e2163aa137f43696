package assoc

import "github.com/gobwas/glob"

// GlobAccessControlPolicy accepts an association only if the incoming
// Calling AE Title matches one of a set of glob patterns (e.g. "PACS-*",
// "MODALITY-[0-9][0-9]"), letting an operator allow-list a fleet of
// callers without enumerating every AE title individually.
type GlobAccessControlPolicy struct {
	patterns []glob.Glob
}

// NewGlobAccessControlPolicy compiles patterns, one per accepted Calling
// AE Title shape. An invalid pattern is an error, not silently ignored,
// since a typo here would otherwise fail open.
func NewGlobAccessControlPolicy(patterns ...string) (*GlobAccessControlPolicy, error) {
	p := &GlobAccessControlPolicy{}
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, err
		}
		p.patterns = append(p.patterns, g)
	}
	return p, nil
}

// Allow reports whether callingAETitle matches any configured pattern.
// The Called AE Title is not consulted; pair this with
// AcceptIfCalledMatchesPolicy via a composite policy if both checks are
// needed.
func (p *GlobAccessControlPolicy) Allow(callingAETitle, _ string) bool {
	for _, g := range p.patterns {
		if g.Match(callingAETitle) {
			return true
		}
	}
	return false
}
