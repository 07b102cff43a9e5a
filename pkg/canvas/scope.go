package canvas

import (
	"strings"

	"github.com/matzehuels/spatialcanvas/pkg/errors"
)

// Scope partitions blocks by document and optional sub-space.
type Scope struct {
	DocumentType string `json:"document_type" toml:"document_type"`
	DocumentID   string `json:"document_id" toml:"document_id"`
	SpaceID      string `json:"space_id,omitempty" toml:"space_id"`
}

// Key returns the canonical "type/id[/space]" form used as a storage key.
func (s Scope) Key() string {
	if s.SpaceID == "" {
		return s.DocumentType + "/" + s.DocumentID
	}
	return s.DocumentType + "/" + s.DocumentID + "/" + s.SpaceID
}

// String implements fmt.Stringer.
func (s Scope) String() string { return s.Key() }

// IsZero reports whether no scope has been set.
func (s Scope) IsZero() bool { return s == Scope{} }

// Validate rejects scopes with missing parts or separators inside parts.
func (s Scope) Validate() error {
	if strings.TrimSpace(s.DocumentType) == "" || strings.TrimSpace(s.DocumentID) == "" {
		return errors.New(errors.ErrCodeInvalidScope, "scope %q: document type and id are required", s.Key())
	}
	for _, part := range []string{s.DocumentType, s.DocumentID, s.SpaceID} {
		if strings.Contains(part, "/") {
			return errors.New(errors.ErrCodeInvalidScope, "scope %q: parts must not contain '/'", s.Key())
		}
	}
	return nil
}

// ParseScope parses the output of [Scope.Key].
func ParseScope(key string) (Scope, error) {
	parts := strings.Split(key, "/")
	var s Scope
	switch len(parts) {
	case 2:
		s = Scope{DocumentType: parts[0], DocumentID: parts[1]}
	case 3:
		s = Scope{DocumentType: parts[0], DocumentID: parts[1], SpaceID: parts[2]}
	default:
		return Scope{}, errors.New(errors.ErrCodeInvalidScope, "scope %q: want type/id[/space]", key)
	}
	return s, s.Validate()
}
