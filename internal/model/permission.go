package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// WildcardPermission is the single entry reported for an unrestricted grant.
const WildcardPermission = "*"

const permissionAllKey = "all"

// PermissionDocument is the permission grant attached to a role. It is either
// a wildcard granting everything, or a mapping from resource to the actions
// allowed on it.
type PermissionDocument struct {
	all    bool
	grants map[string][]string
}

func WildcardPermissions() PermissionDocument {
	return PermissionDocument{all: true}
}

// GranularPermissions builds a non-wildcard document. Actions are deduplicated
// and sorted; resources with no actions are dropped.
func GranularPermissions(grants map[string][]string) PermissionDocument {
	doc := PermissionDocument{grants: map[string][]string{}}
	for resource, actions := range grants {
		doc.add(resource, actions)
	}
	return doc
}

func (d *PermissionDocument) add(resource string, actions []string) {
	if d.grants == nil {
		d.grants = map[string][]string{}
	}

	set := map[string]struct{}{}
	for _, a := range d.grants[resource] {
		set[a] = struct{}{}
	}
	for _, a := range actions {
		if a == "" {
			continue
		}
		set[a] = struct{}{}
	}
	if len(set) == 0 {
		return
	}

	merged := make([]string, 0, len(set))
	for a := range set {
		merged = append(merged, a)
	}
	sort.Strings(merged)
	d.grants[resource] = merged
}

func (d PermissionDocument) IsWildcard() bool {
	return d.all
}

// Grants returns a copy of the resource -> actions mapping.
func (d PermissionDocument) Grants() map[string][]string {
	out := make(map[string][]string, len(d.grants))
	for resource, actions := range d.grants {
		out[resource] = append([]string(nil), actions...)
	}
	return out
}

// Expand flattens the document into sorted "resource:action" strings. A
// wildcard document expands to nothing; callers check IsWildcard first.
func (d PermissionDocument) Expand() []string {
	if d.all {
		return nil
	}

	out := make([]string, 0)
	for resource, actions := range d.grants {
		for _, action := range actions {
			out = append(out, resource+":"+action)
		}
	}
	sort.Strings(out)
	return out
}

func (d PermissionDocument) MarshalJSON() ([]byte, error) {
	if d.all {
		return []byte(`{"all":true}`), nil
	}
	if d.grants == nil {
		return []byte(`{}`), nil
	}
	return json.Marshal(d.grants)
}

// UnmarshalJSON is the strict decoder used for administrative input: "all"
// must be a boolean and every other key a list of non-empty action strings.
func (d *PermissionDocument) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: permissions must be a JSON object", ErrInvalidInput)
	}

	doc := PermissionDocument{grants: map[string][]string{}}
	for key, value := range raw {
		if key == permissionAllKey {
			var all bool
			if err := json.Unmarshal(value, &all); err != nil {
				return fmt.Errorf("%w: permissions.all must be a boolean", ErrInvalidInput)
			}
			doc.all = doc.all || all
			continue
		}

		if strings.TrimSpace(key) == "" || strings.Contains(key, ":") {
			return fmt.Errorf("%w: invalid permission resource %q", ErrInvalidInput, key)
		}

		var actions []string
		if err := json.Unmarshal(value, &actions); err != nil {
			return fmt.Errorf("%w: permissions.%s must be a list of actions", ErrInvalidInput, key)
		}
		for _, a := range actions {
			if strings.TrimSpace(a) == "" {
				return fmt.Errorf("%w: empty action for resource %q", ErrInvalidInput, key)
			}
		}
		doc.add(key, actions)
	}

	if doc.all {
		doc.grants = nil
	}

	*d = doc
	return nil
}

// LoadPermissionDocument decodes a stored document leniently: "all": true
// makes it a wildcard, list values become actions, and anything else is
// ignored. Only malformed JSON is an error.
func LoadPermissionDocument(data []byte) (PermissionDocument, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return PermissionDocument{}, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return PermissionDocument{}, fmt.Errorf("decode permission document: %w", err)
	}

	if all, ok := raw[permissionAllKey]; ok {
		var flag bool
		if json.Unmarshal(all, &flag) == nil && flag {
			return WildcardPermissions(), nil
		}
	}

	doc := PermissionDocument{grants: map[string][]string{}}
	for resource, value := range raw {
		var items []any
		if err := json.Unmarshal(value, &items); err != nil {
			continue
		}

		actions := make([]string, 0, len(items))
		for _, item := range items {
			if s, ok := item.(string); ok {
				actions = append(actions, s)
			}
		}
		doc.add(resource, actions)
	}

	return doc, nil
}

// PermissionSet is the effective set of permissions a user holds within one
// application.
type PermissionSet struct {
	wildcard bool
	items    map[string]struct{}
}

func NewPermissionSet() PermissionSet {
	return PermissionSet{items: map[string]struct{}{}}
}

func WildcardPermissionSet() PermissionSet {
	return PermissionSet{wildcard: true}
}

func (s *PermissionSet) Merge(doc PermissionDocument) {
	if s.wildcard {
		return
	}
	if doc.IsWildcard() {
		s.wildcard = true
		s.items = nil
		return
	}
	if s.items == nil {
		s.items = map[string]struct{}{}
	}
	for _, p := range doc.Expand() {
		s.items[p] = struct{}{}
	}
}

func (s PermissionSet) IsWildcard() bool {
	return s.wildcard
}

func (s PermissionSet) Has(permission string) bool {
	if s.wildcard {
		return true
	}
	_, ok := s.items[permission]
	return ok
}

func (s PermissionSet) Len() int {
	if s.wildcard {
		return 1
	}
	return len(s.items)
}

// List returns the sorted permission strings, or ["*"] for a wildcard set.
func (s PermissionSet) List() []string {
	if s.wildcard {
		return []string{WildcardPermission}
	}

	out := make([]string, 0, len(s.items))
	for p := range s.items {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (s PermissionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.List())
}
