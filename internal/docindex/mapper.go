// Package docindex maps parsed documentation entries onto the
// document shape the search store indexes. IDs are deterministic:
// remapping the same archive yields the same IDs, so incremental
// tooling can diff generations.
package docindex

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	helperrors "github.com/onec-help/onechelp/internal/errors"
	"github.com/onec-help/onechelp/internal/hbk"
	"github.com/onec-help/onechelp/internal/store"
)

var memberKinds = map[hbk.Kind]bool{
	hbk.KindMethod:   true,
	hbk.KindProperty: true,
	hbk.KindEvent:    true,
}

var knownKinds = map[hbk.Kind]bool{
	hbk.KindGlobalFunction: true,
	hbk.KindObjectType:     true,
	hbk.KindMethod:         true,
	hbk.KindProperty:       true,
	hbk.KindEvent:          true,
}

// DocumentID derives the stable identifier for an entry from its kind,
// normalized owner and normalized name.
func DocumentID(kind hbk.Kind, owner, name string) string {
	h := xxhash.New()
	_, _ = h.WriteString(string(kind))
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(Normalize(owner))
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(Normalize(name))
	return fmt.Sprintf("%016x", h.Sum64())
}

// Map converts one entry into an index document. Entries that violate
// the schema (no name, unknown kind, member without an owner) are
// rejected with a mapping error so the caller can count and skip them.
func Map(e *hbk.Entry) (*store.IndexDocument, error) {
	if strings.TrimSpace(e.Name) == "" {
		return nil, helperrors.New(helperrors.ErrCodeMappingInvalid, "entry has no name", nil).
			WithDetail("path", e.SourcePath)
	}
	if !knownKinds[e.Kind] {
		return nil, helperrors.New(helperrors.ErrCodeMappingInvalid,
			fmt.Sprintf("unknown entry kind %q", e.Kind), nil).
			WithDetail("path", e.SourcePath)
	}
	if memberKinds[e.Kind] && strings.TrimSpace(e.Owner) == "" {
		return nil, helperrors.New(helperrors.ErrCodeMappingInvalid,
			fmt.Sprintf("%s %q has no owner", e.Kind, e.Name), nil).
			WithDetail("path", e.SourcePath)
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return nil, helperrors.New(helperrors.ErrCodeMappingInvalid, "entry cannot be serialized", err)
	}

	aliases := make([]string, 0, len(e.Aliases))
	for _, a := range e.Aliases {
		if n := Normalize(a); n != "" {
			aliases = append(aliases, n)
		}
	}

	doc := &store.IndexDocument{
		ID:           DocumentID(e.Kind, e.Owner, e.Name),
		Name:         Normalize(e.Name),
		DisplayName:  e.Name,
		OwnerName:    Normalize(e.Owner),
		OwnerDisplay: e.Owner,
		Aliases:      aliases,
		Kind:         string(e.Kind),
		Body:         buildBody(e, aliases),
		Description:  e.Description,
		Example:      e.Example,
		Signature:    e.Signature,
		Payload:      string(payload),
	}
	if memberKinds[e.Kind] {
		doc.MemberType = string(e.Kind)
	}
	return doc, nil
}

// buildBody assembles the catch-all full-text field.
func buildBody(e *hbk.Entry, aliases []string) string {
	parts := make([]string, 0, 7)
	parts = append(parts, e.Name)
	parts = append(parts, aliases...)
	if e.Owner != "" {
		parts = append(parts, e.Owner)
	}
	if e.Signature != "" {
		parts = append(parts, e.Signature)
	}
	if e.Description != "" {
		parts = append(parts, e.Description)
	}
	if e.Example != "" {
		parts = append(parts, e.Example)
	}
	return strings.Join(parts, "\n")
}
