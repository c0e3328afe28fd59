package model

import "strings"

// UntitledPack is the display name recorded when a locked pack carries none.
const UntitledPack = "Untitled pack"

// Pack is a remotely-sourced configuration descriptor. Packs are value
// objects: the workflow references them by cache index and never mutates one.
type Pack struct {
	DisplayName string `json:"display_name"`
	FormKey     string `json:"form_key"`
	FormVersion string `json:"form_version"`
	Active      bool   `json:"active"`
	Status      string `json:"status,omitempty"`
}

// IsActive reports whether the pack may be offered for selection:
// active is true, or status is "active" in any letter case.
func (p Pack) IsActive() bool {
	if p.Active {
		return true
	}
	return strings.EqualFold(p.Status, "active")
}

// Label is the human-readable name shown to the operator.
func (p Pack) Label() string {
	if name := strings.TrimSpace(p.DisplayName); name != "" {
		return name
	}
	return p.FormKey + ":" + p.FormVersion
}

// Snapshot copies the pack identity into a LockedPack.
func (p Pack) Snapshot() LockedPack {
	name := strings.TrimSpace(p.DisplayName)
	if name == "" {
		name = UntitledPack
	}
	return LockedPack{
		DisplayName: name,
		FormKey:     p.FormKey,
		FormVersion: p.FormVersion,
	}
}

// LockedPack is the identity committed to by a lock. Its existence is the
// only authorization for requesting a credential.
type LockedPack struct {
	DisplayName string `json:"display_name"`
	FormKey     string `json:"form_key"`
	FormVersion string `json:"form_version"`
}

// Validate rejects a snapshot without an addressable identity.
func (l LockedPack) Validate() error {
	if l.FormKey == "" || l.FormVersion == "" {
		return Errorf(KindValidation, "lock", "pack is missing form_key or form_version")
	}
	return nil
}

// HistoryItem records one successful issuance. Items are identified by
// position (most recent first) and are never mutated after creation.
type HistoryItem struct {
	Token       string `json:"token"`
	IssuedAt    string `json:"issued_at"`
	DisplayName string `json:"display_name"`
	FormKey     string `json:"form_key"`
	FormVersion string `json:"form_version"`
}

// IssuedAtLayout is the wall-clock layout used for HistoryItem.IssuedAt.
const IssuedAtLayout = "2006-01-02 15:04:05"
