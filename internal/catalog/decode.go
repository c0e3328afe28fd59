package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ppiankov/tokendesk/internal/model"
)

// wirePack is the only accepted shape of a catalog entry. Unknown fields are
// ignored; known string fields must carry the right JSON type. active is
// kept raw: only the literal true marks a pack active.
type wirePack struct {
	DisplayName *string         `json:"display_name"`
	FormKey     *string         `json:"form_key"`
	FormVersion *string         `json:"form_version"`
	Active      json.RawMessage `json:"active"`
	Status      *string         `json:"status"`
}

// envelope is the object form of the catalog response.
type envelope struct {
	Packs json.RawMessage `json:"packs"`
	Data  json.RawMessage `json:"data"`
}

// Decode parses a catalog response: either a bare array of packs or an
// object with the array under "packs" (preferred) or "data". Any other
// shape is a KindFormat error carrying the raw payload.
func Decode(raw []byte) ([]model.Pack, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, formatError("empty catalog response", raw)
	}

	var list json.RawMessage
	switch trimmed[0] {
	case '[':
		list = trimmed
	case '{':
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return nil, formatError("catalog response is not JSON", raw)
		}
		switch {
		case isArray(env.Packs):
			list = env.Packs
		case isArray(env.Data):
			list = env.Data
		default:
			return nil, formatError("catalog object has no packs or data array", raw)
		}
	default:
		return nil, formatError("catalog response is not JSON", raw)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(list, &items); err != nil {
		return nil, formatError("catalog response is not JSON", raw)
	}

	packs := make([]model.Pack, 0, len(items))
	for i, item := range items {
		p, err := decodePack(item)
		if err != nil {
			return nil, formatError(fmt.Sprintf("catalog entry %d: %v", i, err), raw)
		}
		packs = append(packs, p)
	}
	return packs, nil
}

func decodePack(raw json.RawMessage) (model.Pack, error) {
	if t := bytes.TrimSpace(raw); len(t) == 0 || t[0] != '{' {
		return model.Pack{}, fmt.Errorf("not an object")
	}
	var w wirePack
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.Pack{}, err
	}

	var p model.Pack
	if w.DisplayName != nil {
		p.DisplayName = *w.DisplayName
	}
	if w.FormKey != nil {
		p.FormKey = *w.FormKey
	}
	if w.FormVersion != nil {
		p.FormVersion = *w.FormVersion
	}
	p.Active = bytes.Equal(bytes.TrimSpace(w.Active), []byte("true"))
	if w.Status != nil {
		p.Status = *w.Status
	}
	return p, nil
}

func isArray(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '['
}

func formatError(msg string, raw []byte) error {
	return &model.Error{
		Kind: model.KindFormat,
		Op:   "decode catalog",
		Msg:  msg,
		Body: string(raw),
	}
}

// FilterActive returns the packs whose IsActive holds, preserving order.
func FilterActive(packs []model.Pack) []model.Pack {
	active := make([]model.Pack, 0, len(packs))
	for _, p := range packs {
		if p.IsActive() {
			active = append(active, p)
		}
	}
	return active
}
