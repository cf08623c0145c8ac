// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"fmt"
)

// Item is an Aquarium node as returned by queries and carried in live events.
type Item struct {
	Key  string   `json:"_key,omitempty" yaml:"_key,omitempty"`
	Type string   `json:"type,omitempty" yaml:"type,omitempty"`
	Data ItemData `json:"data" yaml:"data"`
}

// ItemData is the typed part of an item's data. Fields not listed here are
// kept in Extra and written back unchanged.
type ItemData struct {
	Name         string         `yaml:"name,omitempty"`
	Status       string         `yaml:"status,omitempty"`
	Tags         []string       `yaml:"tags,omitempty"`
	Description  string         `yaml:"description,omitempty"`
	Email        string         `yaml:"email,omitempty"`
	Code         string         `yaml:"code,omitempty"`
	TemplateData map[string]any `yaml:"templateData,omitempty"`
	Extra        map[string]any `yaml:",inline"`
}

// MarshalJSON flattens Extra next to the known fields.
func (d ItemData) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Extra)+7)
	for k, v := range d.Extra {
		out[k] = v
	}
	putString(out, "name", d.Name)
	putString(out, "status", d.Status)
	putString(out, "description", d.Description)
	putString(out, "email", d.Email)
	putString(out, "code", d.Code)
	if d.Tags != nil {
		out["tags"] = d.Tags
	}
	if d.TemplateData != nil {
		out["templateData"] = d.TemplateData
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the known fields and moves everything else to Extra.
func (d *ItemData) UnmarshalJSON(raw []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("item data: %w", err)
	}
	*d = ItemData{}
	for key, value := range fields {
		var err error
		switch key {
		case "name":
			err = json.Unmarshal(value, &d.Name)
		case "status":
			err = json.Unmarshal(value, &d.Status)
		case "tags":
			err = json.Unmarshal(value, &d.Tags)
		case "description":
			err = json.Unmarshal(value, &d.Description)
		case "email":
			err = json.Unmarshal(value, &d.Email)
		case "code":
			err = json.Unmarshal(value, &d.Code)
		case "templateData":
			err = json.Unmarshal(value, &d.TemplateData)
		default:
			var v any
			err = json.Unmarshal(value, &v)
			if d.Extra == nil {
				d.Extra = make(map[string]any)
			}
			d.Extra[key] = v
		}
		if err != nil {
			return fmt.Errorf("item data field %q: %w", key, err)
		}
	}
	return nil
}

func putString(m map[string]any, key, val string) {
	if val != "" {
		m[key] = val
	}
}
