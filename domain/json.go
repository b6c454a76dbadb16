package domain

import (
	"encoding/json"
	"fmt"
)

// IRIList normalizes ActivityStreams reference properties. On the wire a
// reference can be a bare IRI string, an object carrying an "id", or an
// array mixing both; internally it is always a flat list of IRIs.
type IRIList []string

func (l *IRIList) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	list, err := flattenIRIs(raw)
	if err != nil {
		return err
	}
	*l = list
	return nil
}

// MarshalJSON collapses a singleton back to a bare string, the common
// ActivityStreams serialization.
func (l IRIList) MarshalJSON() ([]byte, error) {
	if len(l) == 1 {
		return json.Marshal(l[0])
	}
	return json.Marshal([]string(l))
}

func flattenIRIs(raw any) (IRIList, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return IRIList{v}, nil
	case map[string]any:
		if id, ok := v["id"].(string); ok {
			return IRIList{id}, nil
		}
		return nil, fmt.Errorf("reference object without id")
	case []any:
		var out IRIList
		for _, item := range v {
			flat, err := flattenIRIs(item)
			if err != nil {
				return nil, err
			}
			out = append(out, flat...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported reference value %T", raw)
	}
}

// EntityList normalizes object-valued properties: a bare IRI string becomes
// an Entity holding only its ID, single objects become one-element lists.
type EntityList []*Entity

func (l *EntityList) UnmarshalJSON(data []byte) error {
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	list, err := flattenEntities(raw)
	if err != nil {
		return err
	}
	*l = list
	return nil
}

func (l EntityList) MarshalJSON() ([]byte, error) {
	if len(l) == 1 {
		return marshalEntityItem(l[0])
	}
	items := make([]json.RawMessage, 0, len(l))
	for _, e := range l {
		item, err := marshalEntityItem(e)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return json.Marshal(items)
}

// marshalEntityItem emits a bare IRI when the entity is only a reference.
func marshalEntityItem(e *Entity) ([]byte, error) {
	if e != nil && e.ID != "" && e.Type == "" {
		return json.Marshal(e.ID)
	}
	type plain Entity // avoid recursing into EntityList marshaling
	return json.Marshal((*plain)(e))
}

func flattenEntities(raw json.RawMessage) (EntityList, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	switch raw[0] {
	case '"':
		var iri string
		if err := json.Unmarshal(raw, &iri); err != nil {
			return nil, err
		}
		return EntityList{{ID: iri}}, nil
	case '{':
		var e Entity
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, err
		}
		return EntityList{&e}, nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		var out EntityList
		for _, item := range items {
			flat, err := flattenEntities(item)
			if err != nil {
				return nil, err
			}
			out = append(out, flat...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported object value: %s", string(raw))
	}
}
