package livediff

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Wire format. A full render serializes every static and dynamic:
//
//	{"s": ["<p>", "</p>"], "0": "hello"}
//
// A diff serializes only the changed slots, using the sparse map directly as
// the wire shape; the omitted "s" key is what signals "diff, not full":
//
//	{"0": "world", "2": {...}}
//
// A comprehension carries its shared static template once and the dynamic
// rows as an ordered list, so static text is never duplicated per iteration:
//
//	{"s": [...], "d": [[row0...], [row1...]]}
//
// A comprehension delta uses the same register with short keys: "e" for
// per-entry sparse changes, "a" for appended full rows, "t" for truncation.

// Update is the envelope the live layer sends: either a full tree (first
// render for a connection) or a change set (every render after that). The
// two encode distinguishably, so a single payload type travels the wire.
type Update struct {
	Full    *Tree
	Changes ChangeSet
}

// IsEmpty reports whether the update carries nothing worth sending.
func (u *Update) IsEmpty() bool {
	return u.Full == nil && len(u.Changes) == 0
}

// MarshalJSON encodes the full tree when present, the change set otherwise.
func (u *Update) MarshalJSON() ([]byte, error) {
	if u.Full != nil {
		return json.Marshal(u.Full)
	}
	return json.Marshal(u.Changes)
}

// UnmarshalJSON decodes either shape, keyed on the presence of "s".
func (u *Update) UnmarshalJSON(data []byte) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("livediff: decode update: %w", err)
	}
	if _, full := probe["s"]; full {
		t := new(Tree)
		if err := t.UnmarshalJSON(data); err != nil {
			return err
		}
		u.Full = t
		u.Changes = nil
		return nil
	}
	cs := make(ChangeSet)
	if err := cs.UnmarshalJSON(data); err != nil {
		return err
	}
	u.Full = nil
	u.Changes = cs
	return nil
}

// MarshalJSON encodes the tree as statics plus top-level numeric slot keys.
func (t *Tree) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(t.dynamics)+1)
	out["s"] = t.statics
	for i, d := range t.dynamics {
		out[strconv.Itoa(i)] = encodeDynamic(d)
	}
	return json.Marshal(out)
}

// MarshalJSON encodes only the present slots, indices as keys.
func (cs ChangeSet) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(cs))
	for i, ch := range cs {
		out[strconv.Itoa(i)] = encodeChange(ch)
	}
	return json.Marshal(out)
}

func encodeDynamic(d Dynamic) any {
	switch v := d.(type) {
	case Scalar:
		return string(v)
	case *Tree:
		out := make(map[string]any, len(v.dynamics)+1)
		out["s"] = v.statics
		for i, d := range v.dynamics {
			out[strconv.Itoa(i)] = encodeDynamic(d)
		}
		return out
	case *Comprehension:
		rows := make([][]any, len(v.entries))
		for i, row := range v.entries {
			rows[i] = make([]any, len(row))
			for j, d := range row {
				rows[i][j] = encodeDynamic(d)
			}
		}
		return map[string]any{"s": v.statics, "d": rows}
	}
	return nil
}

func encodeChange(ch Change) any {
	switch c := ch.(type) {
	case Scalar:
		return string(c)
	case Replace:
		// A full value: a nested tree keeps its "s" key, which is exactly
		// what distinguishes it from a nested change set on the wire.
		return encodeDynamic(c.Value)
	case ChangeSet:
		out := make(map[string]any, len(c))
		for i, sub := range c {
			out[strconv.Itoa(i)] = encodeChange(sub)
		}
		return out
	case *CompChange:
		out := make(map[string]any, 3)
		if len(c.Rows) > 0 {
			rows := make(map[string]any, len(c.Rows))
			for j, row := range c.Rows {
				enc := make(map[string]any, len(row))
				for k, ch := range row {
					enc[strconv.Itoa(k)] = encodeChange(ch)
				}
				rows[strconv.Itoa(j)] = enc
			}
			out["e"] = rows
		}
		if len(c.Appended) > 0 {
			rows := make([][]any, len(c.Appended))
			for i, row := range c.Appended {
				rows[i] = make([]any, len(row))
				for j, d := range row {
					rows[i][j] = encodeDynamic(d)
				}
			}
			out["a"] = rows
		}
		if c.Truncate >= 0 {
			out["t"] = c.Truncate
		}
		return out
	}
	return nil
}

// UnmarshalJSON decodes a full tree payload. The "s" key and a dense run of
// numeric slot keys are required; anything else is a malformed payload.
func (t *Tree) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("livediff: decode tree: %w", err)
	}
	sRaw, ok := raw["s"]
	if !ok {
		return fmt.Errorf("livediff: full tree payload missing statics")
	}
	var statics []string
	if err := json.Unmarshal(sRaw, &statics); err != nil {
		return fmt.Errorf("livediff: decode statics: %w", err)
	}
	if len(statics) == 0 {
		return fmt.Errorf("%w: payload has no static fragments", ErrArityMismatch)
	}
	dynamics := make([]Dynamic, len(statics)-1)
	for i := range dynamics {
		slot, ok := raw[strconv.Itoa(i)]
		if !ok {
			return fmt.Errorf("livediff: full tree payload missing slot %d", i)
		}
		d, err := decodeDynamic(slot)
		if err != nil {
			return fmt.Errorf("slot %d: %w", i, err)
		}
		dynamics[i] = d
	}
	decoded, err := NewTree(statics, dynamics...)
	if err != nil {
		return err
	}
	*t = *decoded
	return nil
}

// UnmarshalJSON decodes a sparse diff payload.
func (cs *ChangeSet) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("livediff: decode change set: %w", err)
	}
	out := make(ChangeSet, len(raw))
	for key, slot := range raw {
		i, err := strconv.Atoi(key)
		if err != nil {
			return fmt.Errorf("livediff: non-numeric slot key %q in diff payload", key)
		}
		ch, err := decodeChange(slot)
		if err != nil {
			return fmt.Errorf("slot %d: %w", i, err)
		}
		out[i] = ch
	}
	*cs = out
	return nil
}

func decodeDynamic(data json.RawMessage) (Dynamic, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("livediff: empty dynamic value")
	}
	if data[0] != '{' {
		return decodeScalar(data)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("livediff: decode dynamic: %w", err)
	}
	sRaw, hasStatics := raw["s"]
	if !hasStatics {
		return nil, fmt.Errorf("livediff: dynamic value missing statics")
	}
	var statics []string
	if err := json.Unmarshal(sRaw, &statics); err != nil {
		return nil, fmt.Errorf("livediff: decode statics: %w", err)
	}
	if dRaw, isComp := raw["d"]; isComp {
		return decodeComprehension(statics, dRaw)
	}
	var t Tree
	if err := t.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return &t, nil
}

func decodeComprehension(statics []string, dRaw json.RawMessage) (*Comprehension, error) {
	var rawRows [][]json.RawMessage
	if err := json.Unmarshal(dRaw, &rawRows); err != nil {
		return nil, fmt.Errorf("livediff: decode comprehension rows: %w", err)
	}
	entries := make([][]Dynamic, len(rawRows))
	for i, rawRow := range rawRows {
		row := make([]Dynamic, len(rawRow))
		for j, slot := range rawRow {
			d, err := decodeDynamic(slot)
			if err != nil {
				return nil, fmt.Errorf("entry %d slot %d: %w", i, j, err)
			}
			row[j] = d
		}
		entries[i] = row
	}
	return NewComprehension(statics, entries...)
}

func decodeChange(data json.RawMessage) (Change, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("livediff: empty change value")
	}
	if data[0] != '{' {
		return decodeScalar(data)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("livediff: decode change: %w", err)
	}
	// A full value keeps its "s" key; a comprehension delta uses e/a/t; an
	// object of numeric keys is a nested change set.
	if _, hasStatics := raw["s"]; hasStatics {
		d, err := decodeDynamic(data)
		if err != nil {
			return nil, err
		}
		return Replace{Value: d}, nil
	}
	_, hasRows := raw["e"]
	_, hasAppend := raw["a"]
	_, hasTrunc := raw["t"]
	if hasRows || hasAppend || hasTrunc {
		return decodeCompChange(raw)
	}
	sub := make(ChangeSet, len(raw))
	for key, slot := range raw {
		i, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("livediff: non-numeric slot key %q in nested diff", key)
		}
		ch, err := decodeChange(slot)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}
		sub[i] = ch
	}
	return sub, nil
}

func decodeCompChange(raw map[string]json.RawMessage) (*CompChange, error) {
	cc := &CompChange{Truncate: -1}
	if eRaw, ok := raw["e"]; ok {
		var rows map[string]map[string]json.RawMessage
		if err := json.Unmarshal(eRaw, &rows); err != nil {
			return nil, fmt.Errorf("livediff: decode entry changes: %w", err)
		}
		cc.Rows = make(map[int]RowChange, len(rows))
		for jKey, rawRow := range rows {
			j, err := strconv.Atoi(jKey)
			if err != nil {
				return nil, fmt.Errorf("livediff: non-numeric entry key %q", jKey)
			}
			row := make(RowChange, len(rawRow))
			for kKey, slot := range rawRow {
				k, err := strconv.Atoi(kKey)
				if err != nil {
					return nil, fmt.Errorf("livediff: non-numeric slot key %q in entry %d", kKey, j)
				}
				ch, err := decodeChange(slot)
				if err != nil {
					return nil, fmt.Errorf("entry %d slot %d: %w", j, k, err)
				}
				row[k] = ch
			}
			cc.Rows[j] = row
		}
	}
	if aRaw, ok := raw["a"]; ok {
		var rawRows [][]json.RawMessage
		if err := json.Unmarshal(aRaw, &rawRows); err != nil {
			return nil, fmt.Errorf("livediff: decode appended rows: %w", err)
		}
		cc.Appended = make([][]Dynamic, len(rawRows))
		for i, rawRow := range rawRows {
			row := make([]Dynamic, len(rawRow))
			for j, slot := range rawRow {
				d, err := decodeDynamic(slot)
				if err != nil {
					return nil, fmt.Errorf("appended row %d slot %d: %w", i, j, err)
				}
				row[j] = d
			}
			cc.Appended[i] = row
		}
	}
	if tRaw, ok := raw["t"]; ok {
		if err := json.Unmarshal(tRaw, &cc.Truncate); err != nil {
			return nil, fmt.Errorf("livediff: decode truncation: %w", err)
		}
		if cc.Truncate < 0 {
			return nil, fmt.Errorf("livediff: negative truncation %d", cc.Truncate)
		}
	}
	return cc, nil
}

// decodeScalar accepts a JSON string, or any other primitive, as scalar
// text. Servers only emit strings; numbers and booleans can appear in
// hand-written payloads. null is not a value a slot can hold.
func decodeScalar(data json.RawMessage) (Scalar, error) {
	if string(data) == "null" {
		return "", fmt.Errorf("livediff: null in dynamic slot")
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", fmt.Errorf("livediff: decode scalar: %w", err)
		}
		return Scalar(s), nil
	}
	if data[0] == '[' {
		return "", fmt.Errorf("livediff: unexpected array in dynamic slot")
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		return Scalar(n.String()), nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		return Scalar(strconv.FormatBool(b)), nil
	}
	return "", fmt.Errorf("livediff: unsupported scalar payload %q", string(data))
}
