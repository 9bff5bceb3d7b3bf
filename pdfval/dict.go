package pdfval

// Dict is an ordered mapping Name -> Value. Unlike the teacher's
// `model.ObjDict` (a plain `map[Name]Object`), insertion order is preserved,
// as SPEC_FULL.md's data model requires ("dictionary keys are unique names,
// iteration order = insertion order"). It is backed by a slice of entries
// plus an index map so lookups stay O(1) while Keys()/iteration stay
// deterministic.
type Dict struct {
	entries []dictEntry
	index   map[Name]int
}

type dictEntry struct {
	key   Name
	value Value
}

func (Dict) isValue() {}

// NewDict returns an empty, ready-to-use dictionary.
func NewDict() Dict {
	return Dict{index: make(map[Name]int)}
}

// Len returns the number of entries.
func (d Dict) Len() int { return len(d.entries) }

// Get looks up key, reporting whether it is present. A dictionary entry
// whose value is the PDF null object is treated as absent per 7.3.7 of the
// ISO spec ("Specifying the null object as the value of a dictionary entry
// shall be equivalent to omitting the entry entirely"), matching the
// teacher's parser.parseDict behavior.
func (d Dict) Get(key Name) (Value, bool) {
	if d.index == nil {
		return nil, false
	}
	i, ok := d.index[key]
	if !ok {
		return nil, false
	}
	v := d.entries[i].value
	if _, isNull := v.(Null); isNull {
		return nil, false
	}
	return v, true
}

// Set inserts or overwrites key, preserving its original position on
// overwrite and appending on first insertion.
func (d *Dict) Set(key Name, value Value) {
	if d.index == nil {
		d.index = make(map[Name]int)
	}
	if i, ok := d.index[key]; ok {
		d.entries[i].value = value
		return
	}
	d.index[key] = len(d.entries)
	d.entries = append(d.entries, dictEntry{key: key, value: value})
}

// Delete removes key if present, shifting later entries down to keep the
// index map consistent.
func (d *Dict) Delete(key Name) {
	i, ok := d.index[key]
	if !ok {
		return
	}
	d.entries = append(d.entries[:i], d.entries[i+1:]...)
	delete(d.index, key)
	for k, idx := range d.index {
		if idx > i {
			d.index[k] = idx - 1
		}
	}
}

// Keys returns the keys in insertion order.
func (d Dict) Keys() []Name {
	out := make([]Name, len(d.entries))
	for i, e := range d.entries {
		out[i] = e.key
	}
	return out
}

// Range calls f for every entry in insertion order, stopping early if f
// returns false.
func (d Dict) Range(f func(key Name, value Value) bool) {
	for _, e := range d.entries {
		if !f(e.key, e.value) {
			return
		}
	}
}

// Clone returns a deep copy, recursively cloning nested Arrays/Dicts.
func (d Dict) Clone() Dict {
	out := NewDict()
	for _, e := range d.entries {
		out.Set(e.key, cloneValue(e.value))
	}
	return out
}

func cloneValue(v Value) Value {
	switch t := v.(type) {
	case Dict:
		return t.Clone()
	case Array:
		out := make(Array, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case String:
		b := make([]byte, len(t.Bytes))
		copy(b, t.Bytes)
		return String{Bytes: b, Kind: t.Kind}
	case Raw:
		b := make(Raw, len(t))
		copy(b, t)
		return b
	default:
		return v // Null, Bool, Int, Real, Name, Ref are already value types
	}
}
