package permitloader

import "strings"

// Rename renames column From to To.
type Rename struct {
	From string
	To   string
}

// RenameMap is an ordered list of renames applied by Normalize.
type RenameMap []Rename

// Normalize returns a batch whose columns are renamed by m. Rows are shared
// with b. A rename whose source is absent but whose target already exists is
// skipped, so normalizing a normalized batch changes nothing.
func (m RenameMap) Normalize(b *Batch) (*Batch, error) {
	cols := make([]string, len(b.Columns))
	copy(cols, b.Columns)

	index := make(map[string]int, len(cols))
	for i, c := range cols {
		index[c] = i
	}

	var missing, dup []string
	for _, r := range m {
		i, ok := index[r.From]
		if !ok {
			if _, done := index[r.To]; !done {
				missing = append(missing, r.From)
			}
			continue
		}
		if r.From == r.To {
			continue
		}
		if _, exists := index[r.To]; exists {
			dup = append(dup, r.To)
			continue
		}

		cols[i] = r.To
		delete(index, r.From)
		index[r.To] = i
	}

	if len(missing) > 0 || len(dup) > 0 {
		return nil, &NormalizationError{Missing: missing, Duplicate: dup}
	}

	return &Batch{Columns: cols, Rows: b.Rows}, nil
}

const objectDataPrefix = "object_data."

// PermitRenames maps the flattened archive columns onto PermitContract.
func PermitRenames() RenameMap {
	m := RenameMap{}
	for _, f := range PermitContract().Fields {
		if strings.HasPrefix(f.Name, "event_") || strings.HasPrefix(f.Name, "object_") {
			continue
		}
		m = append(m, Rename{From: objectDataPrefix + f.Name, To: f.Name})
	}
	return m
}
