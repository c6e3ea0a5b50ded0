package permitloader

// Batch is tabular data extracted from one archive.
// Every row has exactly len(Columns) cells.
type Batch struct {
	Columns []string
	Rows    [][]string
}

// Len returns the number of rows.
func (b *Batch) Len() int {
	return len(b.Rows)
}

// ColumnIndex returns the position of the named column or -1.
func (b *Batch) ColumnIndex(name string) int {
	for i, c := range b.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Sample returns a new batch holding the first n rows.
func (b *Batch) Sample(n int) *Batch {
	if n < 0 || n > len(b.Rows) {
		n = len(b.Rows)
	}

	cols := make([]string, len(b.Columns))
	copy(cols, b.Columns)

	rows := make([][]string, n)
	copy(rows, b.Rows[:n])

	return &Batch{Columns: cols, Rows: rows}
}

// Chunks partitions rows into consecutive slices of at most size rows.
// It returns nil for an empty batch or a non-positive size.
func (b *Batch) Chunks(size int) [][][]string {
	if size <= 0 || len(b.Rows) == 0 {
		return nil
	}

	chunks := make([][][]string, 0, (len(b.Rows)+size-1)/size)
	for start := 0; start < len(b.Rows); start += size {
		end := start + size
		if end > len(b.Rows) {
			end = len(b.Rows)
		}
		chunks = append(chunks, b.Rows[start:end:end])
	}

	return chunks
}

// appendBatch merges other into b. Columns unknown to b are appended and
// cells missing from either side are filled with empty strings.
func (b *Batch) appendBatch(other *Batch) {
	idx := make([]int, len(other.Columns))
	for i, c := range other.Columns {
		j := b.ColumnIndex(c)
		if j < 0 {
			b.Columns = append(b.Columns, c)
			j = len(b.Columns) - 1
			for k := range b.Rows {
				b.Rows[k] = append(b.Rows[k], "")
			}
		}
		idx[i] = j
	}

	for _, r := range other.Rows {
		row := make([]string, len(b.Columns))
		for i, v := range r {
			if i < len(idx) {
				row[idx[i]] = v
			}
		}
		b.Rows = append(b.Rows, row)
	}
}
