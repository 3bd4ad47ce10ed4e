package grid

// Mask is a boolean grid, typically the selection of candidate sites.
type Mask struct {
	rows, cols int
	data       []bool
}

// NewMask returns an all-false mask.
func NewMask(rows, cols int) *Mask {
	if rows < 0 || cols < 0 {
		rows, cols = 0, 0
	}
	return &Mask{rows: rows, cols: cols, data: make([]bool, rows*cols)}
}

func (m *Mask) Rows() int    { return m.rows }
func (m *Mask) Cols() int    { return m.cols }
func (m *Mask) Len() int     { return len(m.data) }
func (m *Mask) Shape() Shape { return Shape{Rows: m.rows, Cols: m.cols} }

func (m *Mask) At(r, c int) bool { return m.data[r*m.cols+c] }

func (m *Mask) Set(r, c int, v bool) { m.data[r*m.cols+c] = v }

// Index returns the i-th cell in row-major order.
func (m *Mask) Index(i int) bool { return m.data[i] }

// Count returns the number of true cells.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.data {
		if v {
			n++
		}
	}
	return n
}

// Bools returns a copy of the mask in row-major order.
func (m *Mask) Bools() []bool {
	out := make([]bool, len(m.data))
	copy(out, m.data)
	return out
}

// RowSlices returns a copy of the mask as a slice of rows.
func (m *Mask) RowSlices() [][]bool {
	out := make([][]bool, m.rows)
	for r := 0; r < m.rows; r++ {
		row := make([]bool, m.cols)
		copy(row, m.data[r*m.cols:(r+1)*m.cols])
		out[r] = row
	}
	return out
}

// Grid converts the mask into a 0/1 grid for storage.
func (m *Mask) Grid() *Grid {
	g := New(m.rows, m.cols)
	for i, v := range m.data {
		if v {
			g.data[i] = 1
		}
	}
	return g
}
