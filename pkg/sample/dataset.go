package sample

// Dataset is an XY dataset: Xs[i] pairs with Ys[i], in arrival order.
type Dataset struct {
	Xs []float64
	Ys []float64

	// Skipped counts lines dropped as malformed while building the dataset.
	Skipped int
}

// NewDataset creates an empty dataset with room for capacity points.
func NewDataset(capacity int) *Dataset {
	if capacity < 0 {
		capacity = 0
	}
	return &Dataset{
		Xs: make([]float64, 0, capacity),
		Ys: make([]float64, 0, capacity),
	}
}

// Append adds one point.
func (d *Dataset) Append(x, y float64) {
	d.Xs = append(d.Xs, x)
	d.Ys = append(d.Ys, y)
}

// Len returns the number of points.
func (d *Dataset) Len() int {
	return len(d.Xs)
}
