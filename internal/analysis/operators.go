package analysis

// Calibration applies a per-element linear transform, offset+scale*x,
// propagating invalid inputs unchanged.
func Calibration(offset, scale []float64) OperatorFunc {
	return func(inputs []*Pipe, output *Pipe) {
		in := inputs[0]
		for i := range output.Values {
			if i >= len(in.Values) || !in.Values[i].Valid {
				output.Values[i] = Value{}
				continue
			}
			o, s := 0.0, 1.0
			if i < len(offset) {
				o = offset[i]
			}
			if i < len(scale) {
				s = scale[i]
			}
			output.Values[i] = Value{V: o + s*in.Values[i].V, Valid: true}
		}
	}
}

// Difference computes inputs[0]-inputs[1] element-wise; invalid if
// either side is invalid.
func Difference() OperatorFunc {
	return func(inputs []*Pipe, output *Pipe) {
		a, b := inputs[0], inputs[1]
		for i := range output.Values {
			if i >= len(a.Values) || i >= len(b.Values) || !a.Values[i].Valid || !b.Values[i].Valid {
				output.Values[i] = Value{}
				continue
			}
			output.Values[i] = Value{V: a.Values[i].V - b.Values[i].V, Valid: true}
		}
	}
}

// Sum reduces one input pipe to a single valid-element sum; invalid if
// every element is invalid.
func Sum() OperatorFunc {
	return func(inputs []*Pipe, output *Pipe) {
		in := inputs[0]
		var total float64
		var any bool
		for _, v := range in.Values {
			if v.Valid {
				total += v.V
				any = true
			}
		}
		output.Values[0] = Value{V: total, Valid: any}
	}
}
