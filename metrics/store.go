package metrics

// histogram maps observed values to occurrence counts.
// Keys keep their first-insertion order so encoding is deterministic.
type histogram struct {
	keys   []Value
	counts map[Value]int
}

func newHistogram() *histogram {
	return &histogram{counts: make(map[Value]int)}
}

// add records one more occurrence of v.
func (h *histogram) add(v Value) {
	if _, ok := h.counts[v]; !ok {
		h.keys = append(h.keys, v)
	}
	h.counts[v]++
}

// count advances a running counter kept as a single bucket {max+inc: 1}.
func (h *histogram) count(inc Value) {
	var mx Value
	for i, k := range h.keys {
		if i == 0 || k > mx {
			mx = k
		}
	}
	next := mx + inc
	h.keys = append(h.keys[:0], next)
	clear(h.counts)
	h.counts[next] = 1
}

func (h *histogram) len() int {
	return len(h.keys)
}

func (h *histogram) copyTo(dst map[Value]int) {
	for _, k := range h.keys {
		dst[k] = h.counts[k]
	}
}

// series is one (metric name, dimension signature) histogram.
type series struct {
	signature string
	values    []string
	hist      *histogram
}

type metricSeries struct {
	name        string
	order       []*series
	bySignature map[string]*series
}

// store holds name -> signature -> histogram, iterated in first-use order.
type store struct {
	names   []string
	metrics map[string]*metricSeries
}

func newStore() *store {
	return &store{metrics: make(map[string]*metricSeries)}
}

func (s *store) empty() bool {
	return len(s.names) == 0
}

// getOrCreate returns the histogram for the given name and signature.
func (s *store) getOrCreate(name, sig string, values []string) *histogram {
	m, ok := s.metrics[name]
	if !ok {
		m = &metricSeries{name: name, bySignature: make(map[string]*series)}
		s.metrics[name] = m
		s.names = append(s.names, name)
	}
	ser, ok := m.bySignature[sig]
	if !ok {
		ser = &series{signature: sig, values: values, hist: newHistogram()}
		m.bySignature[sig] = ser
		m.order = append(m.order, ser)
	}
	return ser.hist
}

func (s *store) get(name, sig string) (*histogram, bool) {
	m, ok := s.metrics[name]
	if !ok {
		return nil, false
	}
	ser, ok := m.bySignature[sig]
	if !ok {
		return nil, false
	}
	return ser.hist, true
}

// Series is a point-in-time copy of one histogram, ready for encoding.
type Series struct {
	Name       string
	Dimensions []DimensionPair
	Values     []float64
	Counts     []float64
}

// DimensionPair is a single named dimension value of a datum.
type DimensionPair struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

// snapshot copies every series. Dimensions are only attached for metrics
// whose schema is non-empty.
func (s *store) snapshot(schemas *schemaRegistry) []Series {
	out := make([]Series, 0, len(s.names))
	for _, name := range s.names {
		m := s.metrics[name]
		schema := schemas.schema(name)
		for _, ser := range m.order {
			cp := Series{
				Name:   name,
				Values: make([]float64, 0, ser.hist.len()),
				Counts: make([]float64, 0, ser.hist.len()),
			}
			if len(schema) > 0 {
				cp.Dimensions = make([]DimensionPair, len(schema))
				for i, dimName := range schema {
					cp.Dimensions[i] = DimensionPair{Name: dimName, Value: ser.values[i]}
				}
			}
			for _, k := range ser.hist.keys {
				cp.Values = append(cp.Values, float64(k))
				cp.Counts = append(cp.Counts, float64(ser.hist.counts[k]))
			}
			out = append(out, cp)
		}
	}
	return out
}
