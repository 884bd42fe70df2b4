package metrics

import "time"

const (
	// DefaultMaxDatumsPerBatch is the backend limit of datums per request.
	DefaultMaxDatumsPerBatch = 25
	// DefaultMaxValuesPerDatum is the backend limit of value/count pairs per datum.
	DefaultMaxValuesPerDatum = 100
)

// EncoderCfg bounds the size of the requests produced by Encode.
type EncoderCfg struct {
	MaxDatumsPerBatch int `mapstructure:"maxDatumsPerBatch"`
	MaxValuesPerDatum int `mapstructure:"maxValuesPerDatum"`
}

func (c *EncoderCfg) normalize() EncoderCfg {
	out := EncoderCfg{
		MaxDatumsPerBatch: DefaultMaxDatumsPerBatch,
		MaxValuesPerDatum: DefaultMaxValuesPerDatum,
	}
	if c == nil {
		return out
	}
	if c.MaxDatumsPerBatch > 0 {
		out.MaxDatumsPerBatch = c.MaxDatumsPerBatch
	}
	if c.MaxValuesPerDatum > 0 {
		out.MaxValuesPerDatum = c.MaxValuesPerDatum
	}
	return out
}

// Datum is one backend metric datum. Values[i] was observed Counts[i] times.
type Datum struct {
	MetricName string          `json:"MetricName"`
	Unit       Unit            `json:"Unit"`
	Timestamp  time.Time       `json:"Timestamp"`
	Values     []float64       `json:"Values"`
	Counts     []float64       `json:"Counts"`
	Dimensions []DimensionPair `json:"Dimensions,omitempty"`
}

// Batch is one backend request.
type Batch struct {
	Namespace string  `json:"Namespace"`
	Data      []Datum `json:"MetricData"`
}

// ValueCount returns the number of value/count pairs in the batch.
func (b *Batch) ValueCount() int {
	n := 0
	for i := range b.Data {
		n += len(b.Data[i].Values)
	}
	return n
}

// Encode packs series into batches. A series with more values than the
// per-datum limit is split into several datums carrying the same name, unit,
// timestamp and dimensions. Every datum of one call shares ts.
func Encode(namespace string, ts time.Time, series []Series, unitOf func(string) Unit, cfg *EncoderCfg) []Batch {
	limits := cfg.normalize()
	if unitOf == nil {
		unitOf = unitBySuffix
	}

	var batches []Batch
	for _, s := range series {
		unit := unitOf(s.Name)
		for start := 0; start < len(s.Values); start += limits.MaxValuesPerDatum {
			end := min(start+limits.MaxValuesPerDatum, len(s.Values))
			if len(batches) == 0 || len(batches[len(batches)-1].Data) >= limits.MaxDatumsPerBatch {
				batches = append(batches, Batch{
					Namespace: namespace,
					Data:      make([]Datum, 0, limits.MaxDatumsPerBatch),
				})
			}
			cur := &batches[len(batches)-1]
			cur.Data = append(cur.Data, Datum{
				MetricName: s.Name,
				Unit:       unit,
				Timestamp:  ts,
				Values:     append([]float64(nil), s.Values[start:end]...),
				Counts:     append([]float64(nil), s.Counts[start:end]...),
				Dimensions: s.Dimensions,
			})
		}
	}
	return batches
}
