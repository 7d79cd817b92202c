package sampling

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"qaoa/internal/model"
	"qaoa/internal/storage"
)

// batchWriter buffers finished samples and writes them out every size
// rows, to CSV and to the store.
type batchWriter struct {
	runID      string
	quantities []Quantity
	size       int
	csv        *csv.Writer
	store      storage.Store
	buffer     []model.Sample
	written    int
	onFlush    func(written int)
}

func newBatchWriter(runID string, out io.Writer, store storage.Store, quantities []Quantity, stages, size int) (*batchWriter, error) {
	w := &batchWriter{
		runID:      runID,
		quantities: quantities,
		size:       size,
		store:      store,
		buffer:     make([]model.Sample, 0, size),
	}
	if out != nil {
		w.csv = csv.NewWriter(out)
		if err := w.csv.Write(Header(quantities, stages)); err != nil {
			return nil, err
		}
	}
	return w, nil
}

func (w *batchWriter) add(ctx context.Context, s model.Sample) error {
	w.buffer = append(w.buffer, s)
	if len(w.buffer) >= w.size {
		return w.flush(ctx)
	}
	return nil
}

func (w *batchWriter) flush(ctx context.Context) error {
	if len(w.buffer) == 0 {
		return nil
	}
	if w.csv != nil {
		for _, s := range w.buffer {
			if err := w.csv.Write(w.row(s)); err != nil {
				return err
			}
		}
		w.csv.Flush()
		if err := w.csv.Error(); err != nil {
			return err
		}
	}
	if w.store != nil {
		if err := w.store.SaveSamples(ctx, w.runID, w.buffer); err != nil {
			return err
		}
	}
	w.written += len(w.buffer)
	w.buffer = w.buffer[:0]
	if w.onFlush != nil {
		w.onFlush(w.written)
	}
	return nil
}

func (w *batchWriter) row(s model.Sample) []string {
	row := []string{strconv.Itoa(s.Index)}
	for _, q := range w.quantities {
		switch q {
		case QuantityTheta:
			row = appendFloats(row, s.Theta)
		case QuantityValue:
			row = append(row, formatFloat(*s.Value))
		case QuantityApproximationRatio:
			row = append(row, formatFloat(*s.ApproximationRatio))
		case QuantityGradient:
			row = appendFloats(row, s.Gradient)
		case QuantityGradientNorm:
			row = append(row, formatFloat(*s.GradientNorm))
		case QuantityHessianEigenvalues:
			row = appendFloats(row, s.HessianEigenvalues)
		}
	}
	return row
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func appendFloats(row []string, v []float64) []string {
	for _, x := range v {
		row = append(row, formatFloat(x))
	}
	return row
}
