package optimization

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriterProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewWriterProgress(&buf)

	p.ReportBest(1234.5678, 42)
	p.ReportBest(0.001, 100)

	assert.Equal(t,
		"Best Cost found: 1234.57, Total progress: 42%\n"+
			"Best Cost found: 0.00, Total progress: 100%\n",
		buf.String())
}

func TestMultiProgress(t *testing.T) {
	var a, b []float64
	sink := MultiProgress(
		ProgressFunc(func(c float64, _ int) { a = append(a, c) }),
		nil,
		ProgressFunc(func(c float64, _ int) { b = append(b, c) }),
	)

	sink.ReportBest(3, 10)
	sink.ReportBest(2, 20)

	assert.Equal(t, []float64{3, 2}, a)
	assert.Equal(t, []float64{3, 2}, b)
}
