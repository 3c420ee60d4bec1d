package resampler

import (
	"github.com/cwbudde/algo-dsp/dsp/resample"
)

// polyphase adapts the rational polyphase FIR to the converter interface.
type polyphase struct {
	r       *resample.Resampler
	scratch []float64
}

func newPolyphase(srcRate, dstRate int) (*polyphase, error) {
	r, err := resample.NewForRates(float64(srcRate), float64(dstRate),
		resample.WithQuality(resample.QualityBest))
	if err != nil {
		return nil, err
	}
	return &polyphase{r: r}, nil
}

func (p *polyphase) process(in []float32) ([]float32, error) {
	if cap(p.scratch) < len(in) {
		p.scratch = make([]float64, len(in))
	}
	buf := p.scratch[:len(in)]
	for i, v := range in {
		buf[i] = float64(v)
	}
	return toFloat32(p.r.Process(buf)), nil
}

// flush pushes one filter length of silence so delayed samples come out.
func (p *polyphase) flush() ([]float32, error) {
	up, down := p.r.Ratio()
	n := p.r.TapsPerPhase()
	if up > 0 && down > up {
		n = n * down / up
	}
	return toFloat32(p.r.Process(make([]float64, n))), nil
}

func (p *polyphase) reset() error {
	p.r.Reset()
	return nil
}
