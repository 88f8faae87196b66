// Package indicators computes the technical indicators the strategy reads
// from a series of closing prices, oldest first.
package indicators

import (
	"errors"
	"math"
)

// ErrEmptySeries is returned when there are no prices to work with.
var ErrEmptySeries = errors.New("indicators: empty price series")

// Bands is a Bollinger Band reading.
type Bands struct {
	Lower   float64
	Average float64
	Upper   float64
}

// Bollinger computes bands over the whole series: the mean plus and minus k
// population standard deviations.
func Bollinger(closes []float64, k float64) (Bands, error) {
	n := len(closes)
	if n == 0 {
		return Bands{}, ErrEmptySeries
	}

	var sum float64
	for _, c := range closes {
		sum += c
	}
	mean := sum / float64(n)

	var sq float64
	for _, c := range closes {
		d := c - mean
		sq += d * d
	}
	sd := math.Sqrt(sq / float64(n))

	return Bands{
		Lower:   mean - k*sd,
		Average: mean,
		Upper:   mean + k*sd,
	}, nil
}

// RSI computes the relative strength index with a window equal to the
// series length. Gains and losses are smoothed with an exponential moving
// average (k = 2/(n+1)); the first observation contributes 0.1 to both so
// the ratio is defined from the start. The result lies in [0, 100].
func RSI(closes []float64) (float64, error) {
	n := len(closes)
	if n == 0 {
		return 0, ErrEmptySeries
	}
	k := 2 / float64(n+1)

	upEMA, downEMA := 0.1, 0.1
	prev := closes[0]
	for _, c := range closes[1:] {
		var up, down float64
		if c > prev {
			up = c - prev
		} else {
			down = prev - c
		}
		prev = c
		upEMA = k*up + (1-k)*upEMA
		downEMA = k*down + (1-k)*downEMA
	}

	return 100 * upEMA / (upEMA + downEMA), nil
}
