// Copyright ©2013 The bíogo Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package norm provides library-size normalisation for count data.
//
// Factor functions take a slice of per-sample count vectors of equal length
// (one vector per library) and return one factor per library. Factors are
// scaled so that their geometric mean is 1; the effective library size of a
// sample is its total count multiplied by its factor.
package norm

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var ErrMismatchedLengths = errors.New("norm: mismatched data vector lengths")

// ones returns a slice of float64 n long, and populated with unit values.
func ones(n int) []float64 {
	f := make([]float64, n)
	for i := range f {
		f[i] = 1
	}
	return f
}

// LibSizes returns the column sums of the per-sample vectors.
func LibSizes(data [][]float64) ([]float64, error) {
	if len(data) == 0 {
		return nil, nil
	}

	rows := len(data[0])
	size := make([]float64, len(data))
	for i, col := range data {
		if len(col) != rows {
			return nil, ErrMismatchedLengths
		}
		for _, v := range col {
			size[i] += v
		}
	}

	return size, nil
}

// expMeanLogScaled returns f scaled by the exp mean of its logged values.
func expMeanLogScaled(f []float64) []float64 {
	var meanLog float64
	for _, v := range f {
		meanLog += math.Log(v)
	}
	expMeanLog := math.Exp(meanLog / float64(len(f)))

	for i, v := range f {
		f[i] = v / expMeanLog
	}

	return f
}

// quantileR7 returns the pth quantile of v according the R-7 method. v is
// sorted in place.
// http://en.wikipedia.org/wiki/Quantile#Estimating_the_quantiles_of_a_population
func quantileR7(v []float64, p float64) float64 {
	sort.Float64s(v)
	if p == 1 {
		return v[len(v)-1]
	}
	h := float64(len(v)-1) * p
	i := int(h)
	return v[i] + (h-math.Floor(h))*(v[i+1]-v[i])
}

// upperQuartiles returns the 75th percentile of each library after scaling by
// its size.
func upperQuartiles(data [][]float64, size []float64) []float64 {
	y := make([]float64, 0, len(data[0]))
	q := make([]float64, len(data))
	for i, col := range data {
		for _, v := range col {
			y = append(y, v/size[i])
		}
		q[i] = quantileR7(y, 0.75)
		y = y[:0]
	}
	return q
}

// refIndex returns the library whose upper quartile is closest to the mean
// upper quartile. Ties go to the first such library.
func refIndex(data [][]float64, size []float64) int {
	q75 := upperQuartiles(data, size)

	var meanQ75 float64
	for _, v := range q75 {
		meanQ75 += v
	}
	meanQ75 /= float64(len(q75))

	ref := 0
	closest := math.Abs(q75[0] - meanQ75)
	for i, v := range q75[1:] {
		if v := math.Abs(v - meanQ75); v < closest {
			closest = v
			ref = i + 1
		}
	}

	return ref
}

// rank returns 1-based sample ranks of f. Ties receive the mean of the ranks
// they span.
func rank(f []float64) []float64 {
	idx := make([]int, len(f))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return f[idx[a]] < f[idx[b]] })

	out := make([]float64, len(f))
	for start := 0; start < len(idx); {
		end := start + 1
		for end < len(idx) && f[idx[end]] == f[idx[start]] {
			end++
		}
		// Positions start..end-1 hold equal values; their 1-based ranks are
		// start+1..end.
		mean := float64(start+1+end) / 2
		for k := start; k < end; k++ {
			out[idx[k]] = mean
		}
		start = end
	}

	return out
}

// TMMOptions are the trimming parameters of the TMM method.
type TMMOptions struct {
	// LogRatioTrim is the fraction trimmed from each end of the M values.
	LogRatioTrim float64
	// SumTrim is the fraction trimmed from each end of the A values.
	SumTrim float64
	// ACutoff drops genes whose mean log expression is at or below it.
	ACutoff float64
	// Weighting uses inverse asymptotic variances as weights.
	Weighting bool
	// Ref is the reference library. A negative value selects the library
	// whose upper quartile is closest to the mean upper quartile.
	Ref int
}

// DefaultTMMOptions match the settings of Robinson and Oshlack (2010).
var DefaultTMMOptions = TMMOptions{
	LogRatioTrim: 0.3,
	SumTrim:      0.05,
	ACutoff:      -1e10,
	Weighting:    true,
	Ref:          -1,
}

// tmmFactor returns the relative weighting of alt compared to ref.
func tmmFactor(alt, ref []float64, sizeAlt, sizeRef float64, opts TMMOptions) float64 {
	var (
		logRat = make([]float64, 0, len(alt))
		logInt = make([]float64, 0, len(alt))
		asmVar = make([]float64, 0, len(alt))
	)

	maxAbs := 0.0
	for i := range alt {
		// Calculate the gene-wise M_g and A_g.
		lR := math.Log2((alt[i] / sizeAlt) / (ref[i] / sizeRef))
		aI := (math.Log2(alt[i]/sizeAlt) + math.Log2(ref[i]/sizeRef)) / 2

		// Reject all disallowed data points here.
		if math.IsInf(lR, 0) || math.IsNaN(lR) || math.IsInf(aI, 0) || math.IsNaN(aI) || aI <= opts.ACutoff {
			continue
		}

		logRat = append(logRat, lR)
		logInt = append(logInt, aI)
		asmVar = append(asmVar, (sizeAlt-alt[i])/sizeAlt/alt[i]+(sizeRef-ref[i])/sizeRef/ref[i])

		if a := math.Abs(lR); a > maxAbs {
			maxAbs = a
		}
	}

	if len(logRat) == 0 || maxAbs < 1e-6 {
		return 1
	}

	// Determine the starts of tails that we trim.
	n := float64(len(logRat))
	loL := math.Floor(n*opts.LogRatioTrim) + 1
	hiL := n + 1 - loL
	loS := math.Floor(n*opts.SumTrim) + 1
	hiS := n + 1 - loS

	rLogRat := rank(logRat)
	rLogInt := rank(logInt)

	var num, den float64
	for i := range logRat {
		// Trim by log fold-change and absolute intensity.
		if rLogRat[i] < loL || rLogRat[i] > hiL || rLogInt[i] < loS || rLogInt[i] > hiS {
			continue
		}

		if opts.Weighting {
			num += logRat[i] / asmVar[i]
			den += 1 / asmVar[i]
		} else {
			num += logRat[i]
			den++
		}
	}

	f := num / den
	if math.IsNaN(f) || math.IsInf(f, 0) {
		f = 0
	}

	return math.Pow(2, f)
}

// TMM returns a slice of factors that normalise the data vectors according
// the TMM normalisation strategy.
//
// "A scaling normalization method for differential expression analysis of RNA-seq data",
// Mark Robinson and Alicia Oshlack, http://genomebiology.com/2010/11/3/r25.
func TMM(data [][]float64, opts TMMOptions) ([]float64, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if len(data[0]) == 0 || len(data) == 1 {
		return ones(len(data)), nil
	}

	size, err := LibSizes(data)
	if err != nil {
		return nil, err
	}
	for i, s := range size {
		if s <= 0 {
			return nil, fmt.Errorf("norm: library %d has no counts", i)
		}
	}

	// Genes with no counts in any library carry no information.
	data = dropAllZero(data)
	if len(data[0]) == 0 {
		return ones(len(data)), nil
	}

	ref := opts.Ref
	if ref < 0 || ref >= len(data) {
		ref = refIndex(data, size)
	}

	f := make([]float64, len(data))
	for k, alt := range data {
		if k == ref {
			f[k] = 1
			continue
		}
		f[k] = tmmFactor(alt, data[ref], size[k], size[ref], opts)
	}

	return expMeanLogScaled(f), nil
}

// dropAllZero returns copies of the vectors without positions that are zero in
// every vector.
func dropAllZero(data [][]float64) [][]float64 {
	keep := make([]int, 0, len(data[0]))
	for i := range data[0] {
		for _, col := range data {
			if col[i] != 0 {
				keep = append(keep, i)
				break
			}
		}
	}
	if len(keep) == len(data[0]) {
		return data
	}

	out := make([][]float64, len(data))
	for j, col := range data {
		out[j] = make([]float64, len(keep))
		for k, i := range keep {
			out[j][k] = col[i]
		}
	}

	return out
}
