package grading

// Band is a letter bucket of the grade distribution.
type Band string

const (
	BandA Band = "A"
	BandB Band = "B"
	BandC Band = "C"
	BandD Band = "D"
	BandF Band = "F"
)

// Bands lists every band from highest to lowest.
var Bands = []Band{BandA, BandB, BandC, BandD, BandF}

// BandFor buckets a percentage: A[90,100] B[80,90) C[70,80) D[60,70) F[0,60).
// Values above 100 land in A and values below 0 in F.
func BandFor(percentage float64) Band {
	switch {
	case percentage >= 90:
		return BandA
	case percentage >= 80:
		return BandB
	case percentage >= 70:
		return BandC
	case percentage >= 60:
		return BandD
	default:
		return BandF
	}
}

// Distribution accumulates percentages into bands and tracks their mean.
type Distribution struct {
	counts map[Band]int64
	sum    float64
	n      int64
}

// NewDistribution returns a distribution with every band present at zero.
func NewDistribution() *Distribution {
	counts := make(map[Band]int64, len(Bands))
	for _, band := range Bands {
		counts[band] = 0
	}
	return &Distribution{counts: counts}
}

// Add records one graded percentage.
func (d *Distribution) Add(percentage float64) {
	d.counts[BandFor(percentage)]++
	d.sum += percentage
	d.n++
}

// Counts returns a copy of the per-band totals.
func (d *Distribution) Counts() map[Band]int64 {
	out := make(map[Band]int64, len(d.counts))
	for band, count := range d.counts {
		out[band] = count
	}
	return out
}

// Average is the mean percentage, or 0 when nothing was added.
func (d *Distribution) Average() float64 {
	if d.n == 0 {
		return 0
	}
	return d.sum / float64(d.n)
}

// Len is the number of percentages added.
func (d *Distribution) Len() int64 {
	return d.n
}

// WeightedItem is one graded assignment contributing to a final grade.
type WeightedItem struct {
	Percentage       float64
	WeightPercentage float64
}

// WeightedFinalGrade sums percentage × weight / 100 over graded items. The result is
// not normalised when the graded weights total less than 100.
func WeightedFinalGrade(items []WeightedItem) float64 {
	var total float64
	for _, item := range items {
		total += item.Percentage * item.WeightPercentage / 100
	}
	return total
}
