package detect

import "math"

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev is the population standard deviation.
func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(values)))
}

// coefficientOfVariation is stddev over mean; zeroMeanDefault is returned
// when the mean is not positive.
func coefficientOfVariation(values []float64, zeroMeanDefault float64) float64 {
	m := mean(values)
	if m <= 0 {
		return zeroMeanDefault
	}
	return stddev(values) / m
}

// roundBucketDiversity is the ratio of distinct amount buckets (rounded to
// the nearest bucket size) to total amounts. Low diversity means repetitive
// pass-through amounts.
func roundBucketDiversity(amounts []float64, bucket float64) float64 {
	if len(amounts) == 0 {
		return 0
	}
	buckets := make(map[float64]struct{}, len(amounts))
	for _, amt := range amounts {
		buckets[math.Round(amt/bucket)*bucket] = struct{}{}
	}
	return float64(len(buckets)) / float64(len(amounts))
}
