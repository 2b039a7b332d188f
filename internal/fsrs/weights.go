package fsrs

import "fmt"

// DefaultWeights is the FSRS-6 default parameter vector.
// w[0..3] seed the initial stability per rating; w[4..7] drive difficulty;
// w[8..10] recall stability; w[11..14] forget stability; w[15..16] the
// hard penalty and easy bonus; w[17..19] short-term stability; w[20] the
// decay exponent.
var DefaultWeights = [21]float64{
	0.212, 1.2931, 2.3065, 8.2956,
	6.4133, 0.8334, 3.0194, 0.001,
	1.8722, 0.1666, 0.796, 1.4835,
	0.0614, 0.2629, 1.6483, 0.6014,
	1.8729, 0.5425, 0.0912, 0.0658,
	0.1542,
}

var weightLowerBounds = [21]float64{
	0.001, 0.001, 0.001, 0.001,
	1.0, 0.001, 0.001, 0.001,
	0.0, 0.0, 0.001, 0.001,
	0.001, 0.001, 0.0, 0.0,
	1.0, 0.0, 0.0, 0.0,
	0.1,
}

var weightUpperBounds = [21]float64{
	100.0, 100.0, 100.0, 100.0,
	10.0, 4.0, 4.0, 0.75,
	4.5, 0.8, 3.5, 5.0,
	0.25, 0.9, 4.0, 1.0,
	6.0, 2.0, 2.0, 0.8,
	0.8,
}

func validateWeights(w [21]float64) error {
	for i := range w {
		if w[i] < weightLowerBounds[i] || w[i] > weightUpperBounds[i] {
			return fmt.Errorf("weight w[%d] = %f outside [%f, %f]",
				i, w[i], weightLowerBounds[i], weightUpperBounds[i])
		}
	}
	return nil
}
