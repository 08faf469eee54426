// Package detectors provides unsupervised anomaly detection algorithms.
package detectors

// Detector is the common interface for anomaly detection algorithms.
type Detector interface {
	// Fit trains the detector.
	// data is a 2D slice where each row is a sample and each column is a feature.
	Fit(data [][]float64) error

	// Predict returns anomaly scores for the given samples.
	// Higher values indicate anomalies.
	Predict(data [][]float64) ([]float64, error)

	// FitPredict trains on data and scores the same data in one pass.
	// This is the batch-relative mode: scores rank samples against the
	// rest of their own batch, not against any persisted baseline.
	FitPredict(data [][]float64) ([]float64, error)
}

// Config holds common configuration for detectors.
type Config struct {
	// Contamination is the expected proportion of anomalies in the data.
	Contamination float64
	// RandomSeed for reproducibility.
	RandomSeed int64
}

// DefaultConfig returns sensible defaults for detector configuration.
func DefaultConfig() Config {
	return Config{
		Contamination: 0.1,
		RandomSeed:    42,
	}
}
