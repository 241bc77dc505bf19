package domain

import "fmt"

const (
	// MetersPerStep is the average stride length used for distance goals.
	MetersPerStep = 0.76
	// CaloriesPerStep is the average energy burned per step.
	CaloriesPerStep = 0.04
)

// StepsToKilometers converts a raw step count into kilometers.
func StepsToKilometers(steps float64) float64 {
	return steps * MetersPerStep / 1000
}

// StepsToCalories converts a raw step count into calories.
func StepsToCalories(steps float64) float64 {
	return steps * CaloriesPerStep
}

// ConvertSteps converts raw steps into the unit of the given metric. No rounding is applied.
func ConvertSteps(metric Metric, steps float64) (float64, error) {
	switch metric {
	case MetricSteps:
		return steps, nil
	case MetricKilometers:
		return StepsToKilometers(steps), nil
	case MetricCalories:
		return StepsToCalories(steps), nil
	default:
		return 0, fmt.Errorf("unknown metric %q", string(metric))
	}
}
