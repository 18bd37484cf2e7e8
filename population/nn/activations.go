package nn

import (
	"fmt"
	"math"
)

// ActivationType defines the type for activation functions.
type ActivationType func(x float64) float64

// ActivationFunctions maps function names to the actual activation functions.
// This allows configuration to specify activations by name.
var ActivationFunctions = map[string]ActivationType{
	"sigmoid":       Sigmoid,
	"steep_sigmoid": SteepSigmoid,
	"tanh":          Tanh,
	"relu":          ReLU,
	"identity":      Identity,
	"linear":        Identity, // Alias for identity
	"clamped":       Clamped,
	"gaussian":      Gaussian,
	"absolute":      Absolute,
	"abs":           Absolute, // Alias for absolute
	"sine":          Sine,
	"hat":           Hat,
	"square":        Square,
}

// GetActivation retrieves an activation function by name. The empty name
// selects fallback.
func GetActivation(name, fallback string) (ActivationType, error) {
	if name == "" {
		name = fallback
	}
	if fn, ok := ActivationFunctions[name]; ok {
		return fn, nil
	}
	return nil, fmt.Errorf("unknown activation function: %s", name)
}

// Sigmoid is the logistic function 1 / (1 + e^-x).
func Sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// SteepSigmoid uses a steepness of 4.9, the usual choice for evolved nets.
func SteepSigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-4.9*x))
}

func Tanh(x float64) float64 {
	return math.Tanh(x)
}

// ReLU (Rectified Linear Unit) activation function.
func ReLU(x float64) float64 {
	return math.Max(0, x)
}

func Identity(x float64) float64 {
	return x
}

// Clamped activation function (clamps output between -1 and 1).
func Clamped(x float64) float64 {
	return math.Max(-1.0, math.Min(1.0, x))
}

func Gaussian(x float64) float64 {
	x = math.Max(-3.4, math.Min(3.4, x))
	return math.Exp(-5.0 * x * x)
}

func Absolute(x float64) float64 {
	return math.Abs(x)
}

func Sine(x float64) float64 {
	return math.Sin(x)
}

// Hat activation function (triangular pulse centered at 0).
func Hat(x float64) float64 {
	return math.Max(0.0, 1.0-math.Abs(x))
}

func Square(x float64) float64 {
	return x * x
}
