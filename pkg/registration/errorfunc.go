// Package registration provides the image-similarity and fiducial-error
// building blocks of a registration: radial error functions and similarity
// measures computed as parallel voxel reductions.
package registration

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrUnknownErrorFunction is returned by New and ParseKind.
var ErrUnknownErrorFunction = errors.New("registration: unknown radial error function")

// Kind enumerates the radial error functions.
type Kind int

const (
	Distance Kind = iota
	Charbonnier
	PeronaMalik
	Gaussian
)

var kindNames = map[Kind]string{
	Distance:    "Distance",
	Charbonnier: "Charbonnier",
	PeronaMalik: "PeronaMalik",
	Gaussian:    "Gaussian",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind returns the kind with the given name, ignoring case.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if strings.EqualFold(s, name) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownErrorFunction, s)
}

// RadialErrorFunction maps the squared distance d between corresponding
// points to a registration error.
type RadialErrorFunction interface {
	Kind() Kind

	// Value returns the error for squared distance d.
	Value(d float64) float64

	// Derivative returns the derivative of Value with respect to d.
	Derivative(d float64) float64

	// Set assigns a named parameter from its string form and reports
	// whether the name was known and the value valid.
	Set(name, value string) bool

	// Parameters returns the current parameters in string form.
	Parameters() map[string]string
}

// New returns the error function of kind k with default parameters.
func New(k Kind) (RadialErrorFunction, error) {
	switch k {
	case Distance:
		return &DistanceError{}, nil
	case Charbonnier:
		return NewCharbonnier(1), nil
	case PeronaMalik:
		return NewPeronaMalik(1), nil
	case Gaussian:
		return NewGaussian(1), nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownErrorFunction, k)
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// positive parses value and rejects non-positive numbers.
func positive(value string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// DistanceError is the squared distance itself.
type DistanceError struct{}

func (*DistanceError) Kind() Kind                    { return Distance }
func (*DistanceError) Value(d float64) float64       { return d }
func (*DistanceError) Derivative(float64) float64    { return 1 }
func (*DistanceError) Set(string, string) bool       { return false }
func (*DistanceError) Parameters() map[string]string { return map[string]string{} }

// CharbonnierError is a robust error that behaves like the squared distance
// for d much smaller than the squared threshold and grows like its square
// root beyond it.
type CharbonnierError struct {
	SquaredThreshold float64
}

// NewCharbonnier returns a Charbonnier error with the given threshold.
func NewCharbonnier(threshold float64) *CharbonnierError {
	return &CharbonnierError{SquaredThreshold: threshold * threshold}
}

func (*CharbonnierError) Kind() Kind { return Charbonnier }

func (e *CharbonnierError) Value(d float64) float64 {
	return 2 * e.SquaredThreshold * (math.Sqrt(1+d/e.SquaredThreshold) - 1)
}

func (e *CharbonnierError) Derivative(d float64) float64 {
	return 1 / math.Sqrt(1+d/e.SquaredThreshold)
}

// Set accepts "Threshold" and "Squared threshold".
func (e *CharbonnierError) Set(name, value string) bool {
	v, ok := positive(value)
	if !ok {
		return false
	}
	switch name {
	case "Threshold":
		e.SquaredThreshold = v * v
	case "Squared threshold":
		e.SquaredThreshold = v
	default:
		return false
	}
	return true
}

func (e *CharbonnierError) Parameters() map[string]string {
	return map[string]string{"Threshold": formatFloat(math.Sqrt(e.SquaredThreshold))}
}

// PeronaMalikError is the logarithmic edge-stopping error
// t² log(1 + d/t²).
type PeronaMalikError struct {
	SquaredThreshold float64
}

// NewPeronaMalik returns a Perona-Malik error with the given threshold.
func NewPeronaMalik(threshold float64) *PeronaMalikError {
	return &PeronaMalikError{SquaredThreshold: threshold * threshold}
}

func (*PeronaMalikError) Kind() Kind { return PeronaMalik }

func (e *PeronaMalikError) Value(d float64) float64 {
	return e.SquaredThreshold * math.Log1p(d/e.SquaredThreshold)
}

func (e *PeronaMalikError) Derivative(d float64) float64 {
	return 1 / (1 + d/e.SquaredThreshold)
}

// Set accepts "Threshold" and "Squared threshold".
func (e *PeronaMalikError) Set(name, value string) bool {
	v, ok := positive(value)
	if !ok {
		return false
	}
	switch name {
	case "Threshold":
		e.SquaredThreshold = v * v
	case "Squared threshold":
		e.SquaredThreshold = v
	default:
		return false
	}
	return true
}

func (e *PeronaMalikError) Parameters() map[string]string {
	return map[string]string{"Threshold": formatFloat(math.Sqrt(e.SquaredThreshold))}
}

// GaussianError saturates at one: 1 - exp(-d / (2σ²)).
type GaussianError struct {
	Variance float64
}

// NewGaussian returns a Gaussian error with standard deviation sigma.
func NewGaussian(sigma float64) *GaussianError {
	return &GaussianError{Variance: sigma * sigma}
}

func (*GaussianError) Kind() Kind { return Gaussian }

func (e *GaussianError) Value(d float64) float64 {
	return 1 - math.Exp(-d/(2*e.Variance))
}

func (e *GaussianError) Derivative(d float64) float64 {
	return math.Exp(-d/(2*e.Variance)) / (2 * e.Variance)
}

// Set accepts "Sigma" and "Variance".
func (e *GaussianError) Set(name, value string) bool {
	v, ok := positive(value)
	if !ok {
		return false
	}
	switch name {
	case "Sigma", "Standard deviation":
		e.Variance = v * v
	case "Variance":
		e.Variance = v
	default:
		return false
	}
	return true
}

func (e *GaussianError) Parameters() map[string]string {
	return map[string]string{"Sigma": formatFloat(math.Sqrt(e.Variance))}
}
