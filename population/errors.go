package population

import "errors"

// Construction-time failures. They are wrapped with detail, so test with errors.Is.
var (
	// ErrConfiguration reports an invalid topology, missing recurrent timesteps,
	// or an unsupported combination of parent and load arguments.
	ErrConfiguration = errors.New("configuration error")
	// ErrShapeMismatch reports parameter sets whose tensor shapes disagree.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrAdapterContract reports a network adapter whose tensor list does not
	// round-trip through SetTensors with the same count and shapes.
	ErrAdapterContract = errors.New("adapter contract violation")
)
