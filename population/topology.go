package population

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NetworkKind says who builds the computable network for a genome.
type NetworkKind string

const (
	// Native networks are dense feed-forward nets computed straight from a ParameterSet.
	Native NetworkKind = "native"
	// External networks are built by a framework adapter that owns its own tensors.
	External NetworkKind = "externally-built"
)

// Topology is the immutable structural shape of a network.
type Topology struct {
	Input     int
	Hidden    []int
	Output    int
	Kind      NetworkKind
	Recurrent bool
	// Timesteps is required (positive) for recurrent networks and ignored otherwise.
	Timesteps int

	// Activation names used by computable adapters; empty means the adapter default.
	Activation       string
	OutputActivation string
}

// Validate checks the topology without allocating any tensor.
func (t Topology) Validate() error {
	if t.Input <= 0 {
		return fmt.Errorf("%w: input must be positive, got %d", ErrConfiguration, t.Input)
	}
	if t.Output <= 0 {
		return fmt.Errorf("%w: output must be positive, got %d", ErrConfiguration, t.Output)
	}
	if len(t.Hidden) == 0 {
		return fmt.Errorf("%w: hidden must list at least one layer", ErrConfiguration)
	}
	for i, h := range t.Hidden {
		if h <= 0 {
			return fmt.Errorf("%w: hidden layer %d must be positive, got %d", ErrConfiguration, i, h)
		}
	}
	switch t.Kind {
	case Native:
		if t.Recurrent {
			return fmt.Errorf("%w: native networks cannot be recurrent", ErrConfiguration)
		}
	case External:
	default:
		return fmt.Errorf("%w: unknown network kind '%s'", ErrConfiguration, t.Kind)
	}
	if t.Recurrent && t.Timesteps <= 0 {
		return fmt.Errorf("%w: must specify positive timesteps for recurrent network", ErrConfiguration)
	}
	return nil
}

// Dims returns input, hidden..., output.
func (t Topology) Dims() []int {
	dims := make([]int, 0, len(t.Hidden)+2)
	dims = append(dims, t.Input)
	dims = append(dims, t.Hidden...)
	return append(dims, t.Output)
}

// NumLayers is the number of weight matrices: one per hidden layer plus the output layer.
func (t Topology) NumLayers() int {
	return len(t.Hidden) + 1
}

// String renders the topology compactly, e.g. native 4-[8 8]-2.
func (t Topology) String() string {
	s := fmt.Sprintf("%s %d-%v-%d", t.Kind, t.Input, t.Hidden, t.Output)
	if t.Recurrent {
		s += fmt.Sprintf(" recurrent(t=%d)", t.Timesteps)
	}
	return s
}

// ParseTopology builds a Topology from structured configuration. Recognized
// keys: input, hidden, output, network, timesteps, recurrent, activation,
// output_activation. Values may be native Go types (as decoded from YAML) or
// strings (as read from INI). network defaults to native.
func ParseTopology(params map[string]any) (Topology, error) {
	var (
		topo Topology
		err  error
	)
	for _, key := range []string{"input", "hidden", "output"} {
		if _, ok := params[key]; !ok {
			return Topology{}, fmt.Errorf("%w: missing required key '%s'", ErrConfiguration, key)
		}
	}
	if topo.Input, err = toInt(params["input"]); err != nil {
		return Topology{}, fmt.Errorf("%w: input: %v", ErrConfiguration, err)
	}
	if topo.Output, err = toInt(params["output"]); err != nil {
		return Topology{}, fmt.Errorf("%w: output: %v", ErrConfiguration, err)
	}
	if topo.Hidden, err = toInts(params["hidden"]); err != nil {
		return Topology{}, fmt.Errorf("%w: hidden: %v", ErrConfiguration, err)
	}

	network := "native"
	if v, ok := params["network"]; ok {
		network = strings.ToLower(strings.TrimSpace(fmt.Sprint(v)))
	}
	switch network {
	case "native", "feedforward":
		topo.Kind = Native
	case "externally-built", "external":
		topo.Kind = External
	case "recurrent", "rnn", "lstm", "gru":
		topo.Kind = External
		topo.Recurrent = true
	default:
		return Topology{}, fmt.Errorf("%w: unknown network kind '%s'", ErrConfiguration, network)
	}
	if v, ok := params["recurrent"]; ok {
		recurrent, err := toBool(v)
		if err != nil {
			return Topology{}, fmt.Errorf("%w: recurrent: %v", ErrConfiguration, err)
		}
		topo.Recurrent = topo.Recurrent || recurrent
	}

	if v, ok := params["timesteps"]; ok {
		if topo.Timesteps, err = toInt(v); err != nil {
			return Topology{}, fmt.Errorf("%w: timesteps: %v", ErrConfiguration, err)
		}
		if topo.Timesteps <= 0 {
			return Topology{}, fmt.Errorf("%w: timesteps must be positive, got %d", ErrConfiguration, topo.Timesteps)
		}
	} else if topo.Recurrent {
		return Topology{}, fmt.Errorf("%w: must specify timesteps for recurrent network", ErrConfiguration)
	}

	if v, ok := params["activation"]; ok {
		topo.Activation = strings.TrimSpace(fmt.Sprint(v))
	}
	if v, ok := params["output_activation"]; ok {
		topo.OutputActivation = strings.TrimSpace(fmt.Sprint(v))
	}
	return topo, topo.Validate()
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("%v is not an integer", n)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("'%s' is not an integer", n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("unsupported value %v (%T)", v, v)
	}
}

// toInts accepts a list, or a string of integers separated by spaces or commas.
func toInts(v any) ([]int, error) {
	switch list := v.(type) {
	case []int:
		return append([]int(nil), list...), nil
	case []any:
		out := make([]int, len(list))
		for i, item := range list {
			n, err := toInt(item)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case string:
		fields := strings.FieldsFunc(list, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
		out := make([]int, len(fields))
		for i, f := range fields {
			n, err := toInt(f)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		n, err := toInt(v)
		if err != nil {
			return nil, err
		}
		return []int{n}, nil
	}
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(b))
	default:
		return false, fmt.Errorf("unsupported value %v (%T)", v, v)
	}
}
