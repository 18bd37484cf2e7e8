// Package nn provides the computable side of a genome: a dense feed-forward
// network over a ParameterSet, a holder for externally built models, and the
// binder that picks between them.
package nn

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/baldhumanity/neuroevo-go/population"
	"github.com/baldhumanity/neuroevo-go/population/store"
)

var logger = zap.NewNop()

// SetLogger replaces the package logger. A nil logger disables logging.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger = l
}

// Binder builds adapters for genomes:
//
//	parameter set            -> FeedForward over the set
//	source with model.json   -> External
//	source with layer files  -> FeedForward over the loaded layers
type Binder struct {
	Activation       string
	OutputActivation string
}

// NewBinder takes activation names from topo.
func NewBinder(topo population.Topology) Binder {
	return Binder{Activation: topo.Activation, OutputActivation: topo.OutputActivation}
}

func (b Binder) Bind(id int, set *population.ParameterSet, source *population.LoadSource) (population.NetworkAdapter, error) {
	switch {
	case set != nil:
		return NewFeedForward(set, b.Activation, b.OutputActivation)
	case source == nil:
		return nil, fmt.Errorf("%w: genome %d has nothing to bind", population.ErrConfiguration, id)
	case store.HasModel(source.Dir):
		ext, err := LoadExternal(source.Dir)
		if err != nil {
			return nil, err
		}
		logger.Debug("bound external model", zap.Int("id", id), zap.String("dir", source.Dir))
		return ext, nil
	case store.HasLayers(source.Dir):
		weights, biases, err := store.LoadLayers(source.Dir)
		if err != nil {
			return nil, err
		}
		loaded, err := population.ParameterSetFromLayers(weights, biases)
		if err != nil {
			return nil, err
		}
		logger.Debug("bound saved layers", zap.Int("id", id), zap.String("dir", source.Dir), zap.Int("layers", len(weights)))
		return NewFeedForward(loaded, b.Activation, b.OutputActivation)
	default:
		return nil, fmt.Errorf("%w: %s holds no saved model", population.ErrConfiguration, source.Dir)
	}
}
