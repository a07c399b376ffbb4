package sparsearray

// UnpackedStateStack holds one UnpackedState per depth of the current key.
// States are reused after Erase.
type UnpackedStateStack struct {
	persistence  *Persistence
	pool         []*UnpackedState
	weightCutOff int
}

func NewUnpackedStateStack(p *Persistence, initialSize, weightCutOff int) *UnpackedStateStack {
	return &UnpackedStateStack{
		persistence:  p,
		pool:         make([]*UnpackedState, 0, initialSize),
		weightCutOff: weightCutOff,
	}
}

// Get returns the state at depth position, growing the pool as needed.
func (s *UnpackedStateStack) Get(position int) *UnpackedState {
	for len(s.pool) <= position {
		s.pool = append(s.pool, NewUnpackedState(s.persistence))
	}
	return s.pool[position]
}

func (s *UnpackedStateStack) Insert(position int, label byte, value uint64) {
	s.Get(position).Add(label, value)
}

func (s *UnpackedStateStack) InsertFinalState(position int, value uint64, noMinimization bool) error {
	state := s.Get(position)
	if err := state.AddFinalState(value); err != nil {
		return err
	}
	if noMinimization {
		state.IncrementNoMinimizationCounter(1)
	}
	return nil
}

// UpdateWeights raises the weight of the states in [start, end). Depths
// beyond the cut off keep no weight.
func (s *UnpackedStateStack) UpdateWeights(start, end int, weight uint32) {
	if start > s.weightCutOff {
		return
	}
	end = min(end, s.weightCutOff)
	for i := start; i < end; i++ {
		s.Get(i).UpdateWeightIfHigher(weight)
	}
}

// PushTransitionPointer sets the target of the last transition at position
// and inherits the no-minimization counter of the child.
func (s *UnpackedStateStack) PushTransitionPointer(position int, value uint64, minimizationCounter int) {
	state := s.Get(position)
	state.SetTransitionValue(value)
	state.IncrementNoMinimizationCounter(minimizationCounter)
}

func (s *UnpackedStateStack) Erase(position int) {
	s.Get(position).Clear()
}

// Len returns the number of pooled states.
func (s *UnpackedStateStack) Len() int {
	return len(s.pool)
}
