// Package sparsearray lays out automaton states in a sparse array of
// (label, pointer) cells and persists that array to memory and disk.
package sparsearray

// Layout constants shared by the builder, the persistence and the reader.
const (
	MaxTransitionsOfAState       = 257
	FinalOffsetTransition        = 256
	InnerWeightTransitionCompact = 260
	FinalOffsetCode              = 1
	NumberOfStateCodings         = 255
	SparseArraySearchOffset      = 151

	CompactSizeRelativeMaxValue    = 32768
	CompactSizeAbsoluteMaxValue    = 16384
	CompactSizeWindow              = 512
	CompactSizeInnerWeightMaxValue = 0xffff

	// MaxFinalValue bounds the values stored on final states. Larger values
	// would need a fifth unit and reach the inner weight cell.
	MaxFinalValue = 1<<60 - 1

	// PersistenceVersion is written in front of every persisted array.
	PersistenceVersion = 2
)

const (
	absoluteCompactFlag = 0xC000
	overflowFlag        = 0x8000
	overflowRelative    = 0x8
	overflowLowMask     = 0x7
	overflowBucketBits  = 11
)
