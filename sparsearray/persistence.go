package sparsearray

import (
	"SparseFSA/logging"
	"SparseFSA/memmap"
	"SparseFSA/utils"
	"SparseFSA/varshort"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// MinMemoryLimit is the smallest budget a Persistence accepts.
const MinMemoryLimit = 1 << 14

const maxExternalChunkSize = 1 << 30

var (
	ErrMemoryLimit = fmt.Errorf("sparsearray: memory limit below %d", MinMemoryLimit)
	ErrFlushed     = errors.New("sparsearray: persistence already flushed")
)

// Persistence stores the sparse array. The most recent part lives in an in
// memory window of bufferSize cells starting at inMemoryBufferOffset.
// Everything before it has been flushed into memory-mapped chunks.
type Persistence struct {
	tempDir    string
	bufferSize uint64
	flushSize  uint64

	labels      []byte
	transitions []uint16

	labelsExtern      *memmap.Manager
	transitionsExtern *memmap.Manager

	inMemoryBufferOffset  uint64
	highestRawWriteBucket uint64
	highestStateBegin     uint64
	flushed               bool

	counters *Counters
	log      *zap.SugaredLogger
}

// NewPersistence creates a persistence using about memoryLimit bytes of
// heap. Chunk files go to a fresh directory below tempPath (os.TempDir if
// empty).
func NewPersistence(memoryLimit uint64, tempPath string, counters *Counters) (*Persistence, error) {
	if memoryLimit < MinMemoryLimit {
		return nil, ErrMemoryLimit
	}

	bufferSize := memoryLimit / 3
	bufferSize += 16 - bufferSize%16
	flushSize := bufferSize * 3 / 5
	flushSize += 16 - flushSize%16

	dir, err := os.MkdirTemp(tempPath, "dictionary-fsa")
	if err != nil {
		return nil, fmt.Errorf("sparsearray: create temp dir: %w", err)
	}

	chunkSize := min(2*flushSize, maxExternalChunkSize)
	chunkSize -= chunkSize % flushSize

	p := &Persistence{
		tempDir:           dir,
		bufferSize:        bufferSize,
		flushSize:         flushSize,
		labels:            make([]byte, bufferSize),
		transitions:       make([]uint16, bufferSize),
		labelsExtern:      memmap.NewManager(int(chunkSize), dir, "characterTableFileBuffer"),
		transitionsExtern: memmap.NewManager(int(2*chunkSize), dir, "valueTableFileBuffer"),
		counters:          counters,
		log:               logging.New("sparsearray"),
	}
	p.log.Debugw("persistence created", "dir", dir, "buffer", bufferSize, "flush", flushSize, "chunk", chunkSize)
	return p, nil
}

// ChunkSizeExternalTransitions returns the chunk size in bytes of the
// flushed pointer cells.
func (p *Persistence) ChunkSizeExternalTransitions() int {
	return p.transitionsExtern.ChunkSize()
}

// BeginNewState makes sure every cell a state at offset can touch is held
// in memory.
func (p *Persistence) BeginNewState(offset uint64) error {
	if p.flushed {
		return ErrFlushed
	}
	for offset+CompactSizeWindow+NumberOfStateCodings >= p.inMemoryBufferOffset+p.bufferSize {
		if err := p.flushBuffers(); err != nil {
			return err
		}
	}
	p.highestStateBegin = max(p.highestStateBegin, offset)
	return nil
}

func (p *Persistence) WriteTransition(offset uint64, label byte, pointer uint16) error {
	if p.flushed {
		return ErrFlushed
	}
	p.highestRawWriteBucket = max(p.highestRawWriteBucket, offset)

	for offset >= p.inMemoryBufferOffset+p.bufferSize {
		if err := p.flushBuffers(); err != nil {
			return err
		}
	}

	if offset >= p.inMemoryBufferOffset {
		p.labels[offset-p.inMemoryBufferOffset] = label
		p.transitions[offset-p.inMemoryBufferOffset] = pointer
		return nil
	}

	l, err := p.labelsExtern.Address(offset)
	if err != nil {
		return err
	}
	v, err := p.transitionsExtern.Address(2 * offset)
	if err != nil {
		return err
	}
	l[0] = label
	binary.LittleEndian.PutUint16(v, pointer)
	return nil
}

func (p *Persistence) inMemory(offset uint64) bool {
	return !p.flushed && offset >= p.inMemoryBufferOffset
}

func (p *Persistence) ReadTransitionLabel(offset uint64) byte {
	if p.inMemory(offset) {
		if offset-p.inMemoryBufferOffset >= p.bufferSize {
			return 0
		}
		return p.labels[offset-p.inMemoryBufferOffset]
	}
	return p.labelsExtern.Buffer(offset, 1)[0]
}

func (p *Persistence) ReadTransitionValue(offset uint64) uint16 {
	if p.inMemory(offset) {
		if offset-p.inMemoryBufferOffset >= p.bufferSize {
			return 0
		}
		return p.transitions[offset-p.inMemoryBufferOffset]
	}
	return binary.LittleEndian.Uint16(p.transitionsExtern.Buffer(2*offset, 2))
}

// readVarShort decodes the VarShort starting at the cell offset.
func (p *Persistence) readVarShort(offset uint64) uint64 {
	switch {
	case p.inMemory(offset):
		v, n := varshort.Decode(p.transitions[offset-p.inMemoryBufferOffset:])
		if n > 0 {
			return v
		}
	case p.flushed || offset+varshort.MaxLength <= p.inMemoryBufferOffset:
		v, _ := varshort.DecodeBytes(p.transitionsExtern.Buffer(2*offset, 2*varshort.MaxLength))
		return v
	}

	var units [varshort.MaxLength]uint16
	for i := range units {
		units[i] = p.ReadTransitionValue(offset + uint64(i))
		if units[i]&0x8000 == 0 {
			v, _ := varshort.Decode(units[:i+1])
			return v
		}
	}
	return 0
}

// ResolveTransitionValue decodes the pointer raw read from offset.
func (p *Persistence) ResolveTransitionValue(offset uint64, raw uint16) (uint64, error) {
	return ResolvePointer(offset, raw, func(pos uint64) (uint64, error) {
		return p.readVarShort(pos), nil
	})
}

// ReadFinalValue returns the value of the final state at offset.
func (p *Persistence) ReadFinalValue(offset uint64) uint64 {
	return p.readVarShort(offset + FinalOffsetTransition)
}

// ReadInnerWeight returns the inner weight of the state at offset, 0 if it
// has none.
func (p *Persistence) ReadInnerWeight(offset uint64) uint16 {
	if p.ReadTransitionLabel(offset+InnerWeightTransitionCompact) != 0 {
		return 0
	}
	return p.ReadTransitionValue(offset + InnerWeightTransitionCompact)
}

// HighestWritePosition returns the number of cells to persist.
func (p *Persistence) HighestWritePosition() uint64 {
	return max(p.highestStateBegin+MaxTransitionsOfAState, p.highestRawWriteBucket+1)
}

func (p *Persistence) flushBuffers() error {
	if err := p.labelsExtern.Append(p.labels[:p.flushSize]); err != nil {
		return fmt.Errorf("sparsearray: flush labels: %w", err)
	}
	if err := p.transitionsExtern.AppendUint16s(p.transitions[:p.flushSize]); err != nil {
		return fmt.Errorf("sparsearray: flush transitions: %w", err)
	}

	overlap := p.bufferSize - p.flushSize
	copy(p.labels, p.labels[p.flushSize:])
	copy(p.transitions, p.transitions[p.flushSize:])
	clear(p.labels[overlap:])
	clear(p.transitions[overlap:])

	p.inMemoryBufferOffset += p.flushSize
	p.counters.bufferFlush()
	p.log.Debugw("flushed buffers", "inMemoryOffset", p.inMemoryBufferOffset)
	return nil
}

// Flush moves the in-memory window to the external chunks. Further writes
// are rejected; reads keep working. Flush may be called repeatedly.
func (p *Persistence) Flush() error {
	if p.flushed {
		return nil
	}
	hwp := p.HighestWritePosition()
	if hwp > p.inMemoryBufferOffset {
		n := min(hwp-p.inMemoryBufferOffset, p.bufferSize)
		if err := p.labelsExtern.Append(p.labels[:n]); err != nil {
			return fmt.Errorf("sparsearray: flush labels: %w", err)
		}
		if err := p.transitionsExtern.AppendUint16s(p.transitions[:n]); err != nil {
			return fmt.Errorf("sparsearray: flush transitions: %w", err)
		}
	}
	if err := multierr.Append(p.labelsExtern.Persist(), p.transitionsExtern.Persist()); err != nil {
		return fmt.Errorf("sparsearray: sync chunks: %w", err)
	}
	p.labels, p.transitions = nil, nil
	p.flushed = true
	return nil
}

// Write writes the persisted array in container form.
func (p *Persistence) Write(w io.Writer) error {
	if err := p.Flush(); err != nil {
		return err
	}
	hwp := p.HighestWritePosition()

	var header [2 * binary.MaxVarintLen64]byte
	n := binary.PutUvarint(header[:], PersistenceVersion)
	n += binary.PutUvarint(header[n:], hwp)
	if _, err := w.Write(header[:n]); err != nil {
		return fmt.Errorf("sparsearray: write header: %w", err)
	}
	return p.writeCells(w, hwp)
}

// Properties is the JSON header of the standalone form.
type Properties struct {
	Version string `json:"version"`
	Size    string `json:"size"`
}

// WriteKeyvi writes the persisted array in standalone form.
func (p *Persistence) WriteKeyvi(w io.Writer) error {
	if err := p.Flush(); err != nil {
		return err
	}
	hwp := p.HighestWritePosition()
	props := Properties{
		Version: strconv.Itoa(PersistenceVersion),
		Size:    strconv.FormatUint(hwp, 10),
	}
	if err := WriteJSONBlock(w, props); err != nil {
		return err
	}
	return p.writeCells(w, hwp)
}

func (p *Persistence) writeCells(w io.Writer, hwp uint64) error {
	if err := p.labelsExtern.Write(w, hwp); err != nil {
		return fmt.Errorf("sparsearray: write labels: %w", err)
	}
	if err := p.transitionsExtern.Write(w, 2*hwp); err != nil {
		return fmt.Errorf("sparsearray: write transitions: %w", err)
	}
	return nil
}

// WriteJSONBlock writes v as JSON prefixed by its big-endian 32-bit length.
func WriteJSONBlock(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("sparsearray: marshal properties: %w", err)
	}
	var size [4]byte
	binary.BigEndian.PutUint32(size[:], uint32(len(b)))
	if _, err = w.Write(size[:]); err == nil {
		_, err = w.Write(b)
	}
	if err != nil {
		return fmt.Errorf("sparsearray: write properties: %w", err)
	}
	return nil
}

// MemReport reports the heap held by the in-memory window.
func (p *Persistence) MemReport() utils.MemReport {
	return utils.NewMemReport("persistence",
		utils.Leaf("labels", len(p.labels)),
		utils.Leaf("transitions", 2*len(p.transitions)),
		utils.Leaf("mapped chunks", p.labelsExtern.Chunks()*p.labelsExtern.ChunkSize()+
			p.transitionsExtern.Chunks()*p.transitionsExtern.ChunkSize()),
	)
}

// Close releases the chunks and removes the temporary directory.
func (p *Persistence) Close() error {
	err := multierr.Combine(
		p.transitionsExtern.Close(),
		p.labelsExtern.Close(),
	)
	err = multierr.Append(err, os.RemoveAll(p.tempDir))
	p.labels, p.transitions = nil, nil
	p.flushed = true
	return err
}
