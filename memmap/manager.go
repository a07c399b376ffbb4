// Package memmap provides append-only byte storage split into fixed size
// chunks, each backed by a memory-mapped temporary file.
package memmap

import (
	"SparseFSA/logging"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var ErrOutOfRange = errors.New("memmap: offset beyond mapped chunks")

type chunk struct {
	data []byte
	file *os.File
	path string
}

// Manager hands out addressable windows into a growing sequence of chunks.
// Chunks are created on demand and removed again by Close.
type Manager struct {
	chunkSize int
	directory string
	pattern   string
	chunks    []chunk
	tail      uint64
	scratch   []byte
	log       *zap.SugaredLogger
}

// NewManager creates a manager that stores chunk files named after pattern
// inside directory. No file is created before the first access.
func NewManager(chunkSize int, directory, pattern string) *Manager {
	return &Manager{
		chunkSize: chunkSize,
		directory: directory,
		pattern:   pattern,
		log:       logging.New("memmap"),
	}
}

func (m *Manager) ChunkSize() int {
	return m.chunkSize
}

// Size returns the append cursor.
func (m *Manager) Size() uint64 {
	return m.tail
}

// Chunks returns the number of chunks mapped so far.
func (m *Manager) Chunks() int {
	return len(m.chunks)
}

func (m *Manager) locate(offset uint64) (int, int) {
	return int(offset / uint64(m.chunkSize)), int(offset % uint64(m.chunkSize))
}

// AddressQuickTestOk reports whether length bytes starting at offset lie in
// a single chunk.
func (m *Manager) AddressQuickTestOk(offset uint64, length int) bool {
	_, inner := m.locate(offset)
	return length <= m.chunkSize-inner
}

// Address returns the chunk containing offset, sliced to start at offset.
// Missing chunks up to and including that one are created.
func (m *Manager) Address(offset uint64) ([]byte, error) {
	idx, inner := m.locate(offset)
	if err := m.ensure(idx); err != nil {
		return nil, err
	}
	return m.chunks[idx].data[inner:], nil
}

// Buffer returns length bytes starting at offset. If the range crosses a
// chunk border the two parts are copied into a fresh slice. Bytes of chunks
// that do not exist yet read as zero.
func (m *Manager) Buffer(offset uint64, length int) []byte {
	idx, inner := m.locate(offset)
	if m.AddressQuickTestOk(offset, length) && idx < len(m.chunks) {
		return m.chunks[idx].data[inner : inner+length]
	}

	out := make([]byte, length)
	for rest := out; len(rest) > 0; {
		idx, inner = m.locate(offset)
		n := min(len(rest), m.chunkSize-inner)
		if idx < len(m.chunks) {
			copy(rest[:n], m.chunks[idx].data[inner:])
		}
		rest = rest[n:]
		offset += uint64(n)
	}
	return out
}

// Append writes b at the tail and advances it.
func (m *Manager) Append(b []byte) error {
	for len(b) > 0 {
		idx, inner := m.locate(m.tail)
		if err := m.ensure(idx); err != nil {
			return err
		}
		n := copy(m.chunks[idx].data[inner:], b)
		b = b[n:]
		m.tail += uint64(n)
	}
	return nil
}

// AppendUint16s appends s as little-endian 16-bit units.
func (m *Manager) AppendUint16s(s []uint16) error {
	if cap(m.scratch) < 2*len(s) {
		m.scratch = make([]byte, 2*len(s))
	}
	buf := m.scratch[:2*len(s)]
	for i, v := range s {
		binary.LittleEndian.PutUint16(buf[2*i:], v)
	}
	return m.Append(buf)
}

// Write copies the first end bytes to w.
func (m *Manager) Write(w io.Writer, end uint64) error {
	if end > uint64(len(m.chunks))*uint64(m.chunkSize) {
		return fmt.Errorf("%w: %d", ErrOutOfRange, end)
	}
	for i := 0; end > 0; i++ {
		n := min(end, uint64(m.chunkSize))
		if _, err := w.Write(m.chunks[i].data[:n]); err != nil {
			return fmt.Errorf("memmap: write chunk %d: %w", i, err)
		}
		end -= n
	}
	return nil
}

// Persist flushes all mappings to their files.
func (m *Manager) Persist() error {
	var err error
	for i := range m.chunks {
		err = multierr.Append(err, syncChunk(&m.chunks[i]))
	}
	return err
}

// Close unmaps and deletes every chunk.
func (m *Manager) Close() error {
	var err error
	for _, c := range m.chunks {
		err = multierr.Append(err, unmap(c.data))
		err = multierr.Append(err, c.file.Close())
		err = multierr.Append(err, os.Remove(c.path))
	}
	m.chunks = nil
	m.tail = 0
	return err
}

func (m *Manager) ensure(idx int) error {
	for len(m.chunks) <= idx {
		c, err := m.createChunk(len(m.chunks))
		if err != nil {
			return err
		}
		m.chunks = append(m.chunks, c)
	}
	return nil
}

func (m *Manager) createChunk(idx int) (chunk, error) {
	path := filepath.Join(m.directory, fmt.Sprintf("%s-%d-%s.chunk", m.pattern, idx, uuid.NewString()))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return chunk{}, fmt.Errorf("memmap: create chunk %d: %w", idx, err)
	}
	if err = f.Truncate(int64(m.chunkSize)); err == nil {
		var data []byte
		if data, err = mapFile(f, m.chunkSize); err == nil {
			m.log.Debugw("mapped chunk", "index", idx, "size", m.chunkSize, "file", path)
			return chunk{data: data, file: f, path: path}, nil
		}
	}
	err = multierr.Combine(err, f.Close(), os.Remove(path))
	return chunk{}, fmt.Errorf("memmap: map chunk %d: %w", idx, err)
}
