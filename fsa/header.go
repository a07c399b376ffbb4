package fsa

import (
	"SparseFSA/sparsearray"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	CodecMagic   = 0x3fd76c17
	CodecName    = "KEYVI"
	CodecVersion = 2

	// FileMagic starts the standalone form.
	FileMagic = "KEYVIFSA"

	maxPropertiesSize = 1 << 20
)

var (
	ErrUnknownFormat      = errors.New("fsa: unknown automaton format")
	ErrUnsupportedVersion = errors.New("fsa: unsupported version")
	ErrCorruptHeader      = errors.New("fsa: corrupt header")
)

// Format selects the serialization of an automaton.
type Format int

const (
	// FormatKeyvi is the standalone form starting with FileMagic.
	FormatKeyvi Format = iota
	// FormatContainer is the form embedded after a codec header.
	FormatContainer
)

func (f Format) String() string {
	switch f {
	case FormatKeyvi:
		return "keyvi"
	case FormatContainer:
		return "container"
	default:
		return "Format(" + strconv.Itoa(int(f)) + ")"
	}
}

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "keyvi", "":
		return FormatKeyvi, nil
	case "container":
		return FormatContainer, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Header holds the automaton properties stored in front of the sparse array.
type Header struct {
	StartState     uint64
	NumberOfKeys   uint64
	NumberOfStates uint64
	ValueStoreType uint64
}

// keyviProperties is the JSON form of Header, field order as written.
type keyviProperties struct {
	Version        string `json:"version"`
	StartState     string `json:"start_state"`
	NumberOfKeys   string `json:"number_of_keys"`
	ValueStoreType string `json:"value_store_type"`
	NumberOfStates string `json:"number_of_states"`
}

func writeContainerHeader(w io.Writer, h Header) error {
	buf := binary.BigEndian.AppendUint32(nil, CodecMagic)
	buf = binary.AppendUvarint(buf, uint64(len(CodecName)))
	buf = append(buf, CodecName...)
	buf = binary.BigEndian.AppendUint32(buf, CodecVersion)
	for _, v := range []uint64{h.StartState, h.NumberOfKeys, h.NumberOfStates, h.ValueStoreType} {
		buf = binary.AppendUvarint(buf, v)
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("fsa: write header: %w", err)
	}
	return nil
}

func writeKeyviHeader(w io.Writer, h Header) error {
	if _, err := io.WriteString(w, FileMagic); err != nil {
		return fmt.Errorf("fsa: write magic: %w", err)
	}
	return sparsearray.WriteJSONBlock(w, keyviProperties{
		Version:        strconv.Itoa(CodecVersion),
		StartState:     strconv.FormatUint(h.StartState, 10),
		NumberOfKeys:   strconv.FormatUint(h.NumberOfKeys, 10),
		ValueStoreType: strconv.FormatUint(h.ValueStoreType, 10),
		NumberOfStates: strconv.FormatUint(h.NumberOfStates, 10),
	})
}

// layout locates the sparse array inside a serialized automaton.
type layout struct {
	header            Header
	format            Format
	size              uint64
	labelsOffset      int64
	transitionsOffset int64
}

// headerReader reads sequentially from an io.ReaderAt.
type headerReader struct {
	r   io.ReaderAt
	off int64
}

// readFullAt fills b from r at off. An io.EOF together with a full read is
// not an error.
func readFullAt(r io.ReaderAt, b []byte, off int64) error {
	n, err := r.ReadAt(b, off)
	if n == len(b) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return err
}

func (h *headerReader) ReadByte() (byte, error) {
	var b [1]byte
	if err := readFullAt(h.r, b[:], h.off); err != nil {
		return 0, err
	}
	h.off++
	return b[0], nil
}

func (h *headerReader) next(n int) ([]byte, error) {
	b := make([]byte, n)
	if err := readFullAt(h.r, b, h.off); err != nil {
		return nil, err
	}
	h.off += int64(n)
	return b, nil
}

func (h *headerReader) uvarint() (uint64, error) {
	v, err := binary.ReadUvarint(h)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrCorruptHeader, err)
	}
	return v, nil
}

func (h *headerReader) jsonBlock(v any) error {
	size, err := h.next(4)
	if err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(size)
	if n > maxPropertiesSize {
		return fmt.Errorf("%w: properties of %d bytes", ErrCorruptHeader, n)
	}
	b, err := h.next(int(n))
	if err != nil {
		return err
	}
	if err = json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptHeader, err)
	}
	return nil
}

func readLayout(r io.ReaderAt) (layout, error) {
	h := &headerReader{r: r}
	magic, err := h.next(len(FileMagic))
	if err != nil {
		return layout{}, fmt.Errorf("%w: %w", ErrUnknownFormat, err)
	}

	var l layout
	switch {
	case string(magic) == FileMagic:
		l.format = FormatKeyvi
		err = readKeyviHeader(h, &l)
	case binary.BigEndian.Uint32(magic) == CodecMagic:
		l.format = FormatContainer
		h.off = 4
		err = readContainerHeader(h, &l)
	default:
		return layout{}, ErrUnknownFormat
	}
	if err != nil {
		return layout{}, err
	}
	l.labelsOffset = h.off
	l.transitionsOffset = h.off + int64(l.size)
	return l, nil
}

func parseUint(field, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrCorruptHeader, field, err)
	}
	return v, nil
}

func readKeyviHeader(h *headerReader, l *layout) error {
	var props keyviProperties
	if err := h.jsonBlock(&props); err != nil {
		return err
	}
	if props.Version != strconv.Itoa(CodecVersion) {
		return fmt.Errorf("%w: automaton %q", ErrUnsupportedVersion, props.Version)
	}

	fields := []struct {
		name string
		s    string
		dst  *uint64
	}{
		{"start_state", props.StartState, &l.header.StartState},
		{"number_of_keys", props.NumberOfKeys, &l.header.NumberOfKeys},
		{"number_of_states", props.NumberOfStates, &l.header.NumberOfStates},
		{"value_store_type", props.ValueStoreType, &l.header.ValueStoreType},
	}
	for _, f := range fields {
		v, err := parseUint(f.name, f.s)
		if err != nil {
			return err
		}
		*f.dst = v
	}

	var sparse sparsearray.Properties
	if err := h.jsonBlock(&sparse); err != nil {
		return err
	}
	if sparse.Version != strconv.Itoa(sparsearray.PersistenceVersion) {
		return fmt.Errorf("%w: sparse array %q", ErrUnsupportedVersion, sparse.Version)
	}
	size, err := parseUint("size", sparse.Size)
	l.size = size
	return err
}

func readContainerHeader(h *headerReader, l *layout) error {
	n, err := h.uvarint()
	if err != nil {
		return err
	}
	if n != uint64(len(CodecName)) {
		return fmt.Errorf("%w: codec name of %d bytes", ErrCorruptHeader, n)
	}
	name, err := h.next(int(n))
	if err != nil {
		return err
	}
	if !bytes.Equal(name, []byte(CodecName)) {
		return fmt.Errorf("%w: codec %q", ErrUnknownFormat, name)
	}
	version, err := h.next(4)
	if err != nil {
		return err
	}
	if v := binary.BigEndian.Uint32(version); v != CodecVersion {
		return fmt.Errorf("%w: codec %d", ErrUnsupportedVersion, v)
	}

	for _, dst := range []*uint64{
		&l.header.StartState, &l.header.NumberOfKeys, &l.header.NumberOfStates, &l.header.ValueStoreType,
	} {
		if *dst, err = h.uvarint(); err != nil {
			return err
		}
	}

	persistenceVersion, err := h.uvarint()
	if err != nil {
		return err
	}
	if persistenceVersion != sparsearray.PersistenceVersion {
		return fmt.Errorf("%w: sparse array %d", ErrUnsupportedVersion, persistenceVersion)
	}
	l.size, err = h.uvarint()
	return err
}
