package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
)

// MemReport provides a detailed, hierarchical memory usage report for a component.
type MemReport struct {
	Name       string      `json:"name"`
	TotalBytes int         `json:"total_bytes"`
	Children   []MemReport `json:"children,omitempty"`
}

// NewMemReport builds a report whose total is the sum of its children.
func NewMemReport(name string, children ...MemReport) MemReport {
	r := MemReport{Name: name, Children: children}
	for _, c := range children {
		r.TotalBytes += c.TotalBytes
	}
	return r
}

// Leaf builds a report without children.
func Leaf(name string, bytes int) MemReport {
	return MemReport{Name: name, TotalBytes: bytes}
}

// Print writes the MemReport as a tree to w.
func (r MemReport) Print(w io.Writer) error {
	_, err := io.WriteString(w, r.String())
	return err
}

// JSON returns a JSON string representation of the MemReport.
func (r MemReport) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"error": "%s"}`, err.Error())
	}
	return string(b)
}

// String returns a string representation of the MemReport as a tree.
func (r MemReport) String() string {
	var sb strings.Builder
	r.buildString(&sb, 0)
	return sb.String()
}

func (r MemReport) buildString(sb *strings.Builder, indent int) {
	prefix := strings.Repeat("  ", indent)
	fmt.Fprintf(sb, "%s- %s: %s\n", prefix, r.Name, humanize.IBytes(uint64(max(r.TotalBytes, 0))))
	for _, child := range r.Children {
		child.buildString(sb, indent+1)
	}
}
