//go:build !unix

package memmap

import "os"

// Without mmap the chunk lives on the heap and Persist writes it out.

func mapFile(_ *os.File, size int) ([]byte, error) {
	return make([]byte, size), nil
}

func unmap([]byte) error {
	return nil
}

func syncChunk(c *chunk) error {
	_, err := c.file.WriteAt(c.data, 0)
	return err
}
