// Package trajectory records propagated states as zstd-compressed msgpack.
package trajectory

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/opd-ai/go-deadreckon/pkg/physics"
)

// Extension is the conventional suffix of recording files.
const Extension = ".msgpack.zst"

// Trajectory is the ordered sequence of states of one body
type Trajectory struct {
	Name   string                `msgpack:"name"`
	Class  string                `msgpack:"class"`
	States []physics.StateVector `msgpack:"states"`
}

// Final returns the last recorded state, or the zero state if there is none.
func (t *Trajectory) Final() physics.StateVector {
	if len(t.States) == 0 {
		return physics.StateVector{}
	}
	return t.States[len(t.States)-1]
}

// Write encodes the trajectory to w.
func (t *Trajectory) Write(w io.Writer) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	if err := msgpack.NewEncoder(zw).Encode(t); err != nil {
		zw.Close()
		return fmt.Errorf("encoding trajectory: %w", err)
	}
	return zw.Close()
}

// Read decodes a trajectory written by Write.
func Read(r io.Reader) (*Trajectory, error) {
	zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var t Trajectory
	if err := msgpack.NewDecoder(zr).Decode(&t); err != nil {
		return nil, fmt.Errorf("decoding trajectory: %w", err)
	}
	return &t, nil
}

// WriteFile writes the trajectory to path, replacing any existing file.
func (t *Trajectory) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := t.Write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFile reads a trajectory recorded with WriteFile.
func ReadFile(path string) (*Trajectory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := Read(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// WriteText writes one canonical state line per recorded state.
func (t *Trajectory) WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)
	for _, s := range t.States {
		if _, err := fmt.Fprintln(bw, s.String()); err != nil {
			return err
		}
	}
	return bw.Flush()
}
