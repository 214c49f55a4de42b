// Package snapshot writes the state of every agent at the end of a run as
// zstd-compressed JSON lines: one header line, then one line per agent.
package snapshot

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"

	"github.com/abmlux/episim/sim"
)

// HeaderV1 is the first line of a snapshot.
type HeaderV1 struct {
	Version int       `json:"version"`
	RunID   string    `json:"run_id"`
	Tick    int64     `json:"tick"`
	Time    time.Time `json:"time"`
	Agents  int       `json:"agents"`
}

// AgentV1 is one agent's final state.
type AgentV1 struct {
	ID       int    `json:"id"`
	Age      int    `json:"age"`
	Region   string `json:"region"`
	Health   string `json:"health"`
	Activity string `json:"activity"`
	Location int    `json:"location"`
	Strain   string `json:"strain,omitempty"`
}

// SnapshotV1 is a decoded snapshot.
type SnapshotV1 struct {
	Header HeaderV1
	Agents []AgentV1
}

// InfectionFunc reports the strain an agent carries, if any.
type InfectionFunc func(id sim.AgentID) (string, bool)

// Writer is a component that writes a snapshot to Path when the simulation
// ends.
type Writer struct {
	Path      string
	Infection InfectionFunc
	err       error
}

// NewWriter creates a snapshot writer. infection may be nil.
func NewWriter(path string, infection InfectionFunc) *Writer {
	return &Writer{Path: path, Infection: infection}
}

func (w *Writer) Name() string { return "snapshot" }

func (w *Writer) InitSim(s *sim.Simulator) error {
	sim.Listen(s.Bus(), w.Name(), func(ev sim.SimulationEnded) {
		if err := w.Write(ev.Sim); err != nil {
			logrus.Errorf("writing snapshot %s: %v", w.Path, err)
			w.err = err
			return
		}
		logrus.Infof("Snapshot written to %s", w.Path)
	})
	return nil
}

// Err returns the error from the end-of-run write, if any.
func (w *Writer) Err() error { return w.err }

// Write writes the current state of s to w.Path.
func (w *Writer) Write(s *sim.Simulator) (err error) {
	if err := os.MkdirAll(filepath.Dir(w.Path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.Path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if err := w.encode(enc, s); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func (w *Writer) encode(out io.Writer, s *sim.Simulator) error {
	bw := bufio.NewWriterSize(out, 256*1024)
	je := json.NewEncoder(bw)

	world := s.World()
	header := HeaderV1{
		Version: 1,
		RunID:   s.RunID(),
		Tick:    s.Clock().T(),
		Time:    s.Clock().Now(),
		Agents:  world.NumAgents(),
	}
	if err := je.Encode(header); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	for _, a := range world.Agents() {
		rec := AgentV1{
			ID:       int(a.ID()),
			Age:      a.Age(),
			Region:   a.Region(),
			Health:   string(a.Health()),
			Activity: string(a.Activity()),
			Location: int(a.Location()),
		}
		if w.Infection != nil {
			rec.Strain, _ = w.Infection(a.ID())
		}
		if err := je.Encode(rec); err != nil {
			return fmt.Errorf("encode agent %d: %w", a.ID(), err)
		}
	}
	return bw.Flush()
}

// maxPreallocAgents bounds the slice capacity Read reserves up front.
const maxPreallocAgents = 1 << 16

// Read decodes the snapshot at path.
func Read(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	jd := json.NewDecoder(bufio.NewReaderSize(dec, 256*1024))
	if err := jd.Decode(&snap.Header); err != nil {
		return snap, fmt.Errorf("decode header: %w", err)
	}
	if snap.Header.Version != 1 {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	if snap.Header.Agents < 0 {
		return snap, fmt.Errorf("snapshot header has negative agent count %d", snap.Header.Agents)
	}
	// The header is not trusted for sizing; the count is checked after reading.
	snap.Agents = make([]AgentV1, 0, min(snap.Header.Agents, maxPreallocAgents))
	for {
		var a AgentV1
		if err := jd.Decode(&a); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return snap, fmt.Errorf("decode agent %d: %w", len(snap.Agents), err)
		}
		snap.Agents = append(snap.Agents, a)
	}
	if len(snap.Agents) != snap.Header.Agents {
		return snap, fmt.Errorf("snapshot has %d agents, header says %d", len(snap.Agents), snap.Header.Agents)
	}
	return snap, nil
}
