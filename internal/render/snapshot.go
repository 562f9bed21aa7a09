package render

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

// SnapshotVersion is bumped when the snapshot layout changes.
const SnapshotVersion = 1

// SnapshotHeader is written as a JSON line ahead of the gob body so tools can
// identify a file without decoding it.
type SnapshotHeader struct {
	Version   int       `json:"version"`
	Tick      uint64    `json:"tick"`
	Meshes    int       `json:"meshes"`
	Triangles int       `json:"triangles"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is a point-in-time copy of every presented mesh.
type Snapshot struct {
	Header SnapshotHeader
	Meshes []Mesh
}

// NewSnapshot copies the given meshes into a snapshot.
func NewSnapshot(tick uint64, meshes []*Mesh) Snapshot {
	snap := Snapshot{
		Header: SnapshotHeader{
			Version:   SnapshotVersion,
			Tick:      tick,
			Meshes:    len(meshes),
			CreatedAt: time.Now().UTC(),
		},
		Meshes: make([]Mesh, 0, len(meshes)),
	}
	for _, m := range meshes {
		snap.Header.Triangles += m.TriangleCount()
		snap.Meshes = append(snap.Meshes, *m)
	}
	return snap
}

// WriteSnapshot writes a zstd-compressed snapshot to path, creating parent
// directories as needed.
func WriteSnapshot(path string, snap Snapshot) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
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
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(snap.Header)
	if err != nil {
		enc.Close()
		return fmt.Errorf("header encode: %w", err)
	}
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// ReadSnapshot reads a snapshot written by WriteSnapshot.
func ReadSnapshot(path string) (Snapshot, error) {
	var snap Snapshot
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

	br := bufio.NewReaderSize(dec, 256*1024)

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != SnapshotVersion {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadSnapshotHeader decodes only the leading JSON header line.
func ReadSnapshotHeader(path string) (SnapshotHeader, error) {
	var h SnapshotHeader
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("header decode: %w", err)
	}
	return h, nil
}
