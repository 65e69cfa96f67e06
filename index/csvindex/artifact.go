package csvindex

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"

	"github.com/hupe1980/tablo/blobstore"
	"github.com/hupe1980/tablo/codec"
	"github.com/hupe1980/tablo/index"
)

// Artifact format:
//
//	magic    [4]byte "TIDX"
//	version  uint32
//	complete uint8
//	hash     [32]byte  sha256 of the dataset file
//	codec    uint16-prefixed name
//	comp     uint16-prefixed name
//	rawLen   uint64    uncompressed payload length
//	bodyLen  uint64    stored payload length
//	body     []byte    codec-encoded, compressed payload
//
// The artifact is derived state: it can always be rebuilt from the
// dataset, and a crash mid-write never touches the dataset itself.

var artifactMagic = [4]byte{'T', 'I', 'D', 'X'}

const artifactVersion uint32 = 1

// maxArtifactPayload caps the header-declared body and raw lengths. The
// header is untrusted input: a corrupted length field must fail the load
// as ArtifactCorrupted, not drive an allocation.
const maxArtifactPayload = 1 << 31

// ArtifactStatus classifies a persisted index artifact relative to its
// dataset before it is trusted.
type ArtifactStatus int

const (
	// ArtifactNew means no artifact exists yet.
	ArtifactNew ArtifactStatus = iota

	// ArtifactIndexed means the artifact is complete and matches the dataset.
	ArtifactIndexed

	// ArtifactIncomplete means the artifact was written by an unfinished build.
	ArtifactIncomplete

	// ArtifactCorrupted means the artifact bytes cannot be trusted.
	ArtifactCorrupted

	// ArtifactWrongInput means the artifact was built from a different dataset.
	ArtifactWrongInput
)

// String returns a human-readable status name.
func (s ArtifactStatus) String() string {
	switch s {
	case ArtifactNew:
		return "new"
	case ArtifactIndexed:
		return "indexed"
	case ArtifactIncomplete:
		return "incomplete"
	case ArtifactCorrupted:
		return "corrupted"
	case ArtifactWrongInput:
		return "wrong input"
	default:
		return "unknown"
	}
}

// ErrArtifactUnavailable is returned when an artifact cannot be loaded in
// its current state.
type ErrArtifactUnavailable struct {
	Status ArtifactStatus
}

func (e *ErrArtifactUnavailable) Error() string {
	return fmt.Sprintf("csvindex: artifact unavailable (%s)", e.Status)
}

// ErrNoDatasetPath is returned when the engine's accessor does not expose
// a dataset path, which artifact hashing requires.
var ErrNoDatasetPath = errors.New("csvindex: accessor exposes no dataset path")

type artifactRow struct {
	Offset int64 `json:"o"`
	Length int   `json:"l"`
	Flag   byte  `json:"f"`
}

type artifactSummary struct {
	Rows          int   `json:"rows"`
	Included      int   `json:"included"`
	Excluded      int   `json:"excluded"`
	Skipped       int   `json:"skipped"`
	Keys          int   `json:"keys"`
	DurationNanos int64 `json:"duration_nanos"`
}

type artifactPayload struct {
	Fields  []string          `json:"fields,omitempty"`
	Rows    []artifactRow     `json:"rows"`
	Entries map[string]uint32 `json:"entries"`
	Include []byte            `json:"include"`
	Exclude []byte            `json:"exclude"`
	Skip    []byte            `json:"skip"`
	Summary artifactSummary   `json:"summary"`
}

func (e *Engine) datasetPath() (string, error) {
	p, ok := e.src.(interface{ Path() string })
	if !ok {
		return "", ErrNoDatasetPath
	}
	return p.Path(), nil
}

// datasetHash computes the sha256 digest of the dataset file using a
// bounded copy buffer.
func (e *Engine) datasetHash() ([sha256.Size]byte, error) {
	var sum [sha256.Size]byte

	path, err := e.datasetPath()
	if err != nil {
		return sum, err
	}

	f, err := e.opts.FileSystem.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return sum, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.CopyBuffer(h, f, make([]byte, 64*1024)); err != nil {
		return sum, err
	}
	copy(sum[:], h.Sum(nil))

	return sum, nil
}

// WriteArtifact serializes the active index to w. It fails with
// ErrNotReady when no completed index exists.
func (e *Engine) WriteArtifact(w io.Writer) error {
	snap := e.active.Load()
	if snap == nil {
		return index.ErrNotReady
	}

	hash, err := e.datasetHash()
	if err != nil {
		return fmt.Errorf("csvindex: hash dataset: %w", err)
	}

	include, exclude, skip, err := snap.flags.marshal()
	if err != nil {
		return fmt.Errorf("csvindex: marshal flag sets: %w", err)
	}

	payload := artifactPayload{
		Fields:  snap.fields,
		Rows:    make([]artifactRow, len(snap.rows)),
		Entries: make(map[string]uint32, len(snap.entries)),
		Include: include,
		Exclude: exclude,
		Skip:    skip,
		Summary: artifactSummary{
			Rows:          snap.summary.Rows,
			Included:      snap.summary.Included,
			Excluded:      snap.summary.Excluded,
			Skipped:       snap.summary.Skipped,
			Keys:          snap.summary.Keys,
			DurationNanos: snap.summary.Duration.Nanoseconds(),
		},
	}
	for i, ref := range snap.rows {
		payload.Rows[i] = artifactRow{Offset: ref.Offset, Length: ref.Length, Flag: byte(ref.Flag)}
	}
	for key, ref := range snap.entries {
		payload.Entries[key] = ref.Ordinal
	}

	c := e.opts.Codec
	if c == nil {
		c = codec.Default
	}
	raw, err := c.Marshal(payload)
	if err != nil {
		return fmt.Errorf("csvindex: encode artifact: %w", err)
	}

	body, applied, err := e.opts.Compression.compress(raw)
	if err != nil {
		return fmt.Errorf("csvindex: compress artifact: %w", err)
	}

	return writeArtifact(w, artifactHeader{
		complete: true,
		hash:     hash,
		codec:    c.Name(),
		comp:     string(applied),
		rawLen:   uint64(len(raw)),
	}, body)
}

type artifactHeader struct {
	complete bool
	hash     [sha256.Size]byte
	codec    string
	comp     string
	rawLen   uint64
}

func writeArtifact(w io.Writer, h artifactHeader, body []byte) error {
	if _, err := w.Write(artifactMagic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, artifactVersion); err != nil {
		return err
	}
	complete := uint8(0)
	if h.complete {
		complete = 1
	}
	if err := binary.Write(w, binary.LittleEndian, complete); err != nil {
		return err
	}
	if _, err := w.Write(h.hash[:]); err != nil {
		return err
	}
	if err := writeLenString(w, h.codec); err != nil {
		return err
	}
	if err := writeLenString(w, h.comp); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, h.rawLen); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(body))); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

func writeLenString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint16(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readLenString(r io.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readArtifactHeader(r io.Reader) (artifactHeader, error) {
	var h artifactHeader

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return h, err
	}
	if magic != artifactMagic {
		return h, fmt.Errorf("csvindex: bad artifact magic %q", magic)
	}

	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return h, err
	}
	if version != artifactVersion {
		return h, fmt.Errorf("csvindex: unsupported artifact version %d", version)
	}

	var complete uint8
	if err := binary.Read(r, binary.LittleEndian, &complete); err != nil {
		return h, err
	}
	h.complete = complete == 1

	if _, err := io.ReadFull(r, h.hash[:]); err != nil {
		return h, err
	}

	var err error
	if h.codec, err = readLenString(r); err != nil {
		return h, err
	}
	if h.comp, err = readLenString(r); err != nil {
		return h, err
	}
	if err := binary.Read(r, binary.LittleEndian, &h.rawLen); err != nil {
		return h, err
	}

	return h, nil
}

// SaveArtifact writes the active index next to the dataset (or to any
// explicit path) using a temp-file-plus-rename so readers never observe a
// torn artifact.
func (e *Engine) SaveArtifact(path string) error {
	var buf bytes.Buffer
	if err := e.WriteArtifact(&buf); err != nil {
		return err
	}

	fsys := e.opts.FileSystem
	tmp := path + ".tmp"

	f, err := fsys.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("csvindex: create artifact: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		_ = fsys.Remove(tmp)
		return fmt.Errorf("csvindex: write artifact: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = fsys.Remove(tmp)
		return fmt.Errorf("csvindex: sync artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = fsys.Remove(tmp)
		return fmt.Errorf("csvindex: close artifact: %w", err)
	}

	if err := fsys.Rename(tmp, path); err != nil {
		_ = fsys.Remove(tmp)
		return fmt.Errorf("csvindex: publish artifact: %w", err)
	}

	return nil
}

// Healthcheck classifies the artifact at path against the current
// dataset, without loading it.
func (e *Engine) Healthcheck(path string) (ArtifactStatus, error) {
	fsys := e.opts.FileSystem

	if _, err := fsys.Stat(path); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return ArtifactNew, nil
		}
		return ArtifactCorrupted, err
	}

	f, err := fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return ArtifactCorrupted, err
	}
	defer f.Close()

	h, err := readArtifactHeader(f)
	if err != nil {
		// Unreadable headers mean a torn or foreign file, not an I/O
		// failure worth surfacing.
		return ArtifactCorrupted, nil
	}

	hash, err := e.datasetHash()
	if err != nil {
		return ArtifactCorrupted, err
	}
	if h.hash != hash {
		return ArtifactWrongInput, nil
	}

	if !h.complete {
		return ArtifactIncomplete, nil
	}

	return ArtifactIndexed, nil
}

// LoadArtifact restores the index from a persisted artifact. The artifact
// must be complete and match the dataset hash; on success the engine
// transitions to Ready without a rebuild.
func (e *Engine) LoadArtifact(path string) error {
	fsys := e.opts.FileSystem

	f, err := fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return &ErrArtifactUnavailable{Status: ArtifactNew}
		}
		return err
	}
	defer f.Close()

	size := int64(-1)
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}

	return e.readArtifact(f, size)
}

// readArtifact decodes an artifact from r. size is the total artifact
// length in bytes when known, or -1; it bounds the header's length fields.
func (e *Engine) readArtifact(r io.Reader, size int64) error {
	h, err := readArtifactHeader(r)
	if err != nil {
		return &ErrArtifactUnavailable{Status: ArtifactCorrupted}
	}
	if !h.complete {
		return &ErrArtifactUnavailable{Status: ArtifactIncomplete}
	}

	hash, err := e.datasetHash()
	if err != nil {
		return fmt.Errorf("csvindex: hash dataset: %w", err)
	}
	if h.hash != hash {
		return &ErrArtifactUnavailable{Status: ArtifactWrongInput}
	}

	var bodyLen uint64
	if err := binary.Read(r, binary.LittleEndian, &bodyLen); err != nil {
		return &ErrArtifactUnavailable{Status: ArtifactCorrupted}
	}
	if bodyLen > maxArtifactPayload || (size >= 0 && bodyLen > uint64(size)) {
		return &ErrArtifactUnavailable{Status: ArtifactCorrupted}
	}
	if h.rawLen > maxArtifactPayload {
		return &ErrArtifactUnavailable{Status: ArtifactCorrupted}
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return &ErrArtifactUnavailable{Status: ArtifactCorrupted}
	}

	raw, err := Compression(h.comp).decompress(body, int(h.rawLen))
	if err != nil {
		return &ErrArtifactUnavailable{Status: ArtifactCorrupted}
	}

	c, ok := codec.ByName(h.codec)
	if !ok {
		return fmt.Errorf("csvindex: unknown artifact codec %q", h.codec)
	}
	var payload artifactPayload
	if err := c.Unmarshal(raw, &payload); err != nil {
		return &ErrArtifactUnavailable{Status: ArtifactCorrupted}
	}

	snap, err := snapshotFromPayload(&payload)
	if err != nil {
		return &ErrArtifactUnavailable{Status: ArtifactCorrupted}
	}
	snap.hash = h.hash

	e.active.Store(snap)
	e.state.Store(int32(index.StateReady))

	return nil
}

func snapshotFromPayload(p *artifactPayload) (*snapshot, error) {
	flags, err := unmarshalFlagSets(p.Include, p.Exclude, p.Skip)
	if err != nil {
		return nil, err
	}

	snap := &snapshot{
		fields:  p.Fields,
		entries: make(map[string]index.RowRef, len(p.Entries)),
		rows:    make([]index.RowRef, len(p.Rows)),
		flags:   flags,
	}

	if len(p.Fields) > 0 {
		snap.columns = make(map[string]int, len(p.Fields))
		for i, name := range p.Fields {
			snap.columns[name] = i
		}
	}

	for i, row := range p.Rows {
		flag, err := index.ParseRowFlag(row.Flag)
		if err != nil {
			return nil, err
		}
		snap.rows[i] = index.RowRef{
			Ordinal: uint32(i),
			Offset:  row.Offset,
			Length:  row.Length,
			Flag:    flag,
		}
	}

	for key, ord := range p.Entries {
		if int(ord) >= len(snap.rows) {
			return nil, fmt.Errorf("csvindex: entry ordinal %d out of range", ord)
		}
		snap.entries[key] = snap.rows[ord]
	}

	snap.summary = index.BuildSummary{
		Rows:     p.Summary.Rows,
		Included: p.Summary.Included,
		Excluded: p.Summary.Excluded,
		Skipped:  p.Summary.Skipped,
		Keys:     p.Summary.Keys,
	}

	return snap, nil
}

// SaveArtifactToStore uploads the active index artifact to a blob store.
func (e *Engine) SaveArtifactToStore(ctx context.Context, store blobstore.Store, name string) error {
	var buf bytes.Buffer
	if err := e.WriteArtifact(&buf); err != nil {
		return err
	}
	return store.Put(ctx, name, bytes.NewReader(buf.Bytes()), int64(buf.Len()))
}

// LoadArtifactFromStore restores the index from a blob store object.
func (e *Engine) LoadArtifactFromStore(ctx context.Context, store blobstore.Store, name string) error {
	rc, size, err := store.Open(ctx, name)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return &ErrArtifactUnavailable{Status: ArtifactNew}
		}
		return err
	}
	defer rc.Close()

	return e.readArtifact(rc, size)
}
