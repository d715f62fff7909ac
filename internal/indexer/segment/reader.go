package segment

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer/lexical"
	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer/snapshot"
	apperrors "github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/errors"
)

// ErrNoSnapshot means dataDir has never had a snapshot committed.
var ErrNoSnapshot = errors.New("no persisted snapshot")

// Current returns the directory name CURRENT points at.
func Current(dataDir string) (string, error) {
	b, err := os.ReadFile(filepath.Join(dataDir, CurrentFile))
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNoSnapshot
	}
	if err != nil {
		return "", fmt.Errorf("reading CURRENT: %w", err)
	}
	name := strings.TrimSpace(string(b))
	if name == "" || strings.ContainsAny(name, `/\`) || !strings.HasPrefix(name, dirPrefix) {
		return "", fmt.Errorf("%w: CURRENT holds %q", apperrors.ErrCorruptSnapshot, name)
	}
	return name, nil
}

// Load reads the snapshot CURRENT points at. It returns ErrNoSnapshot when
// nothing was ever committed and ErrCorruptSnapshot when the artifacts do not
// match their manifest or each other.
func Load(dataDir string) (*snapshot.Snapshot, *Manifest, error) {
	name, err := Current(dataDir)
	if err != nil {
		return nil, nil, err
	}
	return LoadDir(filepath.Join(dataDir, name))
}

// ReadManifest reads and checks the manifest in dir without loading the
// artifacts.
func ReadManifest(dir string) (*Manifest, error) {
	b, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("%w: reading manifest: %v", apperrors.ErrCorruptSnapshot, err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%w: parsing manifest: %v", apperrors.ErrCorruptSnapshot, err)
	}
	if m.VersionTag != VersionTag {
		return nil, fmt.Errorf("%w: version tag %q, want %q", apperrors.ErrCorruptSnapshot, m.VersionTag, VersionTag)
	}
	return &m, nil
}

// LoadDir loads all three artifacts of one snapshot directory together.
func LoadDir(dir string) (*snapshot.Snapshot, *Manifest, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, nil, err
	}

	files := make(map[string][]byte, 3)
	for _, name := range []string{DenseFile, LexicalFile, RecordsFile} {
		art, ok := m.Artifacts[name]
		if !ok {
			return nil, nil, corrupt("manifest has no entry for %s", name)
		}
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, nil, corrupt("reading %s: %v", name, err)
		}
		if int64(len(b)) != art.Size || crc32.ChecksumIEEE(b) != art.CRC32 {
			return nil, nil, corrupt("%s does not match manifest checksum", name)
		}
		files[name] = b
	}

	dense, err := readDense(files[DenseFile], m)
	if err != nil {
		return nil, nil, err
	}
	vec, rows, err := readLexical(files[LexicalFile], m)
	if err != nil {
		return nil, nil, err
	}
	entries, err := readRecords(files[RecordsFile], m)
	if err != nil {
		return nil, nil, err
	}

	snap, err := snapshot.New(snapshot.Meta{
		BuildID:   m.BuildID,
		CreatedAt: m.CreatedAt,
		Model:     m.Model,
		Skipped:   m.Skipped,
	}, entries, dense, rows, vec)
	if err != nil {
		return nil, nil, err
	}
	return snap, m, nil
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", apperrors.ErrCorruptSnapshot, fmt.Sprintf(format, args...))
}

// checkFrame validates header magic and version and the payload checksum in
// the footer, returning the header and the payload.
func checkFrame(b []byte, magic uint32, name string) (header, payload []byte, err error) {
	if len(b) < HeaderSize+FooterSize {
		return nil, nil, corrupt("%s is truncated", name)
	}
	header = b[:HeaderSize]
	if got := binary.LittleEndian.Uint32(header[0:4]); got != magic {
		return nil, nil, corrupt("%s has bad magic bytes %x", name, got)
	}
	if v := binary.LittleEndian.Uint32(header[4:8]); v != FormatVersion {
		return nil, nil, corrupt("%s has format version %d, want %d", name, v, FormatVersion)
	}
	payload = b[HeaderSize : len(b)-FooterSize]
	footer := b[len(b)-FooterSize:]
	if crc32.ChecksumIEEE(payload) != binary.LittleEndian.Uint32(footer[0:4]) {
		return nil, nil, corrupt("%s payload checksum mismatch", name)
	}
	return header, payload, nil
}

func readDense(b []byte, m *Manifest) ([][]float32, error) {
	header, payload, err := checkFrame(b, DenseMagic, DenseFile)
	if err != nil {
		return nil, err
	}
	rows := int(binary.LittleEndian.Uint32(header[8:12]))
	dim := int(binary.LittleEndian.Uint32(header[12:16]))
	if rows != m.Count || dim != m.Dimension {
		return nil, corrupt("%s is %dx%d, manifest says %dx%d", DenseFile, rows, dim, m.Count, m.Dimension)
	}
	if len(payload) != rows*dim*4 {
		return nil, corrupt("%s payload has %d bytes, want %d", DenseFile, len(payload), rows*dim*4)
	}
	flat := make([]float32, rows*dim)
	if err := binary.Read(bytes.NewReader(payload), binary.LittleEndian, flat); err != nil {
		return nil, corrupt("decoding %s: %v", DenseFile, err)
	}
	out := make([][]float32, rows)
	for i := range out {
		out[i] = flat[i*dim : (i+1)*dim]
	}
	return out, nil
}

func readLexical(b []byte, m *Manifest) (*lexical.Vectorizer, []lexical.Vector, error) {
	header, payload, err := checkFrame(b, LexicalMagic, LexicalFile)
	if err != nil {
		return nil, nil, err
	}
	rows := int(binary.LittleEndian.Uint32(header[8:12]))
	vocabSize := int(binary.LittleEndian.Uint32(header[12:16]))
	vocabLen := binary.LittleEndian.Uint64(header[24:32])
	if rows != m.Count || vocabSize != m.VocabularySize {
		return nil, nil, corrupt("%s has %d rows and %d terms, manifest says %d and %d",
			LexicalFile, rows, vocabSize, m.Count, m.VocabularySize)
	}
	if vocabLen > uint64(len(payload)) {
		return nil, nil, corrupt("%s vocabulary section overruns file", LexicalFile)
	}

	var vocab vocabulary
	if err := json.Unmarshal(payload[:vocabLen], &vocab); err != nil {
		return nil, nil, corrupt("decoding vocabulary: %v", err)
	}
	if len(vocab.Terms) != vocabSize {
		return nil, nil, corrupt("vocabulary has %d terms, header says %d", len(vocab.Terms), vocabSize)
	}
	vec, err := lexical.Restore(vocab.Options, vocab.Terms, vocab.IDF)
	if err != nil {
		return nil, nil, corrupt("restoring vectorizer: %v", err)
	}

	r := bytes.NewReader(payload[vocabLen:])
	out := make([]lexical.Vector, rows)
	for i := range out {
		var nnz uint32
		if err := binary.Read(r, binary.LittleEndian, &nnz); err != nil {
			return nil, nil, corrupt("decoding lexical row %d: %v", i, err)
		}
		if int64(nnz)*8 > int64(r.Len()) {
			return nil, nil, corrupt("lexical row %d overruns file", i)
		}
		if nnz == 0 {
			continue
		}
		row := lexical.Vector{Indices: make([]int32, nnz), Values: make([]float32, nnz)}
		if err := binary.Read(r, binary.LittleEndian, row.Indices); err != nil {
			return nil, nil, corrupt("decoding lexical row %d: %v", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, row.Values); err != nil {
			return nil, nil, corrupt("decoding lexical row %d: %v", i, err)
		}
		out[i] = row
	}
	if r.Len() != 0 {
		return nil, nil, corrupt("%s has %d trailing bytes", LexicalFile, r.Len())
	}
	return vec, out, nil
}

func readRecords(b []byte, m *Manifest) ([]snapshot.Entry, error) {
	entries := make([]snapshot.Entry, 0, m.Count)
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var e snapshot.Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, corrupt("decoding record %d: %v", len(entries), err)
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return nil, corrupt("scanning %s: %v", RecordsFile, err)
	}
	if len(entries) != m.Count {
		return nil, corrupt("%s has %d records, manifest says %d", RecordsFile, len(entries), m.Count)
	}
	return entries, nil
}
