package segment

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer/snapshot"
)

// Writer persists snapshots under dataDir and prunes old ones.
type Writer struct {
	dataDir string
	retain  int
	logger  *slog.Logger
}

// NewWriter creates a Writer keeping the newest retain snapshots (at least
// one, the one being served).
func NewWriter(dataDir string, retain int) *Writer {
	if retain < 1 {
		retain = 1
	}
	return &Writer{
		dataDir: dataDir,
		retain:  retain,
		logger:  slog.Default().With("component", "segment-writer"),
	}
}

// Write persists s and then points CURRENT at it. Everything is written into
// a temporary directory that is fsynced and renamed before CURRENT is
// swapped, so on any error the previously committed snapshot stays current.
// ctx is checked between artifacts; a cancelled write removes its temporary
// files.
func (w *Writer) Write(ctx context.Context, s *snapshot.Snapshot) (dir string, err error) {
	meta := s.Meta()
	if meta.BuildID == "" {
		return "", fmt.Errorf("snapshot has no build id")
	}
	if err := os.MkdirAll(w.dataDir, 0o755); err != nil {
		return "", fmt.Errorf("creating index directory: %w", err)
	}

	name := DirName(meta.BuildID)
	finalPath := filepath.Join(w.dataDir, name)
	tmpPath := finalPath + tmpSuffix
	if err := os.RemoveAll(tmpPath); err != nil {
		return "", fmt.Errorf("clearing stale temp directory: %w", err)
	}
	if err := os.Mkdir(tmpPath, 0o755); err != nil {
		return "", fmt.Errorf("creating temp directory: %w", err)
	}
	defer func() {
		if err != nil {
			if rmErr := os.RemoveAll(tmpPath); rmErr != nil {
				w.logger.Warn("removing temp snapshot", "path", tmpPath, "error", rmErr)
			}
		}
	}()

	manifest := Manifest{
		VersionTag:     VersionTag,
		BuildID:        meta.BuildID,
		CreatedAt:      meta.CreatedAt.UTC(),
		Model:          meta.Model,
		Dimension:      s.Dimension(),
		Count:          s.Len(),
		Skipped:        meta.Skipped,
		VocabularySize: s.Vectorizer().VocabularySize(),
		Lexical:        s.Vectorizer().Options(),
		Artifacts:      make(map[string]Artifact, 3),
	}

	steps := []struct {
		file  string
		write func(io.Writer, *snapshot.Snapshot) error
	}{
		{DenseFile, writeDense},
		{LexicalFile, writeLexical},
		{RecordsFile, writeRecords},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("writing %s: %w", step.file, err)
		}
		art, err := writeArtifact(filepath.Join(tmpPath, step.file), func(w io.Writer) error {
			return step.write(w, s)
		})
		if err != nil {
			return "", fmt.Errorf("writing %s: %w", step.file, err)
		}
		manifest.Artifacts[step.file] = art
	}

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("writing manifest: %w", err)
	}
	if _, err := writeArtifact(filepath.Join(tmpPath, ManifestFile), func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(manifest)
	}); err != nil {
		return "", fmt.Errorf("writing manifest: %w", err)
	}
	if err := syncDir(tmpPath); err != nil {
		return "", err
	}

	if err := os.RemoveAll(finalPath); err != nil {
		return "", fmt.Errorf("clearing previous directory for build %s: %w", meta.BuildID, err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming snapshot directory: %w", err)
	}
	if err := w.commit(name); err != nil {
		_ = os.RemoveAll(finalPath)
		return "", err
	}

	w.prune(name)
	return finalPath, nil
}

// commit atomically replaces CURRENT with name.
func (w *Writer) commit(name string) error {
	currentPath := filepath.Join(w.dataDir, CurrentFile)
	tmp := currentPath + tmpSuffix
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating CURRENT: %w", err)
	}
	if _, err := f.WriteString(name + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("writing CURRENT: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing CURRENT: %w", err)
	}
	f.Close()
	if err := os.Rename(tmp, currentPath); err != nil {
		return fmt.Errorf("renaming CURRENT: %w", err)
	}
	return syncDir(w.dataDir)
}

// prune removes stale temp directories and all but the newest retain
// snapshots. current is always kept. Failures are logged, not returned: the
// new snapshot is already committed.
func (w *Writer) prune(current string) {
	entries, err := os.ReadDir(w.dataDir)
	if err != nil {
		w.logger.Warn("listing snapshots for pruning", "error", err)
		return
	}
	type candidate struct {
		name    string
		modTime int64
	}
	var old []candidate
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), dirPrefix) || e.Name() == current {
			continue
		}
		if strings.HasSuffix(e.Name(), tmpSuffix) {
			w.remove(e.Name())
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		old = append(old, candidate{name: e.Name(), modTime: info.ModTime().UnixNano()})
	}
	sort.Slice(old, func(i, j int) bool { return old[i].modTime > old[j].modTime })
	for i, c := range old {
		if i+1 >= w.retain {
			w.remove(c.name)
		}
	}
}

func (w *Writer) remove(name string) {
	if err := os.RemoveAll(filepath.Join(w.dataDir, name)); err != nil {
		w.logger.Warn("pruning snapshot", "name", name, "error", err)
		return
	}
	w.logger.Debug("pruned snapshot", "name", name)
}

// writeArtifact creates path, streams content through fn while computing its
// size and checksum, and fsyncs it.
func writeArtifact(path string, fn func(io.Writer) error) (Artifact, error) {
	f, err := os.Create(path)
	if err != nil {
		return Artifact{}, err
	}
	defer f.Close()

	crc := crc32.NewIEEE()
	counter := &countingWriter{}
	bw := bufio.NewWriterSize(io.MultiWriter(f, crc, counter), 1<<16)
	if err := fn(bw); err != nil {
		return Artifact{}, err
	}
	if err := bw.Flush(); err != nil {
		return Artifact{}, err
	}
	if err := f.Sync(); err != nil {
		return Artifact{}, fmt.Errorf("syncing: %w", err)
	}
	return Artifact{Size: counter.n, CRC32: crc.Sum32()}, nil
}

func writeDense(w io.Writer, s *snapshot.Snapshot) error {
	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], DenseMagic)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(s.Len()))
	binary.LittleEndian.PutUint32(header[12:16], uint32(s.Dimension()))
	binary.LittleEndian.PutUint64(header[16:24], uint64(s.Meta().CreatedAt.Unix()))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	payload := crc32.NewIEEE()
	out := io.MultiWriter(w, payload)
	for i := 0; i < s.Len(); i++ {
		if err := binary.Write(out, binary.LittleEndian, s.DenseAt(i)); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}
	return writeFooter(w, payload.Sum32())
}

func writeLexical(w io.Writer, s *snapshot.Snapshot) error {
	vec := s.Vectorizer()
	vocab, err := json.Marshal(vocabulary{
		Options: vec.Options(),
		Terms:   vec.Terms(),
		IDF:     vec.IDF(),
	})
	if err != nil {
		return fmt.Errorf("marshaling vocabulary: %w", err)
	}

	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], LexicalMagic)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(s.Len()))
	binary.LittleEndian.PutUint32(header[12:16], uint32(vec.VocabularySize()))
	binary.LittleEndian.PutUint64(header[16:24], uint64(s.Meta().CreatedAt.Unix()))
	binary.LittleEndian.PutUint64(header[24:32], uint64(len(vocab)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	payload := crc32.NewIEEE()
	out := io.MultiWriter(w, payload)
	if _, err := out.Write(vocab); err != nil {
		return fmt.Errorf("writing vocabulary: %w", err)
	}
	var nnz [4]byte
	for i := 0; i < s.Len(); i++ {
		row := s.LexicalAt(i)
		binary.LittleEndian.PutUint32(nnz[:], uint32(row.Len()))
		if _, err := out.Write(nnz[:]); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
		if err := binary.Write(out, binary.LittleEndian, row.Indices); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
		if err := binary.Write(out, binary.LittleEndian, row.Values); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}
	return writeFooter(w, payload.Sum32())
}

func writeRecords(w io.Writer, s *snapshot.Snapshot) error {
	enc := json.NewEncoder(w)
	for i := 0; i < s.Len(); i++ {
		e, err := s.RecordAt(i)
		if err != nil {
			return err
		}
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encoding record %d: %w", i, err)
		}
	}
	return nil
}

func writeFooter(w io.Writer, crc uint32) error {
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc)
	if _, err := w.Write(footer); err != nil {
		return fmt.Errorf("writing footer: %w", err)
	}
	return nil
}

func syncDir(path string) error {
	d, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening directory for sync: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("syncing directory %s: %w", path, err)
	}
	return nil
}

type countingWriter struct{ n int64 }

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
