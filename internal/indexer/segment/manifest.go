// Package segment persists index snapshots. Each snapshot is a directory of
// three co-located artifacts (dense matrix, lexical model, record list) plus
// a manifest carrying the format version tag and per-artifact checksums. A
// CURRENT file names the directory being served; it is replaced atomically
// only after the new directory is fully written, so a crash never leaves the
// previous snapshot unusable.
package segment

import (
	"time"

	"github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/internal/indexer/lexical"
)

const (
	// VersionTag identifies the on-disk layout. Loading any other tag fails.
	VersionTag = "book-search-snapshot/v1"

	FormatVersion uint32 = 1
	DenseMagic    uint32 = 0x4253444E // "BSDN"
	LexicalMagic  uint32 = 0x4253584C // "BSXL"
	HeaderSize    int    = 32
	FooterSize    int    = 8

	CurrentFile  = "CURRENT"
	ManifestFile = "manifest.json"
	DenseFile    = "dense.bin"
	LexicalFile  = "lexical.bin"
	RecordsFile  = "records.jsonl"

	dirPrefix = "snap-"
	tmpSuffix = ".tmp"
)

// Artifact records the size and CRC-32 (IEEE) of one file.
type Artifact struct {
	Size  int64  `json:"size"`
	CRC32 uint32 `json:"crc32"`
}

// Manifest describes a persisted snapshot.
type Manifest struct {
	VersionTag     string              `json:"version_tag"`
	BuildID        string              `json:"build_id"`
	CreatedAt      time.Time           `json:"created_at"`
	Model          string              `json:"model"`
	Dimension      int                 `json:"dimension"`
	Count          int                 `json:"count"`
	Skipped        int                 `json:"skipped"`
	VocabularySize int                 `json:"vocabulary_size"`
	Lexical        lexical.Options     `json:"lexical"`
	Artifacts      map[string]Artifact `json:"artifacts"`
}

// vocabulary is the JSON section at the start of lexical.bin.
type vocabulary struct {
	Options lexical.Options `json:"options"`
	Terms   []string        `json:"terms"`
	IDF     []float64       `json:"idf"`
}

// DirName returns the directory name used for a build.
func DirName(buildID string) string {
	return dirPrefix + buildID
}
