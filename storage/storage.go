// File: storage/storage.go
package storage

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"voting-ledger/models"
)

const (
	archivePrefix   = "ledger_chain_"
	archiveLayout   = "20060102150405.000000000"
	DefaultKeepLast = 5
)

// ErrEmptyChain is returned when asked to archive a chain with no entries
var ErrEmptyChain = errors.New("storage: cannot archive empty chain")

// ChainExport is the on-disk form of one archived chain
type ChainExport struct {
	ExportedAt time.Time              `json:"exported_at"`
	IsValid    bool                   `json:"is_valid"`
	Length     int                    `json:"chain_length"`
	Chain      []models.ExportedEntry `json:"chain"`
}

// ChainArchive writes timestamped exports of the ledger for audit and keeps
// only the newest few. Archives are never read back into a ledger.
type ChainArchive struct {
	dataDir string
	keep    int
	now     func() time.Time
	mutex   sync.Mutex
}

// Add a struct to help with file sorting
type archiveFile struct {
	path      string
	timestamp time.Time
}

type archiveFiles []archiveFile

func (f archiveFiles) Len() int           { return len(f) }
func (f archiveFiles) Less(i, j int) bool { return f[i].timestamp.Before(f[j].timestamp) }
func (f archiveFiles) Swap(i, j int)      { f[i], f[j] = f[j], f[i] }

func NewChainArchive(dataDir string, keep int) (*ChainArchive, error) {
	absPath, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get absolute path")
	}

	if err := ensureDir(absPath); err != nil {
		return nil, err
	}

	if keep <= 0 {
		keep = DefaultKeepLast
	}

	return &ChainArchive{
		dataDir: absPath,
		keep:    keep,
		now:     time.Now,
	}, nil
}

// Dir is the absolute archive directory
func (a *ChainArchive) Dir() string {
	return a.dataDir
}

// Save writes chain to a new timestamped file and prunes old exports
func (a *ChainArchive) Save(chain []models.ExportedEntry, valid bool) (string, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if len(chain) == 0 {
		return "", ErrEmptyChain
	}

	exportedAt := a.now().UTC()
	filename := filepath.Join(a.dataDir, archivePrefix+exportedAt.Format(archiveLayout)+".json")

	data, err := json.MarshalIndent(ChainExport{
		ExportedAt: exportedAt,
		IsValid:    valid,
		Length:     len(chain),
		Chain:      chain,
	}, "", "    ")
	if err != nil {
		return "", errors.Wrap(err, "failed to encode chain")
	}

	if err := writeFileAtomic(filename, data, 0644); err != nil {
		return "", err
	}

	if err := a.cleanupOldFiles(); err != nil {
		log.Printf("Warning: Failed to cleanup old chain exports: %v", err)
	}

	log.Printf("Archived chain with %d entries to %s", len(chain), filename)
	return filename, nil
}

// Latest reads the newest export. ErrNotFound when the archive is empty.
func (a *ChainArchive) Latest() (*ChainExport, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	files, err := a.listFiles()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Wrap(ErrNotFound, "no chain export")
	}

	newest := files[len(files)-1].path
	data, err := os.ReadFile(newest)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", newest)
	}

	var export ChainExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", newest)
	}
	return &export, nil
}

// listFiles returns the exports oldest first
func (a *ChainArchive) listFiles() (archiveFiles, error) {
	matches, err := filepath.Glob(filepath.Join(a.dataDir, archivePrefix+"*.json"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list files")
	}

	var files archiveFiles
	for _, file := range matches {
		base := filepath.Base(file)
		stamp := strings.TrimSuffix(strings.TrimPrefix(base, archivePrefix), ".json")
		timestamp, err := time.Parse(archiveLayout, stamp)
		if err != nil {
			log.Printf("Warning: Invalid timestamp in filename %s: %v", base, err)
			continue
		}
		files = append(files, archiveFile{path: file, timestamp: timestamp})
	}

	sort.Sort(files)
	return files, nil
}

func (a *ChainArchive) cleanupOldFiles() error {
	files, err := a.listFiles()
	if err != nil {
		return err
	}

	if len(files) <= a.keep {
		return nil
	}

	// Remove older files, keeping the most recent 'keep' files
	for i := 0; i < len(files)-a.keep; i++ {
		if err := os.Remove(files[i].path); err != nil {
			log.Printf("Warning: Failed to remove old file %s: %v", files[i].path, err)
		} else {
			log.Printf("Removed old chain export: %s", files[i].path)
		}
	}

	return nil
}

// writeFileAtomic writes to a temporary file first and renames it into place
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, perm); err != nil {
		return errors.Wrapf(err, "failed to write %s", filepath.Base(path))
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return errors.Wrapf(err, "failed to save %s", filepath.Base(path))
	}
	return nil
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create directory %s", dir)
	}
	return nil
}
