// Package dump implements the versioned disaster-recovery archive referenced
// by spec.md §4.6 ("Dump creation": "streams all tasks, indexes, keys, and
// settings into a versioned archive atop a read-transaction snapshot") and
// §4.9's on-disk layout (a `dumps/` directory of one archive per dump uid).
//
// The wire format is a gzip-compressed tar archive: one `metadata.json` at
// the root, then `tasks.jsonl` (one JSON task per line), then one
// `indexes/<name>/documents.jsonl` and `indexes/<name>/settings.json` per
// registered index. Using archive/tar and compress/gzip rather than a
// bespoke binary format follows the same "boring, inspectable on-disk
// format" principle the task store applies to its own bbolt buckets.
package dump

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/stratum/pkg/engine"
	"github.com/cuemby/stratum/pkg/indexmapper"
	"github.com/cuemby/stratum/pkg/storage"
	"github.com/cuemby/stratum/pkg/types"
	"github.com/cuemby/stratum/pkg/versioning"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// Metadata is the archive's root descriptor.
type Metadata struct {
	DumpUID     string           `json:"dumpUid"`
	InstanceUID *string          `json:"instanceUid,omitempty"`
	DumpedAt    time.Time        `json:"dumpedAt"`
	Version     [3]uint32        `json:"schemaVersion"`
	Keys        []map[string]any `json:"keys,omitempty"`
}

// Create streams every task, index, and its documents/settings into a
// gzip-tar archive under dumpsDir, returning the generated dump uid.
func Create(dumpsDir string, store storage.Store, mapper *indexmapper.Mapper, eng *engine.Engine, keys []map[string]any, instanceUID *string) (string, error) {
	uid := uuid.New().String()
	if err := os.MkdirAll(dumpsDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dumpsDir, uid+".dump")

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	meta := Metadata{
		DumpUID:     uid,
		InstanceUID: instanceUID,
		DumpedAt:    time.Now().UTC(),
		Version:     versioning.Version,
		Keys:        keys,
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", err
	}
	if err := writeEntry(tw, "metadata.json", metaJSON); err != nil {
		return "", err
	}

	tasksJSON, err := tasksToJSONL(store)
	if err != nil {
		return "", err
	}
	if err := writeEntry(tw, "tasks.jsonl", tasksJSON); err != nil {
		return "", err
	}

	for _, name := range mapper.Names() {
		idx, err := mapper.Index(name)
		if err != nil {
			return "", err
		}
		docs, settings, err := snapshotIndex(idx)
		if err != nil {
			return "", err
		}
		if err := writeEntry(tw, filepath.Join("indexes", name, "documents.jsonl"), docs); err != nil {
			return "", err
		}
		if err := writeEntry(tw, filepath.Join("indexes", name, "settings.json"), settings); err != nil {
			return "", err
		}
	}

	if err := tw.Close(); err != nil {
		return "", err
	}
	if err := gz.Close(); err != nil {
		return "", err
	}
	return uid, nil
}

func writeEntry(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(data)), ModTime: time.Now()}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := tw.Write(data)
	return err
}

func tasksToJSONL(store storage.Store) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	q := types.Query{Limit: 10000, Reverse: false}
	seen := 0
	for {
		tasks, total, err := store.GetTasks(q)
		if err != nil {
			return nil, err
		}
		for _, t := range tasks {
			if err := enc.Encode(t); err != nil {
				return nil, err
			}
		}
		seen += len(tasks)
		if len(tasks) == 0 || seen >= total {
			break
		}
		last := tasks[len(tasks)-1].UID
		q.From = &last
	}
	return buf.Bytes(), nil
}

func snapshotIndex(idx engine.Index) (docs, settings []byte, err error) {
	err = idx.View(func(tx *bolt.Tx) error {
		var viewErr error
		docs, settings, viewErr = engine.SnapshotTx(tx)
		return viewErr
	})
	return docs, settings, err
}

// Extract unpacks a gzip-tar dump archive read from r into destDir. Nothing
// in this repository calls it; no restore flow registers or runs it.
func Extract(r io.Reader, destDir string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return err
	}
	defer gz.Close()
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target := filepath.Join(destDir, hdr.Name)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		out, err := os.Create(target)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return err
		}
		out.Close()
	}
}
