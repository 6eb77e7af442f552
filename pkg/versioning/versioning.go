// Package versioning gates schema upgrades by recording the on-disk schema
// version before any other store is opened, mirroring index-scheduler's
// version file check in lib.rs.
package versioning

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	stratumerrors "github.com/cuemby/stratum/pkg/errors"
)

// Version is the running binary's schema version. Bump this on any
// incompatible on-disk format change.
var Version = [3]uint32{1, 0, 0}

// Store records and checks the on-disk schema version in a plain text file,
// `major.minor.patch`, at the configured path.
type Store struct {
	path string
}

// Open reads the version file at path if it exists. If it does not exist,
// the current Version is written and treated as matching (first run).
func Open(path string) (*Store, [3]uint32, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := s.write(Version); err != nil {
			return nil, [3]uint32{}, err
		}
		return s, Version, nil
	}
	if err != nil {
		return nil, [3]uint32{}, stratumerrors.Wrap(err, "reading version file")
	}

	onDisk, err := parse(string(data))
	if err != nil {
		return nil, [3]uint32{}, stratumerrors.Wrap(err, "parsing version file")
	}
	return s, onDisk, nil
}

// Check returns a *errors.Error with the irrecoverable "system" taxonomy if
// onDisk is incompatible with the running Version. Only a matching major
// version is accepted unless autoUpgrade is set, in which case an
// UpgradeDatabase task is expected to run before any other work.
func Check(onDisk [3]uint32, autoUpgrade bool) error {
	if onDisk == Version {
		return nil
	}
	if onDisk[0] != Version[0] && !autoUpgrade {
		return stratumerrors.SchemaVersionMismatch(onDisk, Version)
	}
	return nil
}

// NeedsUpgrade reports whether onDisk differs from the running Version,
// meaning an UpgradeDatabase task must be the first thing the scheduler
// processes after startup.
func NeedsUpgrade(onDisk [3]uint32) bool {
	return onDisk != Version
}

// Bump persists the running Version as the new on-disk version, called
// after an UpgradeDatabase task completes successfully.
func (s *Store) Bump() error {
	return s.write(Version)
}

func (s *Store) write(v [3]uint32) error {
	content := fmt.Sprintf("%d.%d.%d", v[0], v[1], v[2])
	return os.WriteFile(s.path, []byte(content), 0o644)
}

func parse(s string) ([3]uint32, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 3 {
		return [3]uint32{}, fmt.Errorf("malformed version string %q", s)
	}
	var v [3]uint32
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return [3]uint32{}, fmt.Errorf("malformed version component %q: %w", p, err)
		}
		v[i] = uint32(n)
	}
	return v, nil
}
