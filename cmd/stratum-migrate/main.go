// Command stratum-migrate is the offline counterpart to the inline
// upgrade-database task: it backs up the on-disk schema version file and
// task store, confirms the task store still opens cleanly, then bumps the
// version file to the binary's running version. Run it before starting
// stratum against data written by an older release, or pass --dry-run to
// preview what it would do.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/stratum/pkg/storage"
	"github.com/cuemby/stratum/pkg/versioning"
	"github.com/hashicorp/go-multierror"
)

func main() {
	dataDir := flag.String("data-dir", "./data.stratum", "root directory stratum serve was pointed at")
	dryRun := flag.Bool("dry-run", false, "report what would change without writing or backing up anything")
	flag.Parse()

	versionPath := filepath.Join(*dataDir, "VERSION")
	vs, onDisk, err := versioning.Open(versionPath)
	if err != nil {
		log.Fatalf("opening version file: %v", err)
	}

	if onDisk == versioning.Version {
		fmt.Printf("on-disk schema version %v already matches the running version; nothing to do\n", onDisk)
		return
	}
	fmt.Printf("on-disk schema version %v differs from running version %v\n", onDisk, versioning.Version)

	if *dryRun {
		fmt.Println("dry run: no backup taken, no files written")
		return
	}

	stamp := time.Now().UTC().Format("20060102T150405Z")
	if err := backupFile(versionPath, versionPath+".bak-"+stamp); err != nil {
		log.Fatalf("backing up version file: %v", err)
	}
	tasksDir := filepath.Join(*dataDir, "tasks")
	tasksBackup := filepath.Join(*dataDir, "tasks.bak-"+stamp)
	if err := backupDir(tasksDir, tasksBackup); err != nil {
		log.Fatalf("backing up task store: %v", err)
	}
	fmt.Printf("backed up version file and task store (suffix %s)\n", stamp)

	store, err := storage.NewBoltStore(tasksDir, 1<<30)
	if err != nil {
		log.Fatalf("task store did not reopen cleanly after backup, aborting before touching the version file: %v", err)
	}
	if err := store.Close(); err != nil {
		log.Fatalf("closing task store: %v", err)
	}

	if err := vs.Bump(); err != nil {
		log.Fatalf("bumping version file: %v", err)
	}
	fmt.Printf("migrated on-disk schema version to %v\n", versioning.Version)
	fmt.Println("run `stratum serve` normally; the version file now matches, so no upgradeDatabase task is enqueued")
}

func backupFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

// backupDir copies src to dst file by file, collecting every copy failure
// instead of aborting at the first one, so a single unreadable task-store
// file doesn't hide problems with the rest of the backup.
func backupDir(src, dst string) error {
	var result *multierror.Error
	err := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			result = multierror.Append(result, err)
			return nil
		}
		rel, relErr := filepath.Rel(src, path)
		if relErr != nil {
			result = multierror.Append(result, relErr)
			return nil
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			if mkErr := os.MkdirAll(target, 0o755); mkErr != nil {
				result = multierror.Append(result, mkErr)
			}
			return nil
		}
		if cpErr := backupFile(path, target); cpErr != nil {
			result = multierror.Append(result, cpErr)
		}
		return nil
	})
	if err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
