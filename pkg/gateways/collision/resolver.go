// Package collision decides where an incoming file lands in a destination
// folder that may already hold a file with the same name.
package collision

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/entities"
	"github.com/janael-pinheiro/tour-import-sdk-golang/pkg/logging"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// maxSuffix bounds the search for a free "name(n).ext".
const maxSuffix = 10000

// Policy is the governing configuration's view on collisions.
type Policy struct {
	Mode         entities.CollisionPolicy
	CreateBackup bool
	BackupFolder string
}

// PolicyFor extracts the collision settings of config. A nil config yields
// RenameWithSuffix without backups.
func PolicyFor(config *entities.ImportConfiguration) Policy {
	if config == nil {
		return Policy{Mode: entities.PolicyRenameWithSuffix}
	}
	mode := config.CollisionPolicy
	if mode == "" {
		mode = entities.PolicyRenameWithSuffix
	}
	return Policy{Mode: mode, CreateBackup: config.IsCreateBackup, BackupFolder: config.BackupFolder}
}

type Resolver struct {
	fs  filesystemManagement
	log *logrus.Entry
}

func NewResolver(log *logrus.Entry) *Resolver {
	if log == nil {
		log = logging.Discard()
	}
	return &Resolver{fs: &fileManagement{}, log: log}
}

// Resolve places incoming into destinationFolder according to policy and
// returns what was done. Existing files are matched by name only. When
// backups are enabled an existing file is always moved to the backup folder
// and the incoming file takes its name, whatever the policy; if the move is
// impossible the result wraps entities.ErrBackupUnavailable and neither file
// is touched. The policy only decides collisions without backups.
func (r *Resolver) Resolve(incoming entities.OSFile, destinationFolder string, policy Policy) (entities.CollisionRecord, error) {
	record := entities.CollisionRecord{File: incoming.Name, TargetName: incoming.Name}
	log := r.log.WithFields(logrus.Fields{"file": incoming.Name, "folder": destinationFolder})

	if filepath.Clean(incoming.Folder()) == filepath.Clean(destinationFolder) {
		record.Action = entities.ActionInPlace
		return record, nil
	}
	if err := r.fs.ensureDir(destinationFolder); err != nil {
		return record, errors.Wrapf(err, "create destination %s", destinationFolder)
	}

	target := filepath.Join(destinationFolder, incoming.Name)
	exists, err := r.fs.exists(target)
	if err != nil {
		return record, errors.Wrapf(err, "stat %s", target)
	}
	if !exists {
		record.Action = entities.ActionAccept
		return record, r.store(incoming, target)
	}

	if policy.CreateBackup {
		return r.backupAndStore(record, incoming, target, policy, log)
	}

	switch policy.Mode {
	case entities.PolicySkip:
		record.Action = entities.ActionSkip
		log.Info("existing file kept, incoming skipped")
		return record, nil

	case entities.PolicyRenameWithSuffix, "":
		name, err := r.freeName(destinationFolder, incoming.Name)
		if err != nil {
			return record, err
		}
		record.Action = entities.ActionRename
		record.TargetName = name
		log.Infof("stored as %s", name)
		return record, r.store(incoming, filepath.Join(destinationFolder, name))

	case entities.PolicyOverwrite:
		record.Action = entities.ActionOverwrite
		log.Info("overwriting existing file")
		return record, r.store(incoming, target)

	case entities.PolicyMoveToBackupFirst:
		return record, errors.Wrap(entities.ErrBackupUnavailable, "backups are disabled")

	default:
		return record, errors.Errorf("unknown collision policy %q", policy.Mode)
	}
}

func (r *Resolver) backupAndStore(record entities.CollisionRecord, incoming entities.OSFile, target string, policy Policy, log *logrus.Entry) (entities.CollisionRecord, error) {
	if policy.BackupFolder == "" {
		return record, errors.Wrap(entities.ErrBackupUnavailable, "no backup folder configured")
	}
	if err := r.fs.ensureDir(policy.BackupFolder); err != nil {
		return record, errors.Wrapf(entities.ErrBackupUnavailable, "%s: %v", policy.BackupFolder, err)
	}
	backupName, err := r.freeName(policy.BackupFolder, incoming.Name)
	if err != nil {
		return record, errors.Wrapf(entities.ErrBackupUnavailable, "%v", err)
	}
	backupPath := filepath.Join(policy.BackupFolder, backupName)
	if err := r.fs.move(target, backupPath); err != nil {
		return record, errors.Wrapf(entities.ErrBackupUnavailable, "move %s: %v", target, err)
	}

	if err := r.store(incoming, target); err != nil {
		if restoreErr := r.fs.move(backupPath, target); restoreErr != nil {
			log.Errorf("restoring %s from backup failed: %v", target, restoreErr)
		}
		return record, err
	}
	record.Action = entities.ActionBackupAndStore
	record.BackupPath = backupPath
	log.Infof("existing file moved to %s", backupPath)
	return record, nil
}

func (r *Resolver) store(incoming entities.OSFile, target string) error {
	if err := r.fs.copyFile(incoming.Path, target); err != nil {
		return errors.Wrapf(err, "store %s", incoming.Name)
	}
	return nil
}

// freeName returns name, or the first "base(n).ext" that does not exist in folder.
func (r *Resolver) freeName(folder, name string) (string, error) {
	exists, err := r.fs.exists(filepath.Join(folder, name))
	if err != nil {
		return "", err
	}
	if !exists {
		return name, nil
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	for i := 1; i <= maxSuffix; i++ {
		candidate := fmt.Sprintf("%s(%d)%s", base, i, ext)
		exists, err := r.fs.exists(filepath.Join(folder, candidate))
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", errors.Errorf("no free name for %s in %s", name, folder)
}
