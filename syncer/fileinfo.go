package syncer

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/corestack/corestack/storage"
)

// fileState describes one side of a file participating in synchronisation.
type fileState struct {
	exists  bool
	mtime   int64 // seconds since epoch
	size    int64
	hash    string
	content []byte
}

// contentHash returns the hex BLAKE2b-512 digest of b.
func contentHash(b []byte) string {
	sum := blake2b.Sum512(b)
	return hex.EncodeToString(sum[:])
}

// localState stats and reads the local side of a file. A missing file is not
// an error.
func localState(path string) (fileState, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fileState{}, nil
	}
	if err != nil {
		return fileState{}, fmt.Errorf("stat %q: %w", path, err)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fileState{}, fmt.Errorf("read %q: %w", path, err)
	}
	return fileState{
		exists:  true,
		mtime:   info.ModTime().Unix(),
		size:    info.Size(),
		hash:    contentHash(content),
		content: content,
	}, nil
}

// remoteState stats and reads the remote side of a file. A missing object is
// not an error.
func remoteState(ctx context.Context, bucket storage.Bucket, key string) (fileState, error) {
	exists, err := bucket.Exists(ctx, key)
	if err != nil {
		return fileState{}, err
	}
	if !exists {
		return fileState{}, nil
	}
	content, err := bucket.Read(ctx, key)
	if err != nil {
		return fileState{}, err
	}
	attrs, err := bucket.Stat(ctx, key)
	if err != nil {
		return fileState{}, err
	}
	return fileState{
		exists:  true,
		mtime:   attrs.ModTime.Unix(),
		size:    int64(len(content)),
		hash:    contentHash(content),
		content: content,
	}, nil
}

// createBackup copies the file at path to a sibling named path+"."+suffix.
func createBackup(path, suffix string) (string, error) {
	backupPath := path + "." + suffix
	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %q for backup: %w", path, err)
	}
	defer src.Close()
	dst, err := os.Create(backupPath)
	if err != nil {
		return "", fmt.Errorf("create backup %q: %w", backupPath, err)
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return "", fmt.Errorf("write backup %q: %w", backupPath, err)
	}
	return backupPath, nil
}

// backupSuffix returns the sibling-file suffix for a conflict backup:
// ".conflict" under BackupBoth, a timestamped ".backup_<unix>" otherwise.
func backupSuffix(strategy ConflictStrategy) string {
	if strategy == BackupBoth {
		return "conflict"
	}
	return fmt.Sprintf("backup_%d", time.Now().Unix())
}
