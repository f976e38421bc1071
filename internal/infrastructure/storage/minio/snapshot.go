package minio

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/minio/minio-go/v7"
	"github.com/zeebo/xxh3"

	"github.com/turtacn/KeyIP-FPIndex/internal/domain/fingerprint"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/index/local"
	"github.com/turtacn/KeyIP-FPIndex/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/KeyIP-FPIndex/pkg/errors"
)

const (
	snapshotExt         = ".tar.zst"
	snapshotContentType = "application/zstd"

	metaSettings   = "Fp-Settings"
	metaGeneration = "Fp-Generation"
	metaDocs       = "Fp-Docs"
)

var ErrSnapshotNotFound = errors.New(errors.ErrCodeNotFound, "snapshot not found")

// Snapshot describes one archived index.
type Snapshot struct {
	Name       string    `json:"name"`
	Key        string    `json:"key"`
	Size       int64     `json:"size"`
	Settings   string    `json:"settings,omitempty"`
	Generation uint64    `json:"generation,omitempty"`
	Docs       int       `json:"docs,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// SnapshotStore archives local index directories to the snapshot bucket.
// Snapshots of different fingerprint settings live under different prefixes.
type SnapshotStore struct {
	client *Client
	logger logging.Logger
}

func NewSnapshotStore(client *Client, log logging.Logger) *SnapshotStore {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &SnapshotStore{client: client, logger: log.Named("snapshots")}
}

// settingsPrefix returns the object prefix holding snapshots built with s.
// Settings keys contain characters that are awkward in object names.
func (st *SnapshotStore) settingsPrefix(s fingerprint.Settings) string {
	return fmt.Sprintf("%s%016x/", st.client.config.Prefix, xxh3.HashString(s.Key()))
}

func (st *SnapshotStore) objectKey(s fingerprint.Settings, name string) string {
	return st.settingsPrefix(s) + name + snapshotExt
}

// DefaultSnapshotName names a snapshot after the time and index generation.
func DefaultSnapshotName(at time.Time, generation uint64) string {
	return fmt.Sprintf("%s-g%010d", at.UTC().Format("20060102T150405Z"), generation)
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// Save archives the committed state of idx. Writers are blocked only while
// the committed files are linked into a staging directory.
func (st *SnapshotStore) Save(ctx context.Context, idx *local.Index, name string) (*Snapshot, error) {
	api, err := st.client.objectAPI()
	if err != nil {
		return nil, err
	}
	stats := idx.Stats()
	if name == "" {
		name = DefaultSnapshotName(time.Now(), stats.Generation)
	}
	if !validName(name) {
		return nil, errors.InvalidParam("invalid snapshot name").WithDetailf("name=%q", name)
	}

	staging, files, err := stageFiles(idx)
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(staging)

	pr, pw := io.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		pw.CloseWithError(writeArchive(pw, staging, files))
	}()
	defer func() { <-done }()

	key := st.objectKey(idx.Settings(), name)
	info, err := api.PutObject(ctx, st.client.Bucket(), key, pr, -1, minio.PutObjectOptions{
		ContentType: snapshotContentType,
		PartSize:    st.client.config.PartSize,
		UserMetadata: map[string]string{
			metaSettings:   idx.Settings().Key(),
			metaGeneration: strconv.FormatUint(stats.Generation, 10),
			metaDocs:       strconv.Itoa(stats.Docs),
		},
	})
	pr.Close()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "uploading snapshot").WithDetailf("key=%s", key)
	}

	snap := &Snapshot{
		Name:       name,
		Key:        key,
		Size:       info.Size,
		Settings:   idx.Settings().Key(),
		Generation: stats.Generation,
		Docs:       stats.Docs,
		CreatedAt:  time.Now().UTC(),
	}
	st.logger.Info("snapshot saved",
		logging.String("key", key),
		logging.Int64("bytes", info.Size),
		logging.Int("docs", stats.Docs),
		logging.Uint64("generation", stats.Generation))
	return snap, nil
}

// stageFiles hard-links the committed index files into a sibling directory
// so compaction cannot remove them while they are uploaded.
func stageFiles(idx *local.Index) (string, []string, error) {
	staging, err := os.MkdirTemp(filepath.Dir(idx.Dir()), ".snapshot-*")
	if err != nil {
		return "", nil, errors.Wrap(err, errors.ErrCodeStorageError, "creating snapshot staging directory")
	}
	files, release := idx.Files()
	defer release()
	for _, f := range files {
		src, dst := filepath.Join(idx.Dir(), f), filepath.Join(staging, f)
		if err := os.Link(src, dst); err != nil {
			if err := copyFile(src, dst); err != nil {
				os.RemoveAll(staging)
				return "", nil, errors.Wrap(err, errors.ErrCodeStorageError, "staging index file").WithDetailf("file=%s", f)
			}
		}
	}
	return staging, files, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func writeArchive(w io.Writer, dir string, files []string) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	tw := tar.NewWriter(zw)
	for _, name := range files {
		if err := addFile(tw, dir, name); err != nil {
			zw.Close()
			return err
		}
	}
	if err := tw.Close(); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

func addFile(tw *tar.Writer, dir, name string) error {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	hdr := &tar.Header{Name: name, Mode: 0o644, Size: fi.Size(), ModTime: fi.ModTime(), Typeflag: tar.TypeReg}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}

// Restore replaces the contents of idx with the named snapshot. The snapshot
// must have been taken with the settings idx was opened with.
func (st *SnapshotStore) Restore(ctx context.Context, idx *local.Index, name string) (*Snapshot, error) {
	if !validName(name) {
		return nil, errors.InvalidParam("invalid snapshot name").WithDetailf("name=%q", name)
	}
	snap, err := st.Stat(ctx, idx.Settings(), name)
	if err != nil {
		return nil, err
	}
	if snap.Settings != "" && snap.Settings != idx.Settings().Key() {
		return nil, errors.New(errors.CodeIncompatibleSettings, "snapshot was built with different fingerprint settings").
			WithDetailf("snapshot=%s index=%s", snap.Settings, idx.Settings().Key())
	}

	api, err := st.client.objectAPI()
	if err != nil {
		return nil, err
	}
	body, err := api.GetObject(ctx, st.client.Bucket(), snap.Key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "downloading snapshot").WithDetailf("key=%s", snap.Key)
	}
	defer body.Close()

	staging, err := os.MkdirTemp(filepath.Dir(idx.Dir()), ".restore-*")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "creating restore staging directory")
	}
	defer os.RemoveAll(staging)

	files, err := extractArchive(body, staging)
	if err != nil {
		return nil, err
	}
	if _, ok := files[local.ManifestFile]; !ok {
		return nil, errors.New(errors.CodeIndexCorrupted, "snapshot has no manifest").WithDetailf("key=%s", snap.Key)
	}

	err = idx.Replace(ctx, func(dir string) error {
		for f := range files {
			if f == local.ManifestFile {
				continue
			}
			if err := os.Rename(filepath.Join(staging, f), filepath.Join(dir, f)); err != nil {
				return errors.Wrap(err, errors.ErrCodeStorageError, "installing snapshot file").WithDetailf("file=%s", f)
			}
		}
		// The manifest goes last; it alone defines the committed state.
		if err := os.Rename(filepath.Join(staging, local.ManifestFile), filepath.Join(dir, local.ManifestFile)); err != nil {
			return errors.Wrap(err, errors.ErrCodeStorageError, "installing snapshot manifest")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	st.logger.Info("snapshot restored",
		logging.String("key", snap.Key),
		logging.Int("docs", idx.Stats().Docs))
	return snap, nil
}

func extractArchive(r io.Reader, dir string) (map[string]struct{}, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeIndexCorrupted, "opening snapshot archive")
	}
	defer zr.Close()

	files := make(map[string]struct{})
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return files, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeIndexCorrupted, "reading snapshot archive")
		}
		if hdr.Typeflag != tar.TypeReg || !validName(hdr.Name) {
			return nil, errors.New(errors.CodeIndexCorrupted, "unexpected snapshot entry").WithDetailf("entry=%q", hdr.Name)
		}
		f, err := os.Create(filepath.Join(dir, hdr.Name))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeStorageError, "writing snapshot file")
		}
		_, err = io.Copy(f, tr)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeIndexCorrupted, "extracting snapshot file").WithDetailf("file=%s", hdr.Name)
		}
		files[hdr.Name] = struct{}{}
	}
}

// Stat returns the snapshot named name for settings s.
func (st *SnapshotStore) Stat(ctx context.Context, s fingerprint.Settings, name string) (*Snapshot, error) {
	api, err := st.client.objectAPI()
	if err != nil {
		return nil, err
	}
	key := st.objectKey(s, name)
	info, err := api.StatObject(ctx, st.client.Bucket(), key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrSnapshotNotFound.WithDetailf("key=%s", key)
		}
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "stat snapshot").WithDetailf("key=%s", key)
	}
	snap := &Snapshot{Name: name, Key: key, Size: info.Size, CreatedAt: info.LastModified}
	snap.Settings = metadata(info.UserMetadata, metaSettings)
	snap.Generation, _ = strconv.ParseUint(metadata(info.UserMetadata, metaGeneration), 10, 64)
	snap.Docs, _ = strconv.Atoi(metadata(info.UserMetadata, metaDocs))
	return snap, nil
}

func metadata(m map[string]string, key string) string {
	for k, v := range m {
		if strings.EqualFold(k, key) || strings.EqualFold(k, "X-Amz-Meta-"+key) {
			return v
		}
	}
	return ""
}

// List returns the snapshots taken with settings s, newest first.
func (st *SnapshotStore) List(ctx context.Context, s fingerprint.Settings) ([]Snapshot, error) {
	api, err := st.client.objectAPI()
	if err != nil {
		return nil, err
	}
	prefix := st.settingsPrefix(s)
	var out []Snapshot
	for obj := range api.ListObjects(ctx, st.client.Bucket(), minio.ListObjectsOptions{Prefix: prefix}) {
		if obj.Err != nil {
			return nil, errors.Wrap(obj.Err, errors.ErrCodeStorageError, "listing snapshots")
		}
		name := strings.TrimPrefix(obj.Key, prefix)
		if !strings.HasSuffix(name, snapshotExt) {
			continue
		}
		out = append(out, Snapshot{
			Name:      strings.TrimSuffix(name, snapshotExt),
			Key:       obj.Key,
			Size:      obj.Size,
			CreatedAt: obj.LastModified,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Name > out[j].Name
	})
	return out, nil
}

// Latest returns the newest snapshot taken with settings s.
func (st *SnapshotStore) Latest(ctx context.Context, s fingerprint.Settings) (*Snapshot, error) {
	snaps, err := st.List(ctx, s)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, ErrSnapshotNotFound
	}
	return &snaps[0], nil
}

// Delete removes the named snapshot.
func (st *SnapshotStore) Delete(ctx context.Context, s fingerprint.Settings, name string) error {
	if !validName(name) {
		return errors.InvalidParam("invalid snapshot name").WithDetailf("name=%q", name)
	}
	api, err := st.client.objectAPI()
	if err != nil {
		return err
	}
	key := st.objectKey(s, name)
	if err := api.RemoveObject(ctx, st.client.Bucket(), key, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "deleting snapshot").WithDetailf("key=%s", key)
	}
	return nil
}

// Prune keeps the newest keep snapshots of settings s and deletes the rest.
func (st *SnapshotStore) Prune(ctx context.Context, s fingerprint.Settings, keep int) (int, error) {
	if keep < 1 {
		return 0, errors.InvalidParam("prune must keep at least one snapshot")
	}
	snaps, err := st.List(ctx, s)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, snap := range snaps[min(keep, len(snaps)):] {
		if err := st.Delete(ctx, s, snap.Name); err != nil {
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		st.logger.Info("snapshots pruned", logging.Int("removed", removed), logging.Int("kept", keep))
	}
	return removed, nil
}

//Personal.AI order the ending
