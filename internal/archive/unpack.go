// Package archive splits an uploaded artifact into its logical members.
// It knows nothing about log content; decompression of gzip members and
// document text extraction happen later, in the extractor.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/palashjain21/calo-balance-sync-analyzer/internal/models"
)

// RootFolder is the folder reported for top-level members.
const RootFolder = "root"

var errMemberTooLarge = errors.New("member exceeds size limit")

// Unpacker yields the members of an artifact.
type Unpacker struct {
	maxMemberBytes int64
	logger         *slog.Logger
}

// NewUnpacker returns an Unpacker that refuses members larger than
// maxMemberBytes once decompressed. A non-positive limit disables the check.
func NewUnpacker(maxMemberBytes int64, logger *slog.Logger) *Unpacker {
	return &Unpacker{
		maxMemberBytes: maxMemberBytes,
		logger:         logger.With("component", "unpacker"),
	}
}

// Unpack returns the members of a in archive order. Per-member problems are
// yielded as *CorruptArchiveError or *UnsupportedNestingError alongside a
// zero Member, and iteration continues. An empty artifact yields a single
// *EmptyArtifactError. An error wrapping
// ErrUnreadableArtifact is always the last value yielded.
func (u *Unpacker) Unpack(a models.RawArtifact) iter.Seq2[models.Member, error] {
	kind := a.Kind
	if kind == "" {
		kind = SniffKind(a.Name, a.Data, a.Hint)
	}

	return func(yield func(models.Member, error) bool) {
		if len(a.Data) == 0 {
			yield(models.Member{}, &EmptyArtifactError{Entry: a.Name})
			return
		}

		if kind != models.ContainerZip {
			// single, gzip and document artifacts are one member each
			yield(models.Member{Name: a.Name, Folder: RootFolder, Data: a.Data}, nil)
			return
		}
		u.unpackZip(a, yield)
	}
}

func (u *Unpacker) unpackZip(a models.RawArtifact, yield func(models.Member, error) bool) {
	zr, err := zip.NewReader(bytes.NewReader(a.Data), int64(len(a.Data)))
	if err != nil {
		yield(models.Member{}, fmt.Errorf("%w: open zip %q: %v", ErrUnreadableArtifact, a.Name, err))
		return
	}

	var ok, corrupt int
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			continue
		}
		// macOS resource forks ride along in many uploaded bundles
		if strings.HasPrefix(f.Name, "__MACOSX/") {
			u.logger.Debug("skipping resource fork", "entry", f.Name)
			continue
		}

		if isNestedArchive(f.Name, nil) {
			if !yield(models.Member{}, &UnsupportedNestingError{Entry: f.Name}) {
				return
			}
			continue
		}

		data, err := u.readMember(f)
		if err != nil {
			corrupt++
			u.logger.Warn("corrupt archive member", "entry", f.Name, "error", err)
			if !yield(models.Member{}, &CorruptArchiveError{Entry: f.Name, Err: err}) {
				return
			}
			continue
		}
		if isNestedArchive(f.Name, data) {
			if !yield(models.Member{}, &UnsupportedNestingError{Entry: f.Name}) {
				return
			}
			continue
		}

		ok++
		u.logger.Debug("unpacked member", "entry", f.Name, "bytes", len(data))
		if !yield(models.Member{Name: f.Name, Folder: folderOf(f.Name), Data: data}, nil) {
			return
		}
	}

	if ok == 0 && corrupt > 0 {
		yield(models.Member{}, fmt.Errorf("%w: all %d members of %q are corrupt", ErrUnreadableArtifact, corrupt, a.Name))
	}
}

// readMember reads one member fully. Checksum mismatches surface here.
func (u *Unpacker) readMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var r io.Reader = rc
	if u.maxMemberBytes > 0 {
		r = io.LimitReader(rc, u.maxMemberBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if u.maxMemberBytes > 0 && int64(len(data)) > u.maxMemberBytes {
		return nil, fmt.Errorf("%w (%d bytes)", errMemberTooLarge, u.maxMemberBytes)
	}
	return data, nil
}

func folderOf(name string) string {
	dir := path.Dir(name)
	if dir == "." || dir == "/" {
		return RootFolder
	}
	return dir
}
