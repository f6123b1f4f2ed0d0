package archive

import (
	"bytes"
	"errors"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/palashjain21/calo-balance-sync-analyzer/internal/logger"
	"github.com/palashjain21/calo-balance-sync-analyzer/internal/models"
)

type entry struct {
	name string
	body []byte
}

// buildZip stores entries uncompressed so tests can corrupt payload bytes.
func buildZip(t *testing.T, entries ...entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: zip.Store})
		require.NoError(t, err)
		_, err = w.Write(e.body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func gzipBytes(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func collect(u *Unpacker, a models.RawArtifact) ([]models.Member, []error) {
	var members []models.Member
	var errs []error
	for m, err := range u.Unpack(a) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		members = append(members, m)
	}
	return members, errs
}

func TestUnpackZipWithCorruptMember(t *testing.T) {
	data := buildZip(t,
		entry{"logs/one.log", []byte("2024-01-01T00:00:00Z user=S1 amt=5\n")},
		entry{"logs/two.log", []byte("MEMBER-TWO-CONTENT user=S2\n")},
		entry{"three.log", []byte("2024-01-01T00:00:02Z user=S3 amt=7\n")},
	)
	i := bytes.Index(data, []byte("MEMBER-TWO-CONTENT"))
	require.Greater(t, i, 0)
	data[i] = 'X'

	u := NewUnpacker(1<<20, logger.Discard())
	members, errs := collect(u, models.RawArtifact{Name: "batch.zip", Data: data})

	require.Len(t, members, 2)
	require.Len(t, errs, 1)
	assert.Equal(t, "logs/one.log", members[0].Name)
	assert.Equal(t, "logs", members[0].Folder)
	assert.Equal(t, "three.log", members[1].Name)
	assert.Equal(t, RootFolder, members[1].Folder)

	var corrupt *CorruptArchiveError
	require.ErrorAs(t, errs[0], &corrupt)
	assert.Equal(t, "logs/two.log", corrupt.Entry)
	assert.ErrorIs(t, errs[0], ErrCorruptArchive)
	assert.ErrorIs(t, errs[0], zip.ErrChecksum)
}

func TestUnpackZipRejectsNesting(t *testing.T) {
	inner := buildZip(t, entry{"x.log", []byte("hello")})
	data := buildZip(t,
		entry{"inner.zip", inner},
		entry{"renamed.bin", inner},
		entry{"bundle.tar.gz", []byte("not really")},
		entry{"app.log.gz", gzipBytes(t, "2024-01-01T00:00:00Z user=S1\n")},
	)

	u := NewUnpacker(0, logger.Discard())
	members, errs := collect(u, models.RawArtifact{Name: "batch.zip", Data: data})

	require.Len(t, errs, 3)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrUnsupportedNesting)
	}
	// gzip members pass through still compressed
	require.Len(t, members, 1)
	assert.Equal(t, "app.log.gz", members[0].Name)
	assert.True(t, IsGzip(members[0].Data))
}

func TestUnpackZipSkipsDirectories(t *testing.T) {
	data := buildZip(t,
		entry{"logs/", nil},
		entry{"__MACOSX/._a.log", []byte("fork")},
		entry{"logs/a.log", []byte("a")},
	)
	u := NewUnpacker(0, logger.Discard())
	members, errs := collect(u, models.RawArtifact{Name: "batch.zip", Data: data})
	assert.Empty(t, errs)
	require.Len(t, members, 1)
	assert.Equal(t, "logs/a.log", members[0].Name)
}

func TestUnpackMemberSizeLimit(t *testing.T) {
	data := buildZip(t,
		entry{"big.log", bytes.Repeat([]byte("x"), 100)},
		entry{"small.log", []byte("x")},
	)
	u := NewUnpacker(10, logger.Discard())
	members, errs := collect(u, models.RawArtifact{Name: "batch.zip", Data: data})
	require.Len(t, members, 1)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrCorruptArchive)
	assert.ErrorIs(t, errs[0], errMemberTooLarge)
}

func TestUnpackFatal(t *testing.T) {
	allCorrupt := buildZip(t, entry{"only.log", []byte("ONLY-MEMBER")})
	i := bytes.Index(allCorrupt, []byte("ONLY-MEMBER"))
	allCorrupt[i] = 'X'

	tests := []struct {
		name     string
		artifact models.RawArtifact
		errCount int
	}{
		{"truncated zip", models.RawArtifact{Name: "bad.zip", Data: []byte("PK\x03\x04garbage"), Kind: models.ContainerZip}, 1},
		{"every member corrupt", models.RawArtifact{Name: "c.zip", Data: allCorrupt}, 2},
	}

	u := NewUnpacker(0, logger.Discard())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			members, errs := collect(u, tt.artifact)
			assert.Empty(t, members)
			require.Len(t, errs, tt.errCount)
			assert.ErrorIs(t, errs[len(errs)-1], ErrUnreadableArtifact)
		})
	}
}

func TestUnpackEmptyArtifact(t *testing.T) {
	u := NewUnpacker(0, logger.Discard())
	members, errs := collect(u, models.RawArtifact{Name: "empty.log"})

	assert.Empty(t, members)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrEmptyArtifact)
	assert.NotErrorIs(t, errs[0], ErrUnreadableArtifact)

	var empty *EmptyArtifactError
	require.ErrorAs(t, errs[0], &empty)
	assert.Equal(t, "empty.log", empty.Entry)
}

func TestUnpackSingleStreams(t *testing.T) {
	gz := gzipBytes(t, "2024-01-01T00:00:00Z user=S1\n")
	tests := []struct {
		name     string
		artifact models.RawArtifact
	}{
		{"plain", models.RawArtifact{Name: "app.log", Data: []byte("text")}},
		{"gzip", models.RawArtifact{Name: "app.log.gz", Data: gz}},
		{"pdf document", models.RawArtifact{Name: "export.pdf", Data: []byte("%PDF-1.4")}},
	}

	u := NewUnpacker(0, logger.Discard())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			members, errs := collect(u, tt.artifact)
			assert.Empty(t, errs)
			require.Len(t, members, 1)
			assert.Equal(t, tt.artifact.Name, members[0].Name)
			assert.Equal(t, tt.artifact.Data, members[0].Data)
		})
	}
}

func TestUnpackStopsEarly(t *testing.T) {
	data := buildZip(t, entry{"a.log", []byte("a")}, entry{"b.log", []byte("b")}, entry{"c.log", []byte("c")})
	u := NewUnpacker(0, logger.Discard())
	n := 0
	for range u.Unpack(models.RawArtifact{Name: "batch.zip", Data: data}) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestErrorsUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := error(&CorruptArchiveError{Entry: "a", Err: cause})
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), `"a"`)
}
