package hydralog_test

import (
	"os"
	"strings"
	"testing"

	"github.com/calvinalkan/hydralog"
	"github.com/calvinalkan/hydralog/internal/codec"
	"github.com/stretchr/testify/require"
)

func TestWriter_RoundTripsThroughReader(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/app.tsv1"

	w, err := hydralog.Create(path, hydralog.WriterSpec{
		Format: hydralog.FormatTSV1,
		Fields: []codec.FieldSpec{
			{Name: "level"},
			{Name: "message"},
			{Name: "facility", HasDefault: true, Default: "app"},
		},
	})
	require.NoError(t, err)

	require.NoError(t, w.Info("service started"))
	require.NoError(t, w.Warn("disk", "almost full", hydralog.FieldValues{"facility": "disk-monitor"}))
	require.NoError(t, w.Close())

	r, err := hydralog.OpenFile(path, hydralog.ReaderOptions{})
	require.NoError(t, err)

	defer r.Close()

	first, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "INFO", first.Level())
	require.Equal(t, "service started", first.Message())
	require.Equal(t, "app", first.Facility()) // default applied

	second, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "WARNING", second.Level())
	require.Equal(t, "disk almost full", second.Message())
	require.Equal(t, "disk-monitor", second.Facility())

	_, err = r.Next()
	require.ErrorIs(t, err, hydralog.ErrNoRecord)
}

func TestWriter_AppendContinuesTickCounter(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/app.tsv1"

	w, err := hydralog.Create(path, hydralog.WriterSpec{
		Format: hydralog.FormatTSV1,
		Fields: []codec.FieldSpec{{Name: "level"}, {Name: "message"}},
	})
	require.NoError(t, err)
	require.NoError(t, w.Info("first"))
	require.NoError(t, w.Close())

	w2, err := hydralog.Append(path, hydralog.WriterSpec{})
	require.NoError(t, err)
	require.NoError(t, w2.Info("second"))
	require.NoError(t, w2.Close())

	r, err := hydralog.OpenFile(path, hydralog.ReaderOptions{})
	require.NoError(t, err)

	defer r.Close()

	first, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "first", first.Message())

	second, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "second", second.Message())
	require.GreaterOrEqual(t, second.Timestamp(), first.Timestamp())
}

func TestWriter_RejectsExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/app.tsv1"

	w, err := hydralog.Create(path, hydralog.WriterSpec{
		Format: hydralog.FormatTSV1,
		Fields: []codec.FieldSpec{{Name: "level"}, {Name: "message"}},
	})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = hydralog.Create(path, hydralog.WriterSpec{
		Format: hydralog.FormatTSV1,
		Fields: []codec.FieldSpec{{Name: "level"}, {Name: "message"}},
	})
	require.ErrorIs(t, err, hydralog.ErrFileExists)
}

func TestWriter_SecondWriterFailsFast(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/app.tsv1"

	w, err := hydralog.Create(path, hydralog.WriterSpec{
		Format: hydralog.FormatTSV1,
		Fields: []codec.FieldSpec{{Name: "level"}, {Name: "message"}},
	})
	require.NoError(t, err)

	defer w.Close()

	_, err = hydralog.Append(path, hydralog.WriterSpec{})
	require.ErrorIs(t, err, hydralog.ErrAlreadyWriting)
}

func TestWriter_MultilineMessageBecomesContinuationLines(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/app.tsv1"

	w, err := hydralog.Create(path, hydralog.WriterSpec{
		Format: hydralog.FormatTSV1,
		Fields: []codec.FieldSpec{{Name: "level"}, {Name: "message"}},
	})
	require.NoError(t, err)
	require.NoError(t, w.Error("boom\nstack trace line 1\nstack trace line 2"))
	require.NoError(t, w.Close())

	r, err := hydralog.OpenFile(path, hydralog.ReaderOptions{})
	require.NoError(t, err)

	defer r.Close()

	rec, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "boom\nstack trace line 1\nstack trace line 2", rec.Message())
}

func TestWriter_SingleFieldHeaderAvoidsAmbiguousContinuationRecord(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/app.tsv1"

	// A coarse scale keeps both writes landing on the same tick, forcing
	// the writer down the same-instant continuation path.
	w, err := hydralog.Create(path, hydralog.WriterSpec{
		Format: hydralog.FormatTSV1,
		Scale:  0.0001,
		Fields: []codec.FieldSpec{{Name: "message"}},
	})
	require.NoError(t, err)

	require.NoError(t, w.WriteRecord(hydralog.FieldValues{"message": "first"}))
	require.NoError(t, w.WriteRecord(hydralog.FieldValues{"message": "second"}))
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "\n\tsecond\n", "same-instant record must not be encoded as a bare continuation line")

	r, err := hydralog.OpenFile(path, hydralog.ReaderOptions{})
	require.NoError(t, err)

	defer r.Close()

	first, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "first", first.Message())

	second, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "second", second.Message())
	require.Equal(t, first.Timestamp(), second.Timestamp())

	_, err = r.Next()
	require.ErrorIs(t, err, hydralog.ErrNoRecord)
}

func TestWriter_TSV0HasNoMultilineSupport(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/app.tsv0"

	w, err := hydralog.Create(path, hydralog.WriterSpec{
		Format: hydralog.FormatTSV0,
		Fields: []codec.FieldSpec{{Name: "level"}, {Name: "message"}},
	})
	require.NoError(t, err)
	require.NoError(t, w.Info("one\ntwo"))
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, 4, strings.Count(string(raw), "\n")) // header (3 lines) + exactly one record line
}
