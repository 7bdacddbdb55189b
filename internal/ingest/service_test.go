package ingest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"folio/internal/ingest"
)

type MockIndex struct{ mock.Mock }

func (m *MockIndex) Add(ctx context.Context, chunks []string) (int, error) {
	args := m.Called(ctx, chunks)
	return args.Int(0), args.Error(1)
}

func (m *MockIndex) Wipe(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockIndex) Count(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type countingProgress struct {
	total, done int
	finished    bool
}

func (p *countingProgress) Start(total int) { p.total = total }
func (p *countingProgress) Increment()      { p.done++ }
func (p *countingProgress) Finish()         { p.finished = true }

func writeDoc(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const resume = "One two three. Four five six. Seven eight."

func TestService_Ingest(t *testing.T) {
	ctx := context.Background()
	cfg := ingest.Config{ChunkSize: 30, Overlap: 0}

	t.Run("Adds Each Chunk And Reports Duplicates", func(t *testing.T) {
		path := writeDoc(t, "resume.txt", resume)
		idx := new(MockIndex)
		idx.On("Add", ctx, []string{"One two three. Four five six."}).Return(1, nil).Once()
		idx.On("Add", ctx, []string{"Seven eight."}).Return(0, nil).Once()
		idx.On("Count", ctx).Return(5, nil)
		progress := &countingProgress{}

		res, err := ingest.NewService(idx, cfg).Ingest(ctx, ingest.Request{Path: path, Progress: progress})

		require.NoError(t, err)
		assert.Equal(t, ingest.Result{
			Path: path, Characters: len(resume), Chunks: 2, Added: 1, Duplicates: 1, Total: 5,
			Preview: []string{"One two three. Four five six.", "Seven eight."},
		}, res)
		assert.Equal(t, 2, progress.total)
		assert.Equal(t, 2, progress.done)
		assert.True(t, progress.finished)
		idx.AssertNotCalled(t, "Wipe", mock.Anything)
		idx.AssertExpectations(t)
	})

	t.Run("Wipe Runs Before Adding", func(t *testing.T) {
		path := writeDoc(t, "resume.md", "Go developer.")
		idx := new(MockIndex)
		var order []string
		idx.On("Wipe", ctx).Return(12, nil).Run(func(mock.Arguments) { order = append(order, "wipe") })
		idx.On("Add", ctx, []string{"Go developer."}).Return(1, nil).Run(func(mock.Arguments) { order = append(order, "add") })
		idx.On("Count", ctx).Return(1, nil)

		res, err := ingest.NewService(idx, cfg).Ingest(ctx, ingest.Request{Path: path, Wipe: true})

		require.NoError(t, err)
		assert.Equal(t, 12, res.Removed)
		assert.Equal(t, 1, res.Total)
		assert.Equal(t, []string{"wipe", "add"}, order)
	})

	t.Run("Dry Run Touches Nothing", func(t *testing.T) {
		path := writeDoc(t, "resume.txt", resume)
		idx := new(MockIndex)

		res, err := ingest.NewService(idx, cfg).Ingest(ctx, ingest.Request{Path: path, Wipe: true, DryRun: true})

		require.NoError(t, err)
		assert.Equal(t, 2, res.Chunks)
		assert.Len(t, res.Preview, 2)
		idx.AssertNotCalled(t, "Wipe", mock.Anything)
		idx.AssertNotCalled(t, "Add", mock.Anything, mock.Anything)
	})

	t.Run("Empty Document Does Not Wipe", func(t *testing.T) {
		path := writeDoc(t, "empty.txt", "   \n\n  ")
		idx := new(MockIndex)

		_, err := ingest.NewService(idx, cfg).Ingest(ctx, ingest.Request{Path: path, Wipe: true})

		assert.ErrorIs(t, err, ingest.ErrEmptyDocument)
		idx.AssertNotCalled(t, "Wipe", mock.Anything)
	})

	t.Run("Missing File", func(t *testing.T) {
		_, err := ingest.NewService(new(MockIndex), cfg).Ingest(ctx, ingest.Request{Path: filepath.Join(t.TempDir(), "nope.txt")})
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("Invalid UTF-8", func(t *testing.T) {
		path := writeDoc(t, "bin.txt", string([]byte{0xff, 0xfe, 0xfd}))
		_, err := ingest.NewService(new(MockIndex), cfg).Ingest(ctx, ingest.Request{Path: path})
		assert.ErrorContains(t, err, "not valid UTF-8")
	})

	t.Run("Index Error Stops Ingestion", func(t *testing.T) {
		path := writeDoc(t, "resume.txt", resume)
		idx := new(MockIndex)
		idx.On("Add", ctx, mock.Anything).Return(0, errors.New("embed: quota")).Once()

		res, err := ingest.NewService(idx, cfg).Ingest(ctx, ingest.Request{Path: path})

		assert.ErrorContains(t, err, "quota")
		assert.Equal(t, 0, res.Added)
		idx.AssertNumberOfCalls(t, "Add", 1)
		idx.AssertNotCalled(t, "Count", mock.Anything)
	})
}

func TestService_IngestPreviewIsTruncated(t *testing.T) {
	long := strings.Repeat("word ", 40) + "end."
	path := writeDoc(t, "long.txt", long)

	res, err := ingest.NewService(new(MockIndex), ingest.Config{ChunkSize: 500}).Ingest(context.Background(), ingest.Request{Path: path, DryRun: true})

	require.NoError(t, err)
	require.Len(t, res.Preview, 1)
	assert.Equal(t, strings.Repeat("word ", 16)+"…", res.Preview[0])
}

func TestExtractPDF(t *testing.T) {
	t.Run("Missing File", func(t *testing.T) {
		_, err := ingest.ExtractPDF(filepath.Join(t.TempDir(), "resume.pdf"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("Not A PDF", func(t *testing.T) {
		path := writeDoc(t, "resume.pdf", "plain text pretending to be a pdf")
		_, err := ingest.ExtractPDF(path)
		assert.ErrorContains(t, err, "open pdf")
	})

	t.Run("Extension Is Case Insensitive", func(t *testing.T) {
		path := writeDoc(t, "RESUME.PDF", "still not a pdf")
		_, err := ingest.LoadText(path)
		assert.ErrorContains(t, err, "open pdf")
	})
}
