package services

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockStorageService is a testify mock of StorageService
type MockStorageService struct {
	mock.Mock
}

func (m *MockStorageService) Upload(ctx context.Context, key string, reader io.Reader, contentType string, size int64) (string, error) {
	args := m.Called(ctx, key, reader, contentType, size)
	return args.String(0), args.Error(1)
}

func (m *MockStorageService) GetURL(key string) string {
	return m.Called(key).String(0)
}

func (m *MockStorageService) Exists(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func TestFallbackStorageService_Upload(t *testing.T) {
	logger, _ := test.NewNullLogger()
	tempDir := t.TempDir()
	service := NewFallbackStorageService(tempDir, "http://localhost:8080/assets/", logger)

	content := "png bytes"
	url, err := service.Upload(context.Background(), "/tickets/qr/BK-1.png", strings.NewReader(content), "image/png", int64(len(content)))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/assets/tickets/qr/BK-1.png", url)

	saved, err := os.ReadFile(filepath.Join(tempDir, "tickets", "qr", "BK-1.png"))
	require.NoError(t, err)
	assert.Equal(t, content, string(saved))
}

func TestFallbackStorageService_Upload_SizeMismatch(t *testing.T) {
	logger, _ := test.NewNullLogger()
	service := NewFallbackStorageService(t.TempDir(), "http://localhost:8080", logger)

	_, err := service.Upload(context.Background(), "a.png", strings.NewReader("abc"), "image/png", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "size mismatch")

	_, err = service.Upload(context.Background(), "b.png", strings.NewReader("abc"), "image/png", -1)
	assert.NoError(t, err, "unknown size is accepted")
}

func TestFallbackStorageService_RejectsTraversal(t *testing.T) {
	logger, _ := test.NewNullLogger()
	service := NewFallbackStorageService(t.TempDir(), "http://localhost:8080", logger)

	for _, key := range []string{"../escape.png", "tickets/../../escape.png"} {
		_, err := service.Upload(context.Background(), key, strings.NewReader("x"), "image/png", 1)
		assert.Error(t, err, key)

		_, err = service.Exists(context.Background(), key)
		assert.Error(t, err, key)
	}
}

func TestFallbackStorageService_Exists(t *testing.T) {
	logger, _ := test.NewNullLogger()
	service := NewFallbackStorageService(t.TempDir(), "http://localhost:8080", logger)
	ctx := context.Background()

	exists, err := service.Exists(ctx, "tickets/qr/BK-1.png")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = service.Upload(ctx, "tickets/qr/BK-1.png", strings.NewReader("x"), "image/png", 1)
	require.NoError(t, err)

	exists, err = service.Exists(ctx, "tickets/qr/BK-1.png")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStorageServiceWithFallback_Upload_PrimarySuccess(t *testing.T) {
	logger, _ := test.NewNullLogger()
	primary := &MockStorageService{}
	fallback := &MockStorageService{}
	service := NewStorageServiceWithFallback(primary, fallback, logger)

	ctx := context.Background()
	reader := bytes.NewReader([]byte("qr"))
	primary.On("Upload", ctx, "k.png", reader, "image/png", int64(2)).Return("https://primary/k.png", nil)

	url, err := service.Upload(ctx, "k.png", reader, "image/png", 2)
	require.NoError(t, err)
	assert.Equal(t, "https://primary/k.png", url)

	primary.AssertExpectations(t)
	fallback.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStorageServiceWithFallback_Upload_RewindsForFallback(t *testing.T) {
	logger, _ := test.NewNullLogger()
	primary := &MockStorageService{}
	service := NewStorageServiceWithFallback(primary, nil, logger)

	local := NewFallbackStorageService(t.TempDir(), "http://local", logger)
	service.fallback = local

	ctx := context.Background()
	reader := bytes.NewReader([]byte("qr-bytes"))
	primary.On("Upload", ctx, "k.png", reader, "image/png", int64(8)).
		Run(func(args mock.Arguments) {
			// a failed upload may have consumed the body
			_, _ = io.ReadAll(args.Get(2).(io.Reader))
		}).
		Return("", assert.AnError)

	url, err := service.Upload(ctx, "k.png", reader, "image/png", 8)
	require.NoError(t, err)
	assert.Equal(t, "http://local/k.png", url)
	primary.AssertExpectations(t)
}

func TestStorageServiceWithFallback_Upload_UnseekableReader(t *testing.T) {
	logger, _ := test.NewNullLogger()
	primary := &MockStorageService{}
	fallback := &MockStorageService{}
	service := NewStorageServiceWithFallback(primary, fallback, logger)

	ctx := context.Background()
	reader := io.NopCloser(strings.NewReader("qr"))
	primary.On("Upload", ctx, "k.png", reader, "image/png", int64(2)).Return("", assert.AnError)

	_, err := service.Upload(ctx, "k.png", reader, "image/png", 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	fallback.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestStorageServiceWithFallback_Exists(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ctx := context.Background()

	t.Run("primary has it", func(t *testing.T) {
		primary := &MockStorageService{}
		fallback := &MockStorageService{}
		primary.On("Exists", ctx, "k.png").Return(true, nil)

		exists, err := NewStorageServiceWithFallback(primary, fallback, logger).Exists(ctx, "k.png")
		require.NoError(t, err)
		assert.True(t, exists)
		fallback.AssertNotCalled(t, "Exists", mock.Anything, mock.Anything)
	})

	t.Run("only fallback has it", func(t *testing.T) {
		primary := &MockStorageService{}
		fallback := &MockStorageService{}
		primary.On("Exists", ctx, "k.png").Return(false, assert.AnError)
		fallback.On("Exists", ctx, "k.png").Return(true, nil)

		exists, err := NewStorageServiceWithFallback(primary, fallback, logger).Exists(ctx, "k.png")
		require.NoError(t, err)
		assert.True(t, exists)
		fallback.AssertExpectations(t)
	})
}

func TestStorageServiceWithFallback_GetURL(t *testing.T) {
	logger, _ := test.NewNullLogger()
	primary := &MockStorageService{}
	primary.On("GetURL", "k.png").Return("https://primary/k.png")

	assert.Equal(t, "https://primary/k.png", NewStorageServiceWithFallback(primary, &MockStorageService{}, logger).GetURL("k.png"))
}
