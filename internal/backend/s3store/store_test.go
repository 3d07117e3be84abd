package s3store

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/superscore/internal/backend"
	"github.com/tamzrod/superscore/internal/backend/backendtest"
	"github.com/tamzrod/superscore/internal/model"
)

// ---- fake object API ----

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
	failPut error
}

func newFakeBucket() *fakeBucket { return &fakeBucket{objects: map[string][]byte{}} }

func (f *fakeBucket) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (f *fakeBucket) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut != nil {
		return nil, f.failPut
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = body
	f.puts++
	return &s3.PutObjectOutput{}, nil
}

// ---- tests ----

func TestConformance(t *testing.T) {
	buckets := map[backend.Backend]*fakeBucket{}
	backendtest.Run(t, backendtest.Factory{
		Open: func(t *testing.T) backend.Backend {
			fb := newFakeBucket()
			s, err := newStore(context.Background(), fb, Config{Bucket: "scores"})
			require.NoError(t, err)
			buckets[s] = fb
			return s
		},
		Reopen: func(t *testing.T, b backend.Backend) backend.Backend {
			s, err := newStore(context.Background(), buckets[b], Config{Bucket: "scores"})
			require.NoError(t, err)
			return s
		},
	})
}

func TestObjectWrittenPerMutation(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBucket()
	s, err := newStore(ctx, fb, Config{Bucket: "scores", Key: "site/a.json"})
	require.NoError(t, err)
	assert.Equal(t, 0, fb.puts)

	p := model.NewParameter("PV", "")
	require.NoError(t, s.Save(ctx, p))
	require.NoError(t, s.Delete(ctx, p))
	assert.Equal(t, 2, fb.puts)
	assert.Contains(t, fb.objects, "scores/site/a.json")
}

func TestPutFailure(t *testing.T) {
	ctx := context.Background()
	fb := newFakeBucket()
	s, err := newStore(ctx, fb, Config{Bucket: "scores"})
	require.NoError(t, err)

	fb.failPut = errors.New("AccessDenied")
	err = s.Save(ctx, model.NewParameter("PV", ""))
	require.ErrorIs(t, err, backend.ErrBackend)

	r, err := s.Root(ctx)
	require.NoError(t, err)
	assert.Empty(t, r.Entries)
}

func TestCorruptObject(t *testing.T) {
	fb := newFakeBucket()
	fb.objects["scores/"+DefaultKey] = []byte("<html>")
	_, err := newStore(context.Background(), fb, Config{Bucket: "scores"})
	require.ErrorIs(t, err, backend.ErrBackend)
}

func TestOpenRequiresBucket(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	require.ErrorIs(t, err, backend.ErrBackend)
}
