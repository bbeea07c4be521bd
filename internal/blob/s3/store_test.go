package s3blob

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/socialbet/internal/domain"
)

// memAPI keeps objects in a map. Calls it does not override panic through the
// nil embedded interface.
type memAPI struct {
	API
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemAPI() *memAPI {
	return &memAPI{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[aws.ToString(in.Key)] = data
	m.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (m *memAPI) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *memAPI) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[aws.ToString(in.Key)]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (m *memAPI) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), Size: aws.Int64(int64(len(m.objects[k])))})
	}
	return out, nil
}

func (m *memAPI) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestStorePutGetDelete(t *testing.T) {
	ctx := context.Background()
	api := newMemAPI()
	s := NewStore(api, "bucket")

	require.NoError(t, s.Put(ctx, "metadata/Qm1", strings.NewReader(`{"a":1}`), "application/json"))
	assert.Equal(t, "application/json", api.types["metadata/Qm1"])

	ok, err := s.Exists(ctx, "metadata/Qm1")
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := s.Get(ctx, "metadata/Qm1")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(body))

	require.NoError(t, s.Delete(ctx, "metadata/Qm1"))
	ok, err = s.Exists(ctx, "metadata/Qm1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreGetMissingIsNotFound(t *testing.T) {
	_, err := NewStore(newMemAPI(), "bucket").Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStoreSmallMultipartFallsBackToSinglePut(t *testing.T) {
	ctx := context.Background()
	api := newMemAPI()
	s := NewStore(api, "bucket")

	require.NoError(t, s.PutMultipart(ctx, "snapshots/1.json", strings.NewReader(`{"seq":1}`), 1))
	assert.Equal(t, []byte(`{"seq":1}`), api.objects["snapshots/1.json"])
}

func TestStoreListByPrefix(t *testing.T) {
	ctx := context.Background()
	s := NewStore(newMemAPI(), "bucket")
	for _, p := range []string{"snapshots/2.json", "snapshots/1.json", "metadata/x"} {
		require.NoError(t, s.Put(ctx, p, strings.NewReader("{}"), "application/json"))
	}

	infos, err := s.List(ctx, "snapshots/")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "snapshots/1.json", infos[0].Path)
	assert.EqualValues(t, 2, infos[1].Size)
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("https://minio:9000", false))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
}
