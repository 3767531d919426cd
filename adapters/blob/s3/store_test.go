package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	inputs []*s3.PutObjectInput
	bodies []string
	err    error
}

func (f *fakeClient) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.inputs = append(f.inputs, params)
	f.bodies = append(f.bodies, string(data))
	return &s3.PutObjectOutput{}, nil
}

func TestPutUploadsWithPrefix(t *testing.T) {
	client := &fakeClient{}
	store := NewWithClient(client, "concalab-web", "/public/")

	n, err := store.Put(context.Background(), "informes/EA-001-2025.json", "application/json", strings.NewReader(`{"codigo":"EA-001-2025"}`))
	require.NoError(t, err)
	assert.Equal(t, int64(24), n)

	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	assert.Equal(t, "concalab-web", aws.ToString(in.Bucket))
	assert.Equal(t, "public/informes/EA-001-2025.json", aws.ToString(in.Key))
	assert.Equal(t, "application/json", aws.ToString(in.ContentType))
	assert.Equal(t, int64(24), aws.ToInt64(in.ContentLength))
	assert.Equal(t, `{"codigo":"EA-001-2025"}`, client.bodies[0])
}

func TestPutWrapsClientError(t *testing.T) {
	store := NewWithClient(&fakeClient{err: errors.New("access denied")}, "bucket", "")
	_, err := store.Put(context.Background(), "a.json", "", strings.NewReader("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket=bucket key=a.json")
}

func TestApplyPrefix(t *testing.T) {
	tests := []struct {
		prefix, key, want string
	}{
		{"", "informes/a.json", "informes/a.json"},
		{"web", "/informes/a.json", "web/informes/a.json"},
		{"/web/", "informes/a.json", "web/informes/a.json"},
		{"web", "", "web"},
	}
	for _, tt := range tests {
		t.Run(tt.prefix+"|"+tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, applyPrefix(tt.prefix, tt.key))
		})
	}
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), "us-east-1", "", "")
	assert.Error(t, err)
}
