package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu      sync.Mutex
	puts    map[string]string
	listXML string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.puts[r.URL.Path] = string(body)
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(f.listXML))
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestService(t *testing.T, fake *fakeS3) *S3Service {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client := s3.New(s3.Options{
		Region:       "us-east-1",
		Credentials:  credentials.NewStaticCredentialsProvider("AKIDEXAMPLE", "secret", ""),
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
	})
	return NewS3Service(client)
}

func TestS3Service_PutObject(t *testing.T) {
	fake := &fakeS3{puts: map[string]string{}}
	svc := newTestService(t, fake)

	loc, err := svc.PutObject(context.Background(), "parcels", "/exports/report.json", strings.NewReader(`{"ok":true}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, "s3://parcels/exports/report.json", loc)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Contains(t, fake.puts["/parcels/exports/report.json"], `{"ok":true}`)
}

func TestS3Service_PutObjectValidation(t *testing.T) {
	svc := newTestService(t, &fakeS3{puts: map[string]string{}})

	_, err := svc.PutObject(context.Background(), "", "k", strings.NewReader("x"), "text/plain")
	require.Error(t, err)
	_, err = svc.PutObject(context.Background(), "b", "/", strings.NewReader("x"), "text/plain")
	require.Error(t, err)
}

func TestS3Service_ListObjects(t *testing.T) {
	fake := &fakeS3{listXML: `<?xml version="1.0" encoding="UTF-8"?>
<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">
  <Name>parcels</Name>
  <Prefix>exports/</Prefix>
  <KeyCount>1</KeyCount>
  <IsTruncated>false</IsTruncated>
  <Contents>
    <Key>exports/tracking-1.json</Key>
    <Size>42</Size>
    <LastModified>2026-10-19T09:00:00.000Z</LastModified>
  </Contents>
</ListBucketResult>`}
	svc := newTestService(t, fake)

	objects, err := svc.ListObjects(context.Background(), "parcels", "exports/")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "exports/tracking-1.json", objects[0].Key)
	assert.Equal(t, int64(42), objects[0].Size)
	require.NotNil(t, objects[0].LastModified)
}

func TestS3Service_GetObjectURL(t *testing.T) {
	svc := newTestService(t, &fakeS3{})

	url, err := svc.GetObjectURL(context.Background(), "parcels", "exports/tracking-1.json", 10*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "/parcels/exports/tracking-1.json")
	assert.Contains(t, url, "X-Amz-Expires=600")
}
