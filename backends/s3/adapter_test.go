package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"go.uber.org/zap"

	"github.com/ebogdum/vizgate/config"
)

type fakeS3 struct {
	s3iface.S3API
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakeS3) PutObjectWithContext(ctx aws.Context, input *s3.PutObjectInput, opts ...request.Option) (*s3.PutObjectOutput, error) {
	f.input = input
	data, _ := io.ReadAll(input.Body)
	f.body = string(data)
	return &s3.PutObjectOutput{}, f.err
}

func TestPut(t *testing.T) {
	client := &fakeS3{}
	sink := newWithClient(client, config.ExportConfig{
		S3BucketName:           "exports",
		KeyPrefix:              "vizgate/",
		S3ServerSideEncryption: "aws:kms",
		S3KMSKeyID:             "key-1",
		S3ACL:                  "private",
	}, zap.NewNop())

	// a plain reader, not a ReadSeeker
	reader := io.MultiReader(strings.NewReader("PK\x03\x04"), strings.NewReader("zip!"))
	if err := sink.Put(context.Background(), "/download/20240101/zip/1_1.zip", reader, 8); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	in := client.input
	if aws.StringValue(in.Bucket) != "exports" {
		t.Errorf("unexpected bucket %s", aws.StringValue(in.Bucket))
	}
	if aws.StringValue(in.Key) != "vizgate/download/20240101/zip/1_1.zip" {
		t.Errorf("unexpected key %s", aws.StringValue(in.Key))
	}
	if aws.StringValue(in.SSEKMSKeyId) != "key-1" || aws.StringValue(in.ACL) != "private" {
		t.Errorf("expected encryption and acl to be set, got %v %v", in.SSEKMSKeyId, in.ACL)
	}
	if aws.Int64Value(in.ContentLength) != 8 {
		t.Errorf("unexpected content length %d", aws.Int64Value(in.ContentLength))
	}
	if aws.StringValue(in.ContentType) != "application/zip" {
		t.Errorf("unexpected content type %s", aws.StringValue(in.ContentType))
	}
	if client.body != "PK\x03\x04zip!" {
		t.Errorf("unexpected body %q", client.body)
	}
}

func TestPutError(t *testing.T) {
	client := &fakeS3{err: errors.New("access denied")}
	sink := newWithClient(client, config.ExportConfig{S3BucketName: "exports"}, zap.NewNop())

	if err := sink.Put(context.Background(), "a.zip", strings.NewReader("x"), 1); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewS3SinkRequiresBucket(t *testing.T) {
	if _, err := NewS3Sink(config.ExportConfig{}, zap.NewNop()); err == nil {
		t.Fatal("expected error without bucket")
	}
}
