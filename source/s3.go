package source

import (
	"context"
	"io"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	humanize "github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// S3 reads products from an S3 bucket. Identifiers are object keys.
type S3 struct {
	Client s3iface.S3API
	Bucket string
}

// NewS3 returns an S3 source using anonymous credentials, as public data
// buckets require.
func NewS3(region, bucket string) (*S3, error) {
	sess, err := session.NewSession(&aws.Config{
		Credentials: credentials.AnonymousCredentials,
		Region:      aws.String(region),
	})
	if err != nil {
		return nil, errors.Wrap(err, "s3 session")
	}
	return &S3{Client: s3.New(sess), Bucket: bucket}, nil
}

// ReadAll implements Source.
func (s *S3) ReadAll(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "s3://%s/%s", s.Bucket, key)
	}
	defer obj.Body.Close()

	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "s3://%s/%s", s.Bucket, key)
	}
	logrus.Debugf("Fetched s3://%s/%s (%s)", s.Bucket, key, humanize.Bytes(uint64(len(data))))
	return data, nil
}

// List returns the base names of the objects under prefix, in key order.
func (s *S3) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	err := s.Client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.Bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, last bool) bool {
		for _, o := range page.Contents {
			names = append(names, path.Base(aws.StringValue(o.Key)))
		}
		return true
	})
	if err != nil {
		return nil, errors.Wrapf(err, "list s3://%s/%s", s.Bucket, prefix)
	}
	return names, nil
}
