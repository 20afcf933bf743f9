package source

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

type fakeS3 struct {
	s3iface.S3API
	objects map[string][]byte
}

func (f *fakeS3) GetObjectWithContext(_ aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.StringValue(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) ListObjectsV2PagesWithContext(_ aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, _ ...request.Option) error {
	fn(&s3.ListObjectsV2Output{Contents: []*s3.Object{{Key: aws.String("radar/a.bin")}}}, false)
	fn(&s3.ListObjectsV2Output{Contents: []*s3.Object{{Key: aws.String("radar/b.bin")}}}, true)
	return nil
}

func TestS3(t *testing.T) {
	src := &S3{Client: &fakeS3{objects: map[string][]byte{"radar/a.bin": []byte("RSTM")}}, Bucket: "met"}

	data, err := src.ReadAll(context.Background(), "radar/a.bin")
	require.NoError(t, err)
	assert.Equal(t, []byte("RSTM"), data)

	_, err = src.ReadAll(context.Background(), "radar/none.bin")
	assert.ErrorContains(t, err, "s3://met/radar/none.bin")

	names, err := src.List(context.Background(), "radar/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.bin", "b.bin"}, names)
}

func encodeResult(code int32, message string, payload []byte) []byte {
	var b []byte
	if code != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(code))
	}
	if message != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, message)
	}
	// an unknown field is skipped
	b = protowire.AppendTag(b, 9, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, 7)
	if payload != nil {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, payload)
	}
	return b
}

func gdsServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/DataService", r.URL.Path)
		switch q.Get("requestType") {
		case "getLatestDataName":
			assert.Equal(t, "ECMWF_HR/TMP/850", q.Get("directory"))
			assert.Equal(t, "*.024", q.Get("filter"))
			w.Write(encodeResult(0, "", []byte("20010108.024")))
		case "getData":
			switch q.Get("fileName") {
			case "20010108.024":
				w.Write(encodeResult(0, "", []byte("mdfs grid")))
			case "broken":
				w.Write([]byte{0xff})
			case "down":
				http.Error(w, "down", http.StatusServiceUnavailable)
			default:
				w.Write(encodeResult(-1, "file not found", nil))
			}
		}
	}))
}

func TestGDS(t *testing.T) {
	srv := gdsServer(t)
	defer srv.Close()
	g := &GDS{BaseURL: srv.URL, Client: srv.Client()}
	ctx := context.Background()

	data, err := g.ReadAll(ctx, "ECMWF_HR/TMP/850/*.024")
	require.NoError(t, err)
	assert.Equal(t, "mdfs grid", string(data))

	data, err = g.ReadAll(ctx, "ECMWF_HR/TMP/850/20010108.024")
	require.NoError(t, err)
	assert.Equal(t, "mdfs grid", string(data))

	_, err = g.Data(ctx, "ECMWF_HR/TMP/850", "nope")
	var se *ServiceError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, int64(-1), se.Code)
	assert.Equal(t, "file not found", se.Message)

	_, err = g.Data(ctx, "X", "broken")
	assert.Error(t, err)

	_, err = g.Data(ctx, "X", "down")
	assert.ErrorContains(t, err, "503")
}

func TestRequestURL(t *testing.T) {
	g := NewGDS("10.32.8.164", 8080, 0)
	assert.Equal(t,
		"http://10.32.8.164:8080/DataService?directory=ECMWF_HR%2FTMP%2F850&fileName=&filter=%2A.024&requestType=getLatestDataName",
		g.RequestURL("getLatestDataName", "ECMWF_HR/TMP/850", "", "*.024"))
}
