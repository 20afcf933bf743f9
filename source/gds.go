package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/encoding/protowire"
)

// GDS is a client of the MICAPS GDS (Cassandra) data service. Identifiers
// are "directory/filename"; a file name containing a wildcard is resolved
// to the latest matching file first.
type GDS struct {
	BaseURL string // e.g. http://10.32.8.164:8080
	Client  *http.Client
}

// NewGDS returns a client for host:port with the given request timeout.
func NewGDS(host string, port int, timeout time.Duration) *GDS {
	return &GDS{
		BaseURL: fmt.Sprintf("http://%s:%d", host, port),
		Client:  &http.Client{Timeout: timeout},
	}
}

// ServiceError is a non-zero error code reported by the service.
type ServiceError struct {
	Code    int64
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("gds error %d: %s", e.Code, e.Message)
}

// RequestURL builds a DataService request.
func (g *GDS) RequestURL(requestType, directory, fileName, filter string) string {
	q := url.Values{}
	q.Set("requestType", requestType)
	q.Set("directory", directory)
	q.Set("fileName", fileName)
	q.Set("filter", filter)
	return strings.TrimRight(g.BaseURL, "/") + "/DataService?" + q.Encode()
}

func (g *GDS) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "gds request")
	}
	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "gds")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("gds: bad status code %d for %s", resp.StatusCode, u)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "gds")
	}
	return body, nil
}

// LatestName returns the newest file name in directory matching filter.
func (g *GDS) LatestName(ctx context.Context, directory, filter string) (string, error) {
	body, err := g.get(ctx, g.RequestURL("getLatestDataName", directory, "", filter))
	if err != nil {
		return "", err
	}
	res, err := parseResult(body)
	if err != nil {
		return "", errors.Wrapf(err, "gds latest name in %s", directory)
	}
	if res.code != 0 {
		return "", &ServiceError{Code: res.code, Message: res.message}
	}
	if len(res.payload) == 0 {
		return "", errors.Errorf("gds: no file matching %q in %s", filter, directory)
	}
	return string(res.payload), nil
}

// Data returns the content of one file.
func (g *GDS) Data(ctx context.Context, directory, fileName string) ([]byte, error) {
	body, err := g.get(ctx, g.RequestURL("getData", directory, fileName, ""))
	if err != nil {
		return nil, err
	}
	res, err := parseResult(body)
	if err != nil {
		return nil, errors.Wrapf(err, "gds data %s/%s", directory, fileName)
	}
	if res.code != 0 {
		return nil, &ServiceError{Code: res.code, Message: res.message}
	}
	logrus.Debugf("Fetched gds %s/%s (%s)", directory, fileName, humanize.Bytes(uint64(len(res.payload))))
	return res.payload, nil
}

// ReadAll implements Source.
func (g *GDS) ReadAll(ctx context.Context, id string) ([]byte, error) {
	directory, name := path.Split(id)
	directory = strings.TrimSuffix(directory, "/")
	if strings.ContainsAny(name, "*?") {
		latest, err := g.LatestName(ctx, directory, name)
		if err != nil {
			return nil, err
		}
		name = latest
	}
	return g.Data(ctx, directory, name)
}

// result is the common shape of the StringResult and ByteArrayResult
// messages: errorCode = 1, errorMessage = 2 and the payload (name or
// byteArray) = 3.
type result struct {
	code    int64
	message string
	payload []byte
}

func parseResult(b []byte) (result, error) {
	var r result
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return r, protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			r.code = int64(int32(v))
			b = b[n:]
		case (num == 2 || num == 3) && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			if num == 2 {
				r.message = string(v)
			} else {
				r.payload = append([]byte(nil), v...)
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return r, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return r, nil
}
