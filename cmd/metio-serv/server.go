package main

import (
	"context"
	"errors"
	"math"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/nmcdev/metio"
	"github.com/nmcdev/metio/cinrad"
	"github.com/nmcdev/metio/field"
	"github.com/nmcdev/metio/source"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type server struct {
	sources  map[string]source.Source
	metrics  *metrics
	gatherer prometheus.Gatherer // nil serves the default registry
}

func (s *server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("ok")) })
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}
	r.HandleFunc("/sources", s.sourcesHandler)
	r.HandleFunc("/list/s3/{prefix:.*}", s.listHandler)
	r.HandleFunc("/latest/gds/{dir:.*}", s.latestHandler)
	r.HandleFunc("/decode/{source}/{id:.*}", s.decodeHandler)
	r.HandleFunc("/sweep/{source}/{tilt}/{moment}/{id:.*}", s.sweepHandler)
	return r
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	j, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(j)
}

// status maps a decode or fetch error to an HTTP status.
func status(err error) int {
	var fe *field.FormatError
	var ue *field.UnsupportedVariantError
	var se *source.ServiceError
	switch {
	case errors.As(err, &ue):
		return http.StatusUnsupportedMediaType
	case errors.As(err, &fe):
		return http.StatusUnprocessableEntity
	case errors.As(err, &se):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func (s *server) sourcesHandler(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(s.sources))
	for _, n := range []string{"file", "gds", "s3"} {
		if _, ok := s.sources[n]; ok {
			names = append(names, n)
		}
	}
	writeJSON(w, names)
}

// load fetches and decodes one product, recording metrics.
func (s *server) load(req *http.Request) (*metio.Result, string, int, error) {
	vars := mux.Vars(req)
	name, id := vars["source"], vars["id"]
	src, ok := s.sources[name]
	if !ok {
		return nil, id, http.StatusNotFound, errors.New("unknown source " + strconv.Quote(name))
	}

	data, err := src.ReadAll(req.Context(), id)
	if err != nil {
		s.metrics.Requests.WithLabelValues(name, "fetch_error").Inc()
		return nil, id, status(err), err
	}
	s.metrics.FetchedBytes.Add(float64(len(data)))

	opts := metio.Options{SWANProduct: req.URL.Query().Get("product")}
	if limit := req.URL.Query().Get("limit"); limit != "" {
		box, err := field.ParseBBox(limit)
		if err != nil {
			return nil, id, http.StatusBadRequest, err
		}
		opts.WithLimit(box)
	}

	start := time.Now()
	res, err := metio.Decode(path.Base(id), data, opts)
	if err != nil {
		s.metrics.Requests.WithLabelValues(name, "decode_error").Inc()
		return nil, id, status(err), err
	}
	product := res.Product.String()
	s.metrics.DecodeDuration.WithLabelValues(product).Observe(time.Since(start).Seconds())
	s.metrics.Products.WithLabelValues(product).Inc()
	s.metrics.Requests.WithLabelValues(name, "ok").Inc()
	return res, id, http.StatusOK, nil
}

func (s *server) decodeHandler(w http.ResponseWriter, req *http.Request) {
	res, id, code, err := s.load(req)
	if err != nil {
		logrus.Warnf("%s: %v", id, err)
		http.Error(w, err.Error(), code)
		return
	}
	writeJSON(w, res.Summarize(id))
}

// sweepJSON is a Sweep with missing gates as null.
type sweepJSON struct {
	Moment     string       `json:"moment"`
	Elevation  float64      `json:"elevation"`
	Azimuths   []float64    `json:"azimuths"`
	Elevations []float64    `json:"elevations,omitempty"`
	Ranges     []float64    `json:"ranges"`
	Data       [][]*float64 `json:"data"`
	Folded     [][]bool     `json:"folded,omitempty"`
}

func newSweepJSON(sw *cinrad.Sweep) sweepJSON {
	out := sweepJSON{
		Moment:     sw.Moment,
		Elevation:  sw.Elevation,
		Azimuths:   sw.Azimuths,
		Elevations: sw.Elevations,
		Ranges:     sw.Ranges,
		Data:       make([][]*float64, len(sw.Data)),
		Folded:     sw.Folded,
	}
	for i, row := range sw.Data {
		out.Data[i] = make([]*float64, len(row))
		for j, v := range row {
			if !math.IsNaN(v) {
				out.Data[i][j] = field.Float(v)
			}
		}
	}
	return out
}

func (s *server) sweepHandler(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	tilt, err := strconv.Atoi(vars["tilt"])
	if err != nil {
		http.Error(w, "Invalid tilt", http.StatusBadRequest)
		return
	}

	res, id, code, err := s.load(req)
	if err != nil {
		logrus.Warnf("%s: %v", id, err)
		http.Error(w, err.Error(), code)
		return
	}
	if res.Volume == nil {
		http.Error(w, res.Product.String()+" is not a radar volume", http.StatusBadRequest)
		return
	}
	sw, err := res.Volume.Sweep(tilt, vars["moment"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, newSweepJSON(sw))
}

// lister is the part of source.S3 the listing route needs.
type lister interface {
	List(ctx context.Context, prefix string) ([]string, error)
}

func (s *server) listHandler(w http.ResponseWriter, req *http.Request) {
	l, ok := unwrapCached(s.sources["s3"]).(lister)
	if !ok {
		http.Error(w, "s3 source not configured", http.StatusNotFound)
		return
	}
	names, err := l.List(req.Context(), mux.Vars(req)["prefix"])
	if err != nil {
		http.Error(w, err.Error(), status(err))
		return
	}
	writeJSON(w, names)
}

func (s *server) latestHandler(w http.ResponseWriter, req *http.Request) {
	gds, ok := unwrapCached(s.sources["gds"]).(*source.GDS)
	if !ok {
		http.Error(w, "gds source not configured", http.StatusNotFound)
		return
	}
	filter := req.URL.Query().Get("filter")
	if filter == "" {
		filter = "*"
	}
	name, err := gds.LatestName(req.Context(), mux.Vars(req)["dir"], filter)
	if err != nil {
		http.Error(w, err.Error(), status(err))
		return
	}
	writeJSON(w, map[string]string{"name": name})
}

func unwrapCached(src source.Source) source.Source {
	if c, ok := src.(source.Cached); ok {
		return c.Source
	}
	return src
}
