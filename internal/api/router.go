// Package api serves the run log, its summary and the latest index over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/reflex-cli/internal/fips"
	"github.com/sells-group/reflex-cli/internal/flow"
	"github.com/sells-group/reflex-cli/internal/monitoring"
	"github.com/sells-group/reflex-cli/internal/reflex"
	"github.com/sells-group/reflex-cli/internal/runlog"
)

// RunLister is the run-log view the server reads from.
type RunLister interface {
	ListAll(ctx context.Context) ([]runlog.Entry, error)
	LastSuccess(ctx context.Context, kind, unit string) (*time.Time, error)
}

// Options configures the router.
type Options struct {
	Runs           RunLister
	IndexPath      string
	AllowedOrigins []string
	Registry       *prometheus.Registry
}

type server struct {
	runs      RunLister
	indexPath string
	requests  *prometheus.CounterVec
	log       *zap.Logger
}

// NewRouter builds the HTTP handler. Requests are counted on opts.Registry,
// which is also exposed at /metrics.
func NewRouter(opts Options) http.Handler {
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	s := &server{
		runs:      opts.Runs,
		indexPath: opts.IndexPath,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reflex_api_requests_total",
			Help: "API requests by route and status code",
		}, []string{"route", "code"}),
		log: zap.L().With(zap.String("component", "api")),
	}
	reg.MustRegister(s.requests)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(s.count)

	r.Get("/health", s.health)
	r.Get("/runs", s.listRuns)
	r.Get("/runs/{kind}/{unit}/last", s.lastSuccess)
	r.Get("/status", s.status)
	r.Get("/index", s.index)
	r.Get("/index/{dst}", s.county)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return r
}

func (s *server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	})
}

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) listRuns(w http.ResponseWriter, r *http.Request) {
	entries, err := s.runs.ListAll(r.Context())
	if err != nil {
		s.fail(w, "list runs", err)
		return
	}

	kind := r.URL.Query().Get("kind")
	status := r.URL.Query().Get("status")
	out := make([]runlog.Entry, 0, len(entries))
	for _, e := range entries {
		if (kind == "" || e.Kind == kind) && (status == "" || e.Status == status) {
			out = append(out, e)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// lastRun reports when a unit last completed; LastSuccess is null if never.
type lastRun struct {
	Kind        string     `json:"kind"`
	Unit        string     `json:"unit"`
	LastSuccess *time.Time `json:"last_success"`
}

func (s *server) lastSuccess(w http.ResponseWriter, r *http.Request) {
	kind, unit := chi.URLParam(r, "kind"), chi.URLParam(r, "unit")
	at, err := s.runs.LastSuccess(r.Context(), kind, unit)
	if err != nil {
		s.fail(w, "last success", err)
		return
	}
	writeJSON(w, http.StatusOK, lastRun{Kind: kind, Unit: unit, LastSuccess: at})
}

func (s *server) status(w http.ResponseWriter, r *http.Request) {
	lookback := 0
	if v := r.URL.Query().Get("lookback"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "lookback must be a non-negative number of hours")
			return
		}
		lookback = n
	}

	snap, err := monitoring.NewCollector(s.runs).Collect(r.Context(), lookback)
	if err != nil {
		s.fail(w, "collect status", err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// indexRow is one destination of the published index.
type indexRow struct {
	Dst    string              `json:"dst"`
	Values map[string]*float64 `json:"values"`
}

func (s *server) loadIndex(w http.ResponseWriter) (*reflex.Table, bool) {
	t, err := reflex.Read(s.indexPath)
	if err != nil {
		if flow.IsKind(err, flow.KindIO) {
			writeError(w, http.StatusNotFound, "index has not been computed")
			return nil, false
		}
		s.fail(w, "read index", err)
		return nil, false
	}
	return t, true
}

func row(t *reflex.Table, dst int) indexRow {
	out := indexRow{Dst: fips.PadCounty(dst), Values: make(map[string]*float64, len(t.Years))}
	for _, y := range t.Years {
		if v, ok := t.Value(dst, y); ok {
			out.Values[reflex.ColumnName(y)] = &v
		} else {
			out.Values[reflex.ColumnName(y)] = nil
		}
	}
	return out
}

func (s *server) index(w http.ResponseWriter, _ *http.Request) {
	t, ok := s.loadIndex(w)
	if !ok {
		return
	}
	dsts := t.Destinations()
	rows := make([]indexRow, len(dsts))
	for i, dst := range dsts {
		rows[i] = row(t, dst)
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *server) county(w http.ResponseWriter, r *http.Request) {
	dst, err := fips.ParseCounty(chi.URLParam(r, "dst"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "dst must be a 5-digit county code")
		return
	}
	t, ok := s.loadIndex(w)
	if !ok {
		return
	}
	out := row(t, dst)
	for _, v := range out.Values {
		if v != nil {
			writeJSON(w, http.StatusOK, out)
			return
		}
	}
	writeError(w, http.StatusNotFound, "county has no index value")
}

func (s *server) fail(w http.ResponseWriter, action string, err error) {
	s.log.Error(action, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
