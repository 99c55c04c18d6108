package metrics

import (
	"log/slog"
	"net/http"
	"os"
	"sort"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/boardrelay/boardrelay/pkg/types"
	"github.com/boardrelay/boardrelay/server/internal/hub"
)

const namespace = "boardrelay_"

// StatsSource is the part of hub.Hub the collector reads.
type StatsSource interface {
	Stats() hub.Stats
}

// Collector gathers metric families on every scrape.
type Collector struct {
	hub   StatsSource
	conns func() int
	proc  *process.Process
}

// New returns a Collector over h. conns reports open WebSocket connections
// and may be nil.
func New(h StatsSource, conns func() int) *Collector {
	c := &Collector{hub: h, conns: conns}
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		slog.Warn("metrics: process stats unavailable", "err", err)
	} else {
		c.proc = p
	}
	return c
}

// Gather returns the current metric families sorted by name.
func (c *Collector) Gather() []*dto.MetricFamily {
	st := c.hub.Stats()

	mfs := []*dto.MetricFamily{
		gauge(namespace+"sessions_open", "Open sessions, authenticated or not.", float64(st.Sessions)),
		gauge(namespace+"sessions_authenticated", "Authenticated sessions.", float64(st.Authenticated)),
		gauge(namespace+"history_entries", "Events currently held in the draw history.", float64(st.HistoryLength)),
		messagesFamily(st.Messages),
		labelled(namespace+"auth_total", "Authentication attempts by result.", dto.MetricType_COUNTER, "result",
			map[string]float64{"success": float64(st.AuthSucceeded), "failure": float64(st.AuthFailed)}),
		counter(namespace+"send_failures_total", "Outbound frames that could not be delivered.", float64(st.SendFailures)),
		counter(namespace+"transport_errors_total", "Sessions that ended with a transport error.", float64(st.TransportErrors)),
	}
	if c.conns != nil {
		mfs = append(mfs, gauge(namespace+"ws_connections", "WebSocket connections being served.", float64(c.conns())))
	}
	mfs = append(mfs, c.processFamilies()...)

	sort.Slice(mfs, func(i, j int) bool { return mfs[i].GetName() < mfs[j].GetName() })
	return mfs
}

// ServeHTTP writes the exposition in the negotiated format.
func (c *Collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	format := expfmt.Negotiate(r.Header)
	w.Header().Set("Content-Type", string(format))

	enc := expfmt.NewEncoder(w, format)
	for _, mf := range c.Gather() {
		if err := enc.Encode(mf); err != nil {
			slog.Error("metrics: encode", "family", mf.GetName(), "err", err)
			return
		}
	}
	if closer, ok := enc.(expfmt.Closer); ok {
		if err := closer.Close(); err != nil {
			slog.Error("metrics: close encoder", "err", err)
		}
	}
}

func (c *Collector) processFamilies() []*dto.MetricFamily {
	if c.proc == nil {
		return nil
	}
	var out []*dto.MetricFamily
	if mem, err := c.proc.MemoryInfo(); err == nil {
		out = append(out, gauge("process_resident_memory_bytes", "Resident memory size in bytes.", float64(mem.RSS)))
	}
	if t, err := c.proc.Times(); err == nil {
		out = append(out, counter("process_cpu_seconds_total", "Total user and system CPU time spent in seconds.", t.User+t.System))
	}
	if fds, err := c.proc.NumFDs(); err == nil {
		out = append(out, gauge("process_open_fds", "Number of open file descriptors.", float64(fds)))
	}
	return out
}

func messagesFamily(counts map[types.Kind]uint64) *dto.MetricFamily {
	vals := make(map[string]float64, len(counts))
	for k, n := range counts {
		vals[string(k)] = float64(n)
	}
	return labelled(namespace+"messages_total", "Frames received from authenticated sessions by kind.",
		dto.MetricType_COUNTER, "kind", vals)
}

// --- builders ---------------------------------------------------------------

func ptr[T any](v T) *T { return &v }

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   ptr(name),
		Help:   ptr(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: ptr(v)}}},
	}
}

func counter(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   ptr(name),
		Help:   ptr(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: ptr(v)}}},
	}
}

// labelled builds one family with a metric per label value, in label order.
func labelled(name, help string, typ dto.MetricType, label string, vals map[string]float64) *dto.MetricFamily {
	keys := make([]string, 0, len(vals))
	for k := range vals {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mf := &dto.MetricFamily{Name: ptr(name), Help: ptr(help), Type: typ.Enum()}
	for _, k := range keys {
		m := &dto.Metric{Label: []*dto.LabelPair{{Name: ptr(label), Value: ptr(k)}}}
		if typ == dto.MetricType_COUNTER {
			m.Counter = &dto.Counter{Value: ptr(vals[k])}
		} else {
			m.Gauge = &dto.Gauge{Value: ptr(vals[k])}
		}
		mf.Metric = append(mf.Metric, m)
	}
	return mf
}
