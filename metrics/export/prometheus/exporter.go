package prometheus

import (
	"bufio"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/inkauth"
	"github.com/MrEthical07/inkauth/metrics/export/internaldefs"
)

// Source is what the exporter reads on every scrape. [inkauth.Engine]
// satisfies it.
type Source interface {
	MetricsSnapshot() inkauth.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter renders engine metrics in the Prometheus text exposition format.
type Exporter struct {
	source Source
}

// New returns an exporter reading from source.
func New(source Source) *Exporter {
	return &Exporter{source: source}
}

// Handler serves the exposition text. Mount it on /metrics.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_ = p.WriteTo(w)
	})
}

// Render returns the exposition text. It is empty while metrics are
// disabled and nothing was dropped.
func (p *Exporter) Render() string {
	var b strings.Builder
	_ = p.WriteTo(&b)
	return b.String()
}

// WriteTo writes the exposition text to w.
func (p *Exporter) WriteTo(w io.Writer) error {
	if p == nil || p.source == nil {
		return nil
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return nil
	}

	bw := bufio.NewWriterSize(w, 8192)
	for _, def := range internaldefs.CounterDefs {
		writeCounter(bw, def.Name, def.Help, snapshot.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		raw, ok := snapshot.Histograms[def.ID]
		if !ok {
			continue
		}
		writeHistogram(bw, def.Name, def.Help, internaldefs.Cumulative(raw))
	}
	writeCounter(bw, internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, dropped)
	return bw.Flush()
}

func writeHeader(w *bufio.Writer, name, help, kind string) {
	w.WriteString("# HELP ")
	w.WriteString(name)
	w.WriteByte(' ')
	w.WriteString(escapeHelp(help))
	w.WriteString("\n# TYPE ")
	w.WriteString(name)
	w.WriteByte(' ')
	w.WriteString(kind)
	w.WriteByte('\n')
}

func writeCounter(w *bufio.Writer, name, help string, value uint64) {
	writeHeader(w, name, help, "counter")
	w.WriteString(name)
	w.WriteByte(' ')
	w.WriteString(strconv.FormatUint(value, 10))
	w.WriteByte('\n')
}

func writeHistogram(w *bufio.Writer, name, help string, cumulative [inkauth.MetricBucketCount]uint64) {
	writeHeader(w, name, help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		w.WriteString(name)
		w.WriteString(`_bucket{le="`)
		w.WriteString(le)
		w.WriteString(`"} `)
		w.WriteString(strconv.FormatUint(cumulative[i], 10))
		w.WriteByte('\n')
	}
	w.WriteString(name)
	w.WriteString("_count ")
	w.WriteString(strconv.FormatUint(cumulative[len(cumulative)-1], 10))
	w.WriteByte('\n')
	// Durations are bucketed only, so the sum is not tracked.
	w.WriteString(name)
	w.WriteString("_sum 0\n")
}

func escapeHelp(help string) string {
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(help)
}
