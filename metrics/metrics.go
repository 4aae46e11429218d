/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package metrics exposes the well-known counters named in §6 of the
// design: parse errors, TLS handshake failure categories, backend connect
// failures and byte/response-time counters. Every collector is registered
// against the default Prometheus registry so ctl or any local scraper can
// read instantaneous values. Every recorded event except the byte counts is
// also pushed as a StatsD UDP line when a StatsD address is configured.
package metrics

import (
	"fmt"
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	liberr "github.com/flowgate/flowgate/errors"
)

// Registry bundles the Prometheus collectors and the StatsD UDP
// connection used by every worker and the master. One Registry is shared
// process-wide.
type Registry struct {
	ParseErrors      *prometheus.CounterVec
	BackendConnect   *prometheus.CounterVec
	BytesIn          prometheus.Counter
	BytesOut         prometheus.Counter
	ResponseTime     prometheus.Histogram
	TLSHandshakeFail *prometheus.CounterVec

	statsd net.Conn
	prefix string
}

// New registers every collector against prometheus.DefaultRegisterer and
// dials statsdAddr over UDP. An empty statsdAddr disables the StatsD push
// path; Prometheus collection is always active.
func New(prefix, statsdAddr string) (*Registry, liberr.Error) {
	r := &Registry{
		prefix: prefix,
		ParseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_parse_errors_total",
			Help: "HTTP request/response parse errors by protocol variant.",
		}, []string{"side"}),
		BackendConnect: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_backend_connect_failures_total",
			Help: "Failed backend connect attempts by application id.",
		}, []string{"application_id"}),
		BytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_bytes_in_total",
			Help: "Bytes read from client sockets.",
		}),
		BytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "_bytes_out_total",
			Help: "Bytes written to client sockets.",
		}),
		ResponseTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: prefix + "_response_seconds",
			Help: "End-to-end time from request headers parsed to response completed.",
		}),
		TLSHandshakeFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_tls_handshake_failures_total",
			Help: "TLS handshake failures by category (see metrics.TLSErrorCategory).",
		}, []string{"category"}),
	}

	for _, c := range []prometheus.Collector{r.ParseErrors, r.BackendConnect, r.BytesIn, r.BytesOut, r.ResponseTime, r.TLSHandshakeFail} {
		_ = prometheus.Register(c)
	}

	if statsdAddr != "" {
		conn, err := net.DialTimeout("udp", statsdAddr, 2*time.Second)
		if err != nil {
			return nil, ErrorStatsdDial.Error(err)
		}
		r.statsd = conn
	}

	return r, nil
}

// Close releases the StatsD UDP socket, if one was opened.
func (r *Registry) Close() {
	if r.statsd != nil {
		_ = r.statsd.Close()
	}
}

// count pushes a StatsD counter increment line ("name:1|c") and is a
// no-op when no StatsD address was configured.
func (r *Registry) count(name string) {
	if r.statsd == nil {
		return
	}
	_, _ = r.statsd.Write([]byte(fmt.Sprintf("%s.%s:1|c", r.prefix, name)))
}

// timing pushes a StatsD timing line in milliseconds.
func (r *Registry) timing(name string, d time.Duration) {
	if r.statsd == nil {
		return
	}
	_, _ = r.statsd.Write([]byte(fmt.Sprintf("%s.%s:%d|ms", r.prefix, name, d.Milliseconds())))
}

// ParseError records a parse failure on the request ("request") or
// response ("response") side, per scenario 4/5 of the testable
// properties.
func (r *Registry) ParseError(side string) {
	r.ParseErrors.WithLabelValues(side).Inc()
	r.count("http_request.error")
}

// BackendConnectFailure records a failed dial to applicationID's backend.
func (r *Registry) BackendConnectFailure(applicationID string) {
	r.BackendConnect.WithLabelValues(applicationID).Inc()
	r.count("backend.connections.error")
}

// Bytes records bytes moved in each direction on the client side.
func (r *Registry) Bytes(in, out uint64) {
	r.BytesIn.Add(float64(in))
	r.BytesOut.Add(float64(out))
}

// ResponseCompleted records the elapsed time from headers-parsed to the
// response finishing.
func (r *Registry) ResponseCompleted(d time.Duration) {
	r.ResponseTime.Observe(d.Seconds())
	r.timing("response_time", d)
}
