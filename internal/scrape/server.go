// Package scrape implements the pull-style metrics HTTP endpoint of
// spec.md §4.3: a single synchronous accept loop serving GET /metrics in
// the legacy Prometheus text exposition format.
package scrape

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/infertux/solar-exporter/internal/catalog"
	"github.com/infertux/solar-exporter/internal/runstate"
	"github.com/infertux/solar-exporter/internal/snapshot"
)

const (
	minimumRequestSize = 16
	requestBufferSize  = 1024
	contentType        = "text/plain; version=0.0.4; charset=utf-8"
	requestLinePrefix  = "GET /metrics"
	serverHeaderName   = "solar-exporter"
	unavailableBody    = "503 Service Temporarily Unavailable\n"
)

// Server serves the current Snapshot over HTTP. One Server per process;
// the listening socket is its exclusively owned resource (spec.md §5).
type Server struct {
	port   int
	prefix string
	store  *snapshot.Store
	state  *runstate.State
	log    logrus.FieldLogger

	listener net.Listener
}

// New constructs a Server bound to [::]:port (dual-stack IPv6) once Run is
// called.
func New(port int, family catalog.Family, store *snapshot.Store, state *runstate.State, log logrus.FieldLogger) *Server {
	return &Server{port: port, prefix: family.Prefix(), store: store, state: state, log: log}
}

// Run listens and accepts connections until runstate.Stop() is called and
// the listener is closed (see Shutdown), or until Accept itself fails.
func (s *Server) Run() error {
	lc := net.ListenConfig{Control: setReuseAddr}
	ln, err := lc.Listen(nil, "tcp", fmt.Sprintf("[::]:%d", s.port))
	if err != nil {
		return fmt.Errorf("scrape: listen: %w", err)
	}
	s.listener = ln

	s.log.WithField("port", s.port).Info("scrape: listening")

	for s.state.Running() {
		conn, err := ln.Accept()
		if err != nil {
			if s.state.Running() {
				return fmt.Errorf("scrape: accept: %w", err)
			}
			return nil
		}
		s.handle(conn)
	}
	return nil
}

// Shutdown closes the listening socket to unblock a pending Accept, the
// way the source's signal handler shuts down its listening socket
// directly rather than relying on a cancellation token (spec.md §5).
func (s *Server) Shutdown() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	start := time.Now()

	buf := make([]byte, requestBufferSize)
	n, err := conn.Read(buf)
	if err != nil && n == 0 {
		return
	}

	var response string
	if n < minimumRequestSize {
		response = badRequest()
	} else if strings.HasPrefix(string(buf[:n]), requestLinePrefix) {
		response = s.buildResponse()
	} else {
		response = badRequest()
	}

	written, err := conn.Write([]byte(response))
	if err != nil {
		s.log.WithError(err).Warn("scrape: write failed")
		return
	}

	s.log.WithFields(logrus.Fields{
		"bytes":   written,
		"elapsed": time.Since(start),
	}).Info("scrape: sent response")
}

func badRequest() string {
	return "HTTP/1.1 400 Bad Request\r\n" +
		"Server: " + serverHeaderName + "\r\n" +
		"Content-Length: 0\r\n" +
		"Content-Type: " + contentType + "\r\n\r\n"
}

// buildResponse renders the snapshot as "# TYPE <prefix>_<name>
// gauge\n<prefix>_<name> <value>\n" per reading, with <value> formatted
// to 6 decimal places to match the original's printf("%lf", ...).
func (s *Server) buildResponse() string {
	readings, succeeded, _ := s.store.Snapshot()

	if succeeded == 0 {
		return "HTTP/1.1 503 Service Unavailable\r\n" +
			"Server: " + serverHeaderName + "\r\n" +
			"Content-Length: " + strconv.Itoa(len(unavailableBody)) + "\r\n" +
			"Content-Type: " + contentType + "\r\n\r\n" +
			unavailableBody
	}

	var body strings.Builder
	for _, r := range readings {
		id := s.prefix + "_" + r.Name
		body.WriteString("# TYPE " + id + " gauge\n")
		body.WriteString(id + " " + strconv.FormatFloat(r.Value, 'f', 6, 64) + "\n")
	}

	return "HTTP/1.1 200 OK\r\n" +
		"Server: " + serverHeaderName + "\r\n" +
		"Content-Length: " + strconv.Itoa(body.Len()) + "\r\n" +
		"Content-Type: " + contentType + "\r\n\r\n" +
		body.String()
}
