// PDRADAR - A software-defined pulse-Doppler radar processor.
// Copyright (C) 2015 Douglas Hall
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package stage hosts processing stages. Each stage runs on its own
// goroutine behind bounded input queues and handles one message at a time.
package stage

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"

	"github.com/bemasher/pdradar/radar"
)

// DefaultPort is the input port used by Post.
const DefaultPort = "in"

// A Handler processes one message received on a named port. A nil message
// with a nil error publishes nothing. Errors wrapping radar.ErrMalformed
// drop the message; any other error stops the stage.
type Handler interface {
	Handle(port string, msg radar.Message) (radar.Message, error)
}

type HandlerFunc func(port string, msg radar.Message) (radar.Message, error)

func (fn HandlerFunc) Handle(port string, msg radar.Message) (radar.Message, error) {
	return fn(port, msg)
}

// An Inbox accepts messages without blocking. Post reports false when the
// message was dropped.
type Inbox interface {
	Post(msg radar.Message) bool
}

// InboxFunc adapts a function to an Inbox.
type InboxFunc func(msg radar.Message) bool

func (fn InboxFunc) Post(msg radar.Message) bool { return fn(msg) }

type Config struct {
	Name  string
	Depth int

	// Ports are served in the order listed, so earlier ports take
	// priority when several have messages queued.
	Ports []string

	Log     logrus.FieldLogger
	Metrics *Metrics
}

// Runner delivers queued messages to a Handler and publishes its results
// to every connected inbox.
type Runner struct {
	name    string
	handler Handler
	log     logrus.FieldLogger
	metrics *Metrics

	ports map[string]*queue
	order []string
	ready chan struct{}

	mu      sync.RWMutex
	outputs []Inbox
}

func NewRunner(cfg Config, h Handler) *Runner {
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil)
	}
	if len(cfg.Ports) == 0 {
		cfg.Ports = []string{DefaultPort}
	}

	r := &Runner{
		name:    cfg.Name,
		handler: h,
		log:     cfg.Log.WithField("stage", cfg.Name),
		metrics: cfg.Metrics,
		ports:   make(map[string]*queue),
		ready:   make(chan struct{}, 1),
	}
	for _, port := range cfg.Ports {
		if _, ok := r.ports[port]; ok {
			continue
		}
		r.ports[port] = newQueue(cfg.Depth)
		r.order = append(r.order, port)
	}

	return r
}

func (r *Runner) Name() string { return r.name }

// Port returns an inbox feeding the named input port. It panics if the
// port was not configured.
func (r *Runner) Port(name string) Inbox {
	q, ok := r.ports[name]
	if !ok {
		panic("stage: " + r.name + ": no port " + name)
	}
	return InboxFunc(func(msg radar.Message) bool {
		return r.post(name, q, msg)
	})
}

// Post queues msg on the default port.
func (r *Runner) Post(msg radar.Message) bool {
	return r.Port(DefaultPort).Post(msg)
}

func (r *Runner) post(port string, q *queue, msg radar.Message) bool {
	if !q.push(msg) {
		r.metrics.dropped.WithLabelValues(r.name, port).Inc()
		r.log.WithField("port", port).Debug("queue full, dropping message")
		return false
	}
	r.metrics.queued.WithLabelValues(r.name, port).Set(float64(q.len()))

	select {
	case r.ready <- struct{}{}:
	default:
	}
	return true
}

// Connect publishes this runner's output to dst.
func (r *Runner) Connect(dst Inbox) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs = append(r.outputs, dst)
}

// Run handles messages until ctx is done or the handler fails. It returns
// nil on cancellation and the handler's error otherwise.
func (r *Runner) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.ready:
		}

		for {
			handled := false
			for _, port := range r.order {
				msg, ok := r.ports[port].pop()
				if !ok {
					continue
				}
				handled = true
				r.metrics.queued.WithLabelValues(r.name, port).Set(float64(r.ports[port].len()))

				if err := r.handle(port, msg); err != nil {
					return err
				}
			}

			if !handled || ctx.Err() != nil {
				break
			}
		}
	}
}

func (r *Runner) handle(port string, msg radar.Message) error {
	r.metrics.handled.WithLabelValues(r.name, port).Inc()

	start := time.Now()
	out, err := r.handler.Handle(port, msg)
	r.metrics.latency.WithLabelValues(r.name).Observe(time.Since(start).Seconds())

	if xerrors.Is(err, radar.ErrMalformed) {
		r.metrics.malformed.WithLabelValues(r.name, port).Inc()
		r.log.WithField("port", port).Warnf("dropping message: %v", err)
		return nil
	}
	if err != nil {
		r.metrics.failed.WithLabelValues(r.name).Inc()
		r.log.WithField("port", port).Errorf("%+v", err)
		return xerrors.Errorf("stage %s: %w", r.name, err)
	}

	if out != nil {
		r.publish(out)
	}
	return nil
}

func (r *Runner) publish(msg radar.Message) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	r.metrics.published.WithLabelValues(r.name).Inc()
	for _, dst := range r.outputs {
		dst.Post(msg)
	}
}

// Head forwards the first n messages it receives and swallows the rest.
type Head struct {
	n     int
	count int
}

func NewHead(n int) *Head {
	return &Head{n: n}
}

func (h *Head) Handle(port string, msg radar.Message) (radar.Message, error) {
	if h.count >= h.n {
		return nil, nil
	}
	h.count++
	return msg, nil
}
