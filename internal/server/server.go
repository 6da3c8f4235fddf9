package server

import (
	"context"
	"errors"
	"log"

	"github.com/npezzotti/go-relay/internal/stats"
	"github.com/npezzotti/go-relay/internal/types"
)

const (
	metricActiveClients  = "NumActiveClients"
	metricRoutedEvents   = "NumRoutedEvents"
	metricDroppedPushes  = "NumDroppedPushes"
	metricRejectedEvents = "NumRejectedEvents"
)

var ErrServerStopped = errors.New("relay server stopped")

// Conn is the relay server's handle on one live transport session.
type Conn interface {
	ID() string
	// Send queues msg without blocking and reports whether it was accepted.
	Send(msg *ServerMessage) bool
	Stop()
}

type stopReq struct {
	done chan struct{}
}

type RelayServer struct {
	log          *log.Logger
	relay        *Relay
	stats        stats.StatsProvider
	clients      map[string]Conn
	registerChan chan Conn
	inboundChan  chan *ClientMessage
	statsChan    chan chan types.Stats
	stop         chan stopReq
	done         chan struct{}
}

func NewRelayServer(logger *log.Logger, relay *Relay, su stats.StatsProvider) *RelayServer {
	su.RegisterMetric(metricActiveClients)
	su.RegisterMetric(metricRoutedEvents)
	su.RegisterMetric(metricDroppedPushes)
	su.RegisterMetric(metricRejectedEvents)

	return &RelayServer{
		log:          logger,
		relay:        relay,
		stats:        su,
		clients:      make(map[string]Conn),
		registerChan: make(chan Conn),
		inboundChan:  make(chan *ClientMessage, 256),
		statsChan:    make(chan chan types.Stats),
		stop:         make(chan stopReq),
		done:         make(chan struct{}),
	}
}

// Run processes transport events one at a time until Shutdown is called.
// It must run in exactly one goroutine.
func (s *RelayServer) Run() {
	defer close(s.done)

	for {
		select {
		case c := <-s.registerChan:
			s.handleRegister(c)
		case msg := <-s.inboundChan:
			if msg.closed {
				s.handleDisconnect(msg.connId)
				continue
			}
			s.handleInbound(msg)
		case reply := <-s.statsChan:
			reply <- s.relay.Stats()
		case req := <-s.stop:
			s.log.Println("stopping clients")
			for _, c := range s.clients {
				c.Stop()
			}
			close(req.done)
			return
		}
	}
}

func (s *RelayServer) handleRegister(c Conn) {
	s.log.Printf("registering connection %q", c.ID())
	s.addClient(c)
	s.relay.Connect(c.ID())
}

func (s *RelayServer) handleDisconnect(connId string) {
	if _, ok := s.clients[connId]; !ok {
		return
	}

	s.log.Printf("removing connection %q", connId)
	pushes := s.relay.Disconnect(connId)
	s.removeClient(connId)
	s.deliver(pushes)
}

func (s *RelayServer) handleInbound(msg *ClientMessage) {
	pushes, err := s.relay.Handle(msg.connId, msg)
	if err != nil {
		s.log.Printf("rejected event from %q: %v", msg.connId, err)
		s.stats.Incr(metricRejectedEvents)
	} else {
		s.stats.Incr(metricRoutedEvents)
	}

	s.deliver(pushes)
}

// deliver hands each push to its connection. A recipient that is gone or
// whose buffer is full is skipped; the rest of the fan-out continues.
func (s *RelayServer) deliver(pushes []Push) {
	for _, p := range pushes {
		c, ok := s.clients[p.To]
		if !ok {
			s.log.Printf("dropping %s for unknown connection %q", p.Msg.Event, p.To)
			s.stats.Incr(metricDroppedPushes)
			continue
		}

		if !c.Send(p.Msg) {
			s.log.Printf("dropping %s for connection %q: send buffer full", p.Msg.Event, p.To)
			s.stats.Incr(metricDroppedPushes)
		}
	}
}

func (s *RelayServer) addClient(c Conn) {
	s.clients[c.ID()] = c
	s.stats.Incr(metricActiveClients)
}

func (s *RelayServer) removeClient(connId string) {
	if _, ok := s.clients[connId]; !ok {
		return
	}

	delete(s.clients, connId)
	s.stats.Decr(metricActiveClients)
}

// RegisterClient adds c to the relay. It blocks until the run loop accepts it.
func (s *RelayServer) RegisterClient(c Conn) error {
	select {
	case s.registerChan <- c:
		return nil
	case <-s.done:
		return ErrServerStopped
	}
}

// DeRegisterClient queues the disconnect behind every event c already
// dispatched, so cleanup observes them in order.
func (s *RelayServer) DeRegisterClient(c Conn) {
	select {
	case s.inboundChan <- &ClientMessage{connId: c.ID(), closed: true}:
	case <-s.done:
	}
}

// Dispatch queues an inbound event from connId without blocking. It returns
// false when the queue is full.
func (s *RelayServer) Dispatch(connId string, msg *ClientMessage) bool {
	msg.connId = connId
	select {
	case s.inboundChan <- msg:
		return true
	default:
		return false
	}
}

// Stats returns a snapshot of the relay's connection, user and room counts.
func (s *RelayServer) Stats(ctx context.Context) (types.Stats, error) {
	reply := make(chan types.Stats, 1)
	select {
	case s.statsChan <- reply:
	case <-s.done:
		return types.Stats{}, ErrServerStopped
	case <-ctx.Done():
		return types.Stats{}, ctx.Err()
	}

	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return types.Stats{}, ctx.Err()
	}
}

func (s *RelayServer) Shutdown(ctx context.Context) error {
	s.log.Println("received shutdown signal")
	req := stopReq{done: make(chan struct{})}

	select {
	case s.stop <- req:
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
