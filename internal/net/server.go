package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"

	"skoll/internal/common"
	"skoll/internal/exchange"
	"skoll/internal/utils"
)

const (
	MAX_RECV_SIZE      = 4 * 1024
	defaultNWorkers    = 10
	defaultConnTimeout = time.Minute
)

var (
	ErrImproperConversion = errors.New("improper type conversion")
	ErrClientDoesNotExist = errors.New("client does not exist")
)

// ClientSession contains relevant information pertaining to an individual
// connected TCP session.
type ClientSession struct {
	conn net.Conn
}

// ClientMessage links a message to the client sending it.
type ClientMessage struct {
	clientAddress string
	message       Message
}

// Server is the TCP order gateway: it reads binary messages off client
// connections, hands them to the exchange, and writes a report back to the
// originating session. Execution is funneled through a single session
// handler, so the gateway itself adds no interleaving on top of the
// exchange's per-asset serialization.
type Server struct {
	address            string
	exch               *exchange.Exchange
	pool               utils.WorkerPool
	cancel             context.CancelFunc
	clientSessions     map[string]ClientSession
	clientSessionsLock sync.Mutex
	clientMessages     chan ClientMessage
}

func New(address string, exch *exchange.Exchange) *Server {
	return &Server{
		address:        address,
		exch:           exch,
		pool:           utils.NewWorkerPool(defaultNWorkers),
		clientSessions: make(map[string]ClientSession),
		clientMessages: make(chan ClientMessage, 1),
	}
}

func (s *Server) Shutdown() {
	log.Info().Msg("server shutting down")
	s.cancel()
}

func (s *Server) Run(ctx context.Context) error {
	defer s.Shutdown()

	// Setup a cancel on the context for future shutdown.
	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	// Start a tcp listener.
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", s.address)
	if err != nil {
		return fmt.Errorf("unable to start listener: %w", err)
	}
	defer listener.Close()

	// Start the worker pool.
	s.pool.Setup(t, s.handleConnection)

	// Start the session handler.
	t.Go(func() error {
		return s.sessionHandler(t)
	})

	// Unblock Accept when the context dies.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	log.Info().Str("address", s.address).Msg("gateway running")

	// Start accepting connections.
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				log.Error().Err(err).Msg("error accepting client")
				continue
			}
		}

		log.Info().
			Str("address", conn.RemoteAddr().String()).
			Msg("new client added")
		// Add the client to client sessions we are tracking.
		// We expect to potentially maintain a long TCP session.
		s.addClientSession(conn)

		// Pass over the connection to be read from.
		s.pool.AddTask(conn)
	}
}

// Report writes a serialized report back to a client session.
func (s *Server) Report(clientAddress string, report Report) error {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	client, ok := s.clientSessions[clientAddress]
	if !ok {
		return ErrClientDoesNotExist
	}

	if _, err := client.conn.Write(report.Serialize()); err != nil {
		delete(s.clientSessions, clientAddress)
		return fmt.Errorf("unable to send report: %w", err)
	}
	return nil
}

// sessionHandler reads off incoming messages from clients, executes them
// against the exchange and reports the outcome back. Messages are received
// from the pool of workers one at a time.
func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case message := <-s.clientMessages:
			report := s.dispatch(message.message)
			if err := s.Report(message.clientAddress, report); err != nil {
				log.Error().
					Err(err).
					Str("address", message.clientAddress).
					Msg("unable to report back to client")
			}
		}
	}
}

// dispatch maps a parsed message onto the exchange operation it names.
func (s *Server) dispatch(msg Message) Report {
	switch m := msg.(type) {
	case RegisterAssetMessage:
		return statusReport(s.exch.RegisterAsset(m.Symbol, m.Handle, m.Caller))
	case TransferMessage:
		if m.TypeOf == Deposit {
			return statusReport(s.exch.Deposit(m.Account, m.Symbol, m.Amount))
		}
		return statusReport(s.exch.Withdraw(m.Account, m.Symbol, m.Amount))
	case NewOrderMessage:
		if m.Kind == common.LimitOrder {
			id, err := s.exch.CreateLimitOrder(m.Side, m.Symbol, m.Amount, m.Price, m.Account)
			if err != nil {
				return statusReport(err)
			}
			return Report{OK: true, OrderID: id}
		}
		filled, err := s.exch.CreateMarketOrder(m.Side, m.Symbol, m.Amount, m.Account)
		if err != nil {
			return statusReport(err)
		}
		return Report{OK: true, Filled: filled}
	default:
		return statusReport(ErrInvalidMessageType)
	}
}

func statusReport(err error) Report {
	if err != nil {
		return Report{Err: err.Error()}
	}
	return Report{OK: true}
}

// handleConnection is a short-lived worker method which reads the next
// message off the connection, parses and passes it forward to
// sessionHandler. If the connection dies, the client session is cleaned up.
// Note, any error returned from here is fatal to the worker.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return ErrImproperConversion
	}

	addr := conn.RemoteAddr().String()

	// Set max read timeout so dead sessions do not pin a worker.
	if err := conn.SetReadDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		log.Error().
			Str("address", addr).
			Err(err).
			Msg("failed setting deadline for connection")
		s.dropClientSession(conn)
		return nil
	}

	buffer := make([]byte, MAX_RECV_SIZE)
	select {
	case <-t.Dying():
		return nil
	default:
		n, err := conn.Read(buffer)
		if err != nil {
			// If a read from a client fails, it is likely that the
			// client has exited. Clean up the client session.
			log.Info().
				Err(err).
				Str("address", addr).
				Msg("client session closed")
			s.dropClientSession(conn)
			return nil
		}

		message, err := parseMessage(buffer[:n])
		if err != nil {
			log.Error().
				Err(err).
				Str("address", addr).
				Msg("error parsing message")
			s.dropClientSession(conn)
			return nil
		}

		// Pass over to the message handling buffer and exit this worker.
		s.clientMessages <- ClientMessage{
			message:       message,
			clientAddress: addr,
		}

		// Push the client connection back to handle the next message.
		s.pool.AddTask(conn)
	}
	return nil
}

// addClientSession is an atomic map add
func (s *Server) addClientSession(conn net.Conn) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	s.clientSessions[conn.RemoteAddr().String()] = ClientSession{
		conn: conn,
	}
}

// dropClientSession closes the connection and forgets the session.
func (s *Server) dropClientSession(conn net.Conn) {
	s.clientSessionsLock.Lock()
	defer s.clientSessionsLock.Unlock()

	delete(s.clientSessions, conn.RemoteAddr().String())
	if err := conn.Close(); err != nil {
		log.Error().Str("address", conn.RemoteAddr().String()).Err(err).Msg("close failed")
	}
}
