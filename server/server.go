package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/mtamura/godicom/assoc"
	"github.com/mtamura/godicom/dimse"
	dicomerrors "github.com/mtamura/godicom/errors"
	"github.com/mtamura/godicom/interfaces"
)

// Option configures a Server instance.
type Option func(*Server)

// WithLogger overrides the logger used by the server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.Logger = logger
	}
}

// WithReadTimeout sets the read timeout for client connections.
func WithReadTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.ReadTimeout = timeout
	}
}

// WithWriteTimeout sets the write timeout for client connections.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.WriteTimeout = timeout
	}
}

// WithAccessControl overrides the policy used to accept or reject incoming
// association requests. The default accepts every request.
func WithAccessControl(policy assoc.AccessControlPolicy) Option {
	return func(s *Server) {
		s.AccessControl = policy
	}
}

// WithSupportedAbstractSyntaxes overrides which abstract syntaxes the
// server negotiates presentation contexts for. The default accepts every
// abstract syntax the handler might be asked to serve.
func WithSupportedAbstractSyntaxes(supported func(uid string) bool) Option {
	return func(s *Server) {
		s.SupportedAbstractSyntaxes = supported
	}
}

// WithSupportedTransferSyntaxes overrides the transfer syntaxes the server
// accepts during presentation context negotiation. For each proposed
// context the requester's first listed syntax that appears here is chosen,
// so the order of this list does not affect the choice.
func WithSupportedTransferSyntaxes(transferSyntaxes []string) Option {
	return func(s *Server) {
		s.SupportedTransferSyntaxes = transferSyntaxes
	}
}

// Server exposes a reusable DICOM listener that negotiates an association
// per incoming connection and drives DIMSE traffic over it.
type Server struct {
	AETitle                   string
	Handler                   interfaces.ServiceHandler
	Logger                    *slog.Logger
	ReadTimeout               time.Duration // Read timeout for connections (zero: no read deadline)
	WriteTimeout              time.Duration // Write timeout for connections (zero: no write deadline)
	AccessControl             assoc.AccessControlPolicy
	SupportedAbstractSyntaxes func(uid string) bool
	SupportedTransferSyntaxes []string
	MaxPDULength              uint32
}

// New builds a Server with the provided AE title and handler.
func New(aeTitle string, handler interfaces.ServiceHandler, opts ...Option) *Server {
	srv := &Server{AETitle: aeTitle, Handler: handler}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// ListenAndServe listens on the given address and serves until the context is done or an error occurs.
func ListenAndServe(ctx context.Context, address, aeTitle string, handler interfaces.ServiceHandler, opts ...Option) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	defer listener.Close()

	srv := New(aeTitle, handler, opts...)
	return srv.Serve(ctx, listener)
}

// Serve accepts connections from listener until ctx is cancelled or an unrecoverable error occurs.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if listener == nil {
		return errors.New("dicomserver: listener is required")
	}
	if s == nil {
		return errors.New("dicomserver: server is nil")
	}
	if s.Handler == nil {
		return errors.New("dicomserver: handler is required")
	}
	if s.AETitle == "" {
		return errors.New("dicomserver: AE title is required")
	}

	logger := s.logger()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	logger.Info("DICOM server listening",
		"address", listener.Addr().String(),
		"ae_title", s.AETitle)

	var (
		wg       sync.WaitGroup
		serveErr error
	)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				logger.Warn("Accept timeout", "error", err)
				continue
			}
			serveErr = err
			break
		}

		wg.Add(1)
		go func(c net.Conn) {
			defer wg.Done()
			s.handleConnection(ctx, c, logger)
		}(conn)
	}

	wg.Wait()

	if serveErr != nil {
		return serveErr
	}

	return ctx.Err()
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn, logger *slog.Logger) {
	defer conn.Close()

	logger.Info("Accepted DICOM connection",
		"remote_addr", conn.RemoteAddr())

	if s.ReadTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(s.ReadTimeout)); err != nil {
			logger.Warn("Failed to set read deadline", "error", err)
		}
	}
	if s.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(s.WriteTimeout)); err != nil {
			logger.Warn("Failed to set write deadline", "error", err)
		}
	}

	accessControl := s.AccessControl
	if accessControl == nil {
		accessControl = assoc.AcceptAnyPolicy{}
	}
	supportedAbstractSyntaxes := s.SupportedAbstractSyntaxes
	if supportedAbstractSyntaxes == nil {
		supportedAbstractSyntaxes = func(string) bool { return true }
	}
	supportedTransferSyntaxes := s.SupportedTransferSyntaxes
	if len(supportedTransferSyntaxes) == 0 {
		supportedTransferSyntaxes = defaultTransferSyntaxes
	}

	association, err := assoc.Accept(conn, assoc.AcceptorConfig{
		AETitle:                   s.AETitle,
		MaxPDULength:              s.MaxPDULength,
		SupportedAbstractSyntaxes: supportedAbstractSyntaxes,
		SupportedTransferSyntaxes: supportedTransferSyntaxes,
		AccessControl:             accessControl,
		Logger:                    logger,
	})
	if err != nil {
		logger.Warn("Association negotiation failed", "error", err, "remote_addr", conn.RemoteAddr())
		return
	}
	defer association.Close()

	service := dimse.NewService(association, s.Handler, logger)
	err = service.Serve(ctx)
	if err != nil && ctx.Err() == nil && !errors.Is(err, io.EOF) && !errors.Is(err, dicomerrors.ErrConnectionClosed) {
		logger.Warn("DIMSE connection ended",
			"error", err,
			"remote_addr", conn.RemoteAddr())
	} else {
		logger.Info("DIMSE connection closed",
			"remote_addr", conn.RemoteAddr())
	}
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
