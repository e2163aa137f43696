package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mtamura/godicom/assoc"
	"github.com/mtamura/godicom/types"
)

// PresentationContext is a negotiated presentation context, re-exported
// from assoc for callers that only import client.
type PresentationContext = assoc.PresentationContext

// Config holds client configuration
type Config struct {
	CallingAETitle            string
	CalledAETitle             string
	MaxPDULength              uint32
	ConnectTimeout            time.Duration // Timeout for establishing connection (default: 30s)
	Logger                    *slog.Logger  // Logger for the association (default: slog.Default())
	PreferredTransferSyntaxes []string      // Transfer syntaxes to propose (default: Explicit VR, Implicit VR)
	ProposedAbstractSyntaxes  []string      // Abstract syntaxes to propose (default: verification, common storage classes, Study Root FIND/MOVE/GET)
}

// defaultProposedAbstractSyntaxes covers the services this client knows how
// to drive: verification, a handful of storage SOP classes a C-STORE
// sub-operation might deliver, and the Study Root query/retrieve
// information model's three DIMSE-C services.
var defaultProposedAbstractSyntaxes = []string{
	types.VerificationSOPClass,
	types.CTImageStorage,
	types.MRImageStorage,
	types.SecondaryCaptureImageStorage,
	types.StudyRootQueryRetrieveInformationModelFind,
	types.StudyRootQueryRetrieveInformationModelMove,
	types.StudyRootQueryRetrieveInformationModelGet,
}

// Association represents a client-side DICOM association. It wraps the
// negotiated assoc.Association that actually drives the A-ASSOCIATE
// handshake and the established-state P-DATA exchange.
type Association struct {
	assoc  *assoc.Association
	logger *slog.Logger
}

// Connect establishes a DICOM association with a remote SCP.
func Connect(address string, config Config) (*Association, error) {
	if config.MaxPDULength == 0 {
		config.MaxPDULength = 16384
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 30 * time.Second
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	transferSyntaxes := config.PreferredTransferSyntaxes
	if len(transferSyntaxes) == 0 {
		transferSyntaxes = []string{types.ExplicitVRLittleEndian, types.ImplicitVRLittleEndian}
	}

	abstractSyntaxes := config.ProposedAbstractSyntaxes
	if len(abstractSyntaxes) == 0 {
		abstractSyntaxes = defaultProposedAbstractSyntaxes
	}

	proposed := make([]assoc.ProposedContext, 0, len(abstractSyntaxes))
	for _, uid := range abstractSyntaxes {
		proposed = append(proposed, assoc.ProposedContext{
			AbstractSyntax:   uid,
			TransferSyntaxes: transferSyntaxes,
		})
	}

	a, err := assoc.Open(context.Background(), "tcp", address, assoc.RequesterConfig{
		CallingAETitle:   config.CallingAETitle,
		CalledAETitle:    config.CalledAETitle,
		MaxPDULength:     config.MaxPDULength,
		ProposedContexts: proposed,
		ConnectTimeout:   config.ConnectTimeout,
		Logger:           logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to establish association: %w", err)
	}

	logger.Info("DICOM association established",
		"remote_addr", address,
		"calling_ae", config.CallingAETitle,
		"called_ae", config.CalledAETitle)

	return &Association{assoc: a, logger: logger}, nil
}

// Close releases the association, falling back to an unconditional abort
// of the connection if the release handshake itself fails.
func (a *Association) Close() error {
	return a.assoc.Release()
}

// GetPresentationContextID finds a presentation context for the given abstract syntax.
func (a *Association) GetPresentationContextID(abstractSyntax string) (byte, error) {
	pc, ok := a.assoc.ContextByAbstractSyntax(abstractSyntax)
	if !ok {
		return 0, fmt.Errorf("no accepted presentation context for abstract syntax: %s", abstractSyntax)
	}
	return pc.ID, nil
}

// TransferSyntaxFor returns the transfer syntax negotiated for ctxID.
func (a *Association) TransferSyntaxFor(ctxID byte) (string, bool) {
	pc, ok := a.assoc.ContextByID(ctxID)
	if !ok {
		return "", false
	}
	return pc.TransferSyntax, true
}

// raw exposes the underlying assoc.Association to the rest of this
// package's command-level send/receive helpers.
func (a *Association) raw() *assoc.Association {
	return a.assoc
}
