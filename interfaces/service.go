// Package interfaces contains all service and handler interfaces
package interfaces

import (
	"context"

	"github.com/mtamura/godicom/dicom"
	"github.com/mtamura/godicom/types"
)

// MessageContext carries the per-message facts a ServiceHandler needs
// beyond the command itself: which presentation context the command
// arrived on, the transfer syntax negotiated for it, and the decoded data
// set that accompanied it (nil when CommandDataSetType signalled none).
type MessageContext struct {
	PresentationContextID byte
	TransferSyntaxUID     string
	Dataset               *dicom.DataObject
}

// ServiceHandler interface for handling DIMSE operations
type ServiceHandler interface {
	HandleDIMSE(ctx context.Context, msg *types.Message, meta MessageContext) (*types.Message, *dicom.DataObject, error)
}

// StreamingServiceHandler interface for multi-response DIMSE operations
type StreamingServiceHandler interface {
	HandleDIMSEStreaming(ctx context.Context, msg *types.Message, meta MessageContext, responder ResponseSender) error
}

// ResponseSender interface for sending intermediate responses
type ResponseSender interface {
	SendResponse(msg *types.Message, dataset *dicom.DataObject, transferSyntaxUID string) error
}

// CGetResponder interface for C-GET operations that need to send C-STORE sub-operations
type CGetResponder interface {
	ResponseSender
	// SendCStore sends a C-STORE sub-operation on the same association
	SendCStore(sopClassUID, sopInstanceUID, transferSyntaxUID string, dataset *dicom.DataObject) error
}
