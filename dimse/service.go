package dimse

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/mtamura/godicom/assoc"
	"github.com/mtamura/godicom/charset"
	"github.com/mtamura/godicom/dicom"
	"github.com/mtamura/godicom/dicomio"
	"github.com/mtamura/godicom/dictionary"
	"github.com/mtamura/godicom/interfaces"
	"github.com/mtamura/godicom/types"
)

// Service drives one negotiated association's DIMSE command loop: it reads
// a command (and, when CommandDataSetType says one follows, a data set) off
// the association's P-DATA stream, decodes the command set as Implicit VR
// Little Endian and the data set with the presentation context's
// negotiated transfer syntax, and dispatches to the registered handler.
type Service struct {
	assoc   *assoc.Association
	handler interfaces.ServiceHandler
	logger  *slog.Logger
}

// NewService builds a Service that drives association on behalf of handler.
func NewService(association *assoc.Association, handler interfaces.ServiceHandler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{assoc: association, handler: handler, logger: logger}
}

// Serve reads and dispatches DIMSE messages until the association's
// connection is closed, the peer releases or aborts, or ctx is cancelled.
func (s *Service) Serve(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.serveOne(ctx); err != nil {
			return err
		}
	}
}

func (s *Service) serveOne(ctx context.Context) error {
	ctxID, commandData, err := assoc.NewPDataReader(s.assoc, true).ReadMessage()
	if err != nil {
		return err
	}

	msg, err := DecodeCommand(commandData)
	if err != nil {
		return fmt.Errorf("dimse: decoding command set: %w", err)
	}

	pc, ok := s.assoc.ContextByID(ctxID)
	if !ok {
		return fmt.Errorf("dimse: no negotiated presentation context %d", ctxID)
	}
	msg.TransferSyntaxUID = pc.TransferSyntax

	var dataset *dicom.DataObject
	if msg.CommandDataSetType != 0x0101 {
		_, datasetData, err := assoc.NewPDataReader(s.assoc, false).ReadMessage()
		if err != nil {
			return fmt.Errorf("dimse: reading data set: %w", err)
		}
		dataset, err = decodeDataset(datasetData, pc.TransferSyntax)
		if err != nil {
			s.logger.WarnContext(ctx, "dimse: failed to decode data set, passing command through without it",
				"error", err, "command_field", fmt.Sprintf("0x%04x", msg.CommandField))
		}
	}

	meta := interfaces.MessageContext{
		PresentationContextID: ctxID,
		TransferSyntaxUID:     pc.TransferSyntax,
		Dataset:               dataset,
	}

	s.logger.DebugContext(ctx, "dimse: dispatching command",
		"command_field", fmt.Sprintf("0x%04x", msg.CommandField),
		"message_id", msg.MessageID)

	if streaming, ok := s.handler.(interfaces.StreamingServiceHandler); ok {
		return streaming.HandleDIMSEStreaming(ctx, msg, meta, s.responderFor(msg, ctxID, pc.TransferSyntax))
	}

	responseMsg, responseDataset, err := s.handler.HandleDIMSE(ctx, msg, meta)
	if err != nil {
		return fmt.Errorf("dimse: service handler failed: %w", err)
	}
	return s.sendResponse(ctxID, pc.TransferSyntax, responseMsg, responseDataset)
}

func (s *Service) responderFor(req *types.Message, ctxID byte, defaultTS string) interfaces.ResponseSender {
	r := &responder{service: s, ctxID: ctxID, defaultTS: defaultTS}
	if req.CommandField == CGetRQ {
		return &cGetResponder{responder: r}
	}
	return r
}

func (s *Service) sendResponse(ctxID byte, defaultTS string, msg *types.Message, dataset *dicom.DataObject) error {
	tsUID := msg.TransferSyntaxUID
	if tsUID == "" {
		tsUID = defaultTS
	}

	commandData, err := EncodeCommand(msg)
	if err != nil {
		return fmt.Errorf("dimse: encoding response command: %w", err)
	}
	if err := s.assoc.SendPData(ctxID, true, commandData); err != nil {
		return fmt.Errorf("dimse: sending response command: %w", err)
	}

	if dataset == nil {
		return nil
	}
	datasetData, err := encodeDataset(dataset, tsUID)
	if err != nil {
		return fmt.Errorf("dimse: encoding response data set: %w", err)
	}
	if err := s.assoc.SendPData(ctxID, false, datasetData); err != nil {
		return fmt.Errorf("dimse: sending response data set: %w", err)
	}
	return nil
}

// responder implements interfaces.ResponseSender by sending a command (and
// optional data set) back out on the association that carried the request.
type responder struct {
	service   *Service
	ctxID     byte
	defaultTS string
}

func (r *responder) SendResponse(msg *types.Message, dataset *dicom.DataObject, transferSyntaxUID string) error {
	if transferSyntaxUID != "" {
		msg.TransferSyntaxUID = transferSyntaxUID
	} else if msg.TransferSyntaxUID == "" {
		msg.TransferSyntaxUID = r.defaultTS
	}
	return r.service.sendResponse(r.ctxID, r.defaultTS, msg, dataset)
}

// cGetResponder adds the C-STORE sub-operation channel C-GET needs, on the
// same association and presentation context as the originating C-GET-RQ.
type cGetResponder struct {
	*responder
	messageID uint16
}

func (c *cGetResponder) SendCStore(sopClassUID, sopInstanceUID, transferSyntaxUID string, dataset *dicom.DataObject) error {
	c.messageID++
	tsUID := transferSyntaxUID
	if tsUID == "" {
		tsUID = c.defaultTS
	}

	command := &types.Message{
		CommandField:           CStoreRQ,
		MessageID:              c.messageID,
		Priority:               0x0000,
		AffectedSOPClassUID:    sopClassUID,
		AffectedSOPInstanceUID: sopInstanceUID,
		CommandDataSetType:     0x0000,
	}
	commandData, err := EncodeCommand(command)
	if err != nil {
		return fmt.Errorf("dimse: encoding C-STORE sub-operation command: %w", err)
	}
	if err := c.service.assoc.SendPData(c.ctxID, true, commandData); err != nil {
		return fmt.Errorf("dimse: sending C-STORE sub-operation command: %w", err)
	}

	datasetData, err := encodeDataset(dataset, tsUID)
	if err != nil {
		return fmt.Errorf("dimse: encoding C-STORE sub-operation data set: %w", err)
	}
	return c.service.assoc.SendPData(c.ctxID, false, datasetData)
}

// decodeDataset reads an incoming data set with the value-preserving
// reader: an SCP stores or forwards what it received, so a peer's
// malformed date or number must survive to re-encode byte-identically
// rather than fail the whole message.
func decodeDataset(data []byte, tsUID string) (*dicom.DataObject, error) {
	ts := dicom.Resolve(tsUID)
	r := ts.WrapReader(bytes.NewReader(data))
	d := dicomio.NewDecoder(r, ts.ByteOrder, ts.Implicit)
	return dicom.ReadDataObjectPreserved(d, dictionary.Standard, charset.Default)
}

func encodeDataset(obj *dicom.DataObject, tsUID string) ([]byte, error) {
	ts := dicom.Resolve(tsUID)
	var body bytes.Buffer
	e := dicomio.NewEncoder(&body, ts.ByteOrder, ts.Implicit)
	if err := dicom.WriteDataObject(e, obj, charset.Default); err != nil {
		return nil, err
	}

	var final bytes.Buffer
	wc := ts.WrapWriter(&final)
	if _, err := wc.Write(body.Bytes()); err != nil {
		return nil, err
	}
	if err := wc.Close(); err != nil {
		return nil, err
	}
	return final.Bytes(), nil
}
