package client

import (
	"bytes"
	"fmt"

	"github.com/mtamura/godicom/assoc"
	"github.com/mtamura/godicom/charset"
	"github.com/mtamura/godicom/dicom"
	"github.com/mtamura/godicom/dicomio"
	"github.com/mtamura/godicom/dictionary"
	"github.com/mtamura/godicom/dimse"
	"github.com/mtamura/godicom/types"
)

// CStoreRequest represents a C-STORE request
type CStoreRequest struct {
	SOPClassUID    string
	SOPInstanceUID string
	Dataset        *dicom.DataObject
	MessageID      uint16
}

// CStoreResponse represents a C-STORE response
type CStoreResponse struct {
	Status         uint16
	MessageID      uint16
	SOPClassUID    string
	SOPInstanceUID string
}

// SendCStore sends a C-STORE request and waits for response.
func (a *Association) SendCStore(req *CStoreRequest) (*CStoreResponse, error) {
	ctxID, err := a.GetPresentationContextID(req.SOPClassUID)
	if err != nil {
		return nil, fmt.Errorf("no presentation context for SOP class %s: %w", req.SOPClassUID, err)
	}
	transferSyntaxUID, _ := a.TransferSyntaxFor(ctxID)

	command := &types.Message{
		CommandField:           dimse.CStoreRQ,
		MessageID:              req.MessageID,
		Priority:               0x0000,
		CommandDataSetType:     0x0000,
		AffectedSOPClassUID:    req.SOPClassUID,
		AffectedSOPInstanceUID: req.SOPInstanceUID,
	}

	commandData, err := dimse.EncodeCommand(command)
	if err != nil {
		return nil, fmt.Errorf("failed to encode command: %w", err)
	}
	if err := a.raw().SendPData(ctxID, true, commandData); err != nil {
		return nil, fmt.Errorf("failed to send C-STORE-RQ command: %w", err)
	}

	datasetData, err := encodeDataset(req.Dataset, transferSyntaxUID)
	if err != nil {
		return nil, fmt.Errorf("failed to encode data set: %w", err)
	}
	if err := a.raw().SendPData(ctxID, false, datasetData); err != nil {
		return nil, fmt.Errorf("failed to send C-STORE-RQ data set: %w", err)
	}

	a.logger.Debug("Sent C-STORE-RQ",
		"sop_class", req.SOPClassUID,
		"sop_instance", req.SOPInstanceUID,
		"data_size", len(datasetData))

	msg, _, err := a.receiveDIMSEMessage(ctxID)
	if err != nil {
		return nil, fmt.Errorf("failed to receive C-STORE-RSP: %w", err)
	}
	if msg.CommandField != dimse.CStoreRSP {
		return nil, fmt.Errorf("unexpected command: 0x%04x (expected C-STORE-RSP)", msg.CommandField)
	}

	return &CStoreResponse{
		Status:         msg.Status,
		MessageID:      msg.MessageIDBeingRespondedTo,
		SOPClassUID:    msg.AffectedSOPClassUID,
		SOPInstanceUID: msg.AffectedSOPInstanceUID,
	}, nil
}

// sendCommand encodes msg as a DIMSE command set and sends it, alone, on
// ctxID. Requests without a data set (C-ECHO-RQ, C-CANCEL-RQ) use it for
// the whole message; C-FIND-RQ and C-GET-RQ use it for the command set and
// send their identifier separately.
func (a *Association) sendCommand(ctxID byte, msg *types.Message) error {
	commandData, err := dimse.EncodeCommand(msg)
	if err != nil {
		return fmt.Errorf("failed to encode command: %w", err)
	}
	return a.raw().SendPData(ctxID, true, commandData)
}

// receiveDIMSEMessage reads one complete DIMSE response (command and,
// when the command signals one, its accompanying data set) from the
// association, decoding the data set under the transfer syntax negotiated
// for ctxID.
func (a *Association) receiveDIMSEMessage(ctxID byte) (*types.Message, *dicom.DataObject, error) {
	_, commandData, err := assoc.NewPDataReader(a.raw(), true).ReadMessage()
	if err != nil {
		return nil, nil, err
	}
	msg, err := dimse.DecodeCommand(commandData)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode command: %w", err)
	}

	if msg.CommandDataSetType == 0x0101 {
		return msg, nil, nil
	}

	_, datasetData, err := assoc.NewPDataReader(a.raw(), false).ReadMessage()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read data set: %w", err)
	}
	transferSyntaxUID, _ := a.TransferSyntaxFor(ctxID)
	dataset, err := decodeDataset(datasetData, transferSyntaxUID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode data set: %w", err)
	}
	return msg, dataset, nil
}

func decodeDataset(data []byte, tsUID string) (*dicom.DataObject, error) {
	ts := dicom.Resolve(tsUID)
	r := ts.WrapReader(bytes.NewReader(data))
	d := dicomio.NewDecoder(r, ts.ByteOrder, ts.Implicit)
	return dicom.ReadDataObject(d, dictionary.Standard, charset.Default)
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
