package client

import (
	"fmt"

	"github.com/mtamura/godicom/dicom"
	"github.com/mtamura/godicom/dimse"
	"github.com/mtamura/godicom/types"
)

const studyRootFindSOPClassUID = types.StudyRootQueryRetrieveInformationModelFind

// CFindRequest encapsulates the information required to perform a C-FIND query.
type CFindRequest struct {
	SOPClassUID string
	MessageID   uint16
	Priority    uint16
	Dataset     *dicom.DataObject
}

// CFindResponse represents a single C-FIND response from the SCP.
type CFindResponse struct {
	Status    uint16
	MessageID uint16
	Dataset   *dicom.DataObject
}

// SendCFind performs a DICOM C-FIND query and returns all responses in order.
func (a *Association) SendCFind(req *CFindRequest) ([]*CFindResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("c-find request cannot be nil")
	}
	if req.Dataset == nil {
		return nil, fmt.Errorf("c-find request requires a dataset")
	}

	sopClass := req.SOPClassUID
	if sopClass == "" {
		sopClass = studyRootFindSOPClassUID
	}

	messageID := req.MessageID
	if messageID == 0 {
		messageID = 1
	}

	priority := req.Priority
	if priority == 0 {
		priority = 0x0000 // Medium priority per DICOM PS3.7
	}

	ctxID, err := a.GetPresentationContextID(sopClass)
	if err != nil {
		return nil, err
	}
	transferSyntaxUID, _ := a.TransferSyntaxFor(ctxID)

	command := &types.Message{
		CommandField:        dimse.CFindRQ,
		MessageID:           messageID,
		CommandDataSetType:  0x0000, // Dataset present
		Priority:            priority,
		AffectedSOPClassUID: sopClass,
	}

	if err := a.sendCommand(ctxID, command); err != nil {
		return nil, fmt.Errorf("failed to send C-FIND command: %w", err)
	}
	datasetData, err := encodeDataset(req.Dataset, transferSyntaxUID)
	if err != nil {
		return nil, fmt.Errorf("failed to encode C-FIND identifier: %w", err)
	}
	if err := a.raw().SendPData(ctxID, false, datasetData); err != nil {
		return nil, fmt.Errorf("failed to send C-FIND identifier: %w", err)
	}

	var responses []*CFindResponse

	for {
		msg, dataset, err := a.receiveDIMSEMessage(ctxID)
		if err != nil {
			return nil, err
		}

		if msg.CommandField != dimse.CFindRSP {
			return nil, fmt.Errorf("unexpected command: 0x%04x (expected C-FIND-RSP)", msg.CommandField)
		}

		responses = append(responses, &CFindResponse{
			Status:    msg.Status,
			MessageID: msg.MessageIDBeingRespondedTo,
			Dataset:   dataset,
		})

		if msg.Status != dimse.StatusPending {
			break
		}
	}

	return responses, nil
}
