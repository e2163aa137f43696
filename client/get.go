package client

import (
	"fmt"

	"github.com/mtamura/godicom/dicom"
	"github.com/mtamura/godicom/dimse"
	"github.com/mtamura/godicom/types"
)

// CGetRequest encapsulates the information required to perform a C-GET operation.
type CGetRequest struct {
	SOPClassUID string
	MessageID   uint16
	Priority    uint16
	Dataset     *dicom.DataObject // Query identifying which instances to retrieve
}

// CGetResponse represents a single C-GET response from the SCP.
type CGetResponse struct {
	Status                         uint16
	MessageID                      uint16
	NumberOfRemainingSuboperations *uint16
	NumberOfCompletedSuboperations *uint16
	NumberOfFailedSuboperations    *uint16
	NumberOfWarningSuboperations   *uint16
}

// SendCGet performs a DICOM C-GET operation to retrieve instances.
// SendCGet itself reads every command that arrives on the association
// until a final C-GET-RSP, and returns an error on any command that is not
// a C-GET-RSP; C-STORE sub-operations sent by the SCP on this association
// are therefore not serviced.
//
// Returns responses indicating the progress and final status of the retrieval.
func (a *Association) SendCGet(req *CGetRequest) ([]*CGetResponse, error) {
	if req == nil {
		return nil, fmt.Errorf("c-get request cannot be nil")
	}
	if req.Dataset == nil {
		return nil, fmt.Errorf("c-get request requires a dataset")
	}

	sopClass := req.SOPClassUID
	if sopClass == "" {
		sopClass = types.StudyRootQueryRetrieveInformationModelGet
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
		CommandField:        dimse.CGetRQ,
		MessageID:           messageID,
		Priority:            priority,
		AffectedSOPClassUID: sopClass,
		CommandDataSetType:  0x0000, // Dataset present
	}

	if err := a.sendCommand(ctxID, command); err != nil {
		return nil, fmt.Errorf("failed to send C-GET command: %w", err)
	}
	datasetData, err := encodeDataset(req.Dataset, transferSyntaxUID)
	if err != nil {
		return nil, fmt.Errorf("failed to encode C-GET identifier: %w", err)
	}
	if err := a.raw().SendPData(ctxID, false, datasetData); err != nil {
		return nil, fmt.Errorf("failed to send C-GET identifier: %w", err)
	}

	var responses []*CGetResponse

	for {
		responseCmd, _, err := a.receiveDIMSEMessage(ctxID)
		if err != nil {
			return responses, fmt.Errorf("failed to receive C-GET response: %w", err)
		}

		if responseCmd.CommandField != dimse.CGetRSP {
			return responses, fmt.Errorf("unexpected response command: 0x%04X (expected C-GET-RSP)", responseCmd.CommandField)
		}

		response := &CGetResponse{
			Status:                         responseCmd.Status,
			MessageID:                      responseCmd.MessageIDBeingRespondedTo,
			NumberOfRemainingSuboperations: responseCmd.NumberOfRemainingSuboperations,
			NumberOfCompletedSuboperations: responseCmd.NumberOfCompletedSuboperations,
			NumberOfFailedSuboperations:    responseCmd.NumberOfFailedSuboperations,
			NumberOfWarningSuboperations:   responseCmd.NumberOfWarningSuboperations,
		}

		responses = append(responses, response)

		if responseCmd.Status != dimse.StatusPending {
			break
		}
	}

	return responses, nil
}
