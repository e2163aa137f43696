package client

import (
	"testing"

	"github.com/mtamura/godicom/assoc"
	"github.com/mtamura/godicom/dicom"
	"github.com/mtamura/godicom/dimse"
	"github.com/mtamura/godicom/types"
	"github.com/stretchr/testify/require"
)

func TestSendCGet(t *testing.T) {
	abstractSyntax := types.StudyRootQueryRetrieveInformationModelGet
	pair := setupAssociation(t, []string{abstractSyntax}, []string{types.ImplicitVRLittleEndian})
	defer pair.Close()

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- func() error {
			ctxID, commandData, err := assoc.NewPDataReader(pair.server, true).ReadMessage()
			if err != nil {
				return err
			}
			req, err := dimse.DecodeCommand(commandData)
			if err != nil {
				return err
			}
			_, identData, err := assoc.NewPDataReader(pair.server, false).ReadMessage()
			if err != nil {
				return err
			}
			if _, err := decodeDataset(identData, types.ImplicitVRLittleEndian); err != nil {
				return err
			}

			remaining, completed, failed, warning := uint16(5), uint16(0), uint16(0), uint16(0)
			pending := &types.Message{
				CommandField:                   dimse.CGetRSP,
				MessageIDBeingRespondedTo:      req.MessageID,
				AffectedSOPClassUID:            req.AffectedSOPClassUID,
				CommandDataSetType:             0x0101,
				Status:                         dimse.StatusPending,
				NumberOfRemainingSuboperations: &remaining,
				NumberOfCompletedSuboperations: &completed,
				NumberOfFailedSuboperations:    &failed,
				NumberOfWarningSuboperations:   &warning,
			}
			pendingData, err := dimse.EncodeCommand(pending)
			if err != nil {
				return err
			}
			if err := pair.server.SendPData(ctxID, true, pendingData); err != nil {
				return err
			}

			remaining, completed = 0, 5
			final := &types.Message{
				CommandField:                   dimse.CGetRSP,
				MessageIDBeingRespondedTo:      req.MessageID,
				AffectedSOPClassUID:            req.AffectedSOPClassUID,
				CommandDataSetType:             0x0101,
				Status:                         dimse.StatusSuccess,
				NumberOfRemainingSuboperations: &remaining,
				NumberOfCompletedSuboperations: &completed,
				NumberOfFailedSuboperations:    &failed,
				NumberOfWarningSuboperations:   &warning,
			}
			finalData, err := dimse.EncodeCommand(final)
			if err != nil {
				return err
			}
			return pair.server.SendPData(ctxID, true, finalData)
		}()
	}()

	requestDataset := dicom.NewDataObject()
	requestDataset.SetString(types.Tag{Group: 0x0008, Element: 0x0052}, dicom.VRCodeString, "STUDY")
	requestDataset.SetString(types.Tag{Group: 0x0020, Element: 0x000D}, dicom.VRUniqueIdentifier, "1.2.3.4.5")

	responses, err := pair.client.SendCGet(&CGetRequest{
		MessageID: 1,
		Dataset:   requestDataset,
	})
	require.NoError(t, err)
	require.NoError(t, <-serverDone)

	require.Len(t, responses, 2)
	require.Equal(t, uint16(dimse.StatusPending), responses[0].Status)
	require.NotNil(t, responses[0].NumberOfRemainingSuboperations)
	require.Equal(t, uint16(5), *responses[0].NumberOfRemainingSuboperations)

	require.Equal(t, uint16(dimse.StatusSuccess), responses[1].Status)
	require.NotNil(t, responses[1].NumberOfCompletedSuboperations)
	require.Equal(t, uint16(5), *responses[1].NumberOfCompletedSuboperations)
	require.Equal(t, uint16(0), *responses[1].NumberOfRemainingSuboperations)
}

func TestSendCGetNilRequest(t *testing.T) {
	pair := setupAssociation(t, []string{types.StudyRootQueryRetrieveInformationModelGet}, []string{types.ImplicitVRLittleEndian})
	defer pair.Close()

	_, err := pair.client.SendCGet(nil)
	require.Error(t, err)
}

func TestSendCGetNilDataset(t *testing.T) {
	pair := setupAssociation(t, []string{types.StudyRootQueryRetrieveInformationModelGet}, []string{types.ImplicitVRLittleEndian})
	defer pair.Close()

	_, err := pair.client.SendCGet(&CGetRequest{MessageID: 1})
	require.Error(t, err)
}
