package dimse

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/mtamura/godicom/assoc"
	"github.com/mtamura/godicom/dicom"
	"github.com/mtamura/godicom/interfaces"
	"github.com/mtamura/godicom/types"
	"github.com/stretchr/testify/require"
)

// stubHandler is a minimal interfaces.ServiceHandler for exercising Service.
type stubHandler struct {
	handle func(ctx context.Context, msg *types.Message, meta interfaces.MessageContext) (*types.Message, *dicom.DataObject, error)
}

func (h *stubHandler) HandleDIMSE(ctx context.Context, msg *types.Message, meta interfaces.MessageContext) (*types.Message, *dicom.DataObject, error) {
	return h.handle(ctx, msg, meta)
}

func servicePair(t *testing.T, abstractSyntax, transferSyntax string) (*assoc.Association, *assoc.Association) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	serverDone := make(chan *assoc.Association, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		a, err := assoc.Accept(conn, assoc.AcceptorConfig{
			AETitle:                   "TEST_SCP",
			MaxPDULength:              16384,
			SupportedAbstractSyntaxes: func(uid string) bool { return uid == abstractSyntax },
			SupportedTransferSyntaxes: []string{transferSyntax},
		})
		if err != nil {
			return
		}
		serverDone <- a
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := assoc.Open(ctx, "tcp", listener.Addr().String(), assoc.RequesterConfig{
		CallingAETitle: "TEST_SCU",
		CalledAETitle:  "TEST_SCP",
		MaxPDULength:   16384,
		ProposedContexts: []assoc.ProposedContext{
			{AbstractSyntax: abstractSyntax, TransferSyntaxes: []string{transferSyntax}},
		},
	})
	require.NoError(t, err)

	var server *assoc.Association
	select {
	case server = <-serverDone:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server association")
	}

	return client, server
}

func TestServiceHandleDIMSENoDataset(t *testing.T) {
	client, server := servicePair(t, types.VerificationSOPClass, types.ImplicitVRLittleEndian)
	defer client.Close()
	defer server.Close()

	var received *types.Message
	handler := &stubHandler{handle: func(ctx context.Context, msg *types.Message, meta interfaces.MessageContext) (*types.Message, *dicom.DataObject, error) {
		received = msg
		return &types.Message{
			CommandField:              CEchoRSP,
			MessageIDBeingRespondedTo: msg.MessageID,
			CommandDataSetType:        0x0101,
			Status:                    StatusSuccess,
		}, nil, nil
	}}

	service := NewService(server, handler, nil)
	serveErr := make(chan error, 1)
	go func() { serveErr <- service.serveOne(context.Background()) }()

	ctxID, err := presContextID(client, types.VerificationSOPClass)
	require.NoError(t, err)

	req := &types.Message{
		CommandField:        CEchoRQ,
		MessageID:           7,
		AffectedSOPClassUID: types.VerificationSOPClass,
		CommandDataSetType:  0x0101,
	}
	commandData, err := EncodeCommand(req)
	require.NoError(t, err)
	require.NoError(t, client.SendPData(ctxID, true, commandData))

	require.NoError(t, <-serveErr)
	require.NotNil(t, received)
	require.Equal(t, uint16(7), received.MessageID)

	_, respData, err := assoc.NewPDataReader(client, true).ReadMessage()
	require.NoError(t, err)
	resp, err := DecodeCommand(respData)
	require.NoError(t, err)
	require.Equal(t, uint16(StatusSuccess), resp.Status)
	require.Equal(t, uint16(7), resp.MessageIDBeingRespondedTo)
}

func TestServiceHandleDIMSEWithDataset(t *testing.T) {
	abstractSyntax := types.StudyRootQueryRetrieveInformationModelFind
	client, server := servicePair(t, abstractSyntax, types.ImplicitVRLittleEndian)
	defer client.Close()
	defer server.Close()

	handler := &stubHandler{handle: func(ctx context.Context, msg *types.Message, meta interfaces.MessageContext) (*types.Message, *dicom.DataObject, error) {
		require.NotNil(t, meta.Dataset)
		require.Equal(t, "DOE^JOHN", meta.Dataset.GetString(types.Tag{Group: 0x0010, Element: 0x0010}))
		return &types.Message{
			CommandField:              CFindRSP,
			MessageIDBeingRespondedTo: msg.MessageID,
			CommandDataSetType:        0x0101,
			Status:                    StatusSuccess,
		}, nil, nil
	}}

	service := NewService(server, handler, nil)
	serveErr := make(chan error, 1)
	go func() { serveErr <- service.serveOne(context.Background()) }()

	ctxID, err := presContextID(client, abstractSyntax)
	require.NoError(t, err)

	req := &types.Message{
		CommandField:        CFindRQ,
		MessageID:           9,
		AffectedSOPClassUID: abstractSyntax,
		CommandDataSetType:  0x0000,
	}
	commandData, err := EncodeCommand(req)
	require.NoError(t, err)
	require.NoError(t, client.SendPData(ctxID, true, commandData))

	identifier := dicom.NewDataObject()
	identifier.SetString(types.Tag{Group: 0x0010, Element: 0x0010}, dicom.VRPersonName, "DOE^JOHN")
	identData, err := encodeDataset(identifier, types.ImplicitVRLittleEndian)
	require.NoError(t, err)
	require.NoError(t, client.SendPData(ctxID, false, identData))

	require.NoError(t, <-serveErr)
}

func presContextID(a *assoc.Association, abstractSyntax string) (byte, error) {
	pc, ok := a.ContextByAbstractSyntax(abstractSyntax)
	if !ok {
		return 0, context.DeadlineExceeded
	}
	return pc.ID, nil
}
