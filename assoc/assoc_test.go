package assoc

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	dicomerrors "github.com/mtamura/godicom/errors"
	"github.com/mtamura/godicom/pdu"
	"github.com/stretchr/testify/require"
)

func TestOpenAcceptHandshakeAndPData(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	serverDone := make(chan *Association, 1)
	serverErr := make(chan error, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			serverErr <- err
			return
		}
		a, err := Accept(conn, AcceptorConfig{
			AETitle:      "SERVER",
			MaxPDULength: 16384,
			SupportedAbstractSyntaxes: func(uid string) bool {
				return uid == "1.2.840.10008.1.1"
			},
			SupportedTransferSyntaxes: []string{"1.2.840.10008.1.2"},
		})
		if err != nil {
			serverErr <- err
			return
		}
		serverDone <- a
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := Open(ctx, "tcp", listener.Addr().String(), RequesterConfig{
		CallingAETitle: "CLIENT",
		CalledAETitle:  "SERVER",
		MaxPDULength:   16384,
		ProposedContexts: []ProposedContext{
			{AbstractSyntax: "1.2.840.10008.1.1", TransferSyntaxes: []string{"1.2.840.10008.1.2"}},
		},
	})
	require.NoError(t, err)
	defer client.Close()

	var server *Association
	select {
	case server = <-serverDone:
	case err := <-serverErr:
		t.Fatalf("server accept failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server association")
	}
	defer server.Close()

	ctxInfo, ok := client.ContextByAbstractSyntax("1.2.840.10008.1.1")
	require.True(t, ok)
	require.Equal(t, "1.2.840.10008.1.2", ctxInfo.TransferSyntax)

	payload := []byte("command bytes")
	require.NoError(t, client.SendPData(ctxInfo.ID, true, payload))

	pdvs, err := server.ReceivePDV()
	require.NoError(t, err)
	require.Len(t, pdvs, 1)
	require.Equal(t, payload, pdvs[0].Data)
	require.True(t, pdvs[0].IsCommand)
	require.True(t, pdvs[0].IsLast)
}

func TestOpenRejectedByAccessControl(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	policy, err := NewGlobAccessControlPolicy("ALLOWED-*")
	require.NoError(t, err)

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		Accept(conn, AcceptorConfig{AETitle: "SERVER", AccessControl: policy})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err = Open(ctx, "tcp", listener.Addr().String(), RequesterConfig{
		CallingAETitle: "DENIED-CLIENT",
		CalledAETitle:  "SERVER",
		ProposedContexts: []ProposedContext{
			{AbstractSyntax: "1.2.840.10008.1.1", TransferSyntaxes: []string{"1.2.840.10008.1.2"}},
		},
	})
	require.Error(t, err)
}

func TestOpenFailsWhenNoContextAccepted(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		Accept(conn, AcceptorConfig{
			AETitle:                   "SERVER",
			SupportedAbstractSyntaxes: func(string) bool { return false },
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err = Open(ctx, "tcp", listener.Addr().String(), RequesterConfig{
		CallingAETitle: "CLIENT",
		CalledAETitle:  "SERVER",
		ProposedContexts: []ProposedContext{
			{AbstractSyntax: "1.2.3.4", TransferSyntaxes: []string{"1.2.840.10008.1.2"}},
		},
	})
	require.ErrorIs(t, err, dicomerrors.ErrNoPresentationCtx)
}

func TestAcceptRejectedContextCarriesPlaceholderTransferSyntax(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	go Accept(serverConn, AcceptorConfig{
		AETitle:                   "SERVER",
		SupportedAbstractSyntaxes: func(string) bool { return false },
	})

	req := pdu.AssociateRQ{
		CalledAETitle:      "SERVER",
		CallingAETitle:     "CLIENT",
		ApplicationContext: "1.2.840.10008.3.1.1.1",
		PresentationCtxs: []pdu.PresentationContextProposed{
			{ID: 1, AbstractSyntax: "1.2.3.4", TransferSyntaxes: []string{"1.2.840.10008.1.2.1"}},
		},
		UserInfo: pdu.UserInformation{MaxPDULength: 16384},
	}
	require.NoError(t, pdu.WriteRaw(clientConn, pdu.TypeAssociateRQ, pdu.MarshalAssociateRQ(req)))

	raw, err := pdu.ReadRaw(clientConn)
	require.NoError(t, err)
	require.Equal(t, byte(pdu.TypeAssociateAC), raw.Type)
	ac, err := pdu.UnmarshalAssociateAC(raw.Data)
	require.NoError(t, err)
	require.Len(t, ac.PresentationCtxs, 1)
	require.Equal(t, pdu.PresentationResultRejectAbstractSyntax, ac.PresentationCtxs[0].Result)
	require.Equal(t, "1.2.840.10008.1.2", ac.PresentationCtxs[0].TransferSyntax)
}

func TestOpenRequiresProposedContexts(t *testing.T) {
	_, err := Open(context.Background(), "tcp", "127.0.0.1:1", RequesterConfig{
		CallingAETitle: "CLIENT",
		CalledAETitle:  "SERVER",
	})
	require.Error(t, err)
}

func TestSendPDataFragmentsAcrossMaxPDU(t *testing.T) {
	a := &Association{peerMaxPDU: 20, strictMaxPDU: false}
	require.Equal(t, 8, a.effectiveMaxFragment())
}

func TestSendPDataFragmentationRespectsPeerMaxPDU(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	const peerMax = 128

	serverDone := make(chan *Association, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		a, err := Accept(conn, AcceptorConfig{
			AETitle:      "SERVER",
			MaxPDULength: peerMax,
			SupportedAbstractSyntaxes: func(uid string) bool {
				return uid == "1.2.840.10008.1.1"
			},
			SupportedTransferSyntaxes: []string{"1.2.840.10008.1.2"},
		})
		if err != nil {
			return
		}
		serverDone <- a
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := Open(ctx, "tcp", listener.Addr().String(), RequesterConfig{
		CallingAETitle: "CLIENT",
		CalledAETitle:  "SERVER",
		ProposedContexts: []ProposedContext{
			{AbstractSyntax: "1.2.840.10008.1.1", TransferSyntaxes: []string{"1.2.840.10008.1.2"}},
		},
	})
	require.NoError(t, err)
	defer client.Close()

	var server *Association
	select {
	case server = <-serverDone:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server association")
	}
	defer server.Close()

	command := bytesOf(0x11, 200)
	data := bytesOf(0x22, 300)

	ctxInfo, ok := client.ContextByAbstractSyntax("1.2.840.10008.1.1")
	require.True(t, ok)
	require.NoError(t, client.SendPData(ctxInfo.ID, true, command))
	require.NoError(t, client.SendPData(ctxInfo.ID, false, data))

	pduCount := 0
	var gotCommand, gotData []byte
	for len(gotCommand) < len(command) || len(gotData) < len(data) {
		pdvs, err := server.ReceivePDV()
		require.NoError(t, err)
		pduCount++
		for _, pdv := range pdvs {
			// PDU header (6) + PDV length/control prefix (6) + payload must
			// fit the declared maximum.
			require.LessOrEqual(t, len(pdv.Data)+12, peerMax)
			if pdv.IsCommand {
				gotCommand = append(gotCommand, pdv.Data...)
			} else {
				gotData = append(gotData, pdv.Data...)
			}
		}
	}
	require.GreaterOrEqual(t, pduCount, 4)
	require.Equal(t, command, gotCommand)
	require.Equal(t, data, gotData)
}

func bytesOf(b byte, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func TestReleaseAbortsOnUnexpectedPDU(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	serverErr := make(chan error, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			serverErr <- err
			return
		}
		server, err := Accept(conn, AcceptorConfig{AETitle: "SERVER"})
		if err != nil {
			serverErr <- err
			return
		}
		// Read the client's A-RELEASE-RQ off the wire directly, then answer
		// with P-DATA instead of A-RELEASE-RP.
		raw, err := pdu.ReadRaw(server.r)
		if err != nil {
			serverErr <- err
			return
		}
		if raw.Type != pdu.TypeReleaseRQ {
			serverErr <- fmt.Errorf("expected A-RELEASE-RQ, got 0x%02x", raw.Type)
			return
		}
		serverErr <- pdu.WriteRaw(server.conn, pdu.TypePDataTF,
			pdu.MarshalPDataTF([]pdu.PDV{{PresentationContextID: 1, IsLast: true}}))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := Open(ctx, "tcp", listener.Addr().String(), RequesterConfig{
		CallingAETitle: "CLIENT",
		CalledAETitle:  "SERVER",
		ProposedContexts: []ProposedContext{
			{AbstractSyntax: "1.2.840.10008.1.1", TransferSyntaxes: []string{"1.2.840.10008.1.2"}},
		},
	})
	require.NoError(t, err)

	require.Error(t, client.Release())
	require.NoError(t, <-serverErr)
}
