package client

import (
	"net"
	"testing"
	"time"

	"github.com/mtamura/godicom/assoc"
	"github.com/stretchr/testify/require"
)

// testPair is a live client/server association pair, connected over a real
// TCP loopback socket and negotiated through the full A-ASSOCIATE handshake.
type testPair struct {
	client *Association
	server *assoc.Association
}

func setupAssociation(t *testing.T, abstractSyntaxes, transferSyntaxes []string) *testPair {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	supported := func(uid string) bool {
		for _, s := range abstractSyntaxes {
			if s == uid {
				return true
			}
		}
		return false
	}

	serverDone := make(chan *assoc.Association, 1)
	serverErr := make(chan error, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			serverErr <- err
			return
		}
		a, err := assoc.Accept(conn, assoc.AcceptorConfig{
			AETitle:                   "TEST_SCP",
			MaxPDULength:              16384,
			SupportedAbstractSyntaxes: supported,
			SupportedTransferSyntaxes: transferSyntaxes,
		})
		if err != nil {
			serverErr <- err
			return
		}
		serverDone <- a
	}()

	client, err := Connect(listener.Addr().String(), Config{
		CallingAETitle:            "TEST_SCU",
		CalledAETitle:             "TEST_SCP",
		ProposedAbstractSyntaxes:  abstractSyntaxes,
		PreferredTransferSyntaxes: transferSyntaxes,
		ConnectTimeout:            2 * time.Second,
	})
	require.NoError(t, err)

	var server *assoc.Association
	select {
	case server = <-serverDone:
	case err := <-serverErr:
		t.Fatalf("server accept failed: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for server association")
	}

	return &testPair{client: client, server: server}
}

func (p *testPair) Close() {
	p.client.Close()
	p.server.Close()
}

func TestConnectNegotiatesPresentationContext(t *testing.T) {
	pair := setupAssociation(t, []string{verificationSOPClassUID}, []string{"1.2.840.10008.1.2"})
	defer pair.Close()

	ctxID, err := pair.client.GetPresentationContextID(verificationSOPClassUID)
	require.NoError(t, err)

	ts, ok := pair.client.TransferSyntaxFor(ctxID)
	require.True(t, ok)
	require.Equal(t, "1.2.840.10008.1.2", ts)
}

func TestGetPresentationContextIDUnknownAbstractSyntax(t *testing.T) {
	pair := setupAssociation(t, []string{verificationSOPClassUID}, []string{"1.2.840.10008.1.2"})
	defer pair.Close()

	_, err := pair.client.GetPresentationContextID("1.2.3.4.5.6")
	require.Error(t, err)
}

func TestClose(t *testing.T) {
	pair := setupAssociation(t, []string{verificationSOPClassUID}, []string{"1.2.840.10008.1.2"})
	defer pair.server.Close()

	require.NoError(t, pair.client.Close())
}
