package pdu

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAssociateRQRoundTrip(t *testing.T) {
	req := AssociateRQ{
		CalledAETitle:      "STORESCP",
		CallingAETitle:     "STORESCU",
		ApplicationContext: "1.2.840.10008.3.1.1.1",
		PresentationCtxs: []PresentationContextProposed{
			{ID: 1, AbstractSyntax: "1.2.840.10008.1.1", TransferSyntaxes: []string{"1.2.840.10008.1.2"}},
			{ID: 3, AbstractSyntax: "1.2.840.10008.5.1.4.1.1.7", TransferSyntaxes: []string{
				"1.2.840.10008.1.2.1", "1.2.840.10008.1.2",
			}},
		},
		UserInfo: UserInformation{MaxPDULength: 16384, ImplementationClassUID: "1.2.3.4"},
	}

	encoded := MarshalAssociateRQ(req)
	decoded, err := UnmarshalAssociateRQ(encoded)
	require.NoError(t, err)

	require.Equal(t, req.CalledAETitle, decoded.CalledAETitle)
	require.Equal(t, req.CallingAETitle, decoded.CallingAETitle)
	require.Equal(t, req.ApplicationContext, decoded.ApplicationContext)
	require.Equal(t, req.UserInfo.MaxPDULength, decoded.UserInfo.MaxPDULength)
	require.Len(t, decoded.PresentationCtxs, 2)
	require.Equal(t, req.PresentationCtxs[1].TransferSyntaxes, decoded.PresentationCtxs[1].TransferSyntaxes)
}

func TestAssociateACRoundTrip(t *testing.T) {
	ac := AssociateAC{
		CalledAETitle:      "STORESCP",
		CallingAETitle:     "STORESCU",
		ApplicationContext: "1.2.840.10008.3.1.1.1",
		PresentationCtxs: []PresentationContextResult{
			{ID: 1, Result: PresentationResultAcceptance, TransferSyntax: "1.2.840.10008.1.2.1"},
			// Rejected contexts carry the Implicit VR LE placeholder.
			{ID: 3, Result: PresentationResultRejectTransferSyntax, TransferSyntax: "1.2.840.10008.1.2"},
		},
		UserInfo: UserInformation{MaxPDULength: 32768},
	}

	decoded, err := UnmarshalAssociateAC(MarshalAssociateAC(ac))
	require.NoError(t, err)
	require.Equal(t, ac.UserInfo.MaxPDULength, decoded.UserInfo.MaxPDULength)
	require.Len(t, decoded.PresentationCtxs, 2)
	require.Equal(t, "1.2.840.10008.1.2.1", decoded.PresentationCtxs[0].TransferSyntax)
	require.Equal(t, "1.2.840.10008.1.2", decoded.PresentationCtxs[1].TransferSyntax)
}

func TestAssociateRJRoundTrip(t *testing.T) {
	rj := AssociateRJ{Result: 1, Source: 2, Reason: 3}
	decoded, err := UnmarshalAssociateRJ(MarshalAssociateRJ(rj))
	require.NoError(t, err)
	require.Equal(t, rj, decoded)
}

func TestAbortRoundTrip(t *testing.T) {
	a := Abort{Source: 0, Reason: 2}
	decoded, err := UnmarshalAbort(MarshalAbort(a))
	require.NoError(t, err)
	require.Equal(t, a, decoded)
}

func TestPDataTFRoundTrip(t *testing.T) {
	pdvs := []PDV{
		{PresentationContextID: 1, IsCommand: true, IsLast: true, Data: []byte{0x01, 0x02, 0x03}},
	}
	decoded, err := UnmarshalPDataTF(MarshalPDataTF(pdvs))
	require.NoError(t, err)
	require.Equal(t, pdvs, decoded)
}

func TestReadWriteRaw(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	require.NoError(t, WriteRaw(&buf, TypePDataTF, payload))

	raw, err := ReadRaw(&buf)
	require.NoError(t, err)
	require.Equal(t, byte(TypePDataTF), raw.Type)
	require.Equal(t, payload, raw.Data)
}

func TestMultiplePresentationContextTransferSyntaxes(t *testing.T) {
	req := AssociateRQ{
		CalledAETitle:  "A",
		CallingAETitle: "B",
		PresentationCtxs: []PresentationContextProposed{
			{ID: 1, AbstractSyntax: "1.2.3", TransferSyntaxes: []string{"1.2.840.10008.1.2", "1.2.840.10008.1.2.1"}},
		},
	}
	decoded, err := UnmarshalAssociateRQ(MarshalAssociateRQ(req))
	require.NoError(t, err)
	require.Equal(t, []string{"1.2.840.10008.1.2", "1.2.840.10008.1.2.1"}, decoded.PresentationCtxs[0].TransferSyntaxes)
}
