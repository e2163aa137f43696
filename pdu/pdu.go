// Package pdu is a pure wire codec for the DICOM Upper Layer Protocol's
// Protocol Data Units (PS3.8 §9.3). It only encodes and decodes byte
// layouts; association state, negotiation policy, and socket I/O belong to
// the assoc package layered on top.
package pdu

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// PDU type codes (PS3.8 table 9-1).
const (
	TypeAssociateRQ = 0x01
	TypeAssociateAC = 0x02
	TypeAssociateRJ = 0x03
	TypePDataTF     = 0x04
	TypeReleaseRQ   = 0x05
	TypeReleaseRP   = 0x06
	TypeAbort       = 0x07
)

// Raw is an undecoded PDU: a type byte and its payload, with the 6-byte
// header's length field already consumed.
type Raw struct {
	Type byte
	Data []byte
}

// ReadRaw reads one PDU's 6-byte header and payload from r.
func ReadRaw(r io.Reader) (Raw, error) {
	var header [6]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Raw{}, err
	}
	length := binary.BigEndian.Uint32(header[2:6])
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return Raw{}, fmt.Errorf("pdu: short read of %d-byte payload: %w", length, err)
	}
	return Raw{Type: header[0], Data: data}, nil
}

// WriteRaw writes a PDU's 6-byte header followed by payload to w.
func WriteRaw(w io.Writer, pduType byte, payload []byte) error {
	var header [6]byte
	header[0] = pduType
	binary.BigEndian.PutUint32(header[2:6], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// PresentationContextProposed is one presentation context as offered in an
// A-ASSOCIATE-RQ: one abstract syntax and the transfer syntaxes the
// requester is willing to use for it.
type PresentationContextProposed struct {
	ID               byte
	AbstractSyntax   string
	TransferSyntaxes []string
}

// PresentationContextResult is one presentation context as answered in an
// A-ASSOCIATE-AC: the requester's ID, the negotiation outcome, and (only
// when Result is accepted) the single transfer syntax chosen.
type PresentationContextResult struct {
	ID             byte
	Result         byte
	TransferSyntax string
}

// Presentation context result codes (PS3.8 table 9-18).
const (
	PresentationResultAcceptance           byte = 0x00
	PresentationResultUserRejection        byte = 0x01
	PresentationResultNoReason             byte = 0x02
	PresentationResultRejectAbstractSyntax byte = 0x03
	PresentationResultRejectTransferSyntax byte = 0x04
)

// UserInformation carries the negotiable parameters every association
// exchanges: the maximum PDU length each side accepts and implementation
// identification. Extended negotiation and role selection (PS3.7 Annex D)
// are out of scope for this core; see SPEC_FULL.md's Non-goals.
type UserInformation struct {
	MaxPDULength           uint32
	ImplementationClassUID string
	ImplementationVersion  string
}

// AssociateRQ is a decoded A-ASSOCIATE-RQ PDU.
type AssociateRQ struct {
	ProtocolVersion    uint16
	CalledAETitle      string
	CallingAETitle     string
	ApplicationContext string
	PresentationCtxs   []PresentationContextProposed
	UserInfo           UserInformation
}

// AssociateAC is a decoded A-ASSOCIATE-AC PDU.
type AssociateAC struct {
	ProtocolVersion    uint16
	CalledAETitle      string
	CallingAETitle     string
	ApplicationContext string
	PresentationCtxs   []PresentationContextResult
	UserInfo           UserInformation
}

// AssociateRJ is a decoded A-ASSOCIATE-RJ PDU (PS3.8 §9.3.4).
type AssociateRJ struct {
	Result byte // 1 = rejected-permanent, 2 = rejected-transient
	Source byte
	Reason byte
}

// Abort is a decoded A-ABORT PDU (PS3.8 §9.3.8).
type Abort struct {
	Source byte
	Reason byte
}

// PDV is one Presentation Data Value item within a P-DATA-TF PDU: a
// presentation context ID and a fragment of either the command set or the
// data set, tagged by the message control header.
type PDV struct {
	PresentationContextID byte
	IsCommand             bool
	IsLast                bool
	Data                  []byte
}

func trimUID(b []byte) string {
	return strings.TrimRight(string(b), "\x00 ")
}

func padAETitle(s string) []byte {
	if len(s) > 16 {
		s = s[:16]
	}
	out := make([]byte, 16)
	copy(out, s)
	for i := len(s); i < 16; i++ {
		out[i] = ' '
	}
	return out
}

// writeItem appends a variable-length item's type byte, a reserved byte,
// and its 2-byte big-endian length, the framing every A-ASSOCIATE
// sub-item shares (PS3.8 §9.3.2).
func writeItem(buf []byte, itemType byte, value []byte) []byte {
	buf = append(buf, itemType, 0x00)
	var lenBytes [2]byte
	binary.BigEndian.PutUint16(lenBytes[:], uint16(len(value)))
	buf = append(buf, lenBytes[:]...)
	return append(buf, value...)
}

// MarshalAssociateRQ encodes req as an A-ASSOCIATE-RQ PDU payload (without
// the 6-byte PDU header; use WriteRaw to frame it).
func MarshalAssociateRQ(req AssociateRQ) []byte {
	fixed := make([]byte, 68)
	binary.BigEndian.PutUint16(fixed[0:2], 0x0001)
	copy(fixed[4:20], padAETitle(req.CalledAETitle))
	copy(fixed[20:36], padAETitle(req.CallingAETitle))

	var variable []byte
	variable = writeItem(variable, 0x10, []byte(req.ApplicationContext))

	for _, ctx := range req.PresentationCtxs {
		var sub []byte
		sub = writeItem(sub, 0x30, []byte(ctx.AbstractSyntax))
		for _, ts := range ctx.TransferSyntaxes {
			sub = writeItem(sub, 0x40, []byte(ts))
		}
		value := append([]byte{ctx.ID, 0x00, 0x00, 0x00}, sub...)
		variable = writeItem(variable, 0x20, value)
	}

	variable = append(variable, marshalUserInformation(req.UserInfo)...)
	return append(fixed, variable...)
}

// UnmarshalAssociateRQ decodes an A-ASSOCIATE-RQ PDU payload.
func UnmarshalAssociateRQ(data []byte) (AssociateRQ, error) {
	if len(data) < 68 {
		return AssociateRQ{}, fmt.Errorf("pdu: A-ASSOCIATE-RQ too short: %d bytes", len(data))
	}
	req := AssociateRQ{
		ProtocolVersion: binary.BigEndian.Uint16(data[0:2]),
		CalledAETitle:   strings.TrimSpace(trimUID(data[4:20])),
		CallingAETitle:  strings.TrimSpace(trimUID(data[20:36])),
	}

	offset := 68
	for offset+4 <= len(data) {
		itemType := data[offset]
		itemLength := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		valueStart := offset + 4
		valueEnd := valueStart + itemLength
		if valueEnd > len(data) {
			return AssociateRQ{}, fmt.Errorf("pdu: item at offset %d exceeds PDU length", offset)
		}
		value := data[valueStart:valueEnd]

		switch itemType {
		case 0x10:
			req.ApplicationContext = trimUID(value)
		case 0x20:
			ctx, err := unmarshalPresentationContextProposed(value)
			if err != nil {
				return AssociateRQ{}, err
			}
			req.PresentationCtxs = append(req.PresentationCtxs, ctx)
		case 0x50:
			req.UserInfo = unmarshalUserInformation(value)
		}
		offset = valueEnd
	}
	return req, nil
}

func unmarshalPresentationContextProposed(data []byte) (PresentationContextProposed, error) {
	if len(data) < 4 {
		return PresentationContextProposed{}, fmt.Errorf("pdu: presentation context item too short")
	}
	ctx := PresentationContextProposed{ID: data[0]}
	offset := 4
	for offset+4 <= len(data) {
		subType := data[offset]
		subLen := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		valueStart := offset + 4
		valueEnd := valueStart + subLen
		if valueEnd > len(data) {
			return PresentationContextProposed{}, fmt.Errorf("pdu: presentation context %d sub-item overruns", ctx.ID)
		}
		value := data[valueStart:valueEnd]
		switch subType {
		case 0x30:
			ctx.AbstractSyntax = trimUID(value)
		case 0x40:
			ctx.TransferSyntaxes = append(ctx.TransferSyntaxes, trimUID(value))
		}
		offset = valueEnd
	}
	return ctx, nil
}

// MarshalAssociateAC encodes ac as an A-ASSOCIATE-AC PDU payload.
func MarshalAssociateAC(ac AssociateAC) []byte {
	fixed := make([]byte, 68)
	binary.BigEndian.PutUint16(fixed[0:2], 0x0001)
	copy(fixed[4:20], padAETitle(ac.CalledAETitle))
	copy(fixed[20:36], padAETitle(ac.CallingAETitle))

	var variable []byte
	variable = writeItem(variable, 0x10, []byte(ac.ApplicationContext))

	for _, ctx := range ac.PresentationCtxs {
		var value []byte
		value = append(value, ctx.ID, ctx.Result, 0x00, 0x00)
		// The transfer-syntax sub-item is present whatever the result; a
		// rejected context carries the acceptor's placeholder UID (PS3.8
		// §9.3.3.2 keeps the field, it just "shall be ignored" on reject).
		value = writeItem(value, 0x40, []byte(ctx.TransferSyntax))
		variable = writeItem(variable, 0x21, value)
	}

	variable = append(variable, marshalUserInformation(ac.UserInfo)...)
	return append(fixed, variable...)
}

// UnmarshalAssociateAC decodes an A-ASSOCIATE-AC PDU payload.
func UnmarshalAssociateAC(data []byte) (AssociateAC, error) {
	if len(data) < 68 {
		return AssociateAC{}, fmt.Errorf("pdu: A-ASSOCIATE-AC too short: %d bytes", len(data))
	}
	ac := AssociateAC{
		ProtocolVersion: binary.BigEndian.Uint16(data[0:2]),
		CalledAETitle:   strings.TrimSpace(trimUID(data[4:20])),
		CallingAETitle:  strings.TrimSpace(trimUID(data[20:36])),
	}

	offset := 68
	for offset+4 <= len(data) {
		itemType := data[offset]
		itemLength := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		valueStart := offset + 4
		valueEnd := valueStart + itemLength
		if valueEnd > len(data) {
			return AssociateAC{}, fmt.Errorf("pdu: item at offset %d exceeds PDU length", offset)
		}
		value := data[valueStart:valueEnd]

		switch itemType {
		case 0x10:
			ac.ApplicationContext = trimUID(value)
		case 0x21:
			if len(value) < 4 {
				return AssociateAC{}, fmt.Errorf("pdu: presentation context result item too short")
			}
			result := PresentationContextResult{ID: value[0], Result: value[1]}
			sub := value[4:]
			subOffset := 0
			for subOffset+4 <= len(sub) {
				subType := sub[subOffset]
				subLen := int(binary.BigEndian.Uint16(sub[subOffset+2 : subOffset+4]))
				vs := subOffset + 4
				ve := vs + subLen
				if ve > len(sub) {
					break
				}
				if subType == 0x40 {
					result.TransferSyntax = trimUID(sub[vs:ve])
				}
				subOffset = ve
			}
			ac.PresentationCtxs = append(ac.PresentationCtxs, result)
		case 0x50:
			ac.UserInfo = unmarshalUserInformation(value)
		}
		offset = valueEnd
	}
	return ac, nil
}

func marshalUserInformation(info UserInformation) []byte {
	var maxPDU [4]byte
	binary.BigEndian.PutUint32(maxPDU[:], info.MaxPDULength)
	var data []byte
	data = writeItem(data, 0x51, maxPDU[:])
	if info.ImplementationClassUID != "" {
		data = writeItem(data, 0x52, []byte(info.ImplementationClassUID))
	}
	if info.ImplementationVersion != "" {
		data = writeItem(data, 0x55, []byte(info.ImplementationVersion))
	}
	return writeItem(nil, 0x50, data)
}

func unmarshalUserInformation(data []byte) UserInformation {
	var info UserInformation
	offset := 0
	for offset+4 <= len(data) {
		subType := data[offset]
		subLen := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		vs := offset + 4
		ve := vs + subLen
		if ve > len(data) {
			break
		}
		value := data[vs:ve]
		switch subType {
		case 0x51:
			if len(value) == 4 {
				info.MaxPDULength = binary.BigEndian.Uint32(value)
			}
		case 0x52:
			info.ImplementationClassUID = trimUID(value)
		case 0x55:
			info.ImplementationVersion = trimUID(value)
		}
		offset = ve
	}
	return info
}

// MarshalAssociateRJ encodes rj as an A-ASSOCIATE-RJ PDU payload.
func MarshalAssociateRJ(rj AssociateRJ) []byte {
	return []byte{0x00, rj.Result, rj.Source, rj.Reason}
}

// UnmarshalAssociateRJ decodes an A-ASSOCIATE-RJ PDU payload.
func UnmarshalAssociateRJ(data []byte) (AssociateRJ, error) {
	if len(data) < 4 {
		return AssociateRJ{}, fmt.Errorf("pdu: A-ASSOCIATE-RJ too short: %d bytes", len(data))
	}
	return AssociateRJ{Result: data[1], Source: data[2], Reason: data[3]}, nil
}

// MarshalAbort encodes a as an A-ABORT PDU payload.
func MarshalAbort(a Abort) []byte {
	return []byte{0x00, 0x00, a.Source, a.Reason}
}

// UnmarshalAbort decodes an A-ABORT PDU payload.
func UnmarshalAbort(data []byte) (Abort, error) {
	if len(data) < 4 {
		return Abort{}, fmt.Errorf("pdu: A-ABORT too short: %d bytes", len(data))
	}
	return Abort{Source: data[2], Reason: data[3]}, nil
}

// MarshalPDataTF encodes one or more PDVs as a single P-DATA-TF PDU
// payload. Callers needing fragmentation across multiple PDUs (to respect
// a negotiated max PDU length) call this once per PDU with the PDVs that
// belong to it; see assoc.Association.SendPData.
func MarshalPDataTF(pdvs []PDV) []byte {
	var out []byte
	for _, pdv := range pdvs {
		header := pdv.PresentationContextID
		var ctrl byte
		if pdv.IsCommand {
			ctrl |= 0x01
		}
		if pdv.IsLast {
			ctrl |= 0x02
		}
		item := append([]byte{header, ctrl}, pdv.Data...)
		var lenBytes [4]byte
		binary.BigEndian.PutUint32(lenBytes[:], uint32(len(item)))
		out = append(out, lenBytes[:]...)
		out = append(out, item...)
	}
	return out
}

// UnmarshalPDataTF decodes a P-DATA-TF PDU payload into its constituent
// PDVs.
func UnmarshalPDataTF(data []byte) ([]PDV, error) {
	var pdvs []PDV
	offset := 0
	for offset+4 <= len(data) {
		length := binary.BigEndian.Uint32(data[offset : offset+4])
		valueStart := offset + 4
		valueEnd := valueStart + int(length)
		if valueEnd > len(data) {
			return nil, fmt.Errorf("pdu: PDV at offset %d exceeds P-DATA-TF length", offset)
		}
		if length < 2 {
			return nil, fmt.Errorf("pdu: PDV at offset %d shorter than its header", offset)
		}
		item := data[valueStart:valueEnd]
		pdvs = append(pdvs, PDV{
			PresentationContextID: item[0],
			IsCommand:             item[1]&0x01 != 0,
			IsLast:                item[1]&0x02 != 0,
			Data:                  item[2:],
		})
		offset = valueEnd
	}
	return pdvs, nil
}
