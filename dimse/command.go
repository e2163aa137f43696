package dimse

import (
	"encoding/binary"
	"strings"

	"github.com/mtamura/godicom/dicomio"
	"github.com/mtamura/godicom/types"
)

// Command Field values (PS3.7 §9.3). These are the canonical constants the
// client and services packages dispatch on; types.Message carries the same
// numeric values so a caller that only imports types can still compare
// against them.
const (
	CStoreRQ  = 0x0001
	CStoreRSP = 0x8001
	CGetRQ    = 0x0010
	CGetRSP   = 0x8010
	CFindRQ   = 0x0020
	CFindRSP  = 0x8020
	CMoveRQ   = 0x0021
	CMoveRSP  = 0x8021
	CEchoRQ   = 0x0030
	CEchoRSP  = 0x8030
	CCancelRQ = 0x0FFF
)

// Status codes (PS3.7 Annex C).
const (
	StatusSuccess = 0x0000
	StatusPending = 0xFF00
	StatusFailure = 0xC000
)

// Command group (0000,xxxx) element numbers, fixed by PS3.7 and never
// looked up in a data dictionary: the command set is always Implicit VR
// Little Endian (PS3.7 §6.3.1) and its tags are few enough to hand-specify
// directly against dicomio's encoder/decoder primitives rather than routing
// through dicom.ReadHeader/dictionary resolution, which exists to resolve
// the much larger and extensible data-set tag space.
const (
	elGroupLength                    = 0x0000
	elAffectedSOPClassUID            = 0x0002
	elRequestedSOPClassUID           = 0x0003
	elCommandField                   = 0x0100
	elMessageID                      = 0x0110
	elMessageIDBeingRespondedTo      = 0x0120
	elMoveDestination                = 0x0600
	elPriority                       = 0x0700
	elCommandDataSetType             = 0x0800
	elStatus                         = 0x0900
	elAffectedSOPInstanceUID         = 0x1000
	elRequestedSOPInstanceUID        = 0x1001
	elMoveOriginatorAETitle          = 0x1030
	elMoveOriginatorMessageID        = 0x1031
	elNumberOfRemainingSuboperations = 0x1020
	elNumberOfCompletedSuboperations = 0x1021
	elNumberOfFailedSuboperations    = 0x1022
	elNumberOfWarningSuboperations   = 0x1023
)

// EncodeCommand encodes msg as an Implicit VR Little Endian command set,
// the form every DIMSE command travels in regardless of the data set's own
// negotiated transfer syntax (PS3.7 §6.3.1). The Command Group Length
// element is written first with its value backpatched once the rest of the
// command set is known.
func EncodeCommand(msg *types.Message) ([]byte, error) {
	body := dicomio.NewBytesEncoder(binary.LittleEndian, dicomio.ImplicitVR)

	writeUI(body, elAffectedSOPClassUID, msg.AffectedSOPClassUID)
	writeUI(body, elRequestedSOPClassUID, msg.RequestedSOPClassUID)
	writeUS(body, elCommandField, msg.CommandField)
	if msg.MessageIDBeingRespondedTo == 0 {
		writeUS(body, elMessageID, msg.MessageID)
	}
	if msg.MessageIDBeingRespondedTo != 0 {
		writeUS(body, elMessageIDBeingRespondedTo, msg.MessageIDBeingRespondedTo)
	}
	writeAE(body, elMoveDestination, msg.MoveDestination)
	writeUS(body, elPriority, msg.Priority)
	writeUS(body, elCommandDataSetType, msg.CommandDataSetType)
	writeUS(body, elStatus, msg.Status)
	writeUI(body, elAffectedSOPInstanceUID, msg.AffectedSOPInstanceUID)
	writeUI(body, elRequestedSOPInstanceUID, msg.RequestedSOPInstanceUID)
	writeAE(body, elMoveOriginatorAETitle, msg.MoveOriginatorApplicationEntityTitle)
	if msg.MoveOriginatorMessageID != 0 {
		writeUS(body, elMoveOriginatorMessageID, msg.MoveOriginatorMessageID)
	}
	writeUS16Ptr(body, elNumberOfRemainingSuboperations, msg.NumberOfRemainingSuboperations)
	writeUS16Ptr(body, elNumberOfCompletedSuboperations, msg.NumberOfCompletedSuboperations)
	writeUS16Ptr(body, elNumberOfFailedSuboperations, msg.NumberOfFailedSuboperations)
	writeUS16Ptr(body, elNumberOfWarningSuboperations, msg.NumberOfWarningSuboperations)

	if err := body.Error(); err != nil {
		return nil, err
	}

	out := dicomio.NewBytesEncoder(binary.LittleEndian, dicomio.ImplicitVR)
	writeImplicitHeader(out, elGroupLength, 4)
	out.WriteUInt32(uint32(len(body.Bytes())))
	out.WriteBytes(body.Bytes())
	return out.Bytes(), out.Error()
}

// DecodeCommand decodes an Implicit VR Little Endian command set as
// written by EncodeCommand. Unknown command-group elements are skipped
// rather than rejected, so a peer's extension elements don't break
// decoding of the fields this codec understands.
func DecodeCommand(data []byte) (*types.Message, error) {
	msg := &types.Message{CommandDataSetType: 0x0101}
	d := dicomio.NewBytesDecoder(data, binary.LittleEndian, dicomio.ImplicitVR)

	for !d.EOF() {
		group := d.ReadUInt16()
		element := d.ReadUInt16()
		length := d.ReadUInt32()
		if d.Error() != nil {
			return nil, d.Error()
		}
		if group != 0x0000 {
			d.Skip(int(length))
			continue
		}

		switch element {
		case elAffectedSOPClassUID:
			msg.AffectedSOPClassUID = readUIDValue(d, length)
		case elRequestedSOPClassUID:
			msg.RequestedSOPClassUID = readUIDValue(d, length)
		case elCommandField:
			msg.CommandField = readUSValue(d, length)
		case elMessageID:
			msg.MessageID = readUSValue(d, length)
		case elMessageIDBeingRespondedTo:
			msg.MessageIDBeingRespondedTo = readUSValue(d, length)
		case elMoveDestination:
			msg.MoveDestination = readUIDValue(d, length)
		case elPriority:
			msg.Priority = readUSValue(d, length)
		case elCommandDataSetType:
			msg.CommandDataSetType = readUSValue(d, length)
		case elStatus:
			msg.Status = readUSValue(d, length)
		case elAffectedSOPInstanceUID:
			msg.AffectedSOPInstanceUID = readUIDValue(d, length)
		case elRequestedSOPInstanceUID:
			msg.RequestedSOPInstanceUID = readUIDValue(d, length)
		case elMoveOriginatorAETitle:
			msg.MoveOriginatorApplicationEntityTitle = readUIDValue(d, length)
		case elMoveOriginatorMessageID:
			msg.MoveOriginatorMessageID = readUSValue(d, length)
		case elNumberOfRemainingSuboperations:
			v := readUSValue(d, length)
			msg.NumberOfRemainingSuboperations = &v
		case elNumberOfCompletedSuboperations:
			v := readUSValue(d, length)
			msg.NumberOfCompletedSuboperations = &v
		case elNumberOfFailedSuboperations:
			v := readUSValue(d, length)
			msg.NumberOfFailedSuboperations = &v
		case elNumberOfWarningSuboperations:
			v := readUSValue(d, length)
			msg.NumberOfWarningSuboperations = &v
		default:
			d.Skip(int(length))
		}
		if d.Error() != nil {
			return nil, d.Error()
		}
	}

	return msg, nil
}

func writeImplicitHeader(e *dicomio.Encoder, element uint16, length uint32) {
	e.WriteUInt16(0x0000)
	e.WriteUInt16(element)
	e.WriteUInt32(length)
}

func writeUS(e *dicomio.Encoder, element uint16, value uint16) {
	writeImplicitHeader(e, element, 2)
	e.WriteUInt16(value)
}

func writeUS16Ptr(e *dicomio.Encoder, element uint16, value *uint16) {
	if value == nil {
		return
	}
	writeUS(e, element, *value)
}

func writeUI(e *dicomio.Encoder, element uint16, value string) {
	if value == "" {
		return
	}
	if len(value)%2 == 1 {
		value += "\x00"
	}
	writeImplicitHeader(e, element, uint32(len(value)))
	e.WriteString(value)
}

func writeAE(e *dicomio.Encoder, element uint16, value string) {
	if value == "" {
		return
	}
	if len(value)%2 == 1 {
		value += " "
	}
	writeImplicitHeader(e, element, uint32(len(value)))
	e.WriteString(value)
}

func readUIDValue(d *dicomio.Decoder, length uint32) string {
	return strings.TrimRight(d.ReadString(int(length)), "\x00 ")
}

func readUSValue(d *dicomio.Decoder, length uint32) uint16 {
	if length < 2 {
		d.Skip(int(length))
		return 0
	}
	v := d.ReadUInt16()
	if length > 2 {
		d.Skip(int(length) - 2)
	}
	return v
}
