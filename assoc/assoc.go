// Package assoc implements the DICOM Upper Layer association state
// machine (PS3.8 §§7-9): the requester and acceptor handshakes, presentation
// context negotiation, and the established-state P-DATA exchange, unified
// behind one Association type usable from either role.
package assoc

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	dicomerrors "github.com/mtamura/godicom/errors"
	"github.com/mtamura/godicom/pdu"
	"github.com/mtamura/godicom/types"
)

// defaultImplementationClassUID identifies this codec's association
// implementation in the User Information item of every handshake, the way
// every DICOM stack stamps its own UID there for interoperability logs.
const defaultImplementationClassUID = "1.2.826.0.1.3680043.9.7484.1"

const defaultImplementationVersion = "GODICOM_1"

// PresentationContext is a negotiated context: an abstract syntax bound to
// exactly one transfer syntax, ready for DIMSE traffic once the
// association is established.
type PresentationContext struct {
	ID             byte
	AbstractSyntax string
	TransferSyntax string
}

// AccessControlPolicy decides whether an incoming association request
// should be accepted, independent of presentation context negotiation.
// Implementations typically match on the calling AE title.
type AccessControlPolicy interface {
	Allow(callingAETitle, calledAETitle string) bool
}

// AcceptAnyPolicy accepts every association request regardless of AE
// titles, appropriate for a development server or one run behind a
// network boundary that already restricts who can connect.
type AcceptAnyPolicy struct{}

func (AcceptAnyPolicy) Allow(string, string) bool { return true }

// AcceptIfCalledMatchesPolicy accepts a request only if its Called AE
// Title matches the configured value exactly.
type AcceptIfCalledMatchesPolicy struct {
	CalledAETitle string
}

func (p AcceptIfCalledMatchesPolicy) Allow(_ string, calledAETitle string) bool {
	return calledAETitle == p.CalledAETitle
}

// AcceptorConfig configures the acceptor side of the handshake.
type AcceptorConfig struct {
	AETitle                   string
	MaxPDULength              uint32
	SupportedAbstractSyntaxes func(uid string) bool
	SupportedTransferSyntaxes []string
	AccessControl             AccessControlPolicy
	// LenientMaxPDU, when true, accepts a P-DATA-TF PDU whose payload
	// exceeds the negotiated maximum instead of rejecting it. The zero
	// value is strict: a resource-constrained peer that needs to interop
	// with implementations known to overrun their own declared limit is
	// the only reason to set this true.
	LenientMaxPDU bool
	Logger        *slog.Logger
}

// RequesterConfig configures the requester side of the handshake.
type RequesterConfig struct {
	CallingAETitle string
	CalledAETitle  string
	MaxPDULength   uint32
	// ProposedContexts lists, per abstract syntax, the transfer syntaxes
	// the requester is willing to use, in preference order.
	ProposedContexts []ProposedContext
	ConnectTimeout   time.Duration
	LenientMaxPDU    bool
	Logger           *slog.Logger
}

// ProposedContext is one presentation context a requester offers.
type ProposedContext struct {
	AbstractSyntax   string
	TransferSyntaxes []string
}

// Association is an established DICOM Upper Layer association, usable to
// exchange DIMSE command/data-set traffic until Close or the peer aborts
// it.
type Association struct {
	conn         net.Conn
	r            *bufio.Reader
	logger       *slog.Logger
	localMaxPDU  uint32
	peerMaxPDU   uint32
	strictMaxPDU bool
	contexts     map[byte]PresentationContext

	closeOnce sync.Once

	bytesSent     int64
	bytesReceived int64
}

// ContextByID returns the negotiated presentation context for id.
func (a *Association) ContextByID(id byte) (PresentationContext, bool) {
	ctx, ok := a.contexts[id]
	return ctx, ok
}

// ContextByAbstractSyntax returns the first negotiated context offering
// abstractSyntax, the lookup DIMSE command dispatch needs when choosing
// which presentation context ID to tag an outgoing request with.
func (a *Association) ContextByAbstractSyntax(abstractSyntax string) (PresentationContext, bool) {
	for _, ctx := range a.contexts {
		if ctx.AbstractSyntax == abstractSyntax {
			return ctx, true
		}
	}
	return PresentationContext{}, false
}

// Stats reports the cumulative PDU bytes, headers included, that SendPData
// and ReceivePDV have moved over this association in each direction.
func (a *Association) Stats() (sent, received int64) {
	return a.bytesSent, a.bytesReceived
}

// Open performs the requester handshake: send A-ASSOCIATE-RQ, then wait
// for A-ASSOCIATE-AC (success), A-ASSOCIATE-RJ (rejected, returned as
// *errors.AssociationError), or A-ABORT.
func Open(ctx context.Context, network, address string, cfg RequesterConfig) (*Association, error) {
	if len(cfg.ProposedContexts) == 0 {
		return nil, fmt.Errorf("assoc: no abstract syntaxes configured to propose")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, dicomerrors.NewNetworkError("dial", err)
	}

	maxPDU := cfg.MaxPDULength
	if maxPDU == 0 {
		maxPDU = 16384
	}

	req := pdu.AssociateRQ{
		CalledAETitle:      cfg.CalledAETitle,
		CallingAETitle:     cfg.CallingAETitle,
		ApplicationContext: types.ApplicationContextUID,
		UserInfo: pdu.UserInformation{
			MaxPDULength:           maxPDU,
			ImplementationClassUID: defaultImplementationClassUID,
			ImplementationVersion:  defaultImplementationVersion,
		},
	}
	var nextID byte = 1
	for _, pc := range cfg.ProposedContexts {
		req.PresentationCtxs = append(req.PresentationCtxs, pdu.PresentationContextProposed{
			ID:               nextID,
			AbstractSyntax:   pc.AbstractSyntax,
			TransferSyntaxes: pc.TransferSyntaxes,
		})
		nextID += 2 // presentation context IDs are odd, per PS3.8 §7.1.1.13
	}

	if err := pdu.WriteRaw(conn, pdu.TypeAssociateRQ, pdu.MarshalAssociateRQ(req)); err != nil {
		conn.Close()
		return nil, dicomerrors.NewNetworkError("write A-ASSOCIATE-RQ", err)
	}

	raw, err := pdu.ReadRaw(conn)
	if err != nil {
		conn.Close()
		return nil, dicomerrors.NewNetworkError("read association response", err)
	}

	switch raw.Type {
	case pdu.TypeAssociateAC:
		ac, err := pdu.UnmarshalAssociateAC(raw.Data)
		if err != nil {
			conn.Close()
			return nil, err
		}
		if ac.ProtocolVersion&0x0001 == 0 {
			pdu.WriteRaw(conn, pdu.TypeAbort,
				pdu.MarshalAbort(pdu.Abort{Source: abortSourceServiceProvider}))
			conn.Close()
			return nil, fmt.Errorf("assoc: peer accepted with unsupported protocol version 0x%04x", ac.ProtocolVersion)
		}
		assoc := &Association{
			conn:         conn,
			r:            bufio.NewReader(conn),
			logger:       logger,
			localMaxPDU:  maxPDU,
			peerMaxPDU:   ac.UserInfo.MaxPDULength,
			strictMaxPDU: !cfg.LenientMaxPDU,
			contexts:     make(map[byte]PresentationContext),
		}
		proposedByID := make(map[byte]string, len(req.PresentationCtxs))
		for _, pc := range req.PresentationCtxs {
			proposedByID[pc.ID] = pc.AbstractSyntax
		}
		for _, result := range ac.PresentationCtxs {
			if result.Result != pdu.PresentationResultAcceptance {
				continue
			}
			assoc.contexts[result.ID] = PresentationContext{
				ID:             result.ID,
				AbstractSyntax: proposedByID[result.ID],
				TransferSyntax: result.TransferSyntax,
			}
		}
		if len(assoc.contexts) == 0 {
			pdu.WriteRaw(conn, pdu.TypeAbort,
				pdu.MarshalAbort(pdu.Abort{Source: abortSourceServiceUser}))
			conn.Close()
			return nil, dicomerrors.ErrNoPresentationCtx
		}
		logger.Info("association established", "calling_ae", cfg.CallingAETitle,
			"called_ae", cfg.CalledAETitle, "accepted_contexts", len(assoc.contexts))
		return assoc, nil

	case pdu.TypeAssociateRJ:
		rj, err := pdu.UnmarshalAssociateRJ(raw.Data)
		conn.Close()
		if err != nil {
			return nil, err
		}
		return nil, dicomerrors.NewAssociationError(
			dicomerrors.AssociationRejectSource(rj.Source),
			dicomerrors.AssociationRejectReason(rj.Reason),
			"association rejected by peer")

	case pdu.TypeAbort:
		a, _ := pdu.UnmarshalAbort(raw.Data)
		conn.Close()
		return nil, dicomerrors.NewAbortError(a.Source, a.Reason)

	default:
		conn.Close()
		return nil, fmt.Errorf("assoc: unexpected PDU type 0x%02x during handshake", raw.Type)
	}
}

// Accept performs the acceptor handshake on an already-accepted net.Conn:
// read A-ASSOCIATE-RQ, negotiate every proposed presentation context
// against cfg, and respond with A-ASSOCIATE-AC (always, even if every
// context was rejected, as long as AccessControl allows the request; the
// application context name is echoed back without being checked) or
// A-ASSOCIATE-RJ.
func Accept(conn net.Conn, cfg AcceptorConfig) (*Association, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	accessControl := cfg.AccessControl
	if accessControl == nil {
		accessControl = AcceptAnyPolicy{}
	}
	maxPDU := cfg.MaxPDULength
	if maxPDU == 0 {
		maxPDU = 16384
	}

	raw, err := pdu.ReadRaw(conn)
	if err != nil {
		return nil, dicomerrors.NewNetworkError("read A-ASSOCIATE-RQ", err)
	}
	if raw.Type != pdu.TypeAssociateRQ {
		return nil, fmt.Errorf("assoc: expected A-ASSOCIATE-RQ, got PDU type 0x%02x", raw.Type)
	}
	req, err := pdu.UnmarshalAssociateRQ(raw.Data)
	if err != nil {
		return nil, err
	}

	if !accessControl.Allow(req.CallingAETitle, req.CalledAETitle) {
		rj := pdu.AssociateRJ{
			Result: 1, // rejected-permanent
			Source: byte(dicomerrors.RejectSourceServiceUser),
			Reason: byte(dicomerrors.RejectReasonCallingAETitleNotRecognized),
		}
		pdu.WriteRaw(conn, pdu.TypeAssociateRJ, pdu.MarshalAssociateRJ(rj))
		return nil, dicomerrors.NewAssociationError(
			dicomerrors.RejectSourceServiceUser, dicomerrors.RejectReasonCallingAETitleNotRecognized,
			"calling AE title rejected by access control policy")
	}

	ac := pdu.AssociateAC{
		CalledAETitle:      req.CalledAETitle,
		CallingAETitle:     req.CallingAETitle,
		ApplicationContext: req.ApplicationContext,
		UserInfo: pdu.UserInformation{
			MaxPDULength:           maxPDU,
			ImplementationClassUID: defaultImplementationClassUID,
			ImplementationVersion:  defaultImplementationVersion,
		},
	}

	assoc := &Association{
		conn:         conn,
		r:            bufio.NewReader(conn),
		logger:       logger,
		localMaxPDU:  maxPDU,
		peerMaxPDU:   req.UserInfo.MaxPDULength,
		strictMaxPDU: !cfg.LenientMaxPDU,
		contexts:     make(map[byte]PresentationContext),
	}

	for _, proposed := range req.PresentationCtxs {
		// A rejected context carries the Implicit VR LE placeholder in its
		// transfer-syntax sub-item; acceptance overwrites it with the
		// syntax actually chosen.
		result := pdu.PresentationContextResult{
			ID:             proposed.ID,
			Result:         pdu.PresentationResultRejectAbstractSyntax,
			TransferSyntax: types.ImplicitVRLittleEndian,
		}
		if cfg.SupportedAbstractSyntaxes == nil || cfg.SupportedAbstractSyntaxes(proposed.AbstractSyntax) {
			for _, ts := range proposed.TransferSyntaxes {
				if supportsTransferSyntax(cfg.SupportedTransferSyntaxes, ts) {
					result.Result = pdu.PresentationResultAcceptance
					result.TransferSyntax = ts
					break
				}
			}
			if result.Result != pdu.PresentationResultAcceptance {
				result.Result = pdu.PresentationResultRejectTransferSyntax
			}
		}
		ac.PresentationCtxs = append(ac.PresentationCtxs, result)
		if result.Result == pdu.PresentationResultAcceptance {
			assoc.contexts[proposed.ID] = PresentationContext{
				ID: proposed.ID, AbstractSyntax: proposed.AbstractSyntax, TransferSyntax: result.TransferSyntax,
			}
		}
	}

	if err := pdu.WriteRaw(conn, pdu.TypeAssociateAC, pdu.MarshalAssociateAC(ac)); err != nil {
		return nil, dicomerrors.NewNetworkError("write A-ASSOCIATE-AC", err)
	}
	logger.Info("association accepted", "calling_ae", req.CallingAETitle,
		"called_ae", req.CalledAETitle, "accepted_contexts", len(assoc.contexts))
	return assoc, nil
}

func supportsTransferSyntax(supported []string, uid string) bool {
	if supported == nil {
		return uid == types.ImplicitVRLittleEndian || uid == types.ExplicitVRLittleEndian
	}
	for _, s := range supported {
		if s == uid {
			return true
		}
	}
	return false
}

// effectiveMaxFragment is the largest PDV payload this association will
// pack per P-DATA-TF PDU: the peer's declared maximum minus the fixed
// 6-byte PDU header and the PDV's own 4-byte length + 2-byte control
// prefix (PS3.8 §9.3.5). A peer-declared max of 0 means "unlimited"; the
// codec still caps fragments so a single PDU can't grow unbounded.
func (a *Association) effectiveMaxFragment() int {
	const pduOverhead = 6
	const pdvOverhead = 6
	limit := a.peerMaxPDU
	if limit == 0 {
		limit = 1 << 20
	}
	if limit <= pduOverhead+pdvOverhead {
		return 1
	}
	return int(limit) - pduOverhead - pdvOverhead
}

// SendPData writes data as one or more P-DATA-TF PDUs on presentation
// context ctxID, fragmenting it so every PDU respects the peer's
// negotiated maximum length. isCommand distinguishes the DIMSE command set
// fragment stream from the data set fragment stream; the two are never
// mixed within one PDV.
func (a *Association) SendPData(ctxID byte, isCommand bool, data []byte) error {
	maxFragment := a.effectiveMaxFragment()
	if len(data) == 0 {
		pdv := pdu.PDV{PresentationContextID: ctxID, IsCommand: isCommand, IsLast: true}
		payload := pdu.MarshalPDataTF([]pdu.PDV{pdv})
		return a.writeRaw(pdu.TypePDataTF, payload)
	}
	for offset := 0; offset < len(data); offset += maxFragment {
		end := offset + maxFragment
		if end > len(data) {
			end = len(data)
		}
		pdv := pdu.PDV{
			PresentationContextID: ctxID,
			IsCommand:             isCommand,
			IsLast:                end == len(data),
			Data:                  data[offset:end],
		}
		payload := pdu.MarshalPDataTF([]pdu.PDV{pdv})
		if a.strictMaxPDU && a.peerMaxPDU != 0 && uint32(len(payload)+6) > a.peerMaxPDU {
			return fmt.Errorf("assoc: fragment exceeds negotiated max PDU length %d", a.peerMaxPDU)
		}
		if err := a.writeRaw(pdu.TypePDataTF, payload); err != nil {
			return err
		}
	}
	return nil
}

func (a *Association) writeRaw(pduType byte, payload []byte) error {
	if err := pdu.WriteRaw(a.conn, pduType, payload); err != nil {
		return dicomerrors.NewNetworkError("write PDU", err)
	}
	a.bytesSent += int64(len(payload)) + 6
	return nil
}

// ReceivePDV reads the next raw PDU and, if it is a P-DATA-TF, returns its
// PDVs; any other PDU type (release, abort) is surfaced as an error so the
// DIMSE layer above can react to the association ending.
func (a *Association) ReceivePDV() ([]pdu.PDV, error) {
	raw, err := pdu.ReadRaw(a.r)
	if err != nil {
		if err == io.EOF {
			return nil, dicomerrors.ErrConnectionClosed
		}
		return nil, dicomerrors.NewNetworkError("read PDU", err)
	}
	a.bytesReceived += int64(len(raw.Data)) + 6

	switch raw.Type {
	case pdu.TypePDataTF:
		if a.strictMaxPDU && a.localMaxPDU != 0 && uint32(len(raw.Data)) > a.localMaxPDU {
			return nil, fmt.Errorf("assoc: received P-DATA-TF payload of %d bytes exceeds local max PDU length %d", len(raw.Data), a.localMaxPDU)
		}
		return pdu.UnmarshalPDataTF(raw.Data)
	case pdu.TypeReleaseRQ:
		if err := a.writeRaw(pdu.TypeReleaseRP, nil); err != nil {
			return nil, err
		}
		return nil, io.EOF
	case pdu.TypeReleaseRP:
		return nil, io.EOF
	case pdu.TypeAbort:
		abt, _ := pdu.UnmarshalAbort(raw.Data)
		return nil, dicomerrors.NewAbortError(abt.Source, abt.Reason)
	default:
		return nil, fmt.Errorf("assoc: unexpected PDU type 0x%02x in established state", raw.Type)
	}
}

// PDataReader concatenates successive PDV fragments of one stream of a
// DIMSE message (either its command set or its data set, never both) into
// a single byte slice, so a DIMSE decoder never has to know about PDU or
// PDV boundaries.
type PDataReader struct {
	assoc    *Association
	wantCmd  bool
	pending  []pdu.PDV
	ctxID    byte
	ctxIDSet bool
}

// NewPDataReader creates a reader that pulls command-set fragments from
// assoc if wantCommand is true, or data-set fragments otherwise, stopping
// after the fragment marked IsLast.
func NewPDataReader(assoc *Association, wantCommand bool) *PDataReader {
	return &PDataReader{assoc: assoc, wantCmd: wantCommand}
}

// ReadMessage reads fragments until the last one for this message, and
// returns the presentation context ID they arrived on along with the
// concatenated bytes.
func (r *PDataReader) ReadMessage() (byte, []byte, error) {
	var out []byte
	for {
		if len(r.pending) == 0 {
			pdvs, err := r.assoc.ReceivePDV()
			if err != nil {
				return 0, nil, err
			}
			r.pending = pdvs
		}
		pdv := r.pending[0]
		r.pending = r.pending[1:]
		if pdv.IsCommand != r.wantCmd {
			return 0, nil, fmt.Errorf("assoc: expected %s fragment, got the other stream", streamName(r.wantCmd))
		}
		if !r.ctxIDSet {
			r.ctxID = pdv.PresentationContextID
			r.ctxIDSet = true
		}
		out = append(out, pdv.Data...)
		if pdv.IsLast {
			return r.ctxID, out, nil
		}
	}
}

func streamName(isCommand bool) string {
	if isCommand {
		return "command"
	}
	return "data set"
}

// Release performs a best-effort A-RELEASE exchange (send A-RELEASE-RQ,
// wait briefly for A-RELEASE-RP) and then unconditionally closes the
// socket: a DICOM peer that never answers the release request must not be
// allowed to leak the connection, so a silent timeout is not an error. A
// peer that answers with anything other than A-RELEASE-RP is aborted and
// the unexpected PDU surfaced to the caller.
func (a *Association) Release() error {
	var releaseErr error
	a.closeOnce.Do(func() {
		if err := pdu.WriteRaw(a.conn, pdu.TypeReleaseRQ, nil); err != nil {
			releaseErr = dicomerrors.NewNetworkError("write A-RELEASE-RQ", err)
		} else {
			a.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			raw, err := pdu.ReadRaw(a.r)
			switch {
			case err != nil:
				a.logger.Debug("no A-RELEASE-RP within timeout, closing anyway")
			case raw.Type != pdu.TypeReleaseRP:
				pdu.WriteRaw(a.conn, pdu.TypeAbort,
					pdu.MarshalAbort(pdu.Abort{Source: abortSourceServiceUser}))
				releaseErr = fmt.Errorf("assoc: unexpected PDU type 0x%02x while awaiting A-RELEASE-RP", raw.Type)
			}
		}
		a.conn.Close()
	})
	return releaseErr
}

// A-ABORT source values (PS3.8 table 9-26).
const (
	abortSourceServiceUser     byte = 0
	abortSourceServiceProvider byte = 2
)

// Abort sends an A-ABORT PDU (best effort) and closes the connection
// unconditionally; unlike Release it never waits for a peer response,
// matching PS3.8's requirement that an abort tears the association down
// immediately.
func (a *Association) Abort(source, reason byte) error {
	var sendErr error
	a.closeOnce.Do(func() {
		sendErr = pdu.WriteRaw(a.conn, pdu.TypeAbort, pdu.MarshalAbort(pdu.Abort{Source: source, Reason: reason}))
		a.conn.Close()
	})
	return sendErr
}

// Close releases the association if it is still open, discarding any
// error from the release handshake; callers that care about the outcome
// should call Release directly instead. It is always safe to call, and
// safe to call more than once or after Release/Abort.
func (a *Association) Close() error {
	_ = a.Release()
	return nil
}
