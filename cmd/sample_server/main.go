package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mtamura/godicom/client"
	"github.com/mtamura/godicom/dicom"
	"github.com/mtamura/godicom/dictionary"
	"github.com/mtamura/godicom/interfaces"
	"github.com/mtamura/godicom/server"
	"github.com/mtamura/godicom/types"
)

// DicomInstance represents a stored DICOM instance
type DicomInstance struct {
	SOPClassUID    string
	SOPInstanceUID string
	StudyUID       string
	SeriesUID      string
	TransferSyntax string // Transfer syntax the data is stored in
	Dataset        *dicom.DataObject
}

type sampleHandler struct {
	instances map[string]*DicomInstance // Key: SOPInstanceUID
	mu        sync.RWMutex

	// moveDestAddr is where C-MOVE sub-operation C-STOREs are sent. A real
	// SCP would resolve the MoveDestination AE title against a peer table;
	// this sample takes one fixed address on the command line.
	moveDestAddr string
}

func responseTransferSyntax(meta interfaces.MessageContext) string {
	if meta.TransferSyntaxUID != "" {
		return meta.TransferSyntaxUID
	}
	return types.ExplicitVRLittleEndian
}

func (s *sampleHandler) HandleDIMSE(ctx context.Context, msg *types.Message, meta interfaces.MessageContext) (*types.Message, *dicom.DataObject, error) {
	slog.InfoContext(ctx, "Received DIMSE command", "command_field", fmt.Sprintf("0x%04X", msg.CommandField), "message_id", msg.MessageID)

	switch msg.CommandField {
	case types.CEchoRQ:
		response := &types.Message{
			CommandField:              types.CEchoRSP,
			MessageIDBeingRespondedTo: msg.MessageID,
			AffectedSOPClassUID:       msg.AffectedSOPClassUID,
			CommandDataSetType:        0x0101,
			Status:                    types.StatusSuccess,
		}
		slog.InfoContext(ctx, "Responding to C-ECHO with success", "message_id", msg.MessageID)
		return response, nil, nil

	case types.CFindRQ:
		// C-FIND uses the streaming handler - this path shouldn't be hit
		// but provide a fallback response
		response := &types.Message{
			CommandField:              types.CFindRSP,
			MessageIDBeingRespondedTo: msg.MessageID,
			AffectedSOPClassUID:       msg.AffectedSOPClassUID,
			CommandDataSetType:        0x0101, // No dataset in final response
			Status:                    types.StatusSuccess,
		}
		slog.InfoContext(ctx, "C-FIND handled via non-streaming path (unexpected)", "message_id", msg.MessageID)
		return response, nil, nil

	case types.CMoveRQ:
		return s.handleCMove(ctx, msg, meta)

	default:
		response := &types.Message{
			CommandField:              types.ResponseCommandFor(msg.CommandField),
			MessageIDBeingRespondedTo: msg.MessageID,
			AffectedSOPClassUID:       msg.AffectedSOPClassUID,
			CommandDataSetType:        0x0101,
			Status:                    types.StatusFailure,
		}
		slog.WarnContext(ctx, "Unsupported DIMSE command", "command_field", fmt.Sprintf("0x%04X", msg.CommandField))
		return response, nil, nil
	}
}

func (s *sampleHandler) HandleDIMSEStreaming(ctx context.Context, msg *types.Message, meta interfaces.MessageContext, responder interfaces.ResponseSender) error {
	switch msg.CommandField {
	case types.CFindRQ:
		return s.handleCFindStreaming(ctx, msg, meta, responder)
	case types.CMoveRQ:
		return s.handleCMoveStreaming(ctx, msg, meta, responder)
	case types.CGetRQ:
		return s.handleCGetStreaming(ctx, msg, meta, responder)
	default:
		// Fall back to non-streaming handler
		response, dataset, err := s.HandleDIMSE(ctx, msg, meta)
		if err != nil {
			return err
		}
		return responder.SendResponse(response, dataset, responseTransferSyntax(meta))
	}
}

func (s *sampleHandler) handleCFindStreaming(ctx context.Context, msg *types.Message, meta interfaces.MessageContext, responder interfaces.ResponseSender) error {
	slog.InfoContext(ctx, "Handling C-FIND request", "message_id", msg.MessageID)

	// Create mock study result
	dataset := dicom.NewDataObject()
	dataset.SetString(types.Tag{Group: 0x0008, Element: 0x0052}, dicom.VRCodeString, "STUDY")
	dataset.SetString(types.Tag{Group: 0x0010, Element: 0x0010}, dicom.VRPersonName, "DOE^JOHN")
	dataset.SetString(types.Tag{Group: 0x0010, Element: 0x0020}, dicom.VRLongString, "123456")
	dataset.SetString(types.Tag{Group: 0x0020, Element: 0x000D}, dicom.VRUniqueIdentifier, "1.2.3.4.5.6.7.8.1")
	dataset.SetString(types.Tag{Group: 0x0008, Element: 0x0020}, dicom.VRDate, "20240101")
	dataset.SetString(types.Tag{Group: 0x0008, Element: 0x0030}, dicom.VRTime, "120000")
	dataset.SetString(types.Tag{Group: 0x0008, Element: 0x0050}, dicom.VRShortString, "ACC123")
	dataset.SetString(types.Tag{Group: 0x0008, Element: 0x1030}, dicom.VRLongString, "Test Study")

	// Send PENDING response with the match
	pendingResponse := &types.Message{
		CommandField:              types.CFindRSP,
		MessageIDBeingRespondedTo: msg.MessageID,
		AffectedSOPClassUID:       msg.AffectedSOPClassUID,
		CommandDataSetType:        0x0000, // Dataset present
		Status:                    types.StatusPending,
	}
	slog.InfoContext(ctx, "Sending C-FIND pending response with match", "message_id", msg.MessageID)
	if err := responder.SendResponse(pendingResponse, dataset, responseTransferSyntax(meta)); err != nil {
		return err
	}

	// Send final SUCCESS response with no dataset
	finalResponse := &types.Message{
		CommandField:              types.CFindRSP,
		MessageIDBeingRespondedTo: msg.MessageID,
		AffectedSOPClassUID:       msg.AffectedSOPClassUID,
		CommandDataSetType:        0x0101, // No dataset
		Status:                    types.StatusSuccess,
	}
	slog.InfoContext(ctx, "Sending C-FIND final success response", "message_id", msg.MessageID)
	return responder.SendResponse(finalResponse, nil, responseTransferSyntax(meta))
}

func (s *sampleHandler) handleCMoveStreaming(ctx context.Context, msg *types.Message, meta interfaces.MessageContext, responder interfaces.ResponseSender) error {
	slog.InfoContext(ctx, "Received C-MOVE request", "move_destination", msg.MoveDestination)

	dataset := meta.Dataset
	if dataset == nil {
		slog.ErrorContext(ctx, "C-MOVE request carried no identifier")
		failure := buildMoveResponse(msg, types.StatusFailure, 0, 0, 0, 0)
		return responder.SendResponse(failure, nil, responseTransferSyntax(meta))
	}

	logCMoveRequest(ctx, msg, dataset)

	// Find matching instances
	studyUID := dataset.GetString(types.Tag{Group: 0x0020, Element: 0x000D})
	seriesUID := dataset.GetString(types.Tag{Group: 0x0020, Element: 0x000E})
	sopUID := dataset.GetString(types.Tag{Group: 0x0008, Element: 0x0018})

	matchingInstances := s.findMatchingInstances(studyUID, seriesUID, sopUID)
	totalInstances := len(matchingInstances)

	slog.InfoContext(ctx, "Found matching instances", "count", totalInstances)

	if totalInstances == 0 {
		// No matches - send success with 0 completed
		final := buildMoveResponse(msg, types.StatusSuccess, 0, 0, 0, 0)
		return responder.SendResponse(final, nil, responseTransferSyntax(meta))
	}

	// Perform C-STORE sub-operations
	completed := uint16(0)
	failed := uint16(0)
	warning := uint16(0)

	for i, instance := range matchingInstances {
		remaining := uint16(totalInstances - i)

		// Send pending status before each transfer
		pending := buildMoveResponse(msg, types.StatusPending, remaining, completed, failed, warning)
		if err := responder.SendResponse(pending, nil, responseTransferSyntax(meta)); err != nil {
			return err
		}

		// Perform C-STORE to move destination
		err := s.performCStore(ctx, msg.MoveDestination, instance)
		if err != nil {
			slog.ErrorContext(ctx, "C-STORE sub-operation failed", "error", err, "sop_instance", instance.SOPInstanceUID)
			failed++
		} else {
			slog.InfoContext(ctx, "C-STORE sub-operation successful", "sop_instance", instance.SOPInstanceUID)
			completed++
		}
	}

	// Send final success response
	final := buildMoveResponse(msg, types.StatusSuccess, 0, completed, failed, warning)
	return responder.SendResponse(final, nil, responseTransferSyntax(meta))
}

func (s *sampleHandler) handleCGetStreaming(ctx context.Context, msg *types.Message, meta interfaces.MessageContext, responder interfaces.ResponseSender) error {
	slog.InfoContext(ctx, "Received C-GET request")

	dataset := meta.Dataset
	if dataset == nil {
		slog.ErrorContext(ctx, "C-GET request carried no identifier")
		failure := buildGetResponse(msg, types.StatusFailure, 0, 0, 0, 0)
		return responder.SendResponse(failure, nil, responseTransferSyntax(meta))
	}

	logCGetRequest(ctx, msg, dataset)

	// Find matching instances
	studyUID := dataset.GetString(types.Tag{Group: 0x0020, Element: 0x000D})
	seriesUID := dataset.GetString(types.Tag{Group: 0x0020, Element: 0x000E})
	sopUID := dataset.GetString(types.Tag{Group: 0x0008, Element: 0x0018})

	matchingInstances := s.findMatchingInstances(studyUID, seriesUID, sopUID)
	totalInstances := len(matchingInstances)

	slog.InfoContext(ctx, "Found matching instances", "count", totalInstances)

	if totalInstances == 0 {
		// No matches - send success with 0 completed
		final := buildGetResponse(msg, types.StatusSuccess, 0, 0, 0, 0)
		return responder.SendResponse(final, nil, responseTransferSyntax(meta))
	}

	// Check if responder supports C-STORE sub-operations
	cgetResponder, ok := responder.(interfaces.CGetResponder)
	if !ok {
		slog.ErrorContext(ctx, "Responder does not support C-GET operations")
		failure := buildGetResponse(msg, types.StatusFailure, 0, 0, 0, 0)
		return responder.SendResponse(failure, nil, responseTransferSyntax(meta))
	}

	// Perform C-STORE sub-operations on the same association
	completed := uint16(0)
	failed := uint16(0)
	warning := uint16(0)

	for i, instance := range matchingInstances {
		remaining := uint16(totalInstances - i)

		// Send pending status before each transfer
		pending := buildGetResponse(msg, types.StatusPending, remaining, completed, failed, warning)
		if err := responder.SendResponse(pending, nil, responseTransferSyntax(meta)); err != nil {
			return err
		}

		// Perform C-STORE on the same association
		err := cgetResponder.SendCStore(instance.SOPClassUID, instance.SOPInstanceUID, instance.TransferSyntax, instance.Dataset)
		if err != nil {
			slog.ErrorContext(ctx, "C-STORE sub-operation failed", "error", err, "sop_instance", instance.SOPInstanceUID)
			failed++
		} else {
			slog.InfoContext(ctx, "C-STORE sub-operation successful", "sop_instance", instance.SOPInstanceUID)
			completed++
		}
	}

	// Send final success response
	final := buildGetResponse(msg, types.StatusSuccess, 0, completed, failed, warning)
	return responder.SendResponse(final, nil, responseTransferSyntax(meta))
}

func (s *sampleHandler) findMatchingInstances(studyUID, seriesUID, sopUID string) []*DicomInstance {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []*DicomInstance
	for _, instance := range s.instances {
		// Match based on query level
		if sopUID != "" {
			// Instance level query
			if instance.SOPInstanceUID == sopUID {
				matches = append(matches, instance)
			}
		} else if seriesUID != "" {
			// Series level query
			if instance.SeriesUID == seriesUID {
				matches = append(matches, instance)
			}
		} else if studyUID != "" {
			// Study level query
			if instance.StudyUID == studyUID {
				matches = append(matches, instance)
			}
		}
	}
	return matches
}

func (s *sampleHandler) performCStore(ctx context.Context, destination string, instance *DicomInstance) error {
	// Create client connection to move destination
	// Propose transfer syntaxes with the instance's native transfer syntax first
	config := client.Config{
		CallingAETitle:            "SAMPLE_SCP",
		CalledAETitle:             destination,
		MaxPDULength:              16384,
		PreferredTransferSyntaxes: s.buildTransferSyntaxList(instance.TransferSyntax),
		ProposedAbstractSyntaxes:  []string{instance.SOPClassUID},
	}

	assoc, err := client.Connect(s.moveDestAddr, config)
	if err != nil {
		return fmt.Errorf("failed to connect to destination: %w", err)
	}
	defer assoc.Close()

	// Send C-STORE
	storeReq := &client.CStoreRequest{
		SOPClassUID:    instance.SOPClassUID,
		SOPInstanceUID: instance.SOPInstanceUID,
		Dataset:        instance.Dataset,
		MessageID:      1,
	}

	resp, err := assoc.SendCStore(storeReq)
	if err != nil {
		return fmt.Errorf("C-STORE failed: %w", err)
	}

	if resp.Status != 0x0000 {
		return fmt.Errorf("C-STORE returned error status: 0x%04X", resp.Status)
	}

	return nil
}

// buildTransferSyntaxList creates a prioritized list of transfer syntaxes
// with the instance's native transfer syntax first, followed by common ones
func (s *sampleHandler) buildTransferSyntaxList(nativeTS string) []string {
	// Start with the native transfer syntax
	syntaxes := []string{nativeTS}

	// Add common transfer syntaxes as fallbacks (only if different from native)
	common := []string{
		types.ExplicitVRLittleEndian, // Explicit VR Little Endian
		types.ImplicitVRLittleEndian, // Implicit VR Little Endian
		types.JPEG2000Lossless,       // JPEG 2000 Lossless Only
		types.JPEG2000,               // JPEG 2000
	}

	for _, ts := range common {
		if ts != nativeTS {
			syntaxes = append(syntaxes, ts)
		}
	}

	return syntaxes
}

func (s *sampleHandler) handleCMove(ctx context.Context, msg *types.Message, meta interfaces.MessageContext) (*types.Message, *dicom.DataObject, error) {
	dataset := meta.Dataset
	if dataset == nil {
		slog.ErrorContext(ctx, "C-MOVE request carried no identifier")
		failure := buildMoveResponse(msg, types.StatusFailure, 0, 0, 0, 0)
		return failure, nil, nil
	}

	logCMoveRequest(ctx, msg, dataset)

	response := buildMoveResponse(msg, types.StatusSuccess, 0, 0, 0, 0)
	return response, nil, nil
}

func (s *sampleHandler) loadDicomFile(filepath string) error {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read DICOM file: %w", err)
	}

	if !dicom.HasPart10Header(data) {
		return fmt.Errorf("missing Part 10 header")
	}

	meta, dataset, err := dicom.ReadFile(bytes.NewReader(data), dictionary.Standard)
	if err != nil {
		return fmt.Errorf("failed to read DICOM file: %w", err)
	}
	transferSyntax := meta.TransferSyntaxUID()
	if transferSyntax == "" {
		transferSyntax = types.ExplicitVRLittleEndian
	}

	instance := &DicomInstance{
		SOPClassUID:    dataset.GetString(types.Tag{Group: 0x0008, Element: 0x0016}),
		SOPInstanceUID: dataset.GetString(types.Tag{Group: 0x0008, Element: 0x0018}),
		StudyUID:       dataset.GetString(types.Tag{Group: 0x0020, Element: 0x000D}),
		SeriesUID:      dataset.GetString(types.Tag{Group: 0x0020, Element: 0x000E}),
		TransferSyntax: transferSyntax,
		Dataset:        dataset,
	}

	s.mu.Lock()
	s.instances[instance.SOPInstanceUID] = instance
	s.mu.Unlock()

	slog.Info("Loaded DICOM instance",
		"sop_class", instance.SOPClassUID,
		"sop_instance", instance.SOPInstanceUID,
		"study_uid", instance.StudyUID,
		"series_uid", instance.SeriesUID,
		"transfer_syntax", instance.TransferSyntax,
		"size_bytes", len(data))

	return nil
}

// generateSyntheticInstance creates a synthetic DICOM instance in memory,
// built element by element the way a decoded Part 10 file would be.
func (s *sampleHandler) generateSyntheticInstance(sopInstanceUID, studyUID, seriesUID string) error {
	dataset := dicom.NewDataObject()

	dataset.SetString(types.Tag{Group: 0x0008, Element: 0x0016}, dicom.VRUniqueIdentifier, types.CTImageStorage)
	dataset.SetString(types.Tag{Group: 0x0008, Element: 0x0018}, dicom.VRUniqueIdentifier, sopInstanceUID)
	dataset.SetString(types.Tag{Group: 0x0008, Element: 0x0020}, dicom.VRDate, "20250109")
	dataset.SetString(types.Tag{Group: 0x0008, Element: 0x0030}, dicom.VRTime, "120000")
	dataset.SetString(types.Tag{Group: 0x0008, Element: 0x0060}, dicom.VRCodeString, "CT")
	dataset.SetString(types.Tag{Group: 0x0010, Element: 0x0010}, dicom.VRPersonName, "TEST^PATIENT")
	dataset.SetString(types.Tag{Group: 0x0010, Element: 0x0020}, dicom.VRLongString, "12345")
	dataset.SetString(types.Tag{Group: 0x0020, Element: 0x000D}, dicom.VRUniqueIdentifier, studyUID)
	dataset.SetString(types.Tag{Group: 0x0020, Element: 0x000E}, dicom.VRUniqueIdentifier, seriesUID)
	dataset.SetString(types.Tag{Group: 0x0020, Element: 0x0013}, dicom.VRIntegerString, "1")

	addUShort(dataset, types.Tag{Group: 0x0028, Element: 0x0010}, dicom.VRUnsignedShort, 512) // Rows
	addUShort(dataset, types.Tag{Group: 0x0028, Element: 0x0011}, dicom.VRUnsignedShort, 512) // Columns
	addUShort(dataset, types.Tag{Group: 0x0028, Element: 0x0100}, dicom.VRUnsignedShort, 16)   // Bits Allocated

	dataset.Add(&dicom.DataElement{
		Header: dicom.DataElementHeader{Tag: types.Tag{Group: 0x7FE0, Element: 0x0010}, VR: dicom.VROtherWord, Length: 0},
		Value:  dicom.Value{Primitive: &dicom.PrimitiveValue{VR: dicom.VROtherWord}},
	})

	instance := &DicomInstance{
		SOPClassUID:    types.CTImageStorage,
		SOPInstanceUID: sopInstanceUID,
		StudyUID:       studyUID,
		SeriesUID:      seriesUID,
		TransferSyntax: types.ImplicitVRLittleEndian,
		Dataset:        dataset,
	}

	s.mu.Lock()
	s.instances[instance.SOPInstanceUID] = instance
	s.mu.Unlock()

	slog.Info("Generated synthetic DICOM instance",
		"sop_class", instance.SOPClassUID,
		"sop_instance", instance.SOPInstanceUID,
		"study_uid", instance.StudyUID,
		"series_uid", instance.SeriesUID,
		"transfer_syntax", instance.TransferSyntax)

	return nil
}

func addUShort(dataset *dicom.DataObject, tag types.Tag, vr dicom.VR, value uint16) {
	dataset.Add(&dicom.DataElement{
		Header: dicom.DataElementHeader{Tag: tag, VR: vr, Length: 2},
		Value:  dicom.Value{Primitive: &dicom.PrimitiveValue{VR: vr, UShorts: []uint16{value}}},
	})
}

func main() {
	port := flag.Int("port", 4242, "TCP port to listen on")
	aeTitle := flag.String("ae", "SAMPLE_SCP", "Server AE Title")
	dicomFile := flag.String("dicom", "sample.dcm", "Path to sample DICOM file (optional)")
	generateSynthetic := flag.Bool("synthetic", false, "Generate synthetic DICOM instances instead of loading from file")
	moveDestAddr := flag.String("move-dest", "orthanc:4242", "host:port C-MOVE sub-operations are stored to")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := &sampleHandler{
		instances:    make(map[string]*DicomInstance),
		moveDestAddr: *moveDestAddr,
	}

	// Load or generate DICOM instances
	if *generateSynthetic {
		// Generate synthetic instances
		studyUID := "1.2.840.999.999.1.1.1.1"
		seriesUID := "1.2.840.999.999.1.1.1.1.1"

		// Generate 3 instances in the same series
		for i := 1; i <= 3; i++ {
			sopInstanceUID := fmt.Sprintf("1.2.840.999.999.1.1.1.1.1.%d", i)
			if err := handler.generateSyntheticInstance(sopInstanceUID, studyUID, seriesUID); err != nil {
				logger.Error("Failed to generate synthetic instance", "error", err, "instance", i)
				os.Exit(1)
			}
		}
	} else if *dicomFile != "" {
		// Load from file
		if err := handler.loadDicomFile(*dicomFile); err != nil {
			logger.Error("Failed to load DICOM file", "error", err, "file", *dicomFile)
			os.Exit(1)
		}
	} else {
		logger.Error("Must specify either --dicom <file> or --synthetic")
		os.Exit(1)
	}

	address := fmt.Sprintf(":%d", *port)

	err := server.ListenAndServe(ctx, address, *aeTitle, handler, server.WithLogger(logger))
	switch {
	case err == nil:
		logger.Info("Sample server shutdown complete")
	case errors.Is(err, context.Canceled):
		logger.Info("Sample server stopped", "reason", err.Error())
	default:
		logger.Error("Sample server terminated unexpectedly", "error", err)
		os.Exit(1)
	}
}

func buildMoveResponse(req *types.Message, status uint16, remaining, completed, failed, warning uint16) *types.Message {
	// Helper to create uint16 pointers
	uint16Ptr := func(v uint16) *uint16 { return &v }

	resp := &types.Message{
		CommandField:                   types.CMoveRSP,
		MessageIDBeingRespondedTo:      req.MessageID,
		AffectedSOPClassUID:            req.AffectedSOPClassUID,
		CommandDataSetType:             0x0101,
		Status:                         status,
		NumberOfRemainingSuboperations: uint16Ptr(remaining),
		NumberOfCompletedSuboperations: uint16Ptr(completed),
		NumberOfFailedSuboperations:    uint16Ptr(failed),
		NumberOfWarningSuboperations:   uint16Ptr(warning),
	}

	return resp
}

func buildGetResponse(req *types.Message, status uint16, remaining, completed, failed, warning uint16) *types.Message {
	// Helper to create uint16 pointers
	uint16Ptr := func(v uint16) *uint16 { return &v }

	resp := &types.Message{
		CommandField:                   types.CGetRSP,
		MessageIDBeingRespondedTo:      req.MessageID,
		AffectedSOPClassUID:            req.AffectedSOPClassUID,
		CommandDataSetType:             0x0101,
		Status:                         status,
		NumberOfRemainingSuboperations: uint16Ptr(remaining),
		NumberOfCompletedSuboperations: uint16Ptr(completed),
		NumberOfFailedSuboperations:    uint16Ptr(failed),
		NumberOfWarningSuboperations:   uint16Ptr(warning),
	}

	return resp
}

func logCMoveRequest(ctx context.Context, msg *types.Message, dataset *dicom.DataObject) {
	if dataset == nil {
		slog.InfoContext(ctx, "Handling C-MOVE request",
			"move_destination", msg.MoveDestination,
			"note", "no dataset provided")
		return
	}

	slog.InfoContext(ctx, "Handling C-MOVE request",
		"move_destination", msg.MoveDestination,
		"study_uid", dataset.GetString(types.Tag{Group: 0x0020, Element: 0x000D}),
		"series_uid", dataset.GetString(types.Tag{Group: 0x0020, Element: 0x000E}),
		"sop_uid", dataset.GetString(types.Tag{Group: 0x0008, Element: 0x0018}))
}

func logCGetRequest(ctx context.Context, msg *types.Message, dataset *dicom.DataObject) {
	if dataset == nil {
		slog.InfoContext(ctx, "Handling C-GET request", "note", "no dataset provided")
		return
	}

	slog.InfoContext(ctx, "Handling C-GET request",
		"study_uid", dataset.GetString(types.Tag{Group: 0x0020, Element: 0x000D}),
		"series_uid", dataset.GetString(types.Tag{Group: 0x0020, Element: 0x000E}),
		"sop_uid", dataset.GetString(types.Tag{Group: 0x0008, Element: 0x0018}))
}
