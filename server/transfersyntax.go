package server

import "github.com/mtamura/godicom/types"

// defaultTransferSyntaxes is the set a Server negotiates against when the
// caller doesn't configure its own: the two uncompressed little-endian
// forms, since every peer supports at least one of them. Only membership
// matters; the requester's proposal order decides which one is chosen.
var defaultTransferSyntaxes = []string{
	types.ExplicitVRLittleEndian,
	types.ImplicitVRLittleEndian,
}
