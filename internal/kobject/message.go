package kobject

import "github.com/kaal-project/kaal/internal/cnode"

// TransferMode selects how a capability argument travels from sender to
// receiver in an IPC message (spec §4.9 "Capability transfer modes").
type TransferMode uint8

const (
	TransferGrant TransferMode = iota
	TransferMint
	TransferDerive
)

// CapTransfer names one capability argument of a Message: where it comes
// from, which slot it should land in, and how (spec §4.9's transfer-mode
// table). Meta is the new badge for TransferMint or the new rights mask
// (as capability.Rights) for TransferDerive; unused for TransferGrant.
type CapTransfer struct {
	Mode        TransferMode
	SourceCNode *cnode.CNode
	SourceSlot  uint32
	DestSlot    uint32
	Meta        uint64
}

// Message is an IPC message (spec §4.9): a label, up to 64 data words, and
// up to 3 capability transfers. Send attaches the message to the sending
// thread (Thread.Pending) so that whichever side of the rendezvous arrives
// second can deliver it.
type Message struct {
	Label uint64
	Data  []uint64
	Caps  []CapTransfer
}
