// Package ipc implements the synchronous rendezvous IPC engine (spec §4.9):
// Send, Receive, Call, and Reply over Endpoint objects, with all-or-nothing
// message and capability delivery.
package ipc

import (
	"github.com/kaal-project/kaal/internal/capability"
	"github.com/kaal-project/kaal/internal/kerr"
	"github.com/kaal-project/kaal/internal/kobject"
)

// MaxFastWords is how many data words travel in registers before the
// remainder spills to the per-thread IPC buffer (spec §4.9 "first 8 data
// words").
const MaxFastWords = 8

// MaxCaps is the most capabilities a single message may carry (spec §4.9).
const MaxCaps = 3

func validateMessage(msg kobject.Message) error {
	if len(msg.Data) > 64 {
		return kerr.New(kerr.MessageTooLarge, "ipc: message exceeds 64 data words")
	}
	if len(msg.Caps) > MaxCaps {
		return kerr.New(kerr.TooManyCaps, "ipc: message carries more than 3 capabilities")
	}
	return nil
}

// Send implements spec §4.9 Send. If a receiver is already queued, the
// rendezvous completes immediately and Send returns delivered=true.
// Otherwise the sender blocks in the endpoint's send queue and Send returns
// delivered=false with no error — the caller (syscall path) must then yield
// to the scheduler.
func Send(ep *kobject.Endpoint, sender *kobject.Thread, msg kobject.Message) (delivered bool, err error) {
	if err := validateMessage(msg); err != nil {
		return false, err
	}
	sender.Pending = &msg
	if ep.HasWaitingReceiver() {
		receiver := ep.PopReceiver()
		if err := deliver(sender, receiver); err != nil {
			sender.Pending = nil
			ep.QueueReceive(receiver) // all-or-nothing: receiver was never actually matched
			return false, err
		}
		receiver.Unblock()
		return true, nil
	}
	ep.QueueSend(sender)
	sender.BlockOnSend(ep)
	return false, nil
}

// Receive implements spec §4.9 Receive, symmetric to Send: it matches a
// queued sender if one exists, delivering the message and waking the
// sender (as Runnable for a plain Send, or BlockedOnReply with a reply
// token for a Call); otherwise it blocks the receiver.
func Receive(ep *kobject.Endpoint, receiver *kobject.Thread) (delivered bool, err error) {
	if ep.HasWaitingSender() {
		sender := ep.PopSender()
		if err := deliver(sender, receiver); err != nil {
			ep.QueueSend(sender)
			return false, err
		}
		if sender.PendingIsCall {
			sender.PendingIsCall = false
			receiver.ReplyTo = sender
			sender.BlockOnReply(ep)
		} else {
			sender.Unblock()
		}
		return true, nil
	}
	ep.QueueReceive(receiver)
	receiver.BlockOnReceive(ep)
	return false, nil
}

// Call implements spec §4.9 "Call = Send + BlockedOnReply": message
// delivery proceeds exactly as Send, but the caller always ends up blocked
// awaiting Reply rather than Runnable, and the receiver is handed a
// one-shot reply link (Thread.ReplyTo) back to the caller (spec §4.9 "a
// one-shot Reply capability is synthesised and delivered to the
// receiver").
func Call(ep *kobject.Endpoint, caller *kobject.Thread, msg kobject.Message) (delivered bool, err error) {
	if err := validateMessage(msg); err != nil {
		return false, err
	}
	caller.Pending = &msg
	if ep.HasWaitingReceiver() {
		receiver := ep.PopReceiver()
		if err := deliver(caller, receiver); err != nil {
			caller.Pending = nil
			ep.QueueReceive(receiver)
			return false, err
		}
		receiver.ReplyTo = caller
		caller.BlockOnReply(ep)
		receiver.Unblock()
		return true, nil
	}
	caller.PendingIsCall = true
	ep.QueueSend(caller)
	caller.BlockOnSend(ep)
	return false, nil
}

// Reply implements spec §4.9 Reply: it uses replier.ReplyTo — the one-shot
// link Call/Receive established — to deliver msg to the original caller and
// wake it. The link is consumed: a second Reply from the same thread
// without an intervening Call/Receive fails with kerr.InvalidInvocation.
func Reply(replier *kobject.Thread, msg kobject.Message) error {
	caller := replier.ReplyTo
	if caller == nil {
		return kerr.New(kerr.InvalidInvocation, "reply: no pending reply capability")
	}
	if err := validateMessage(msg); err != nil {
		return err
	}
	replier.Pending = &msg
	if err := deliver(replier, caller); err != nil {
		replier.Pending = nil
		return err
	}
	replier.ReplyTo = nil
	caller.Unblock()
	return nil
}

// deliver performs the all-or-nothing transfer of sender.Pending into
// receiver: capability arguments are validated in full before any of them
// are applied, and the register/overflow message words are copied only
// once every capability transfer has succeeded (spec §4.9 "Failure policy:
// message delivery is all-or-nothing").
func deliver(sender, receiver *kobject.Thread) error {
	msg := sender.Pending
	if msg == nil {
		return kerr.New(kerr.QueueCorrupted, "ipc: deliver with no pending message")
	}
	if len(msg.Caps) > 0 && receiver.CSpaceRoot == nil {
		return kerr.New(kerr.InvalidCapability, "ipc: receiver has no CSpace for capability transfer")
	}
	for _, ct := range msg.Caps {
		if err := preflightCap(ct, receiver); err != nil {
			return err
		}
	}
	for _, ct := range msg.Caps {
		if err := applyCap(ct, receiver); err != nil {
			return err
		}
	}

	receiver.Ctx.Regs[0] = msg.Label
	fast := len(msg.Data)
	if fast > MaxFastWords {
		fast = MaxFastWords
	}
	for i := 0; i < fast; i++ {
		receiver.Ctx.Regs[i+1] = msg.Data[i]
	}
	if len(msg.Data) > fast {
		receiver.IPCOverflow = append([]uint64(nil), msg.Data[fast:]...)
	} else {
		receiver.IPCOverflow = nil
	}
	sender.Pending = nil
	return nil
}

func preflightCap(ct kobject.CapTransfer, receiver *kobject.Thread) error {
	if ct.SourceCNode == nil {
		return kerr.New(kerr.InvalidArguments, "ipc: capability transfer has no source cnode")
	}
	src, err := ct.SourceCNode.Lookup(ct.SourceSlot)
	if err != nil {
		return err
	}
	switch ct.Mode {
	case kobject.TransferGrant:
		if err := src.CheckRight(capability.Grant); err != nil {
			return err
		}
	case kobject.TransferMint:
		if src.Type() != capability.Endpoint && src.Type() != capability.Notification {
			return kerr.New(kerr.InvalidInvocation, "ipc: mint only valid on endpoint/notification")
		}
		if err := src.CheckRight(capability.Grant); err != nil {
			return err
		}
	case kobject.TransferDerive:
		if err := src.CheckRight(capability.Grant); err != nil {
			return err
		}
		if !capability.Rights(ct.Meta).Subset(src.Rights()) {
			return kerr.New(kerr.InsufficientRights, "ipc: derived rights exceed sender's")
		}
	default:
		return kerr.New(kerr.InvalidArguments, "ipc: unknown transfer mode")
	}
	if int(ct.DestSlot) >= receiver.CSpaceRoot.Len() {
		return kerr.New(kerr.InvalidArguments, "ipc: destination slot out of range")
	}
	if !receiver.CSpaceRoot.IsEmpty(ct.DestSlot) {
		return kerr.New(kerr.SlotOccupied, "ipc: destination slot occupied")
	}
	return nil
}

func applyCap(ct kobject.CapTransfer, receiver *kobject.Thread) error {
	switch ct.Mode {
	case kobject.TransferGrant:
		ref, err := ct.SourceCNode.Ref(ct.SourceSlot)
		if err != nil {
			return err
		}
		if err := receiver.CSpaceRoot.Insert(ct.DestSlot, ref); err != nil {
			return err
		}
		return ct.SourceCNode.Delete(ct.SourceSlot)
	case kobject.TransferMint:
		ref, err := ct.SourceCNode.Ref(ct.SourceSlot)
		if err != nil {
			return err
		}
		childRef, err := ct.SourceCNode.Tree().MintChild(ref, ct.Meta)
		if err != nil {
			return err
		}
		return receiver.CSpaceRoot.Insert(ct.DestSlot, childRef)
	case kobject.TransferDerive:
		ref, err := ct.SourceCNode.Ref(ct.SourceSlot)
		if err != nil {
			return err
		}
		childRef, err := ct.SourceCNode.Tree().DeriveChild(ref, capability.Rights(ct.Meta))
		if err != nil {
			return err
		}
		return receiver.CSpaceRoot.Insert(ct.DestSlot, childRef)
	default:
		return kerr.New(kerr.InvalidArguments, "ipc: unknown transfer mode")
	}
}
