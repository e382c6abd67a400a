// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

// OpCode selects the control-plane operation a Request carries.
type OpCode int

const (
	OpTableGet OpCode = iota
	OpFlowSet
)

// Exit codes returned to the agent, a negative errno-style domain: 0
// success, EBADF key mismatch, EINVAL malformed/missing reference, ENOSPC
// table full, ENOMEM allocation failure.
const (
	CodeSuccess           int32 = 0
	CodeBadFileDescriptor int32 = -9
	CodeInvalidArgument   int32 = -22
	CodeNoSpace           int32 = -28
	CodeNoMemory          int32 = -12
)

// Request is the control protocol's request shape: operation code,
// target index, key fields, action/flags, the reverse-flow and next-hop
// references, destination VRF, and mirror handles.
type Request struct {
	Op    OpCode
	RID   uint32
	Index int

	SrcIP, DstIP     uint32
	SrcPort, DstPort uint16
	Proto            uint8
	VRF              uint16

	Action Action
	Flags  Flag

	RFlowIndex  int32
	SrcNHIndex  uint32
	ECMPNHIndex int32
	DVRF        uint16

	MirrorID    uint32
	SecMirrorID uint32
	MirrorMeta  *MirrorMeta
}

func (req *Request) key() Key {
	return Key{
		SrcIP:   req.SrcIP,
		DstIP:   req.DstIP,
		SrcPort: req.SrcPort,
		DstPort: req.DstPort,
		Proto:   req.Proto,
		VRFID:   req.VRF,
	}
}

// NoFlowTableDev is the ftable_dev value reported when no mmap device
// backs the table.
const NoFlowTableDev int32 = -1

// Response carries the result of a Request back to the agent.
type Response struct {
	Code         int32
	Index        int
	TableSize    uint64
	OverflowSize uint64
	Dev          int32
}

// ProcessRequest dispatches an agent request to the matching handler.
// The reply is constructed here rather than sent
// through a separate codec callback; the control API layer (controlapi
// package) is responsible for putting it on the wire.
func (r *Router) ProcessRequest(req *Request) *Response {
	switch req.Op {
	case OpTableGet:
		return &Response{
			Code:         CodeSuccess,
			TableSize:    r.TableSize(),
			OverflowSize: r.OverflowTableSize(),
			Dev:          NoFlowTableDev,
		}
	case OpFlowSet:
		code, index := r.flowSet(req)
		return &Response{Code: code, Index: index}
	default:
		return &Response{Code: CodeInvalidArgument}
	}
}

// flowSet is the unified create/update/delete handler, selected by the
// ACTIVE bit in the request's flags.
func (r *Router) flowSet(req *Request) (int32, int) {
	e := r.table.EntryAt(req.Index)

	if code := r.validateRequest(req, e); code != CodeSuccess {
		return code, req.Index
	}

	active := req.Flags&FlagActive != 0

	if e != nil && e.Action() == ActionHold && (req.Action != e.Action() || !active) {
		r.recordActionCount()
	}

	if !active {
		if e == nil {
			return CodeInvalidArgument, req.Index
		}
		return r.flowDelete(req, e)
	}

	if e == nil {
		var idx int
		e, idx = r.table.Add(req.key())
		if e == nil {
			return CodeNoSpace, req.Index
		}
		req.Index = idx
	}

	r.updateMirrorRef(req, e)

	if req.Flags&FlagRFlowValid != 0 {
		e.RFlow.Store(req.RFlowIndex)
	} else if e.RFlow.Load() >= 0 {
		e.RFlow.Store(NoRFlow)
	}

	if req.Flags&FlagVRFTranslate != 0 {
		e.DVRF.Store(uint32(req.DVRF))
	}

	e.ECMPNHIndex.Store(req.ECMPNHIndex)
	e.SrcNHIndex.Store(req.SrcNHIndex)
	e.SetAction(req.Action)
	e.SetFlags(req.Flags)

	r.ScheduleTransition(req.Index, req.Flags)
	return CodeSuccess, req.Index
}

// flowDelete marks e Drop, releases its mirror references immediately
// (the remaining reset happens at flush time), and schedules the flush
// that drains any still-queued packets.
func (r *Router) flowDelete(req *Request, e *Entry) (int32, int) {
	e.SetAction(ActionDrop)
	r.resetMirror(e, req.Index)
	r.ScheduleTransition(req.Index, req.Flags)
	return CodeSuccess, req.Index
}

// validateRequest runs every fatal precondition before any mutation:
// failure never leaves the table in a partially-updated state.
func (r *Router) validateRequest(req *Request, e *Entry) int32 {
	if e != nil {
		k := e.Key
		if req.SrcIP != k.SrcIP || req.DstIP != k.DstIP ||
			req.SrcPort != k.SrcPort || req.DstPort != k.DstPort ||
			req.VRF != k.VRFID || req.Proto != k.Proto {
			return CodeBadFileDescriptor
		}
	}

	if req.Flags&FlagVRFTranslate != 0 && req.DVRF >= MaxVRFs {
		return CodeInvalidArgument
	}

	if req.Flags&FlagMirror != 0 &&
		req.MirrorID >= MaxMirrorIndices && req.SecMirrorID >= MaxMirrorIndices {
		return CodeInvalidArgument
	}

	if req.Flags&FlagRFlowValid != 0 {
		if r.table.EntryAt(int(req.RFlowIndex)) == nil {
			return CodeInvalidArgument
		}
	}

	if req.Flags&FlagActive != 0 {
		if _, ok := r.collab.NextHops.GetNextHop(req.SrcNHIndex); !ok {
			return CodeInvalidArgument
		}
	}

	return CodeSuccess
}

// updateMirrorRef applies the request's mirror ids to e, acquiring a new
// reference and releasing the old one only for the id (primary, or
// secondary) that actually changed. This is idempotent
// across repeated FLOW_SET calls carrying the same ids: an unchanged id
// neither re-acquires nor releases.
func (r *Router) updateMirrorRef(req *Request, e *Entry) {
	if req.Flags&FlagMirror == 0 {
		if e.Has(FlagMirror) {
			r.resetMirror(e, req.Index)
		}
		return
	}

	if e.MirrorID.Load() != req.MirrorID {
		if e.MirrorID.Load() < MaxMirrorIndices {
			r.collab.Mirrors.Put(r.RID, e.MirrorID.Load())
			e.MirrorID.Store(MaxMirrorIndices)
		}
		if req.MirrorID < MaxMirrorIndices {
			if r.collab.Mirrors.Get(req.RID, req.MirrorID) {
				e.MirrorID.Store(req.MirrorID)
			}
		}
	}

	if e.SecMirrorID.Load() != req.SecMirrorID {
		if e.SecMirrorID.Load() < MaxMirrorIndices {
			r.collab.Mirrors.Put(r.RID, e.SecMirrorID.Load())
			e.SecMirrorID.Store(MaxMirrorIndices)
		}
		if req.SecMirrorID < MaxMirrorIndices {
			if r.collab.Mirrors.Get(req.RID, req.SecMirrorID) {
				e.SecMirrorID.Store(req.SecMirrorID)
			}
		}
	}

	if req.MirrorMeta != nil {
		r.collab.Mirrors.SetMeta(uint32(req.Index), *req.MirrorMeta)
	}
}
