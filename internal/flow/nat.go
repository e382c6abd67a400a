// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import "context"

// nat rewrites pkt's addresses and, for a non-fragment, ports from the
// reverse flow's key, then forwards. The reverse entry is the source of
// the replacement identifiers by design: the agent installs only the
// forward entry's action flags, and the reverse entry carries what the
// forward entry's packets should be rewritten to.
func (r *Router) nat(ctx context.Context, vrf uint16, e *Entry, pkt *Packet, proto uint8, fmd *ForwardingMD) {
	rflowIdx := e.RFlow.Load()
	if rflowIdx < 0 {
		r.free(pkt, DropFlowNATNoRFlow)
		return
	}
	rfe := r.table.EntryAt(int(rflowIdx))
	if rfe == nil {
		r.free(pkt, DropFlowNATNoRFlow)
		return
	}

	flags := e.Flags()

	var ipInc checksumDelta
	if flags&FlagSNAT != 0 {
		old := pkt.SrcIP()
		repl := rfe.Key.DstIP
		ipInc.addDWord(old, repl)
		pkt.SetSrcIP(repl)
	}
	if flags&FlagDNAT != 0 {
		old := pkt.DstIP()
		repl := rfe.Key.SrcIP
		ipInc.addDWord(old, repl)
		pkt.SetDstIP(repl)
	}

	// inc starts from the address edits and additionally accumulates any
	// port edits below; it is the delta applied to the transport
	// checksum, which covers the pseudo-header addresses as well as the
	// ports, the "single running inc" snapshotted once after all edits.
	inc := ipInc

	if pkt.TransportHeaderValid() {
		if flags&FlagSPAT != 0 {
			old := pkt.SrcPort()
			repl := rfe.Key.DstPort
			inc.addWord(old, repl)
			pkt.SetSrcPort(repl)
		}
		if flags&FlagDPAT != 0 {
			old := pkt.DstPort()
			repl := rfe.Key.SrcPort
			inc.addWord(old, repl)
			pkt.SetDstPort(repl)
		}
	}

	if pkt.IPChecksum() != DiagIPChecksum {
		pkt.SetIPChecksum(incrementalUpdateIPChecksum(pkt.IPChecksum(), &ipInc))
		if pkt.TransportHeaderValid() {
			if tcsum, ok := pkt.TransportChecksum(); ok {
				pkt.SetTransportChecksum(inc.applyTo(tcsum))
			}
		}
	}

	r.metrics.NAT.Inc()
	r.forward(ctx, vrf, pkt, proto, fmd)
}
