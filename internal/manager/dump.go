package manager

import (
	"fmt"
	"sort"
	"strings"

	"github.com/soundcore/audiopolicyd/internal/audio"
	"github.com/soundcore/audiopolicyd/internal/registry"
)

// Dump renders the full policy state for diagnostics.
func (m *Manager) Dump() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "AudioPolicyManager (generation %d)\n", m.reg.PortGeneration())
	fmt.Fprintf(&b, "  phone state: %s\n", m.engine.PhoneState())
	fmt.Fprintf(&b, "  master mute: %v  mic mute: %v\n", m.masterMute, m.micMute)

	b.WriteString("\nForce use:\n")
	for i := 0; i < audio.ForceUseCount; i++ {
		fu := audio.ForceUse(i)
		fmt.Fprintf(&b, "  %s = %s\n", fu, m.engine.ForceUse(fu))
	}

	b.WriteString("\nDevices:\n")
	for _, d := range m.reg.DeviceDescs() {
		fmt.Fprintf(&b, "  [%d] %s %q module=%s profiles=%d",
			d.ID, d.Device, d.Name, d.Port.Module().Name, len(d.Profiles))
		if len(d.EncodedFormats) > 0 {
			formats := make([]string, 0, len(d.EncodedFormats))
			for _, f := range d.EncodedFormats {
				formats = append(formats, f.String())
			}
			fmt.Fprintf(&b, " encoded=[%s]", strings.Join(formats, " "))
		}
		b.WriteByte('\n')
	}

	b.WriteString("\nOutputs:\n")
	for _, o := range m.reg.Outputs() {
		fmt.Fprintf(&b, "  io=%d port=%q flags=%v devices=%v patch=%d clients=%d active=%d",
			o.Handle, o.MixPort.Name, o.Flags, o.Devices, o.PatchID, len(o.Clients), o.ActiveCount())
		if o.BitPerfect {
			b.WriteString(" bit-perfect")
		}
		if o.MixOrder >= 0 {
			fmt.Fprintf(&b, " mix-order=%d", o.MixOrder)
		}
		b.WriteByte('\n')
		for _, c := range sortedOutputClients(o.Clients) {
			fmt.Fprintf(&b, "    client port=%d uid=%d session=%d stream=%s active=%v mute=%v\n",
				c.PortID, c.UID, c.Session, c.Stream, c.Active, c.InternalMute)
		}
	}

	b.WriteString("\nInputs:\n")
	for _, in := range m.reg.Inputs() {
		fmt.Fprintf(&b, "  io=%d port=%q device=%s source=%s patch=%d clients=%d active=%d\n",
			in.Handle, in.MixPort.Name, in.Device, in.Source, in.PatchID, len(in.Clients), in.ActiveCount())
	}

	b.WriteString("\nPatches:\n")
	for _, p := range m.reg.Patches() {
		fmt.Fprintf(&b, "  [%d] hal=%d sources=%v sinks=%v latency=%dms\n",
			p.ID, p.HALID, p.Sources, p.Sinks, p.LatencyMs)
	}

	b.WriteString("\nPolicy mixes:\n")
	for _, mx := range m.mixes.Registered() {
		fmt.Fprintf(&b, "  #%d %s\n", mx.Order(), mx)
	}

	b.WriteString("\nVolume groups:\n")
	for _, g := range m.vol.Groups() {
		fmt.Fprintf(&b, "  %s [%d..%d]\n", g.Name, g.IndexMin, g.IndexMax)
	}

	if len(m.effects) > 0 {
		b.WriteString("\nEffects:\n")
		ids := make([]int, 0, len(m.effects))
		for id := range m.effects {
			ids = append(ids, id)
		}
		sort.Ints(ids)
		for _, id := range ids {
			e := m.effects[id]
			fmt.Fprintf(&b, "  [%d] io=%d session=%d strategy=%d\n", e.ID, e.IO, e.Session, e.Strategy)
		}
	}
	return b.String()
}

func sortedOutputClients(clients map[audio.PortID]*registry.OutputClient) []*registry.OutputClient {
	out := make([]*registry.OutputClient, 0, len(clients))
	for _, c := range clients {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PortID < out[j].PortID })
	return out
}
