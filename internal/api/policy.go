package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/soundcore/audiopolicyd/internal/audio"
	"github.com/soundcore/audiopolicyd/internal/manager"
)

// registerPolicyRoutes registers the port, patch, stream, mix, volume
// and dump endpoints.
func (s *Server) registerPolicyRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-ports",
		Method:      http.MethodGet,
		Path:        "/api/ports",
		Summary:     "List Audio Ports",
		Description: "List every device and mix port with the current port generation",
		Tags:        []string{"ports"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*PortsResponse, error) {
		ports, gen := s.mgr.ListAudioPorts()
		resp := &PortsResponse{}
		resp.Body.Generation = gen
		resp.Body.Ports = make([]PortInfo, 0, len(ports))
		for _, p := range ports {
			resp.Body.Ports = append(resp.Body.Ports, portInfo(p))
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-port",
		Method:      http.MethodGet,
		Path:        "/api/ports/{id}",
		Summary:     "Get Audio Port",
		Description: "Resolve one port by id",
		Tags:        []string{"ports"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(_ context.Context, input *struct {
		ID int32 `path:"id" doc:"Port id"`
	}) (*PortResponse, error) {
		p, err := s.mgr.GetAudioPort(audio.PortID(input.ID))
		if err != nil {
			return nil, huma.Error404NotFound("port not found", err)
		}
		return &PortResponse{Body: portInfo(p)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-patches",
		Method:      http.MethodGet,
		Path:        "/api/patches",
		Summary:     "List Patches",
		Description: "List active audio patches",
		Tags:        []string{"routing"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*PatchesResponse, error) {
		resp := &PatchesResponse{}
		for _, p := range s.mgr.Registry().Patches() {
			info := PatchInfo{ID: int32(p.ID), LatencyMs: p.LatencyMs}
			for _, src := range p.Sources {
				info.Sources = append(info.Sources, int32(src))
			}
			for _, snk := range p.Sinks {
				info.Sinks = append(info.Sinks, int32(snk))
			}
			resp.Body.Patches = append(resp.Body.Patches, info)
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-streams",
		Method:      http.MethodGet,
		Path:        "/api/streams",
		Summary:     "List Streams",
		Description: "List opened output and input streams with client counts",
		Tags:        []string{"routing"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*StreamsResponse, error) {
		reg := s.mgr.Registry()
		resp := &StreamsResponse{}
		for _, o := range reg.Outputs() {
			info := StreamInfo{
				IOHandle:   int32(o.Handle),
				Port:       o.MixPort.Name,
				Clients:    len(o.Clients),
				Active:     o.ActiveCount(),
				BitPerfect: o.BitPerfect,
			}
			for _, d := range o.Devices {
				info.Devices = append(info.Devices, d.Type.String())
			}
			resp.Body.Outputs = append(resp.Body.Outputs, info)
		}
		for _, in := range reg.Inputs() {
			resp.Body.Inputs = append(resp.Body.Inputs, StreamInfo{
				IOHandle: int32(in.Handle),
				Port:     in.MixPort.Name,
				Devices:  []string{in.Device.Type.String()},
				Clients:  len(in.Clients),
				Active:   in.ActiveCount(),
				Source:   in.Source.String(),
			})
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-mixes",
		Method:      http.MethodGet,
		Path:        "/api/mixes",
		Summary:     "List Policy Mixes",
		Description: "List registered dynamic policy mixes",
		Tags:        []string{"policy"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*MixesResponse, error) {
		resp := &MixesResponse{}
		for _, mx := range s.mgr.GetRegisteredPolicyMixes() {
			resp.Body.Mixes = append(resp.Body.Mixes, MixInfo{
				Order:    mx.Order(),
				Type:     mx.Type.String(),
				Route:    mx.RouteFlags.String(),
				Device:   mx.Device.Type.String(),
				Address:  mx.Device.Address,
				Criteria: len(mx.Criteria),
			})
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-volume-groups",
		Method:      http.MethodGet,
		Path:        "/api/volumes",
		Summary:     "List Volume Groups",
		Description: "List configured volume groups with their index ranges",
		Tags:        []string{"volume"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*VolumesResponse, error) {
		resp := &VolumesResponse{}
		for _, g := range s.mgr.Volumes().Groups() {
			info := VolumeGroupInfo{
				Name:     g.Name,
				IndexMin: g.IndexMin,
				IndexMax: g.IndexMax,
			}
			for _, st := range g.Streams {
				info.Streams = append(info.Streams, st.String())
			}
			resp.Body.Groups = append(resp.Body.Groups, info)
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-dump",
		Method:      http.MethodGet,
		Path:        "/api/dump",
		Summary:     "State Dump",
		Description: "Render the full policy state as plain text",
		Tags:        []string{"system"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*DumpResponse, error) {
		return &DumpResponse{
			ContentType: "text/plain; charset=utf-8",
			Body:        []byte(s.mgr.Dump()),
		}, nil
	})
}

func portInfo(p manager.AudioPort) PortInfo {
	info := PortInfo{
		ID:       int32(p.ID),
		Kind:     p.Kind.String(),
		Role:     p.Role.String(),
		Name:     p.Name,
		Module:   p.Module,
		IOHandle: int32(p.IOHandle),
	}
	if p.Kind == manager.PortKindDevice {
		info.Device = p.Device.Type.String()
		info.Address = p.Device.Address
	}
	for _, prof := range p.Profiles {
		pi := ProfileInfo{
			Format:      prof.Format.String(),
			SampleRates: prof.SampleRates,
		}
		for _, cm := range prof.ChannelMasks {
			pi.ChannelMasks = append(pi.ChannelMasks, cm.String())
		}
		info.Profiles = append(info.Profiles, pi)
	}
	return info
}
