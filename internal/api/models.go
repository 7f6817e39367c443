package api

// HealthData is the health check payload.
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Health status"`
	Message string `json:"message" example:"API is healthy" doc:"Status detail"`
}

// HealthResponse wraps HealthData.
type HealthResponse struct {
	Body HealthData
}

// VersionData is the build information payload.
type VersionData struct {
	Version   string `json:"version" example:"1.2.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24" doc:"Go toolchain version"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Build platform"`
}

// VersionResponse wraps VersionData.
type VersionResponse struct {
	Body VersionData
}

// PortInfo describes one audio port.
type PortInfo struct {
	ID       int32         `json:"id" example:"7" doc:"Port id, zero for closed mix ports"`
	Kind     string        `json:"kind" example:"DEVICE" doc:"DEVICE or MIX"`
	Role     string        `json:"role" example:"SINK" doc:"SOURCE or SINK"`
	Name     string        `json:"name" example:"Speaker" doc:"Port name"`
	Module   string        `json:"module" example:"primary" doc:"Owning hardware module"`
	Device   string        `json:"device,omitempty" example:"AUDIO_DEVICE_OUT_SPEAKER" doc:"Device type for device ports"`
	Address  string        `json:"address,omitempty" example:"card=1;device=0" doc:"Device address"`
	IOHandle int32         `json:"io_handle,omitempty" example:"13" doc:"Open stream handle for mix ports"`
	Profiles []ProfileInfo `json:"profiles,omitempty" doc:"Supported formats"`
}

// ProfileInfo describes one capability profile of a port.
type ProfileInfo struct {
	Format       string   `json:"format" example:"AUDIO_FORMAT_PCM_16_BIT" doc:"Sample format"`
	SampleRates  []int    `json:"sample_rates,omitempty" example:"[48000]" doc:"Supported rates"`
	ChannelMasks []string `json:"channel_masks,omitempty" doc:"Supported channel masks"`
}

// PortsData is the port listing payload.
type PortsData struct {
	Generation uint64     `json:"generation" example:"17" doc:"Port list generation counter"`
	Ports      []PortInfo `json:"ports" doc:"All device and mix ports"`
}

// PortsResponse wraps PortsData.
type PortsResponse struct {
	Body PortsData
}

// PortResponse wraps a single port lookup.
type PortResponse struct {
	Body PortInfo
}

// PatchInfo describes one active patch.
type PatchInfo struct {
	ID        int32   `json:"id" example:"3" doc:"Patch id"`
	Sources   []int32 `json:"sources" doc:"Source port config ids"`
	Sinks     []int32 `json:"sinks" doc:"Sink port config ids"`
	LatencyMs int     `json:"latency_ms" example:"10" doc:"Reported patch latency"`
}

// PatchesResponse wraps the patch listing.
type PatchesResponse struct {
	Body struct {
		Patches []PatchInfo `json:"patches" doc:"Active audio patches"`
	}
}

// StreamInfo describes one opened output or input stream.
type StreamInfo struct {
	IOHandle   int32    `json:"io_handle" example:"13" doc:"Stream handle"`
	Port       string   `json:"port" example:"primary output" doc:"Mix port name"`
	Devices    []string `json:"devices" doc:"Routed device types"`
	Clients    int      `json:"clients" example:"2" doc:"Attached clients"`
	Active     int      `json:"active" example:"1" doc:"Started clients"`
	BitPerfect bool     `json:"bit_perfect,omitempty" doc:"Opened for a bit-perfect pin"`
	Source     string   `json:"source,omitempty" example:"AUDIO_SOURCE_MIC" doc:"Capture source for inputs"`
}

// StreamsResponse wraps the stream listing.
type StreamsResponse struct {
	Body struct {
		Outputs []StreamInfo `json:"outputs" doc:"Opened output streams"`
		Inputs  []StreamInfo `json:"inputs" doc:"Opened input streams"`
	}
}

// MixInfo describes one registered dynamic policy mix.
type MixInfo struct {
	Order    int    `json:"order" example:"0" doc:"Registration order"`
	Type     string `json:"type" example:"PLAYERS" doc:"PLAYERS or RECORDERS"`
	Route    string `json:"route" example:"RENDER" doc:"Route flags"`
	Device   string `json:"device" example:"AUDIO_DEVICE_OUT_REMOTE_SUBMIX" doc:"Target device"`
	Address  string `json:"address,omitempty" example:"submix0" doc:"Target device address"`
	Criteria int    `json:"criteria" example:"2" doc:"Criteria count"`
}

// MixesResponse wraps the mix listing.
type MixesResponse struct {
	Body struct {
		Mixes []MixInfo `json:"mixes" doc:"Registered policy mixes"`
	}
}

// VolumeGroupInfo describes one volume group.
type VolumeGroupInfo struct {
	Name     string   `json:"name" example:"media" doc:"Group name"`
	IndexMin int      `json:"index_min" example:"0" doc:"Minimum index"`
	IndexMax int      `json:"index_max" example:"15" doc:"Maximum index"`
	Streams  []string `json:"streams,omitempty" doc:"Legacy stream aliases"`
}

// VolumesResponse wraps the volume group listing.
type VolumesResponse struct {
	Body struct {
		Groups []VolumeGroupInfo `json:"groups" doc:"Configured volume groups"`
	}
}

// DumpResponse carries the plain-text state dump.
type DumpResponse struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}
