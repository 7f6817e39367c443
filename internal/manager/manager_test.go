package manager

import (
	"math"
	"strings"
	"testing"

	"github.com/soundcore/audiopolicyd/internal/audio"
	"github.com/soundcore/audiopolicyd/internal/events"
	"github.com/soundcore/audiopolicyd/internal/hal"
	"github.com/soundcore/audiopolicyd/internal/hw"
	"github.com/soundcore/audiopolicyd/internal/mixtable"
)

const policyDoc = `
<audioPolicyConfiguration>
  <attachedDevices>
    <item>Speaker</item>
    <item>Built-In Mic</item>
  </attachedDevices>
  <defaultOutputDevice>Speaker</defaultOutputDevice>
  <modules>
    <module name="primary">
      <mixPorts>
        <mixPort name="primary output" role="source" flags="AUDIO_OUTPUT_FLAG_PRIMARY">
          <profile name="" format="AUDIO_FORMAT_PCM_16_BIT"
                   samplingRates="44100,48000"
                   channelMasks="AUDIO_CHANNEL_OUT_STEREO"/>
        </mixPort>
        <mixPort name="direct pcm" role="source" flags="AUDIO_OUTPUT_FLAG_DIRECT" maxOpenCount="1">
          <profile name="" format="AUDIO_FORMAT_PCM_16_BIT"
                   samplingRates="48000"
                   channelMasks="AUDIO_CHANNEL_OUT_STEREO"/>
        </mixPort>
        <mixPort name="primary input" role="sink" maxActiveCount="1">
          <profile name="" format="AUDIO_FORMAT_PCM_16_BIT"
                   samplingRates="8000,16000,48000"
                   channelMasks="AUDIO_CHANNEL_IN_MONO,AUDIO_CHANNEL_IN_STEREO"/>
        </mixPort>
        <mixPort name="hotword input" role="sink" keepWarm="true">
          <profile name="" format="AUDIO_FORMAT_PCM_16_BIT"
                   samplingRates="16000"
                   channelMasks="AUDIO_CHANNEL_IN_MONO"/>
        </mixPort>
      </mixPorts>
      <devicePorts>
        <devicePort tagName="Speaker" type="AUDIO_DEVICE_OUT_SPEAKER" role="sink"/>
        <devicePort tagName="Wired Headset" type="AUDIO_DEVICE_OUT_WIRED_HEADSET" role="sink"/>
        <devicePort tagName="HDMI Out" type="AUDIO_DEVICE_OUT_HDMI" role="sink">
          <profile name="" format="AUDIO_FORMAT_PCM_16_BIT"
                   samplingRates="48000"
                   channelMasks="AUDIO_CHANNEL_OUT_STEREO"/>
        </devicePort>
        <devicePort tagName="Built-In Mic" type="AUDIO_DEVICE_IN_BUILTIN_MIC" role="source"/>
        <devicePort tagName="Headset Mic" type="AUDIO_DEVICE_IN_WIRED_HEADSET" role="source"/>
      </devicePorts>
      <routes>
        <route sink="Speaker" sources="primary output,direct pcm"/>
        <route sink="Wired Headset" sources="primary output,direct pcm"/>
        <route sink="HDMI Out" sources="primary output"/>
        <route sink="primary input" sources="Built-In Mic,Headset Mic"/>
        <route sink="hotword input" sources="Headset Mic"/>
      </routes>
    </module>
    <module name="r_submix">
      <mixPorts>
        <mixPort name="r_submix output" role="source">
          <profile name="" format="AUDIO_FORMAT_PCM_16_BIT"
                   samplingRates="48000"
                   channelMasks="AUDIO_CHANNEL_OUT_STEREO"/>
        </mixPort>
        <mixPort name="r_submix input" role="sink">
          <profile name="" format="AUDIO_FORMAT_PCM_16_BIT"
                   samplingRates="48000"
                   channelMasks="AUDIO_CHANNEL_IN_STEREO"/>
        </mixPort>
      </mixPorts>
      <devicePorts>
        <devicePort tagName="Remote Submix Out" type="AUDIO_DEVICE_OUT_REMOTE_SUBMIX" role="sink"/>
        <devicePort tagName="Remote Submix In" type="AUDIO_DEVICE_IN_REMOTE_SUBMIX" role="source"/>
      </devicePorts>
      <routes>
        <route sink="Remote Submix Out" sources="r_submix output"/>
        <route sink="r_submix input" sources="Remote Submix In"/>
      </routes>
    </module>
  </modules>
</audioPolicyConfiguration>`

const engineDoc = `
<audioPolicyEngineConfiguration>
  <volumeGroups>
    <volumeGroup name="media" indexMin="0" indexMax="15">
      <stream>MUSIC</stream>
      <volume deviceCategory="DEVICE_CATEGORY_SPEAKER">
        <point>0,-4200</point>
        <point>7,-1300</point>
        <point>15,0</point>
      </volume>
      <volume deviceCategory="DEVICE_CATEGORY_HEADSET">
        <point>0,-5600</point>
        <point>15,0</point>
      </volume>
    </volumeGroup>
    <volumeGroup name="voice" indexMin="1" indexMax="7">
      <stream>VOICE_CALL</stream>
      <volume deviceCategory="DEVICE_CATEGORY_SPEAKER">
        <point>1,-2400</point>
        <point>7,0</point>
      </volume>
    </volumeGroup>
  </volumeGroups>
  <productStrategies>
    <productStrategy name="STRATEGY_MEDIA" volumeGroup="media">
      <attributes usage="MEDIA"/>
      <attributes usage="GAME"/>
    </productStrategy>
    <productStrategy name="STRATEGY_PHONE" volumeGroup="voice">
      <attributes usage="VOICE_COMMUNICATION"/>
    </productStrategy>
  </productStrategies>
</audioPolicyEngineConfiguration>`

func newTestManager(t *testing.T, opts Options) (*Manager, *hal.SimClient) {
	t.Helper()
	cfg, err := hw.Parse([]byte(policyDoc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	engCfg, err := hw.ParseEngine([]byte(engineDoc))
	if err != nil {
		t.Fatalf("ParseEngine failed: %v", err)
	}
	client := hal.NewSimClient()
	m, err := New(client, cfg, engCfg, nil, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(m.Close)
	return m, client
}

func simOpts() Options {
	return Options{SimulateDeviceConnections: true, FixedInputSharing: true}
}

func mediaAttr() audio.Attributes {
	return audio.Attributes{Usage: audio.UsageMedia}
}

var (
	speakerDev    = audio.Device{Type: audio.DeviceOutSpeaker}
	headsetDev    = audio.Device{Type: audio.DeviceOutWiredHeadset}
	hdmiDev       = audio.Device{Type: audio.DeviceOutHDMI}
	builtinMicDev = audio.Device{Type: audio.DeviceInBuiltinMic}
	headsetMicDev = audio.Device{Type: audio.DeviceInWiredHeadset}
)

func TestNew_MaterializesAttachedDevices(t *testing.T) {
	m, _ := newTestManager(t, simOpts())

	if m.GetDeviceConnectionState(speakerDev) != audio.DeviceConnected {
		t.Error("Speaker not connected after init")
	}
	if m.GetDeviceConnectionState(builtinMicDev) != audio.DeviceConnected {
		t.Error("Built-in mic not connected after init")
	}
	if m.GetDeviceConnectionState(headsetDev) != audio.DeviceDisconnected {
		t.Error("Headset reported connected without a hot-plug")
	}
	if gen := m.Registry().PortGeneration(); gen == 0 {
		t.Error("Port generation not bumped at init")
	}

	if _, err := New(nil, nil, nil, nil, Options{}); !audio.IsCode(err, audio.CodeNoInit) {
		t.Errorf("Expected NO_INIT for nil client, got %v", err)
	}
}

func TestGetOutputForAttr_OpenAndReuse(t *testing.T) {
	m, client := newTestManager(t, simOpts())

	res, err := m.GetOutputForAttr(OutputRequest{Attributes: mediaAttr(), Session: 1, UID: 1000})
	if err != nil {
		t.Fatalf("GetOutputForAttr failed: %v", err)
	}
	if res.Output == 0 {
		t.Fatal("No output handle returned")
	}
	if res.Type != OutputTypeRegular {
		t.Errorf("Expected REGULAR output, got %s", res.Type)
	}
	if len(res.SelectedDevices) != 1 {
		t.Errorf("Expected 1 selected device, got %d", len(res.SelectedDevices))
	}
	if client.OpenOutputCount != 1 {
		t.Errorf("Expected 1 HAL open, got %d", client.OpenOutputCount)
	}
	if client.CreatePatchCount != 1 {
		t.Errorf("Expected 1 patch, got %d", client.CreatePatchCount)
	}

	res2, err := m.GetOutputForAttr(OutputRequest{Attributes: mediaAttr(), Session: 2, UID: 2000})
	if err != nil {
		t.Fatalf("Second GetOutputForAttr failed: %v", err)
	}
	if res2.Output != res.Output {
		t.Errorf("Expected output reuse, got %d and %d", res.Output, res2.Output)
	}
	if res2.PortID == res.PortID {
		t.Error("Clients must get distinct port ids")
	}
	if client.OpenOutputCount != 1 {
		t.Errorf("Reuse must not reopen, got %d opens", client.OpenOutputCount)
	}

	if err := m.ReleaseOutput(res.PortID); err != nil {
		t.Fatalf("ReleaseOutput failed: %v", err)
	}
	if client.CloseOutputCount != 0 {
		t.Error("Output closed while a client remained")
	}
	if err := m.ReleaseOutput(res2.PortID); err != nil {
		t.Fatalf("ReleaseOutput failed: %v", err)
	}
	if client.CloseOutputCount != 1 {
		t.Errorf("Expected output close with last client, got %d", client.CloseOutputCount)
	}
	if client.ReleasePatchCount != 1 {
		t.Errorf("Expected patch release, got %d", client.ReleasePatchCount)
	}
	if err := m.ReleaseOutput(res2.PortID); !audio.IsCode(err, audio.CodeInvalidOperation) {
		t.Errorf("Expected INVALID_OPERATION for a released port, got %v", err)
	}
}

func TestStartStopOutput_VolumeDelivery(t *testing.T) {
	m, client := newTestManager(t, simOpts())

	res, err := m.GetOutputForAttr(OutputRequest{Attributes: mediaAttr(), Session: 1, UID: 1000})
	if err != nil {
		t.Fatalf("GetOutputForAttr failed: %v", err)
	}
	if err := m.StartOutput(res.PortID); err != nil {
		t.Fatalf("StartOutput failed: %v", err)
	}
	call := client.LastVolumeCall(func(vc hal.VolumeCall) bool { return vc.Output == res.Output })
	if call == nil {
		t.Fatal("No volume delivered on start")
	}
	if call.Stream != audio.StreamMusic {
		t.Errorf("Expected MUSIC stream volume, got %s", call.Stream)
	}
	if call.Gain <= 0 {
		t.Errorf("Expected positive gain, got %v", call.Gain)
	}
	if call.Muted {
		t.Error("Track muted without any mute set")
	}

	if err := m.StartOutput(res.PortID); !audio.IsCode(err, audio.CodeInvalidOperation) {
		t.Errorf("Expected INVALID_OPERATION on double start, got %v", err)
	}
	if err := m.StopOutput(res.PortID); err != nil {
		t.Fatalf("StopOutput failed: %v", err)
	}
	if err := m.StopOutput(res.PortID); !audio.IsCode(err, audio.CodeInvalidOperation) {
		t.Errorf("Expected INVALID_OPERATION on double stop, got %v", err)
	}
	if err := m.StartOutput(999999); !audio.IsCode(err, audio.CodeNameNotFound) {
		t.Errorf("Expected NAME_NOT_FOUND for unknown port, got %v", err)
	}
}

func TestOpenOutputRetry(t *testing.T) {
	busy := func() error { return audio.Errorf(audio.CodeFailedTransaction, "audioserver busy") }

	t.Run("recovers after transient failures", func(t *testing.T) {
		m, client := newTestManager(t, simOpts())
		client.FailNext("OpenOutput", busy(), busy())
		res, err := m.GetOutputForAttr(OutputRequest{Attributes: mediaAttr(), Session: 1, UID: 1})
		if err != nil {
			t.Fatalf("Expected retry to succeed, got %v", err)
		}
		if res.Output == 0 {
			t.Fatal("No output handle after retry")
		}
		if client.OpenOutputCount != 1 {
			t.Errorf("Expected 1 successful open, got %d", client.OpenOutputCount)
		}
	})

	t.Run("gives up after the attempt limit", func(t *testing.T) {
		m, client := newTestManager(t, simOpts())
		client.FailNext("OpenOutput", busy(), busy(), busy())
		_, err := m.GetOutputForAttr(OutputRequest{Attributes: mediaAttr(), Session: 1, UID: 1})
		if err == nil {
			t.Fatal("Expected open failure")
		}
		if !strings.Contains(err.Error(), "output open failed") {
			t.Errorf("Unexpected error: %v", err)
		}
		if client.OpenOutputCount != 0 {
			t.Errorf("Expected no successful open, got %d", client.OpenOutputCount)
		}
	})
}

func TestDeviceConnection_ReroutesOpenOutputs(t *testing.T) {
	m, client := newTestManager(t, simOpts())

	res, err := m.GetOutputForAttr(OutputRequest{Attributes: mediaAttr(), Session: 1, UID: 1})
	if err != nil {
		t.Fatalf("GetOutputForAttr failed: %v", err)
	}
	out := m.Registry().Output(res.Output)
	if out == nil || out.Devices[0].Type != audio.DeviceOutSpeaker {
		t.Fatalf("Music not on speaker before hot-plug: %+v", out)
	}

	if err := m.SetDeviceConnectionState(headsetDev, audio.DeviceConnected, "headset", audio.FormatDefault); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if err := m.SetDeviceConnectionState(headsetDev, audio.DeviceConnected, "headset", audio.FormatDefault); !audio.IsCode(err, audio.CodeInvalidOperation) {
		t.Errorf("Expected INVALID_OPERATION on duplicate connect, got %v", err)
	}
	if err := m.SetDeviceConnectionState(audio.Device{Type: audio.DeviceOutEarpiece},
		audio.DeviceConnected, "", audio.FormatDefault); err == nil ||
		!strings.Contains(err.Error(), "not declared in configuration") {
		t.Errorf("Expected declaration error, got %v", err)
	}

	out = m.Registry().Output(res.Output)
	if out == nil || out.Devices[0].Type != audio.DeviceOutWiredHeadset {
		t.Fatalf("Music not rerouted to headset: %+v", out.Devices)
	}
	if client.RoutingUpdates == 0 {
		t.Error("No routing update broadcast on hot-plug")
	}
	if client.CreatePatchCount < 2 {
		t.Errorf("Expected a repatch, got %d patches", client.CreatePatchCount)
	}

	// The output is now exclusively on the headset, so unplugging closes it.
	if err := m.SetDeviceConnectionState(headsetDev, audio.DeviceDisconnected, "", audio.FormatDefault); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
	if m.Registry().Output(res.Output) != nil {
		t.Error("Output survived the disconnect of its only device")
	}
	if client.CloseOutputCount != 1 {
		t.Errorf("Expected 1 close, got %d", client.CloseOutputCount)
	}
	if err := m.SetDeviceConnectionState(headsetDev, audio.DeviceDisconnected, "", audio.FormatDefault); !audio.IsCode(err, audio.CodeInvalidOperation) {
		t.Errorf("Expected INVALID_OPERATION on double disconnect, got %v", err)
	}
}

func TestConnect_KeepWarmProbe(t *testing.T) {
	t.Run("probe opens and closes the capture port", func(t *testing.T) {
		m, client := newTestManager(t, simOpts())
		if err := m.SetDeviceConnectionState(headsetMicDev, audio.DeviceConnected, "headset mic", audio.FormatDefault); err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
		if client.OpenInputCount != 1 {
			t.Errorf("Expected 1 probe open, got %d", client.OpenInputCount)
		}
		if client.OpenInputCountNow() != 0 {
			t.Errorf("Probe input left open: %d", client.OpenInputCountNow())
		}

		// The headset mic now outranks the builtin mic for plain capture.
		res, err := m.GetInputForAttr(InputRequest{Attributes: audio.Attributes{Source: audio.SourceMic}, Session: 1})
		if err != nil {
			t.Fatalf("GetInputForAttr failed: %v", err)
		}
		if desc := m.Registry().FindDevice(headsetMicDev); desc == nil || res.SelectedDevice != desc.ID {
			t.Errorf("Capture not routed to headset mic, selected %d", res.SelectedDevice)
		}
	})

	t.Run("probe rejection does not block the connect", func(t *testing.T) {
		m, client := newTestManager(t, simOpts())
		client.FailNext("OpenInput", audio.Errorf(audio.CodeBadValue, "unsupported"))
		if err := m.SetDeviceConnectionState(headsetMicDev, audio.DeviceConnected, "headset mic", audio.FormatDefault); err != nil {
			t.Fatalf("Connect failed: %v", err)
		}
		if m.GetDeviceConnectionState(headsetMicDev) != audio.DeviceConnected {
			t.Error("Device not connected after probe rejection")
		}
	})
}

func TestPrepareToDisconnectExternalDevice(t *testing.T) {
	m, client := newTestManager(t, simOpts())
	if err := m.SetDeviceConnectionState(headsetDev, audio.DeviceConnected, "headset", audio.FormatDefault); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	portID := m.Registry().FindDevice(headsetDev).ID

	if err := m.PrepareToDisconnectExternalDevice(999999); !audio.IsCode(err, audio.CodeBadValue) {
		t.Errorf("Expected BAD_VALUE for unknown port, got %v", err)
	}
	if err := m.PrepareToDisconnectExternalDevice(portID); err != nil {
		t.Fatalf("PrepareToDisconnect failed: %v", err)
	}
	// Idempotent: the second call must not reach the HAL again.
	client.FailNext("PrepareToDisconnect", audio.Errorf(audio.CodeBadValue, "must not be called"))
	if err := m.PrepareToDisconnectExternalDevice(portID); err != nil {
		t.Errorf("Second prepare not idempotent: %v", err)
	}
	if err := m.SetDeviceConnectionState(headsetDev, audio.DeviceDisconnected, "", audio.FormatDefault); err != nil {
		t.Fatalf("Disconnect failed: %v", err)
	}
}

func TestPrepareToDisconnect_FallbackWhenUnsupported(t *testing.T) {
	m, client := newTestManager(t, simOpts())
	if err := m.SetDeviceConnectionState(headsetDev, audio.DeviceConnected, "headset", audio.FormatDefault); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	portID := m.Registry().FindDevice(headsetDev).ID

	client.FailNext("PrepareToDisconnect", audio.Errorf(audio.CodeInvalidOperation, "not supported"))
	if err := m.PrepareToDisconnectExternalDevice(portID); err != nil {
		t.Fatalf("Expected fallback to succeed, got %v", err)
	}
	if client.IsConnected(headsetDev) {
		t.Error("Fallback did not broadcast the disconnected state")
	}
	if err := m.SetDeviceConnectionState(headsetDev, audio.DeviceDisconnected, "", audio.FormatDefault); err != nil {
		t.Fatalf("Disconnect after fallback failed: %v", err)
	}
}

func TestGetInputForAttr_SharingAndPreemption(t *testing.T) {
	m, client := newTestManager(t, simOpts())

	in1, err := m.GetInputForAttr(InputRequest{Attributes: audio.Attributes{}, Session: 10, UID: 1})
	if err != nil {
		t.Fatalf("GetInputForAttr failed: %v", err)
	}
	if in1.Source != audio.SourceMic {
		t.Errorf("DEFAULT source not mapped to MIC, got %s", in1.Source)
	}
	if client.OpenInputCount != 1 {
		t.Errorf("Expected 1 open, got %d", client.OpenInputCount)
	}

	// Same session shares unconditionally.
	in2, err := m.GetInputForAttr(InputRequest{Attributes: audio.Attributes{Source: audio.SourceMic}, Session: 10, UID: 1})
	if err != nil {
		t.Fatalf("GetInputForAttr failed: %v", err)
	}
	if in2.Input != in1.Input {
		t.Error("Same session did not share the input")
	}

	// Same source from another session shares under the fixed rules.
	in3, err := m.GetInputForAttr(InputRequest{Attributes: audio.Attributes{Source: audio.SourceMic}, Session: 11, UID: 2})
	if err != nil {
		t.Fatalf("GetInputForAttr failed: %v", err)
	}
	if in3.Input != in1.Input {
		t.Error("Same source did not share across sessions")
	}
	if client.OpenInputCount != 1 {
		t.Errorf("Sharing must not reopen, got %d opens", client.OpenInputCount)
	}

	// A higher-priority source preempts the shared input.
	in4, err := m.GetInputForAttr(InputRequest{
		Attributes: audio.Attributes{Source: audio.SourceVoiceCommunication},
		Session:    12, UID: 3,
	})
	if err != nil {
		t.Fatalf("GetInputForAttr failed: %v", err)
	}
	if in4.Input == in1.Input {
		t.Error("Voice communication did not get a fresh input")
	}
	if client.CloseInputCount != 1 {
		t.Errorf("Expected the shared input closed, got %d closes", client.CloseInputCount)
	}
	if err := m.StartInput(in1.PortID); !audio.IsCode(err, audio.CodeNameNotFound) {
		t.Errorf("Preempted client should be gone, got %v", err)
	}
	if err := m.StartInput(in4.PortID); err != nil {
		t.Errorf("StartInput failed for the preemptor: %v", err)
	}
}

func TestStartInput_ActiveLimit(t *testing.T) {
	m, client := newTestManager(t, simOpts())

	c1, err := m.GetInputForAttr(InputRequest{Attributes: audio.Attributes{Source: audio.SourceMic}, Session: 1, RIID: 7})
	if err != nil {
		t.Fatalf("GetInputForAttr failed: %v", err)
	}
	c2, err := m.GetInputForAttr(InputRequest{Attributes: audio.Attributes{Source: audio.SourceMic}, Session: 2, RIID: 8})
	if err != nil {
		t.Fatalf("GetInputForAttr failed: %v", err)
	}
	if c2.Input != c1.Input {
		t.Fatal("Expected both clients on one shared input")
	}

	if err := m.StartInput(c1.PortID); err != nil {
		t.Fatalf("StartInput failed: %v", err)
	}
	if client.RecordingUpdates != 1 {
		t.Errorf("Expected recording update, got %d", client.RecordingUpdates)
	}
	if err := m.StartInput(c2.PortID); err == nil || !strings.Contains(err.Error(), "active limit") {
		t.Errorf("Expected active-limit rejection, got %v", err)
	}
	if err := m.StopInput(c1.PortID); err != nil {
		t.Fatalf("StopInput failed: %v", err)
	}
	if err := m.StartInput(c2.PortID); err != nil {
		t.Errorf("StartInput after stop failed: %v", err)
	}

	if err := m.ReleaseInput(c1.PortID); err != nil {
		t.Fatalf("ReleaseInput failed: %v", err)
	}
	if client.CloseInputCount != 0 {
		t.Error("Input closed while a client remained")
	}
	if err := m.StopInput(c2.PortID); err != nil {
		t.Fatalf("StopInput failed: %v", err)
	}
	if err := m.ReleaseInput(c2.PortID); err != nil {
		t.Fatalf("ReleaseInput failed: %v", err)
	}
	if client.CloseInputCount != 1 {
		t.Errorf("Expected input closed with last client, got %d", client.CloseInputCount)
	}
}

func TestPolicyMixes_LoopbackLifecycle(t *testing.T) {
	m, client := newTestManager(t, simOpts())

	mix := mixtable.Mix{
		Criteria:   []mixtable.Criterion{{Field: mixtable.FieldUsage, Usage: audio.UsageMedia}},
		Type:       mixtable.MixTypePlayers,
		RouteFlags: mixtable.RouteFlagLoopBack,
		Device:     audio.Device{Type: audio.DeviceOutRemoteSubmix, Address: "cast"},
	}
	if err := m.RegisterPolicyMixes([]mixtable.Mix{mix}); err != nil {
		t.Fatalf("RegisterPolicyMixes failed: %v", err)
	}
	submixOut := audio.Device{Type: audio.DeviceOutRemoteSubmix, Address: "cast"}
	submixIn := audio.Device{Type: audio.DeviceInRemoteSubmix, Address: "cast"}
	if m.Registry().FindDevice(submixOut) == nil || m.Registry().FindDevice(submixIn) == nil {
		t.Fatal("Submix endpoints not materialized")
	}

	// Matching playback renders into the submix.
	res, err := m.GetOutputForAttr(OutputRequest{Attributes: mediaAttr(), Session: 1, UID: 1})
	if err != nil {
		t.Fatalf("GetOutputForAttr failed: %v", err)
	}
	if res.Type != OutputTypeRemoteSubmix {
		t.Errorf("Expected REMOTE_SUBMIX output, got %s", res.Type)
	}
	out := m.Registry().Output(res.Output)
	if out == nil || out.Devices[0] != submixOut {
		t.Fatalf("Playback not routed to the submix: %+v", out)
	}

	// The HAL listener follows the mix activity transitions.
	if got := client.MixStateUpdates["addr=cast"]; got != events.MixStateIdle {
		t.Errorf("Expected idle mix state after registration, got %d", got)
	}
	if err := m.StartOutput(res.PortID); err != nil {
		t.Fatalf("StartOutput failed: %v", err)
	}
	if got := client.MixStateUpdates["addr=cast"]; got != events.MixStateMixing {
		t.Errorf("Expected mixing state while playback runs, got %d", got)
	}
	if err := m.StopOutput(res.PortID); err != nil {
		t.Fatalf("StopOutput failed: %v", err)
	}
	if got := client.MixStateUpdates["addr=cast"]; got != events.MixStateIdle {
		t.Errorf("Expected idle state after playback stops, got %d", got)
	}

	// The capture side reaches the paired input endpoint by address.
	rec, err := m.GetInputForAttr(InputRequest{
		Attributes: audio.Attributes{Source: audio.SourceRemoteSubmix, Tags: "addr=cast"},
		Session:    2,
	})
	if err != nil {
		t.Fatalf("GetInputForAttr failed: %v", err)
	}
	if in := m.Registry().Input(rec.Input); in == nil || in.Device != submixIn {
		t.Fatalf("Capture not on the submix input: %+v", in)
	}

	if err := m.UnregisterPolicyMixes([]mixtable.Mix{mix}); err != nil {
		t.Fatalf("UnregisterPolicyMixes failed: %v", err)
	}
	if m.Registry().Output(res.Output) != nil {
		t.Error("Mix-owned output survived unregistration")
	}
	if m.Registry().FindDevice(submixOut) != nil || m.Registry().FindDevice(submixIn) != nil {
		t.Error("Submix endpoints not torn down")
	}
	if client.CloseOutputCount == 0 || client.CloseInputCount == 0 {
		t.Errorf("Streams not closed: %d out, %d in", client.CloseOutputCount, client.CloseInputCount)
	}
	if len(m.GetRegisteredPolicyMixes()) != 0 {
		t.Error("Mix table not empty after unregistration")
	}
}

func TestRegisterPolicyMixes_AtomicRollback(t *testing.T) {
	m, _ := newTestManager(t, simOpts())

	good := mixtable.Mix{
		Criteria:   []mixtable.Criterion{{Field: mixtable.FieldUsage, Usage: audio.UsageMedia}},
		Type:       mixtable.MixTypePlayers,
		RouteFlags: mixtable.RouteFlagLoopBack,
		Device:     audio.Device{Type: audio.DeviceOutRemoteSubmix, Address: "cast"},
	}
	bad := mixtable.Mix{
		Criteria:   []mixtable.Criterion{{Field: mixtable.FieldUsage, Usage: audio.UsageGame}},
		Type:       mixtable.MixTypePlayers,
		RouteFlags: mixtable.RouteFlagRender,
		Device:     audio.Device{Type: audio.DeviceOutEarpiece},
	}
	if err := m.RegisterPolicyMixes([]mixtable.Mix{good, bad}); !audio.IsCode(err, audio.CodeInvalidOperation) {
		t.Fatalf("Expected INVALID_OPERATION for an unreachable mix, got %v", err)
	}
	if len(m.GetRegisteredPolicyMixes()) != 0 {
		t.Error("Partial registration left mixes behind")
	}
	if m.Registry().FindDevice(audio.Device{Type: audio.DeviceOutRemoteSubmix, Address: "cast"}) != nil {
		t.Error("Submix endpoint left behind after rollback")
	}
}

func TestOutputOpenLimit_ReroutesExisting(t *testing.T) {
	m, client := newTestManager(t, simOpts())
	if err := m.SetDeviceConnectionState(headsetDev, audio.DeviceConnected, "headset", audio.FormatDefault); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	cfg := audio.Config{Format: audio.FormatPCM16, SampleRate: 48000, ChannelMask: audio.ChannelOutStereo}
	first, err := m.GetOutputForAttr(OutputRequest{
		Attributes: mediaAttr(), Session: 1, UID: 100,
		Config: cfg, Flags: audio.OutputFlagDirect,
	})
	if err != nil {
		t.Fatalf("GetOutputForAttr failed: %v", err)
	}
	if out := m.Registry().Output(first.Output); out.Devices[0].Type != audio.DeviceOutWiredHeadset {
		t.Fatalf("Direct output not on headset: %v", out.Devices)
	}
	opened := client.OpenOutputCount

	// The direct port allows a single open stream. A request for a
	// different device set must re-route that stream, not fail.
	if err := m.SetUidDeviceAffinities(300, []audio.Device{speakerDev}); err != nil {
		t.Fatalf("SetUidDeviceAffinities failed: %v", err)
	}
	second, err := m.GetOutputForAttr(OutputRequest{
		Attributes: mediaAttr(), Session: 2, UID: 300,
		Config: cfg, Flags: audio.OutputFlagDirect,
	})
	if err != nil {
		t.Fatalf("GetOutputForAttr at the open limit failed: %v", err)
	}
	if second.Output != first.Output {
		t.Errorf("Expected the open stream to be reused, got %d then %d", first.Output, second.Output)
	}
	if client.OpenOutputCount != opened {
		t.Errorf("Expected no new stream, got %d extra opens", client.OpenOutputCount-opened)
	}
	if out := m.Registry().Output(second.Output); out.Devices[0].Type != audio.DeviceOutSpeaker {
		t.Errorf("Output not re-routed to the speaker: %v", out.Devices)
	}
}

func TestUidDeviceAffinities(t *testing.T) {
	m, client := newTestManager(t, simOpts())
	if err := m.SetDeviceConnectionState(headsetDev, audio.DeviceConnected, "headset", audio.FormatDefault); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := m.SetUidDeviceAffinities(7000, nil); !audio.IsCode(err, audio.CodeBadValue) {
		t.Errorf("Expected BAD_VALUE for an empty device list, got %v", err)
	}
	if err := m.SetUidDeviceAffinities(7000, []audio.Device{speakerDev}); err != nil {
		t.Fatalf("SetUidDeviceAffinities failed: %v", err)
	}

	// The pinned uid plays on the speaker even with a headset present.
	pinned, err := m.GetOutputForAttr(OutputRequest{Attributes: mediaAttr(), Session: 1, UID: 7000})
	if err != nil {
		t.Fatalf("GetOutputForAttr failed: %v", err)
	}
	if out := m.Registry().Output(pinned.Output); out.Devices[0].Type != audio.DeviceOutSpeaker {
		t.Errorf("Pinned uid not on speaker: %v", out.Devices)
	}

	other, err := m.GetOutputForAttr(OutputRequest{Attributes: mediaAttr(), Session: 2, UID: 8000})
	if err != nil {
		t.Fatalf("GetOutputForAttr failed: %v", err)
	}
	if out := m.Registry().Output(other.Output); out.Devices[0].Type != audio.DeviceOutWiredHeadset {
		t.Errorf("Unpinned uid not on headset: %v", out.Devices)
	}

	if err := m.RemoveUidDeviceAffinities(7000); err != nil {
		t.Fatalf("RemoveUidDeviceAffinities failed: %v", err)
	}
	if m.Registry().Output(pinned.Output) != nil {
		t.Error("Affinity-owned output survived removal")
	}
	if m.Registry().Output(other.Output) == nil {
		t.Error("Unrelated output closed by affinity removal")
	}
	if client.CloseOutputCount != 1 {
		t.Errorf("Expected 1 close, got %d", client.CloseOutputCount)
	}
	if err := m.RemoveUidDeviceAffinities(7000); !audio.IsCode(err, audio.CodeInvalidOperation) {
		t.Errorf("Expected INVALID_OPERATION on double removal, got %v", err)
	}
}

func TestSetVolumeIndexForAttributes(t *testing.T) {
	m, client := newTestManager(t, simOpts())

	res, err := m.GetOutputForAttr(OutputRequest{Attributes: mediaAttr(), Session: 1, UID: 1})
	if err != nil {
		t.Fatalf("GetOutputForAttr failed: %v", err)
	}
	if err := m.StartOutput(res.PortID); err != nil {
		t.Fatalf("StartOutput failed: %v", err)
	}

	if err := m.SetVolumeIndexForAttributes(mediaAttr(), 99, audio.DeviceOutSpeaker); !audio.IsCode(err, audio.CodeBadValue) {
		t.Errorf("Expected BAD_VALUE for out-of-range index, got %v", err)
	}
	if err := m.SetVolumeIndexForAttributes(mediaAttr(), 7, audio.DeviceOutSpeaker); err != nil {
		t.Fatalf("SetVolumeIndexForAttributes failed: %v", err)
	}
	idx, err := m.GetVolumeIndexForAttributes(mediaAttr(), audio.DeviceOutSpeaker)
	if err != nil || idx != 7 {
		t.Errorf("Index round trip = %d, %v", idx, err)
	}

	want := math.Pow(10, -13.0/20) // index 7 on the speaker curve
	call := client.LastVolumeCall(func(vc hal.VolumeCall) bool {
		return vc.Output == res.Output && vc.Stream == audio.StreamMusic
	})
	if call == nil {
		t.Fatal("No volume delivered after the index change")
	}
	if math.Abs(call.Gain-want) > 1e-9 {
		t.Errorf("Gain = %v, want %v", call.Gain, want)
	}
}

func TestPhoneState_VoiceVolume(t *testing.T) {
	m, client := newTestManager(t, simOpts())

	if err := m.SetPhoneState(audio.PhoneStateInCall); err != nil {
		t.Fatalf("SetPhoneState failed: %v", err)
	}
	if m.PhoneState() != audio.PhoneStateInCall {
		t.Errorf("Phone state = %s", m.PhoneState())
	}

	voice := audio.Attributes{Usage: audio.UsageVoiceCommunication}
	res, err := m.GetOutputForAttr(OutputRequest{Attributes: voice, Session: 1, UID: 1})
	if err != nil {
		t.Fatalf("GetOutputForAttr failed: %v", err)
	}
	if err := m.StartOutput(res.PortID); err != nil {
		t.Fatalf("StartOutput failed: %v", err)
	}
	// Index floor of the voice group is 1, -24 dB on the speaker curve.
	want := math.Pow(10, -24.0/20)
	if math.Abs(client.VoiceVolume-want) > 1e-9 {
		t.Errorf("Voice volume = %v, want %v", client.VoiceVolume, want)
	}

	if err := m.SetVolumeIndexForAttributes(voice, 7, audio.DeviceOutSpeaker); err != nil {
		t.Fatalf("SetVolumeIndexForAttributes failed: %v", err)
	}
	if math.Abs(client.VoiceVolume-1.0) > 1e-9 {
		t.Errorf("Voice volume at max index = %v, want 1.0", client.VoiceVolume)
	}
}

func TestMasterMute(t *testing.T) {
	m, client := newTestManager(t, simOpts())
	res, err := m.GetOutputForAttr(OutputRequest{Attributes: mediaAttr(), Session: 1, UID: 1})
	if err != nil {
		t.Fatalf("GetOutputForAttr failed: %v", err)
	}
	if err := m.StartOutput(res.PortID); err != nil {
		t.Fatalf("StartOutput failed: %v", err)
	}

	if err := m.SetMasterMute(true); err != nil {
		t.Fatalf("SetMasterMute failed: %v", err)
	}
	if !m.MasterMute() {
		t.Error("Master mute not recorded")
	}
	call := client.LastVolumeCall(func(vc hal.VolumeCall) bool { return vc.Output == res.Output })
	if call == nil || !call.Muted {
		t.Errorf("Mute not delivered: %+v", call)
	}
	if err := m.SetMasterMute(false); err != nil {
		t.Fatalf("Unmute failed: %v", err)
	}
	call = client.LastVolumeCall(func(vc hal.VolumeCall) bool { return vc.Output == res.Output })
	if call == nil || call.Muted {
		t.Errorf("Unmute not delivered: %+v", call)
	}
}

func TestMicMute(t *testing.T) {
	m, _ := newTestManager(t, simOpts())
	if err := m.SetMicMute(true); err != nil {
		t.Fatalf("SetMicMute failed: %v", err)
	}
	if !m.MicMute() {
		t.Error("Mic mute not recorded")
	}
	if err := m.SetMicMute(false); err != nil {
		t.Fatalf("SetMicMute failed: %v", err)
	}
	if m.MicMute() {
		t.Error("Mic mute not cleared")
	}
}

func TestBitPerfectPlayback(t *testing.T) {
	m, client := newTestManager(t, simOpts())

	pin := MixerAttributes{
		Config: audio.Config{
			Format:      audio.FormatPCM16,
			SampleRate:  48000,
			ChannelMask: audio.ChannelOutStereo,
		},
		Behavior: audio.MixerBehaviorBitPerfect,
	}
	speakerID := m.Registry().FindDevice(speakerDev).ID
	if err := m.SetPreferredMixerAttributes(speakerID, 1000, pin); err != nil {
		t.Fatalf("SetPreferredMixerAttributes failed: %v", err)
	}
	if got, ok := m.PreferredMixerAttributes(speakerID); !ok || got.Behavior != audio.MixerBehaviorBitPerfect {
		t.Fatalf("Pin not readable: %+v %v", got, ok)
	}

	res, err := m.GetOutputForAttr(OutputRequest{Attributes: mediaAttr(), Session: 1, UID: 1000})
	if err != nil {
		t.Fatalf("GetOutputForAttr failed: %v", err)
	}
	if !res.IsBitPerfect || res.Type != OutputTypeBitPerfect {
		t.Fatalf("Expected bit-perfect output, got %+v", res)
	}
	if res.Config.SampleRate != 48000 {
		t.Errorf("Pinned rate not applied: %d", res.Config.SampleRate)
	}
	if err := m.StartOutput(res.PortID); err != nil {
		t.Fatalf("StartOutput failed: %v", err)
	}

	// An alarm preempts the bit-perfect stream on start.
	alarm, err := m.GetOutputForAttr(OutputRequest{
		Attributes: audio.Attributes{Usage: audio.UsageAlarm}, Session: 2, UID: 2000,
	})
	if err != nil {
		t.Fatalf("GetOutputForAttr failed: %v", err)
	}
	if alarm.Output == res.Output {
		t.Fatal("Alarm landed on the bit-perfect output")
	}
	if err := m.StartOutput(alarm.PortID); err != nil {
		t.Fatalf("StartOutput failed: %v", err)
	}
	if m.Registry().Output(res.Output) != nil {
		t.Error("Bit-perfect output survived the alarm")
	}
	if client.CloseOutputCount == 0 {
		t.Error("Bit-perfect output not closed at the HAL")
	}

	// While the alarm plays, new bit-perfect requests are refused.
	_, err = m.GetOutputForAttr(OutputRequest{Attributes: mediaAttr(), Session: 3, UID: 1000})
	if !audio.IsCode(err, audio.CodeInvalidOperation) {
		t.Errorf("Expected INVALID_OPERATION while preempted, got %v", err)
	}
	if err := m.StopOutput(alarm.PortID); err != nil {
		t.Fatalf("StopOutput failed: %v", err)
	}
	if _, err := m.GetOutputForAttr(OutputRequest{Attributes: mediaAttr(), Session: 3, UID: 1000}); err != nil {
		t.Errorf("Bit-perfect request after the alarm failed: %v", err)
	}

	if err := m.ClearPreferredMixerAttributes(speakerID, 999); !audio.IsCode(err, audio.CodePermissionDenied) {
		t.Errorf("Expected PERMISSION_DENIED for a foreign uid, got %v", err)
	}
	if err := m.ClearPreferredMixerAttributes(speakerID, 1000); err != nil {
		t.Errorf("ClearPreferredMixerAttributes failed: %v", err)
	}
}

func TestConcurrentBitPerfect_AlarmMutesInsteadOfClosing(t *testing.T) {
	opts := simOpts()
	opts.ConcurrentBitPerfect = true
	m, client := newTestManager(t, opts)

	pin := MixerAttributes{
		Config: audio.Config{
			Format:      audio.FormatPCM16,
			SampleRate:  48000,
			ChannelMask: audio.ChannelOutStereo,
		},
		Behavior: audio.MixerBehaviorBitPerfect,
	}
	speakerID := m.Registry().FindDevice(speakerDev).ID
	if err := m.SetPreferredMixerAttributes(speakerID, 1000, pin); err != nil {
		t.Fatalf("SetPreferredMixerAttributes failed: %v", err)
	}
	res, err := m.GetOutputForAttr(OutputRequest{Attributes: mediaAttr(), Session: 1, UID: 1000})
	if err != nil {
		t.Fatalf("GetOutputForAttr failed: %v", err)
	}
	if !res.IsBitPerfect {
		t.Fatalf("Expected bit-perfect output, got %+v", res)
	}
	if err := m.StartOutput(res.PortID); err != nil {
		t.Fatalf("StartOutput failed: %v", err)
	}

	alarm, err := m.GetOutputForAttr(OutputRequest{
		Attributes: audio.Attributes{Usage: audio.UsageAlarm}, Session: 2, UID: 2000,
	})
	if err != nil {
		t.Fatalf("GetOutputForAttr failed: %v", err)
	}
	if err := m.StartOutput(alarm.PortID); err != nil {
		t.Fatalf("StartOutput failed: %v", err)
	}

	out := m.Registry().Output(res.Output)
	if out == nil {
		t.Fatal("Bit-perfect output closed despite concurrent mode")
	}
	if !out.Clients[res.PortID].InternalMute {
		t.Error("Bit-perfect track not muted while the alarm plays")
	}
	call := client.LastVolumeCall(func(v hal.VolumeCall) bool { return v.Output == res.Output })
	if call == nil || !call.Muted {
		t.Errorf("Muted volume not delivered for the bit-perfect output: %+v", call)
	}

	// New bit-perfect requests stay allowed while the alarm plays.
	if _, err := m.GetOutputForAttr(OutputRequest{Attributes: mediaAttr(), Session: 3, UID: 1000}); err != nil {
		t.Errorf("Bit-perfect request refused in concurrent mode: %v", err)
	}

	if err := m.StopOutput(alarm.PortID); err != nil {
		t.Fatalf("StopOutput failed: %v", err)
	}
	if out.Clients[res.PortID].InternalMute {
		t.Error("Bit-perfect track still muted after the alarm stopped")
	}
}

func TestSurroundFormats(t *testing.T) {
	m, client := newTestManager(t, simOpts())

	client.SetDeviceProfiles(hdmiDev, []hal.DeviceProfile{{
		Format:       audio.FormatAC3,
		SampleRates:  []int{48000},
		ChannelMasks: []audio.ChannelMask{audio.ChannelOut5Point1},
	}})
	if err := m.SetDeviceConnectionState(hdmiDev, audio.DeviceConnected, "tv", audio.FormatDefault); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	reported := m.GetReportedSurroundFormats()
	foundAC3 := false
	for _, f := range reported {
		if f == audio.FormatAC3 {
			foundAC3 = true
		}
	}
	if !foundAC3 {
		t.Errorf("AC3 missing from reported formats: %v", reported)
	}

	if err := m.SetSurroundFormatEnabled(audio.FormatPCM16, true); !audio.IsCode(err, audio.CodeBadValue) {
		t.Errorf("Expected BAD_VALUE for a non-surround format, got %v", err)
	}
	if err := m.SetSurroundFormatEnabled(audio.FormatEAC3, true); !audio.IsCode(err, audio.CodeInvalidOperation) {
		t.Errorf("Expected INVALID_OPERATION outside MANUAL mode, got %v", err)
	}

	if err := m.SetForceUse(audio.ForceUseEncodedSurround, audio.ForceEncodedSurroundManual); err != nil {
		t.Fatalf("SetForceUse failed: %v", err)
	}
	if err := m.SetSurroundFormatEnabled(audio.FormatEAC3, true); err != nil {
		t.Fatalf("Enable failed: %v", err)
	}
	enabled := false
	for _, sf := range m.GetSurroundFormats() {
		if sf.Format == audio.FormatEAC3 && sf.Enabled {
			enabled = true
		}
	}
	if !enabled {
		t.Error("EAC3 not reported as enabled")
	}
	if !m.Registry().FindDevice(hdmiDev).SupportsFormat(audio.FormatEAC3) {
		t.Error("EAC3 profile not added to the HDMI device")
	}

	if err := m.SetSurroundFormatEnabled(audio.FormatEAC3, false); err != nil {
		t.Fatalf("Disable failed: %v", err)
	}
	if m.Registry().FindDevice(hdmiDev).SupportsFormat(audio.FormatEAC3) {
		t.Error("EAC3 profile not removed")
	}
}

func TestDeviceToAudioPort(t *testing.T) {
	m, _ := newTestManager(t, simOpts())

	// Declared but unconnected devices still resolve to a stable port.
	p1, err := m.DeviceToAudioPort(headsetDev, "")
	if err != nil {
		t.Fatalf("DeviceToAudioPort failed: %v", err)
	}
	if p1.Name != "Wired Headset" || p1.Module != "primary" {
		t.Errorf("Unexpected port: %+v", p1)
	}
	p2, err := m.DeviceToAudioPort(headsetDev, "")
	if err != nil || p1.ID != p2.ID || p1.Name != p2.Name {
		t.Errorf("Repeated resolution not stable: %+v vs %+v (%v)", p1, p2, err)
	}
	if _, err := m.DeviceToAudioPort(audio.Device{Type: audio.DeviceOutEarpiece}, ""); !audio.IsCode(err, audio.CodeNameNotFound) {
		t.Errorf("Expected NAME_NOT_FOUND for an undeclared device, got %v", err)
	}

	ports, gen := m.ListAudioPorts()
	if gen == 0 {
		t.Error("Zero port generation")
	}
	devicePorts := 0
	for _, p := range ports {
		if p.Kind == PortKindDevice {
			devicePorts++
		}
	}
	if devicePorts != 2 {
		t.Errorf("Expected 2 connected device ports, got %d", devicePorts)
	}
}

func TestEffects(t *testing.T) {
	m, _ := newTestManager(t, simOpts())

	if err := m.RegisterEffect(1, 0, 42, 0); err != nil {
		t.Fatalf("RegisterEffect failed: %v", err)
	}
	if err := m.RegisterEffect(1, 0, 42, 0); !audio.IsCode(err, audio.CodeInvalidOperation) {
		t.Errorf("Expected INVALID_OPERATION on duplicate id, got %v", err)
	}
	if err := m.RegisterEffect(2, 777, 42, 0); !audio.IsCode(err, audio.CodeBadValue) {
		t.Errorf("Expected BAD_VALUE for an unknown stream, got %v", err)
	}
	if ids := m.EffectsForSession(42); len(ids) != 1 || ids[0] != 1 {
		t.Errorf("EffectsForSession = %v", ids)
	}
	if err := m.UnregisterEffect(1); err != nil {
		t.Fatalf("UnregisterEffect failed: %v", err)
	}
	if err := m.UnregisterEffect(1); !audio.IsCode(err, audio.CodeNameNotFound) {
		t.Errorf("Expected NAME_NOT_FOUND on double unregister, got %v", err)
	}
}

func TestDump(t *testing.T) {
	m, _ := newTestManager(t, simOpts())
	res, err := m.GetOutputForAttr(OutputRequest{Attributes: mediaAttr(), Session: 1, UID: 1})
	if err != nil {
		t.Fatalf("GetOutputForAttr failed: %v", err)
	}
	if err := m.StartOutput(res.PortID); err != nil {
		t.Fatalf("StartOutput failed: %v", err)
	}

	dump := m.Dump()
	for _, want := range []string{
		"AudioPolicyManager (generation",
		"Force use:",
		"Devices:",
		"Outputs:",
		"Inputs:",
		"Patches:",
		"Policy mixes:",
		"Volume groups:",
		"AUDIO_DEVICE_OUT_SPEAKER",
		"primary output",
	} {
		if !strings.Contains(dump, want) {
			t.Errorf("Dump missing %q", want)
		}
	}
}

func TestCloseInvalidatesManager(t *testing.T) {
	m, _ := newTestManager(t, simOpts())
	m.Close()
	if _, err := m.GetOutputForAttr(OutputRequest{Attributes: mediaAttr()}); !audio.IsCode(err, audio.CodeNoInit) {
		t.Errorf("Expected NO_INIT after close, got %v", err)
	}
}
