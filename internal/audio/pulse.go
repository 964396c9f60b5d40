// Package audio handles output device discovery, selection, and PCM playback.
package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// Device describes one Pulse output sink surfaced to voxchat.
type Device struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// Selection is the resolved playback sink plus optional fallback warning context.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

func newClient() (*pulse.Client, error) {
	client, err := pulse.NewClient(
		pulse.ClientApplicationName("voxchat"),
		pulse.ClientApplicationIconName("audio-speakers"),
	)
	if err != nil {
		return nil, fmt.Errorf("connect pulse server: %w", err)
	}
	return client, nil
}

// ListDevices returns available Pulse output sinks with default/availability metadata.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSink, err := client.DefaultSink()
	if err != nil {
		return nil, fmt.Errorf("read default sink: %w", err)
	}
	defaultID := defaultSink.ID()

	var sinkInfos pulseproto.GetSinkInfoListReply
	if err := client.RawRequest(&pulseproto.GetSinkInfoList{}, &sinkInfos); err != nil {
		return nil, fmt.Errorf("list sinks: %w", err)
	}

	devices := make([]Device, 0, len(sinkInfos))
	for _, sink := range sinkInfos {
		if sink == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          sink.SinkName,
			Description: sink.Device,
			State:       sinkStateString(sink.State),
			Available:   sinkAvailable(sink),
			Muted:       sink.Mute,
			Default:     sink.SinkName == defaultID,
		})
	}
	return devices, nil
}

// SelectDevice resolves audio.output/audio.fallback preferences against live sinks.
func SelectDevice(ctx context.Context, output string, fallback string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectDeviceFromList(devices, output, fallback)
}

// selectDeviceFromList applies selection policy to a pre-fetched sink list.
func selectDeviceFromList(devices []Device, output string, fallback string) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, errors.New("no audio output devices found")
	}

	output = strings.TrimSpace(strings.ToLower(output))
	fallback = strings.TrimSpace(strings.ToLower(fallback))

	find := func(term string) *Device {
		for i := range devices {
			if term == "" || term == "default" {
				if devices[i].Default {
					return &devices[i]
				}
				continue
			}
			if deviceMatches(devices[i], term) {
				return &devices[i]
			}
		}
		return nil
	}

	primary := find(output)
	if primary == nil {
		if output == "" || output == "default" {
			return Selection{}, errors.New("default audio sink is unavailable")
		}
		return Selection{}, fmt.Errorf("audio.output %q did not match any device", output)
	}
	if primary.Available && !primary.Muted {
		return Selection{Device: *primary}, nil
	}

	reason := "unavailable"
	if primary.Muted {
		reason = "muted"
	}

	alt := find(fallback)
	if alt == nil {
		return Selection{}, fmt.Errorf("primary output %q is %s and fallback %q not found", primary.ID, reason, fallback)
	}
	if !alt.Available {
		return Selection{}, fmt.Errorf("audio fallback device %q is not available", alt.ID)
	}
	if alt.Muted {
		return Selection{}, fmt.Errorf("audio fallback device %q is muted", alt.ID)
	}

	return Selection{
		Device:   *alt,
		Warning:  fmt.Sprintf("audio.output %q is %s; falling back to %q", primary.ID, reason, alt.ID),
		Fallback: primary.ID != alt.ID,
	}, nil
}

// deviceMatches reports whether a search term matches a device id or description.
func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	id := strings.ToLower(device.ID)
	desc := strings.ToLower(device.Description)
	return strings.Contains(id, term) || strings.Contains(desc, term)
}

// Player plays mono s16 PCM on one Pulse sink; an empty sink ID uses the server default.
type Player struct {
	SinkID string
}

// Play blocks until samples have drained or ctx is cancelled.
func (p Player) Play(ctx context.Context, samples []int16, sampleRate int) error {
	if len(samples) == 0 {
		return nil
	}

	client, err := newClient()
	if err != nil {
		return err
	}
	defer client.Close()

	opts := []pulse.PlaybackOption{
		pulse.PlaybackMono,
		pulse.PlaybackSampleRate(sampleRate),
		pulse.PlaybackLatency(0.05),
		pulse.PlaybackMediaName("voxchat speech"),
	}
	if id := strings.TrimSpace(p.SinkID); id != "" {
		sink, err := client.SinkByID(id)
		if err != nil {
			return fmt.Errorf("resolve sink %q: %w", id, err)
		}
		opts = append(opts, pulse.PlaybackSink(sink))
	}

	cursor := 0
	reader := pulse.Int16Reader(func(buf []int16) (int, error) {
		if cursor >= len(samples) {
			return 0, pulse.EndOfData
		}
		n := copy(buf, samples[cursor:])
		cursor += n
		if cursor >= len(samples) {
			return n, pulse.EndOfData
		}
		return n, nil
	})

	stream, err := client.NewPlayback(reader, opts...)
	if err != nil {
		return fmt.Errorf("create pulse playback stream: %w", err)
	}
	defer stream.Close()

	drained := make(chan struct{})
	stream.Start()
	go func() {
		stream.Drain()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		stream.Stop()
		<-drained
		return ctx.Err()
	}

	if err := stream.Error(); err != nil {
		return fmt.Errorf("play stream: %w", err)
	}
	return nil
}

// SamplesFromPCM16LE converts little-endian s16 bytes to samples, dropping a trailing odd byte.
func SamplesFromPCM16LE(raw []byte) []int16 {
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(raw[2*i:]))
	}
	return samples
}

// sinkStateString maps Pulse sink state constants to human-readable values.
func sinkStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

// sinkAvailable maps Pulse sink port availability to a simple boolean.
func sinkAvailable(sink *pulseproto.GetSinkInfoReply) bool {
	if sink == nil {
		return false
	}
	if len(sink.Ports) == 0 {
		return true
	}
	for _, port := range sink.Ports {
		if port.Name != sink.ActivePortName {
			continue
		}
		// PulseAudio values: unknown=0, no=1, yes=2.
		return port.Available == 0 || port.Available == 2
	}
	return true
}
