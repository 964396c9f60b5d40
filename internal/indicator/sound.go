package indicator

import (
	"context"
	"math"
	"time"
)

type cueKind int

const (
	cueListen cueKind = iota + 1
	cueFinalized
	cueReply
	cueError
)

func (k cueKind) String() string {
	switch k {
	case cueListen:
		return "listen"
	case cueFinalized:
		return "finalized"
	case cueReply:
		return "reply"
	case cueError:
		return "error"
	default:
		return "unknown"
	}
}

const cueSampleRate = 16000

type toneSpec struct {
	frequencyHz float64
	duration    time.Duration
	volume      float64
}

var (
	listenCuePCM = synthesizeCue([]toneSpec{
		{frequencyHz: 880, duration: 70 * time.Millisecond, volume: 0.18},
		{frequencyHz: 1175, duration: 70 * time.Millisecond, volume: 0.18},
	})
	finalizedCuePCM = synthesizeCue([]toneSpec{
		{frequencyHz: 620, duration: 120 * time.Millisecond, volume: 0.18},
	})
	replyCuePCM = synthesizeCue([]toneSpec{
		{frequencyHz: 740, duration: 65 * time.Millisecond, volume: 0.18},
		{frequencyHz: 988, duration: 90 * time.Millisecond, volume: 0.18},
	})
	errorCuePCM = synthesizeCue([]toneSpec{
		{frequencyHz: 480, duration: 75 * time.Millisecond, volume: 0.18},
		{frequencyHz: 360, duration: 90 * time.Millisecond, volume: 0.18},
	})
)

// CuePlayer plays mono s16 PCM; audio.Player satisfies it.
type CuePlayer interface {
	Play(ctx context.Context, samples []int16, sampleRate int) error
}

func emitCue(ctx context.Context, player CuePlayer, kind cueKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	samples := cueSamples(kind)
	if len(samples) == 0 {
		return nil
	}
	return player.Play(ctx, samples, cueSampleRate)
}

func cueSamples(kind cueKind) []int16 {
	switch kind {
	case cueListen:
		return listenCuePCM
	case cueFinalized:
		return finalizedCuePCM
	case cueReply:
		return replyCuePCM
	case cueError:
		return errorCuePCM
	default:
		return nil
	}
}

func synthesizeCue(parts []toneSpec) []int16 {
	if len(parts) == 0 {
		return nil
	}
	gapSamples := samplesForDuration(22 * time.Millisecond)
	total := 0
	for i, part := range parts {
		total += samplesForDuration(part.duration)
		if i < len(parts)-1 {
			total += gapSamples
		}
	}

	pcm := make([]int16, 0, total)
	for i, part := range parts {
		pcm = append(pcm, synthesizeTone(part)...)
		if i < len(parts)-1 && gapSamples > 0 {
			pcm = append(pcm, make([]int16, gapSamples)...)
		}
	}
	return pcm
}

// synthesizeTone renders a sine with a short linear attack and release to avoid clicks.
func synthesizeTone(spec toneSpec) []int16 {
	n := samplesForDuration(spec.duration)
	if n <= 0 || spec.frequencyHz <= 0 || spec.volume <= 0 {
		return nil
	}

	ramp := min(n/10, cueSampleRate/200)
	ramp = max(ramp, 1)

	pcm := make([]int16, n)
	for i := range n {
		envelope := min(1.0, float64(i)/float64(ramp), float64(n-i-1)/float64(ramp))
		t := float64(i) / cueSampleRate
		sample := math.Sin(2 * math.Pi * spec.frequencyHz * t)
		pcm[i] = int16(math.Round(sample * spec.volume * envelope * 32767))
	}
	return pcm
}

func samplesForDuration(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Round(d.Seconds() * cueSampleRate))
}
