package handoff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

const (
	toneSampleRate = 44100
	toneFreq       = 880.0
	toneDuration   = 180 * time.Millisecond
)

// AlertTone synthesizes the default operator alert: a short sine burst.
// The tone is generated on demand and never persisted or replayed from
// storage.
func AlertTone() ([]byte, error) {
	return Oscillate(toneFreq, toneDuration)
}

// Oscillate renders a mono 16-bit PCM sine wave as a WAV blob. A short
// linear fade at both ends avoids clicks.
func Oscillate(freq float64, d time.Duration) ([]byte, error) {
	if freq <= 0 {
		return nil, fmt.Errorf("oscillator: non-positive frequency %v", freq)
	}
	if d <= 0 {
		return nil, fmt.Errorf("oscillator: non-positive duration %v", d)
	}

	samples := int(float64(toneSampleRate) * d.Seconds())
	fade := samples / 10
	pcm := make([]int16, samples)
	for i := range pcm {
		v := math.Sin(2 * math.Pi * freq * float64(i) / toneSampleRate)
		gain := 1.0
		if i < fade {
			gain = float64(i) / float64(fade)
		} else if left := samples - i; left < fade {
			gain = float64(left) / float64(fade)
		}
		pcm[i] = int16(v * gain * math.MaxInt16 * 0.6)
	}

	var buf bytes.Buffer
	dataLen := uint32(len(pcm) * 2)
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, 36+dataLen)
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&buf, binary.LittleEndian, uint32(toneSampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(toneSampleRate*2))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataLen)
	binary.Write(&buf, binary.LittleEndian, pcm)
	return buf.Bytes(), nil
}
