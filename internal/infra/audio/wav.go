package audio

import (
	"bytes"
	"encoding/binary"
)

// samplesToWav wraps 16-bit mono samples in a minimal RIFF header.
func samplesToWav(samples []int16, sampleRate int) []byte {
	var buf bytes.Buffer

	dataSize := len(samples) * 2

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, int32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, int32(16))
	binary.Write(&buf, binary.LittleEndian, int16(1))
	binary.Write(&buf, binary.LittleEndian, int16(1))
	binary.Write(&buf, binary.LittleEndian, int32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, int32(sampleRate*2))
	binary.Write(&buf, binary.LittleEndian, int16(2))
	binary.Write(&buf, binary.LittleEndian, int16(16))

	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, int32(dataSize))
	binary.Write(&buf, binary.LittleEndian, samples)

	return buf.Bytes()
}

// pcmToSamples decodes little-endian 16-bit samples. A trailing odd byte is
// dropped.
func pcmToSamples(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[2*i:]))
	}
	return samples
}

// silenceDetector ends a capture after a second of silence, or after ten
// seconds regardless.
type silenceDetector struct {
	threshold  int16
	minSamples int
	maxSamples int
	maxSilence int

	silent int
}

func newSilenceDetector(sampleRate int) *silenceDetector {
	return &silenceDetector{
		threshold:  500,
		minSamples: sampleRate,
		maxSamples: sampleRate * 10,
		maxSilence: sampleRate,
	}
}

// feed records a frame and reports whether capture should stop given total
// captured samples.
func (d *silenceDetector) feed(frame []int16, total int) bool {
	loud := false
	for _, s := range frame {
		if s > d.threshold || s < -d.threshold {
			loud = true
			break
		}
	}
	if loud {
		d.silent = 0
	} else {
		d.silent += len(frame)
	}

	if total > d.maxSamples {
		return true
	}
	return d.silent > d.maxSilence && total > d.minSamples
}
