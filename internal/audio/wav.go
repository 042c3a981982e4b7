package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// DefaultSampleRate is the capture rate the voice pipeline assumes when a
// client does not negotiate one. Microphone frames are PCM16 mono.
const DefaultSampleRate = 16000

// WAVHeader is the canonical 44-byte RIFF/WAVE header for PCM audio
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // file size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // number of bytes in the data chunk
}

// EncodeWAV wraps PCM16 mono samples in a WAV container
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	numChannels := uint16(1)
	bitsPerSample := uint16(16)
	dataSize := uint32(len(samples) * 2)

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(samples)*2))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeWAV extracts PCM16 mono samples and the sample rate from WAV data
func DecodeWAV(data []byte) ([]int16, int, error) {
	if len(data) < 44 {
		return nil, 0, fmt.Errorf("WAV data too short: need at least 44 bytes, got %d", len(data))
	}

	buf := bytes.NewReader(data)
	var header WAVHeader
	if err := binary.Read(buf, binary.LittleEndian, &header); err != nil {
		return nil, 0, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if string(header.ChunkID[:]) != "RIFF" {
		return nil, 0, fmt.Errorf("invalid WAV file: missing RIFF header")
	}
	if string(header.Format[:]) != "WAVE" {
		return nil, 0, fmt.Errorf("invalid WAV file: missing WAVE format")
	}
	if string(header.Subchunk1ID[:]) != "fmt " {
		return nil, 0, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}
	if string(header.Subchunk2ID[:]) != "data" {
		return nil, 0, fmt.Errorf("invalid WAV file: missing data chunk")
	}
	if header.AudioFormat != 1 {
		return nil, 0, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", header.AudioFormat)
	}
	if header.BitsPerSample != 16 {
		return nil, 0, fmt.Errorf("unsupported bit depth: %d (only 16-bit is supported)", header.BitsPerSample)
	}
	if header.NumChannels != 1 {
		return nil, 0, fmt.Errorf("unsupported channel count: %d (only mono is supported)", header.NumChannels)
	}

	numSamples := int(header.Subchunk2Size) / 2
	if numSamples <= 0 {
		return nil, 0, fmt.Errorf("no audio data found")
	}

	samples := make([]int16, numSamples)
	if err := binary.Read(buf, binary.LittleEndian, samples); err != nil {
		return nil, 0, fmt.Errorf("failed to read audio samples: %w", err)
	}

	return samples, int(header.SampleRate), nil
}

// IsWAV reports whether the data starts with a RIFF/WAVE header
func IsWAV(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WAVE"
}

// SamplesToBytes packs PCM16 samples into little-endian frame bytes
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// BytesToSamples unpacks little-endian PCM16 frame bytes into samples
func BytesToSamples(data []byte) ([]int16, error) {
	if len(data)%2 != 0 {
		return nil, fmt.Errorf("PCM16 data must have even length, got %d", len(data))
	}
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples, nil
}

// Resample converts PCM16 mono samples between rates by linear
// interpolation. It is meant for adapting prerecorded clips to the
// pipeline rate, not for high fidelity conversion.
func Resample(samples []int16, fromRate, toRate int) ([]int16, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("sample rates must be positive, got %d and %d", fromRate, toRate)
	}
	if fromRate == toRate || len(samples) == 0 {
		return samples, nil
	}

	ratio := float64(toRate) / float64(fromRate)
	n := int(math.Round(float64(len(samples)) * ratio))
	if n < 1 {
		n = 1
	}

	out := make([]int16, n)
	for i := range out {
		pos := float64(i) / ratio
		i0 := int(pos)
		if i0 >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		t := pos - float64(i0)
		out[i] = int16((1-t)*float64(samples[i0]) + t*float64(samples[i0+1]))
	}
	return out, nil
}

// Silence produces a run of zero samples at the given rate
func Silence(d time.Duration, sampleRate int) []int16 {
	n := int(float64(sampleRate) * d.Seconds())
	if n < 1 {
		n = 1
	}
	return make([]int16, n)
}

// Tone produces a sine tone at the given frequency, with a short linear
// fade at both ends so chunk boundaries do not click
func Tone(freq float64, d time.Duration, sampleRate int) []int16 {
	n := int(float64(sampleRate) * d.Seconds())
	if n < 1 {
		n = 1
	}
	fade := sampleRate / 100 // 10ms
	if fade > n/2 {
		fade = n / 2
	}

	samples := make([]int16, n)
	for i := range samples {
		amp := 0.3
		if fade > 0 {
			if i < fade {
				amp *= float64(i) / float64(fade)
			} else if i >= n-fade {
				amp *= float64(n-1-i) / float64(fade)
			}
		}
		samples[i] = int16(amp * math.MaxInt16 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return samples
}

// PCMDuration converts a PCM16 mono byte count into wall time
func PCMDuration(numBytes int, sampleRate int) time.Duration {
	if sampleRate <= 0 || numBytes <= 0 {
		return 0
	}
	samples := numBytes / 2
	return time.Duration(float64(samples) / float64(sampleRate) * float64(time.Second))
}
