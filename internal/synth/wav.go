package synth

import (
	"encoding/binary"
	"fmt"
	"io"
)

// wavFormat is the audio format read from a RIFF/WAVE header.
type wavFormat struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// parseWAVHeader consumes the RIFF header and all chunks up to and including
// the "data" chunk header, leaving the reader positioned at the first PCM
// byte. Only 16-bit PCM is accepted.
func parseWAVHeader(r io.Reader) (wavFormat, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return wavFormat{}, fmt.Errorf("read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return wavFormat{}, fmt.Errorf("not a RIFF/WAVE stream")
	}

	var format wavFormat
	haveFmt := false

	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(r, chunkHeader[:]); err != nil {
			return wavFormat{}, fmt.Errorf("read chunk header: %w", err)
		}
		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return wavFormat{}, fmt.Errorf("fmt chunk too small: %d", chunkSize)
			}
			body := make([]byte, chunkSize)
			if _, err := io.ReadFull(r, body); err != nil {
				return wavFormat{}, fmt.Errorf("read fmt chunk: %w", err)
			}
			audioFormat := binary.LittleEndian.Uint16(body[0:2])
			if audioFormat != 1 {
				return wavFormat{}, fmt.Errorf("unsupported WAV encoding: %d", audioFormat)
			}
			format.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			format.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			format.BitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
			if format.BitsPerSample != 16 {
				return wavFormat{}, fmt.Errorf("unsupported bit depth: %d", format.BitsPerSample)
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return wavFormat{}, fmt.Errorf("data chunk before fmt chunk")
			}
			return format, nil
		default:
			// Skip optional chunks (LIST, fact, ...).
			if _, err := io.CopyN(io.Discard, r, int64(chunkSize)); err != nil {
				return wavFormat{}, fmt.Errorf("skip %q chunk: %w", chunkID, err)
			}
		}
	}
}

// pcmBytesToSamples converts little-endian 16-bit PCM bytes to samples.
func pcmBytesToSamples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}
