package synth

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildWAV(t *testing.T, sampleRate, channels int, pcm []int16, extraChunk bool) []byte {
	t.Helper()
	var body bytes.Buffer

	writeChunk := func(id string, payload []byte) {
		body.WriteString(id)
		_ = binary.Write(&body, binary.LittleEndian, uint32(len(payload)))
		body.Write(payload)
	}

	fmtChunk := make([]byte, 16)
	binary.LittleEndian.PutUint16(fmtChunk[0:2], 1) // PCM
	binary.LittleEndian.PutUint16(fmtChunk[2:4], uint16(channels))
	binary.LittleEndian.PutUint32(fmtChunk[4:8], uint32(sampleRate))
	binary.LittleEndian.PutUint32(fmtChunk[8:12], uint32(sampleRate*channels*2))
	binary.LittleEndian.PutUint16(fmtChunk[12:14], uint16(channels*2))
	binary.LittleEndian.PutUint16(fmtChunk[14:16], 16)
	writeChunk("fmt ", fmtChunk)

	if extraChunk {
		writeChunk("LIST", []byte("INFOsoftware"))
	}

	data := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	writeChunk("data", data)

	var out bytes.Buffer
	out.WriteString("RIFF")
	_ = binary.Write(&out, binary.LittleEndian, uint32(4+body.Len()))
	out.WriteString("WAVE")
	out.Write(body.Bytes())
	return out.Bytes()
}

func TestParseWAVHeader(t *testing.T) {
	pcm := []int16{0, 100, -100, 32000}
	r := bytes.NewReader(buildWAV(t, 24000, 1, pcm, false))

	format, err := parseWAVHeader(r)
	require.NoError(t, err)
	assert.Equal(t, 24000, format.SampleRate)
	assert.Equal(t, 1, format.Channels)
	assert.Equal(t, 16, format.BitsPerSample)

	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, pcm, pcmBytesToSamples(rest))
}

func TestParseWAVHeaderSkipsOptionalChunks(t *testing.T) {
	r := bytes.NewReader(buildWAV(t, 44100, 2, []int16{1, 2}, true))

	format, err := parseWAVHeader(r)
	require.NoError(t, err)
	assert.Equal(t, 44100, format.SampleRate)
	assert.Equal(t, 2, format.Channels)
}

func TestParseWAVHeaderRejectsGarbage(t *testing.T) {
	_, err := parseWAVHeader(bytes.NewReader([]byte("OggS this is not a wav file")))
	assert.Error(t, err)
}

func TestParseWAVHeaderRejectsTruncated(t *testing.T) {
	full := buildWAV(t, 24000, 1, []int16{1}, false)
	_, err := parseWAVHeader(bytes.NewReader(full[:10]))
	assert.Error(t, err)
}
