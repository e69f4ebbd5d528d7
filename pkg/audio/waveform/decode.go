package waveform

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// Sentinel errors.
var (
	// ErrUnsupportedFormat is returned for containers or encodings the
	// decoders do not handle.
	ErrUnsupportedFormat = errors.New("waveform: unsupported format")

	// ErrMalformed is returned when a container is truncated or inconsistent.
	ErrMalformed = errors.New("waveform: malformed audio")
)

const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

// Load reads an audio file, downmixes it to mono and resamples it to
// [SampleRate]. The container is chosen by file extension (.wav, .mp3).
func Load(path string) (Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return Waveform{}, err
	}
	defer f.Close()

	var w Waveform
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		w, err = DecodeWAV(f)
	case ".mp3":
		w, err = DecodeMP3(f)
	default:
		return Waveform{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	if err != nil {
		return Waveform{}, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return Resample(w, SampleRate)
}

// DecodeWAV decodes a RIFF/WAVE stream. Integer PCM of 8, 16, 24 or 32
// bits is decoded with go-audio/wav, which also reads
// WAVE_FORMAT_EXTENSIBLE headers; 32-bit IEEE float is read directly.
// Multi-channel audio is averaged down to mono.
func DecodeWAV(r io.Reader) (Waveform, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Waveform{}, err
	}
	h, err := readWAVHeader(data)
	if err != nil {
		return Waveform{}, err
	}

	var samples []float64
	switch {
	case h.format == wavFormatPCM && (h.bits == 8 || h.bits == 16 || h.bits == 24 || h.bits == 32):
		samples, err = decodeIntPCM(data)
		if err != nil {
			return Waveform{}, err
		}
	case h.format == wavFormatFloat && h.bits == 32:
		samples = make([]float64, len(h.payload)/4)
		for i := range samples {
			samples[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(h.payload[i*4:])))
		}
	default:
		return Waveform{}, fmt.Errorf("%w: wav format=%d bits=%d", ErrUnsupportedFormat, h.format, h.bits)
	}
	return New(downmix(samples, int(h.channels)), int(h.rate)), nil
}

// decodeIntPCM decodes integer PCM with go-audio/wav and scales it to
// [-1, 1). 8-bit WAV samples are unsigned.
func decodeIntPCM(data []byte) ([]float64, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid wav: %v", ErrMalformed, dec.Err())
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	bits := int(dec.BitDepth)
	scale := float64(uint64(1) << (bits - 1))
	out := make([]float64, len(buf.Data))
	for i, v := range buf.Data {
		if bits == 8 {
			v -= 128
		}
		out[i] = float64(v) / scale
	}
	return out, nil
}

// wavHeader is the effective format of a WAVE stream. For
// WAVE_FORMAT_EXTENSIBLE, format is the sub-format code.
type wavHeader struct {
	format, channels, bits uint16
	rate                   uint32
	payload                []byte
}

// readWAVHeader walks the RIFF chunks for fmt and data.
func readWAVHeader(data []byte) (wavHeader, error) {
	var h wavHeader
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return h, fmt.Errorf("%w: missing RIFF/WAVE header", ErrMalformed)
	}
	haveFmt := false
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			// Streaming writers leave the data size unset; take the rest.
			if id == "data" {
				size = len(data) - body
			} else {
				return h, fmt.Errorf("%w: chunk %q overruns file", ErrMalformed, id)
			}
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return h, fmt.Errorf("%w: short fmt chunk", ErrMalformed)
			}
			h.format = binary.LittleEndian.Uint16(data[body : body+2])
			h.channels = binary.LittleEndian.Uint16(data[body+2 : body+4])
			h.rate = binary.LittleEndian.Uint32(data[body+4 : body+8])
			h.bits = binary.LittleEndian.Uint16(data[body+14 : body+16])
			if h.format == wavFormatExtensible {
				if size < 40 {
					return h, fmt.Errorf("%w: short extensible fmt chunk", ErrMalformed)
				}
				// The sub-format GUID starts with the format code.
				h.format = binary.LittleEndian.Uint16(data[body+24 : body+26])
			}
			haveFmt = true
		case "data":
			h.payload = data[body : body+size]
		}
		pos = body + size + size%2
	}
	if !haveFmt || h.payload == nil {
		return h, fmt.Errorf("%w: missing fmt or data chunk", ErrMalformed)
	}
	if h.channels == 0 || h.rate == 0 {
		return h, fmt.Errorf("%w: zero channels or rate", ErrMalformed)
	}
	return h, nil
}

// DecodeMP3 decodes an MP3 stream. The decoder always yields 16-bit stereo,
// which is averaged down to mono.
func DecodeMP3(r io.Reader) (Waveform, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return Waveform{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, dec); err != nil {
		return Waveform{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	raw := buf.Bytes()
	samples := make([]float64, len(raw)/2)
	for i := range samples {
		samples[i] = float64(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768.0
	}
	return New(downmix(samples, 2), dec.SampleRate()), nil
}

// downmix averages interleaved channels into one.
func downmix(interleaved []float64, channels int) []float64 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		mono[i] = sum / float64(channels)
	}
	return mono
}
