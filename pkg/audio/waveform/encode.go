package waveform

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// WriteWAV writes w as a mono 16-bit PCM RIFF/WAVE stream.
func (w Waveform) WriteWAV(dst io.Writer) error {
	pcm := w.PCM16()
	hdr := make([]byte, 44)
	copy(hdr[0:], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:], uint32(36+len(pcm)))
	copy(hdr[8:], "WAVE")
	copy(hdr[12:], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:], 16)
	binary.LittleEndian.PutUint16(hdr[20:], wavFormatPCM)
	binary.LittleEndian.PutUint16(hdr[22:], 1)
	binary.LittleEndian.PutUint32(hdr[24:], uint32(w.SampleRate))
	binary.LittleEndian.PutUint32(hdr[28:], uint32(w.SampleRate*2))
	binary.LittleEndian.PutUint16(hdr[32:], 2)
	binary.LittleEndian.PutUint16(hdr[34:], 16)
	copy(hdr[36:], "data")
	binary.LittleEndian.PutUint32(hdr[40:], uint32(len(pcm)))
	if _, err := dst.Write(hdr); err != nil {
		return err
	}
	_, err := dst.Write(pcm)
	return err
}

// SaveWAV writes w to path as 16-bit PCM WAV.
func (w Waveform) SaveWAV(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := w.WriteWAV(f); err != nil {
		f.Close()
		return fmt.Errorf("waveform: write %s: %w", path, err)
	}
	return f.Close()
}
