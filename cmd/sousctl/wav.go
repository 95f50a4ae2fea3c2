package main

import (
	"encoding/binary"
	"errors"
	"io"
)

// WAV header is 44 bytes for standard PCM files
const wavHeaderSize = 44

var (
	errNotWAV       = errors.New("not a valid WAV file")
	errNotPCM       = errors.New("only PCM format supported")
	errNot16BitMono = errors.New("only 16-bit mono audio supported")
)

type wavFormat struct {
	SampleRate    uint32
	Channels      uint16
	BitsPerSample uint16
}

// bytesPer returns the byte length of ms milliseconds of audio.
func (f wavFormat) bytesPer(ms int) int {
	return int(f.SampleRate) * int(f.Channels) * int(f.BitsPerSample/8) * ms / 1000
}

// readWAVHeader consumes the canonical 44-byte header, leaving r at the
// first sample.
func readWAVHeader(r io.Reader) (wavFormat, error) {
	header := make([]byte, wavHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return wavFormat{}, err
	}

	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return wavFormat{}, errNotWAV
	}
	if binary.LittleEndian.Uint16(header[20:22]) != 1 {
		return wavFormat{}, errNotPCM
	}

	f := wavFormat{
		Channels:      binary.LittleEndian.Uint16(header[22:24]),
		SampleRate:    binary.LittleEndian.Uint32(header[24:28]),
		BitsPerSample: binary.LittleEndian.Uint16(header[34:36]),
	}
	if f.Channels != 1 || f.BitsPerSample != 16 {
		return wavFormat{}, errNot16BitMono
	}
	return f, nil
}
