package media

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

const (
	wavFormatPCM        = 1
	wavFormatIEEEFloat  = 3
	wavFormatExtensible = 0xFFFE
)

type wavFormat struct {
	audioFormat   uint16
	channels      int
	sampleRate    int
	bitsPerSample int
}

// probeWAV parses a RIFF/WAVE file and computes full metrics, including RMS
// loudness over a mono downmix of the decoded signal.
func probeWAV(path string) (Metrics, error) {
	file, err := os.Open(path)
	if err != nil {
		return Metrics{}, err
	}
	defer file.Close()

	format, dataOffset, dataSize, err := parseWAVHeader(file)
	if err != nil {
		return Metrics{}, err
	}

	bytesPerSample := format.bitsPerSample / 8
	frameBytes := bytesPerSample * format.channels
	if frameBytes == 0 {
		return Metrics{}, errors.New("wav: zero frame size")
	}
	frames := dataSize / int64(frameBytes)

	if _, err := file.Seek(dataOffset, io.SeekStart); err != nil {
		return Metrics{}, fmt.Errorf("wav: seek data: %w", err)
	}

	rms, err := computeRMS(io.LimitReader(file, dataSize), format)
	if err != nil {
		return Metrics{}, err
	}

	return Metrics{
		DurationSec:  float64(frames) / float64(format.sampleRate),
		SampleRate:   format.sampleRate,
		Channels:     format.channels,
		LoudnessDBFS: rmsToDBFS(rms),
		Format:       "wav",
		Codec:        wavCodecLabel(format),
	}, nil
}

// rmsToDBFS converts a linear RMS amplitude into decibels relative to full
// scale. An epsilon keeps exact silence finite; the result is clamped to
// LoudnessFloorDBFS.
func rmsToDBFS(rms float64) float64 {
	const epsilon = 1e-12
	dbfs := 20 * math.Log10(math.Max(rms, epsilon))
	if dbfs < LoudnessFloorDBFS {
		return LoudnessFloorDBFS
	}
	return dbfs
}

func wavCodecLabel(format wavFormat) string {
	if format.audioFormat == wavFormatIEEEFloat {
		return fmt.Sprintf("pcm_f%dle", format.bitsPerSample)
	}
	return fmt.Sprintf("pcm_s%dle", format.bitsPerSample)
}

func parseWAVHeader(r io.ReadSeeker) (wavFormat, int64, int64, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return wavFormat{}, 0, 0, fmt.Errorf("wav: read header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return wavFormat{}, 0, 0, errors.New("wav: not a RIFF/WAVE file")
	}

	var format wavFormat
	var haveFormat bool
	offset := int64(12)

	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(r, chunkHeader[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return wavFormat{}, 0, 0, errors.New("wav: missing data chunk")
			}
			return wavFormat{}, 0, 0, fmt.Errorf("wav: read chunk header: %w", err)
		}
		chunkID := string(chunkHeader[0:4])
		chunkSize := int64(binary.LittleEndian.Uint32(chunkHeader[4:8]))
		offset += 8

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return wavFormat{}, 0, 0, errors.New("wav: fmt chunk too small")
			}
			var fmtData [16]byte
			if _, err := io.ReadFull(r, fmtData[:]); err != nil {
				return wavFormat{}, 0, 0, fmt.Errorf("wav: read fmt chunk: %w", err)
			}
			format.audioFormat = binary.LittleEndian.Uint16(fmtData[0:2])
			format.channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
			format.sampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
			format.bitsPerSample = int(binary.LittleEndian.Uint16(fmtData[14:16]))
			haveFormat = true
			if remainder := chunkSize - 16; remainder > 0 {
				if _, err := r.Seek(remainder+remainder&1, io.SeekCurrent); err != nil {
					return wavFormat{}, 0, 0, fmt.Errorf("wav: skip fmt extension: %w", err)
				}
				offset += remainder + remainder&1
			}
			offset += 16
		case "data":
			if !haveFormat {
				return wavFormat{}, 0, 0, errors.New("wav: data chunk before fmt chunk")
			}
			if err := validateWAVFormat(format); err != nil {
				return wavFormat{}, 0, 0, err
			}
			return format, offset, chunkSize, nil
		default:
			// Skip ancillary chunks (LIST, fact, cue, bext). Chunk payloads
			// are word-aligned.
			skip := chunkSize + chunkSize&1
			if _, err := r.Seek(skip, io.SeekCurrent); err != nil {
				return wavFormat{}, 0, 0, fmt.Errorf("wav: skip %q chunk: %w", chunkID, err)
			}
			offset += skip
		}
	}
}

func validateWAVFormat(format wavFormat) error {
	if format.channels <= 0 {
		return errors.New("wav: invalid channel count")
	}
	if format.sampleRate <= 0 {
		return errors.New("wav: invalid sample rate")
	}
	switch format.audioFormat {
	case wavFormatPCM, wavFormatExtensible:
		switch format.bitsPerSample {
		case 8, 16, 24, 32:
		default:
			return fmt.Errorf("wav: unsupported pcm bit depth %d", format.bitsPerSample)
		}
	case wavFormatIEEEFloat:
		switch format.bitsPerSample {
		case 32, 64:
		default:
			return fmt.Errorf("wav: unsupported float bit depth %d", format.bitsPerSample)
		}
	default:
		return fmt.Errorf("wav: unsupported audio format %d", format.audioFormat)
	}
	return nil
}

// computeRMS streams PCM frames, downmixes each frame to mono by averaging
// channels, and accumulates the root-mean-square amplitude.
func computeRMS(r io.Reader, format wavFormat) (float64, error) {
	bytesPerSample := format.bitsPerSample / 8
	frameBytes := bytesPerSample * format.channels

	buf := make([]byte, 32*1024/frameBytes*frameBytes)
	if len(buf) == 0 {
		buf = make([]byte, frameBytes)
	}

	var sumSquares float64
	var frames int64

	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			n -= n % frameBytes
			for i := 0; i < n; i += frameBytes {
				var acc float64
				for ch := 0; ch < format.channels; ch++ {
					sample := decodeSample(buf[i+ch*bytesPerSample:], format)
					acc += sample
				}
				mono := acc / float64(format.channels)
				sumSquares += mono * mono
				frames++
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			return 0, fmt.Errorf("wav: read samples: %w", err)
		}
	}

	if frames == 0 {
		return 0, nil
	}
	return math.Sqrt(sumSquares / float64(frames)), nil
}

func decodeSample(b []byte, format wavFormat) float64 {
	switch format.audioFormat {
	case wavFormatIEEEFloat:
		if format.bitsPerSample == 64 {
			return math.Float64frombits(binary.LittleEndian.Uint64(b))
		}
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	default:
		switch format.bitsPerSample {
		case 8:
			// 8-bit WAV samples are unsigned.
			return (float64(b[0]) - 128) / 128
		case 16:
			return float64(int16(binary.LittleEndian.Uint16(b))) / 32768
		case 24:
			raw := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
			if raw&0x800000 != 0 {
				raw |= ^int32(0xFFFFFF)
			}
			return float64(raw) / 8388608
		default:
			return float64(int32(binary.LittleEndian.Uint32(b))) / 2147483648
		}
	}
}

// WriteWAV writes interleaved 16-bit PCM. Samples are per-channel slices of
// equal length with values in [-1, 1]; out-of-range values are clipped.
func WriteWAV(w io.Writer, channels [][]float64, sampleRate int) error {
	if len(channels) == 0 {
		return errors.New("wav: no channels")
	}
	frames := len(channels[0])
	for _, ch := range channels {
		if len(ch) != frames {
			return errors.New("wav: channel length mismatch")
		}
	}

	channelCount := len(channels)
	dataSize := frames * channelCount * 2
	blockAlign := channelCount * 2

	var header [44]byte
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataSize))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(header[22:24], uint16(channelCount))
	binary.LittleEndian.PutUint32(header[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(header[28:32], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], 16)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataSize))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("wav: write header: %w", err)
	}

	frame := make([]byte, blockAlign)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channelCount; ch++ {
			value := channels[ch][i]
			if value > 1 {
				value = 1
			} else if value < -1 {
				value = -1
			}
			sample := int16(math.Round(value * 32767))
			binary.LittleEndian.PutUint16(frame[ch*2:], uint16(sample))
		}
		if _, err := w.Write(frame); err != nil {
			return fmt.Errorf("wav: write samples: %w", err)
		}
	}
	return nil
}
