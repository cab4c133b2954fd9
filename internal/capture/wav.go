package capture

import (
	"encoding/binary"
	"math"
	"time"

	"voicechat/internal/domain"
)

const (
	wavMIMEType   = "audio/wav"
	wavHeaderSize = 44
	bitsPerSample = 16
)

// encodeWAV wraps raw PCM16 little-endian samples in a RIFF header.
func encodeWAV(pcm []byte, sampleRate int, channels int) domain.AudioBlob {
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	out := make([]byte, wavHeaderSize+len(pcm))
	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(36+len(pcm)))
	copy(out[8:], "WAVE")
	copy(out[12:], "fmt ")
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 1)
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], bitsPerSample)
	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], uint32(len(pcm)))
	copy(out[wavHeaderSize:], pcm)

	var duration time.Duration
	if byteRate > 0 {
		duration = time.Duration(len(pcm)) * time.Second / time.Duration(byteRate)
	}
	return domain.AudioBlob{Data: out, MIMEType: wavMIMEType, Duration: duration}
}

// rmsLevel returns the normalized RMS of PCM16 samples.
func rmsLevel(chunk []byte) float64 {
	samples := len(chunk) / 2
	if samples == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < samples; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(chunk[i*2:]))) / 32768
		sum += v * v
	}
	return math.Min(1, math.Sqrt(sum/float64(samples)))
}
