package esprobe

import "fmt"

// ISO/IEC 14496-3 sampling_frequency_index.
var aacSampleRates = [...]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000, 7350,
}

var aacProfiles = [...]string{"Main", "LC", "SSR", "LTP"}

const adtsHeaderLen = 7

type adtsHeader struct {
	params   Params
	frameLen int
}

// parseADTS reads the fixed and variable header of the ADTS frame at b.
func parseADTS(b []byte) (adtsHeader, error) {
	if len(b) < adtsHeaderLen {
		return adtsHeader{}, fmt.Errorf("esprobe: ADTS header: %d bytes", len(b))
	}
	if b[0] != 0xFF || b[1]&0xF6 != 0xF0 {
		return adtsHeader{}, fmt.Errorf("esprobe: ADTS header: no sync word")
	}
	profile := b[2] >> 6
	rateIdx := int(b[2] >> 2 & 0x0F)
	if rateIdx >= len(aacSampleRates) {
		return adtsHeader{}, fmt.Errorf("esprobe: ADTS header: sampling_frequency_index %d", rateIdx)
	}
	channels := int(b[2]&0x01)<<2 | int(b[3]>>6)
	frameLen := int(b[3]&0x03)<<11 | int(b[4])<<3 | int(b[5]>>5)

	hdrLen := adtsHeaderLen
	if b[1]&0x01 == 0 {
		hdrLen += 2 // crc_check
	}
	if frameLen < hdrLen {
		return adtsHeader{}, fmt.Errorf("esprobe: ADTS header: frame_length %d", frameLen)
	}
	return adtsHeader{
		params: Params{
			Codec:      fmt.Sprintf("mp4a.40.%d", profile+1),
			Profile:    aacProfiles[profile],
			SampleRate: aacSampleRates[rateIdx],
			Channels:   channels,
		},
		frameLen: frameLen,
	}, nil
}

// scanADTS walks the frames of b. It returns the header of the first frame
// and the number of complete frames, resynchronizing on bytes that do not
// start a frame.
func scanADTS(b []byte) (first adtsHeader, frames int, ok bool) {
	for off := 0; off+adtsHeaderLen <= len(b); {
		h, err := parseADTS(b[off:])
		if err != nil {
			off++
			continue
		}
		if off+h.frameLen > len(b) {
			break
		}
		if !ok {
			first, ok = h, true
		}
		frames++
		off += h.frameLen
	}
	return first, frames, ok
}
