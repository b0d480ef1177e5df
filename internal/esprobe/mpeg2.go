package esprobe

import "fmt"

// MPEG-1/2 video start codes (ISO/IEC 13818-2 Table 6-1).
const (
	mpvPicture   = 0x00
	mpvSequence  = 0xB3
	mpvExtension = 0xB5
)

var mpvFrameRates = [...]float64{
	1: 24000.0 / 1001,
	2: 24,
	3: 25,
	4: 30000.0 / 1001,
	5: 30,
	6: 50,
	7: 60000.0 / 1001,
	8: 60,
}

var mpvProfiles = map[byte]string{
	1: "High",
	2: "Spatially Scalable",
	3: "SNR Scalable",
	4: "Main",
	5: "Simple",
}

var mpvLevels = map[byte]string{
	4:  "High",
	6:  "High 1440",
	8:  "Main",
	10: "Low",
}

// parseMPVSequence reads a sequence_header, unit starting at the start
// code value.
func parseMPVSequence(unit []byte, mpeg2 bool) (Params, error) {
	if len(unit) < 8 {
		return Params{}, fmt.Errorf("esprobe: sequence header: %d bytes", len(unit))
	}
	width := int(unit[1])<<4 | int(unit[2]>>4)
	height := int(unit[2]&0x0F)<<8 | int(unit[3])
	if width == 0 || height == 0 {
		return Params{}, fmt.Errorf("esprobe: sequence header: bad size %dx%d", width, height)
	}
	p := Params{
		Codec:        "mp4v.6A",
		Width:        width,
		Height:       height,
		ChromaFormat: 1,
		BitDepth:     8,
	}
	if mpeg2 {
		p.Codec = "mp4v.61"
	}
	if code := unit[4] & 0x0F; int(code) < len(mpvFrameRates) {
		p.FrameRate = mpvFrameRates[code]
	}
	return p, nil
}

// applyMPVSequenceExtension fills the MPEG-2 fields of p from a
// sequence_extension. It reports false for other extension types.
func applyMPVSequenceExtension(p *Params, unit []byte) bool {
	if len(unit) < 3 || unit[1]>>4 != 1 {
		return false
	}
	pl := unit[1]&0x0F<<4 | unit[2]>>4
	if pl&0x80 == 0 {
		p.Profile = mpvProfiles[pl>>4&0x07]
		p.Level = mpvLevels[pl&0x0F]
	}
	p.Interlaced = unit[2]&0x08 == 0
	p.ChromaFormat = int(unit[2] >> 1 & 0x03)
	return true
}

// mpvIntra reports whether a picture_header codes an I picture.
func mpvIntra(unit []byte) bool {
	return len(unit) >= 3 && unit[2]>>3&0x07 == 1
}
