// Package tstime implements the modular timestamp arithmetic used by the
// transport stream engine. Two clocks are involved: the 27 MHz system clock
// (PCR/STC, wrapping at 2^33*300) and its 90 kHz base (PTS/DTS, wrapping at
// 2^33). Out-of-band arrival timestamps (MTS) wrap at 2^30.
//
// Add and Diff panic when called outside their contract; those are caller
// bugs, never stream defects.
package tstime

import (
	"fmt"
	"math"
	"math/bits"
	"time"
)

// Clock rates in Hz.
const (
	ClockRate = 27_000_000
	BaseRate  = 90_000
)

// Overflow moduli.
const (
	MTSOverflow     int64 = 1 << 30
	STCBaseOverflow int64 = 1 << 33
	STCOverflow     int64 = STCBaseOverflow * 300
)

// Tick constants on the 27 MHz clock.
const (
	Millisecond int64 = ClockRate / 1000
	Second      int64 = ClockRate
)

// BaseMillisecond is one millisecond on the 90 kHz clock.
const BaseMillisecond int64 = BaseRate / 1000

func checkOverflow(ovf int64) {
	if ovf <= 0 || ovf%2 != 0 {
		panic(fmt.Sprintf("tstime: overflow %d is not even and positive", ovf))
	}
}

func checkRange(name string, t, ovf int64) {
	if t < 0 || t >= ovf {
		panic(fmt.Sprintf("tstime: %s %d outside [0, %d)", name, t, ovf))
	}
}

// Add returns (t0+td) mod ovf for t0 in [0, ovf) and td in [-ovf/2, ovf/2).
func Add(t0, td, ovf int64) int64 {
	checkOverflow(ovf)
	checkRange("t0", t0, ovf)
	half := ovf / 2
	if td < -half || td >= half {
		panic(fmt.Sprintf("tstime: delta %d outside [%d, %d)", td, -half, half))
	}

	t := t0 + td
	if t >= ovf {
		t -= ovf
	} else if t < 0 {
		t += ovf
	}
	return t
}

// Diff returns the signed shortest distance from t0 to t1, in
// [-ovf/2, ovf/2), so that Add(t0, Diff(t1, t0, ovf), ovf) == t1.
func Diff(t1, t0, ovf int64) int64 {
	checkOverflow(ovf)
	checkRange("t1", t1, ovf)
	checkRange("t0", t0, ovf)

	half := ovf / 2
	d := t1 - t0
	if d >= half {
		d -= ovf
	} else if d < -half {
		d += ovf
	}
	return d
}

// Wrap reduces any v into [0, ovf).
func Wrap(v, ovf int64) int64 {
	checkOverflow(ovf)
	v %= ovf
	if v < 0 {
		v += ovf
	}
	return v
}

// FromPCR combines a 33-bit base and 9-bit extension into 27 MHz ticks.
func FromPCR(base uint64, ext uint16) int64 {
	return int64(base&(1<<33-1))*300 + int64(ext%300)
}

// ToBase converts 27 MHz ticks to the 90 kHz base clock.
func ToBase(stc int64) int64 {
	return stc / 300
}

// Duration converts 27 MHz ticks to a time.Duration.
func Duration(ticks int64) time.Duration {
	return time.Duration(ticks * 1000 / 27)
}

// BaseDuration converts 90 kHz ticks to a time.Duration.
func BaseDuration(ticks int64) time.Duration {
	return time.Duration(ticks * 100_000 / 9)
}

// Interpolate estimates the clock at byte address addr from two samples
// (pcrA at addrA, pcrB at addrB) on a clock wrapping at ovf:
//
//	pcrB + (addr - addrB) * (pcrB - pcrA) / (addrB - addrA)
//
// The product is formed in 128 bits so long sample spans do not truncate.
// ok is false when the two samples share an address.
func Interpolate(pcrA, addrA, pcrB, addrB, addr, ovf int64) (int64, bool) {
	span := addrB - addrA
	if span == 0 {
		return 0, false
	}
	rate := Diff(pcrB, pcrA, ovf)
	delta := MulDiv(addr-addrB, rate, span)
	return Wrap(pcrB+delta%ovf, ovf), true
}

// MulDiv returns a*b/c rounded to nearest, saturating at the int64 range.
// c must be nonzero.
func MulDiv(a, b, c int64) int64 {
	if c == 0 {
		panic("tstime: MulDiv by zero")
	}
	neg := (a < 0) != (b < 0)
	if c < 0 {
		neg = !neg
	}
	ua, ub, uc := abs(a), abs(b), abs(c)

	hi, lo := bits.Mul64(ua, ub)
	lo, carry := bits.Add64(lo, uc/2, 0)
	hi += carry
	if hi >= uc {
		if neg {
			return math.MinInt64
		}
		return math.MaxInt64
	}
	q, _ := bits.Div64(hi, lo, uc)
	if q > math.MaxInt64 {
		q = math.MaxInt64
	}
	if neg {
		return -int64(q)
	}
	return int64(q)
}

func abs(v int64) uint64 {
	if v < 0 {
		return uint64(-v)
	}
	return uint64(v)
}
