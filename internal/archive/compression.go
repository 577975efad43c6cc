package archive

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Level is a portable compression-level scale that maps onto the
// underlying zstd encoder's native range, per spec §4.D.
type Level struct {
	kind    levelKind
	numeric int
}

type levelKind int

const (
	levelLowest levelKind = iota
	levelDefault
	levelHighest
	levelNumeric
)

var (
	Lowest  = Level{kind: levelLowest}
	Default = Level{kind: levelDefault}
	Highest = Level{kind: levelHighest}
)

// Numeric builds a Level pinned to a specific zstd compression level
// (1-22); validated against zstd's native range.
func Numeric(n int) (Level, error) {
	if n < 1 || n > 22 {
		return Level{}, fmt.Errorf("compression level %d out of range [1,22]", n)
	}
	return Level{kind: levelNumeric, numeric: n}, nil
}

// encoderLevel maps Level onto klauspost/compress/zstd's EncoderLevel.
func (l Level) encoderLevel() zstd.EncoderLevel {
	switch l.kind {
	case levelLowest:
		return zstd.SpeedFastest
	case levelHighest:
		return zstd.SpeedBestCompression
	case levelNumeric:
		switch {
		case l.numeric <= 3:
			return zstd.SpeedFastest
		case l.numeric <= 9:
			return zstd.SpeedDefault
		case l.numeric <= 15:
			return zstd.SpeedBetterCompression
		default:
			return zstd.SpeedBestCompression
		}
	default:
		return zstd.SpeedDefault
	}
}
