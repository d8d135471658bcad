package lexical

import (
	"fmt"
	"unicode/utf16"
)

const (
	surrogateMin = rune(0xd800)
	surrogateMax = rune(0xdfff)
	astralMin    = rune(0x10000)
	maxChar      = rune(0x10ffff)

	loSurrogateMin = uint16(0xdc00)
	loSurrogateMax = uint16(0xdfff)
)

// surrogateBlock is one contiguous block of astral code points whose
// UTF-16 encodings are continuous: a range of high surrogates paired
// with a range of low surrogates.
type surrogateBlock struct {
	hiFrom, hiTo uint16
	loFrom, loTo uint16
}

func encodePair(cp rune) (uint16, uint16) {
	h, l := utf16.EncodeRune(cp)
	return uint16(h), uint16(l)
}

// genSurrogateBlocks splits the astral code point range <from..to> into
// blocks that are continuous as surrogate pairs. For instance
// <U+103FF..U+10401> splits into <D800 DFFF..D800 DFFF> and
// <D801 DC00..D801 DC01> because the low surrogate wraps between them.
func genSurrogateBlocks(from, to rune) ([]surrogateBlock, error) {
	if from > to {
		return nil, fmt.Errorf("code point range must be from <= to: U+%X..U+%X", from, to)
	}
	if from < astralMin || to > maxChar {
		return nil, fmt.Errorf("code point must be >=U+10000 and <=U+10FFFF: U+%X..U+%X", from, to)
	}

	h1, l1 := encodePair(from)
	h2, l2 := encodePair(to)

	if h1 == h2 {
		return []surrogateBlock{{hiFrom: h1, hiTo: h1, loFrom: l1, loTo: l2}}, nil
	}

	var blks []surrogateBlock
	blks = append(blks, surrogateBlock{hiFrom: h1, hiTo: h1, loFrom: l1, loTo: loSurrogateMax})
	if h2-h1 > 1 {
		blks = append(blks, surrogateBlock{hiFrom: h1 + 1, hiTo: h2 - 1, loFrom: loSurrogateMin, loTo: loSurrogateMax})
	}
	blks = append(blks, surrogateBlock{hiFrom: h2, hiTo: h2, loFrom: loSurrogateMin, loTo: l2})
	return blks, nil
}
