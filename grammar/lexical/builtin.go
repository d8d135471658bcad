package lexical

// Built-in character classes available under the `std` namespace of
// token rules. Each expands to a fixed range table.
var builtinRanges = map[string][][2]rune{
	"asciiLetter": {
		{'A', 'Z'},
		{'a', 'z'},
	},
	"asciiLowercase": {
		{'a', 'z'},
	},
	"asciiUppercase": {
		{'A', 'Z'},
	},
	"digit": {
		{'0', '9'},
	},
	"whitespace": {
		{0x0009, 0x000d},
		{0x0020, 0x0020},
		{0x0085, 0x0085},
		{0x00a0, 0x00a0},
		{0x1680, 0x1680},
		{0x2000, 0x200a},
		{0x2028, 0x2029},
		{0x202f, 0x202f},
		{0x205f, 0x205f},
		{0x3000, 0x3000},
	},
}
