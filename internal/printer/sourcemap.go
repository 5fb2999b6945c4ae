package printer

import (
	"encoding/base64"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-json-experiment/json"
)

// RawSourceMap represents a v3 source map
type RawSourceMap struct {
	Version        int       `json:"version"`
	File           string    `json:"file"`
	SourceRoot     string    `json:"sourceRoot,omitempty"`
	Sources        []string  `json:"sources"`
	Names          []string  `json:"names"`
	Mappings       string    `json:"mappings"`
	SourcesContent []*string `json:"sourcesContent,omitempty"`
}

// Marshal encodes the map as JSON.
func (m *RawSourceMap) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// InlineComment returns a sourceMappingURL comment embedding the map.
func (m *RawSourceMap) InlineComment() (string, error) {
	data, err := m.Marshal()
	if err != nil {
		return "", err
	}
	return "//# sourceMappingURL=data:application/json;charset=utf-8;base64," + base64.StdEncoding.EncodeToString(data), nil
}

func newRawSourceMap(fileName, originalText, mappings string) *RawSourceMap {
	content := originalText
	baseName := filepath.Base(fileName)
	return &RawSourceMap{
		Version:        3,
		File:           baseName,
		Sources:        []string{baseName},
		SourcesContent: []*string{&content},
		Names:          []string{},
		Mappings:       mappings,
	}
}

// lineIndex converts byte offsets of the original text to 0-based line and
// UTF-16 column, the unit source map consumers count in.
type lineIndex struct {
	text   string
	starts []int
}

func newLineIndex(text string) *lineIndex {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return &lineIndex{text: text, starts: starts}
}

func (li *lineIndex) lineCol(pos int) (line, col int) {
	pos = min(max(pos, 0), len(li.text))
	line = sort.Search(len(li.starts), func(i int) bool {
		return li.starts[i] > pos
	}) - 1
	if line < 0 {
		line = 0
	}
	return line, utf16Len(li.text[li.starts[line]:pos])
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// encodeVLQ encodes an integer using Base64 VLQ encoding for source maps
func encodeVLQ(value int) string {
	var result strings.Builder

	// Sign goes in the least significant bit.
	if value < 0 {
		value = ((-value) << 1) | 1
	} else {
		value = value << 1
	}

	const base64Chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

	for {
		digit := value & 0x1f
		value >>= 5
		if value > 0 {
			digit |= 0x20 // continuation bit
		}
		result.WriteByte(base64Chars[digit])
		if value == 0 {
			break
		}
	}
	return result.String()
}

// mappingBuilder accumulates the mappings field. Values passed in are
// absolute and stored relative to the previous segment.
type mappingBuilder struct {
	mappings    strings.Builder
	firstOnLine bool
	lastGenCol  int
	lastSrcLine int
	lastSrcCol  int
}

func newMappingBuilder() *mappingBuilder {
	return &mappingBuilder{firstOnLine: true}
}

func (b *mappingBuilder) addMapping(genCol, srcLine, srcCol int) {
	if !b.firstOnLine {
		b.mappings.WriteByte(',')
	}
	b.firstOnLine = false

	b.mappings.WriteString(encodeVLQ(genCol - b.lastGenCol))
	b.mappings.WriteString(encodeVLQ(0)) // single source
	b.mappings.WriteString(encodeVLQ(srcLine - b.lastSrcLine))
	b.mappings.WriteString(encodeVLQ(srcCol - b.lastSrcCol))

	b.lastGenCol = genCol
	b.lastSrcLine = srcLine
	b.lastSrcCol = srcCol
}

func (b *mappingBuilder) newLine() {
	b.mappings.WriteByte(';')
	b.firstOnLine = true
	b.lastGenCol = 0
}

func (b *mappingBuilder) String() string {
	return b.mappings.String()
}
