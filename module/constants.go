package module

import (
	"github.com/sbclang/sbcvm/internal/binary"
	"github.com/sbclang/sbcvm/sbcerr"
)

// Magic is the 4-byte module magic, the bytes "SBC0" read little-endian
// (spec.md §4.1: 0x30434253).
const Magic uint32 = 0x30434253

// Version is the only module format version this package understands.
const Version uint16 = 1

const (
	headerSize       = 32
	sectionEntrySize = 16
)

// SectionID identifies one of the eleven fixed sections (spec.md §4.1).
type SectionID uint32

const (
	SectionTypes      SectionID = 1
	SectionFields     SectionID = 2
	SectionMethods    SectionID = 3
	SectionSignatures SectionID = 4
	SectionConstPool  SectionID = 5
	SectionGlobals    SectionID = 6
	SectionFunctions  SectionID = 7
	SectionCode       SectionID = 8
	SectionDebug      SectionID = 9
	SectionImports    SectionID = 10
	SectionExports    SectionID = 11
)

var sectionNames = map[SectionID]string{
	SectionTypes:      "types",
	SectionFields:     "fields",
	SectionMethods:    "methods",
	SectionSignatures: "signatures",
	SectionConstPool:  "const-pool",
	SectionGlobals:    "globals",
	SectionFunctions:  "functions",
	SectionCode:       "code",
	SectionDebug:      "debug",
	SectionImports:    "imports",
	SectionExports:    "exports",
}

func (id SectionID) String() string {
	if s, ok := sectionNames[id]; ok {
		return s
	}
	return "unknown"
}

// IsOptional reports whether a section may be absent from the section
// table entirely (spec.md §4.1: debug, imports, exports are "-opt").
func (id SectionID) IsOptional() bool {
	return id == SectionDebug || id == SectionImports || id == SectionExports
}

// requiredSections lists every section id the loader requires to be
// present when it is not one of the optional three.
var requiredSections = []SectionID{
	SectionTypes, SectionFields, SectionMethods, SectionSignatures,
	SectionConstPool, SectionGlobals, SectionFunctions, SectionCode,
}

// stringAt reads a NUL-terminated UTF-8 string out of blob at offset,
// used both by Module.String and by the loader while validating *_str
// fields eagerly.
func stringAt(blob []byte, offset uint32) (string, error) {
	s, err := binary.ReadCStringAt(blob, int(offset))
	if err != nil {
		return "", sbcerr.Load(sbcerr.KindInvalidUTF8, "string at offset %d: %v", offset, err)
	}
	return s, nil
}
