// Package storage encodes the artifacts produced by the witness builder
// (witnesses and rosters) and reads or writes them from the filesystem.
package storage

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// ArtifactEncoding defines the encoding formats for artifacts. There are two
// supported formats: ArtifactEncodingJSON and ArtifactEncodingCBOR.
type ArtifactEncoding int

const (
	// ArtifactEncodingJSON is the indented JSON format of circom input
	// files.
	ArtifactEncodingJSON ArtifactEncoding = iota
	// ArtifactEncodingCBOR is the deterministic CBOR encoding format.
	ArtifactEncodingCBOR
)

// String returns the name of the encoding as accepted by ParseEncoding.
func (e ArtifactEncoding) String() string {
	switch e {
	case ArtifactEncodingJSON:
		return "json"
	case ArtifactEncodingCBOR:
		return "cbor"
	default:
		return fmt.Sprintf("unknown(%d)", int(e))
	}
}

// ParseEncoding returns the encoding with the provided name, case
// insensitive.
func ParseEncoding(name string) (ArtifactEncoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "json":
		return ArtifactEncodingJSON, nil
	case "cbor":
		return ArtifactEncodingCBOR, nil
	default:
		return 0, fmt.Errorf("unknown artifact encoding: %q", name)
	}
}

// EncodeArtifact encodes an artifact into the specified encoding format. If
// no format is specified, JSON is used.
func EncodeArtifact(a any, encoding ...ArtifactEncoding) ([]byte, error) {
	if len(encoding) == 0 {
		return EncodeArtifactJSON(a)
	}
	switch encoding[0] {
	case ArtifactEncodingJSON:
		return EncodeArtifactJSON(a)
	case ArtifactEncodingCBOR:
		return EncodeArtifactCBOR(a)
	default:
		return nil, fmt.Errorf("unknown artifact encoding: %s", encoding[0])
	}
}

// DecodeArtifact decodes an artifact from the specified format. If no format
// is specified, JSON is used.
func DecodeArtifact(data []byte, out any, encoding ...ArtifactEncoding) error {
	if len(encoding) == 0 {
		return DecodeArtifactJSON(data, out)
	}
	switch encoding[0] {
	case ArtifactEncodingJSON:
		return DecodeArtifactJSON(data, out)
	case ArtifactEncodingCBOR:
		return DecodeArtifactCBOR(data, out)
	default:
		return fmt.Errorf("unknown artifact encoding: %s", encoding[0])
	}
}

// EncodeArtifactCBOR encodes an artifact into deterministic CBOR, so the
// same witness always produces the same bytes.
func EncodeArtifactCBOR(a any) ([]byte, error) {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	return em.Marshal(a)
}

// DecodeArtifactCBOR decodes a CBOR-encoded artifact into the provided output
// variable.
func DecodeArtifactCBOR(data []byte, out any) error {
	return cbor.Unmarshal(data, out)
}

// EncodeArtifactJSON encodes an artifact into JSON, indented with two
// spaces.
func EncodeArtifactJSON(a any) ([]byte, error) {
	return json.MarshalIndent(a, "", "  ")
}

// DecodeArtifactJSON decodes a JSON-encoded artifact into the provided output
// variable.
func DecodeArtifactJSON(data []byte, out any) error {
	return json.Unmarshal(data, out)
}
