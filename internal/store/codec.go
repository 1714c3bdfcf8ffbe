package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cchasing/openmc/pkg/crypto/adaptive"
)

// formatVersion is the container format version, independent of the
// checkpoint schema version carried inside the tree.
const formatVersion = 1

// fileMagic identifies a container file.
var fileMagic = []byte("OMCHDF\x01\x00")

const (
	magicLen    = 8
	lenFieldLen = 4
	checksumLen = sha256.Size
)

// containerHeader is the cleartext header frame. The body may be
// encrypted; the header never is, so a reader can tell whether it needs
// a cipher before touching the body.
type containerHeader struct {
	FormatVersion int    `json:"format_version"`
	CreatedAt     string `json:"created_at"`
	Encrypted     bool   `json:"encrypted"`
}

// encodeContainer serializes the tree into the on-disk container layout.
func encodeContainer(root *node, cipher adaptive.Cipher) ([]byte, error) {
	body, err := json.Marshal(root)
	if err != nil {
		return nil, fmt.Errorf("store: marshal tree: %w", err)
	}

	if cipher != nil {
		body, err = cipher.Encrypt(body, fileMagic)
		if err != nil {
			return nil, fmt.Errorf("store: encrypt body: %w", err)
		}
	}

	hdr, err := json.Marshal(containerHeader{
		FormatVersion: formatVersion,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
		Encrypted:     cipher != nil,
	})
	if err != nil {
		return nil, fmt.Errorf("store: marshal header: %w", err)
	}

	buf := bytes.NewBuffer(make([]byte, 0, magicLen+2*lenFieldLen+len(hdr)+len(body)+checksumLen))
	buf.Write(fileMagic)
	binary.Write(buf, binary.BigEndian, uint32(len(hdr)))
	buf.Write(hdr)
	binary.Write(buf, binary.BigEndian, uint32(len(body)))
	buf.Write(body)

	sum := sha256.Sum256(buf.Bytes())
	buf.Write(sum[:])

	return buf.Bytes(), nil
}

// decodeContainer parses and verifies a container image. The checksum is
// verified before anything else is interpreted.
func decodeContainer(raw []byte, cipher adaptive.Cipher) (*node, error) {
	if len(raw) < magicLen+2*lenFieldLen+checksumLen {
		return nil, ErrTruncated
	}

	payload, trailer := raw[:len(raw)-checksumLen], raw[len(raw)-checksumLen:]
	sum := sha256.Sum256(payload)
	if !bytes.Equal(sum[:], trailer) {
		return nil, ErrChecksum
	}

	if !bytes.Equal(payload[:magicLen], fileMagic) {
		return nil, ErrBadMagic
	}
	rest := payload[magicLen:]

	hdrLen := binary.BigEndian.Uint32(rest[:lenFieldLen])
	rest = rest[lenFieldLen:]
	if uint32(len(rest)) < hdrLen+lenFieldLen {
		return nil, ErrTruncated
	}

	var hdr containerHeader
	if err := json.Unmarshal(rest[:hdrLen], &hdr); err != nil {
		return nil, fmt.Errorf("store: parse header: %w", err)
	}
	if hdr.FormatVersion != formatVersion {
		return nil, fmt.Errorf("store: unsupported container format version %d", hdr.FormatVersion)
	}
	rest = rest[hdrLen:]

	bodyLen := binary.BigEndian.Uint32(rest[:lenFieldLen])
	rest = rest[lenFieldLen:]
	if uint32(len(rest)) != bodyLen {
		return nil, ErrTruncated
	}
	body := rest

	if hdr.Encrypted {
		if cipher == nil {
			return nil, ErrEncrypted
		}
		var err error
		body, err = cipher.Decrypt(body, fileMagic)
		if err != nil {
			return nil, fmt.Errorf("store: decrypt body: %w", err)
		}
	}

	root := &node{}
	if err := json.Unmarshal(body, root); err != nil {
		return nil, fmt.Errorf("store: parse tree: %w", err)
	}
	root.normalize()
	return root, nil
}
