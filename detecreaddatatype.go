package tissuedge

import (
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/krolaw/zipstream"
	"github.com/xi2/xz"
)

type DataType byte

const (
	DataTypeInvalid DataType = iota
	DataTypeNoCompression
	DataTypeGzip
	DataTypeZip
	DataTypeXZ
	DataTypeZ
	DataTypeBZip2
)

func (dt DataType) String() string {
	switch dt {
	case DataTypeNoCompression:
		return "uncompressed"
	case DataTypeGzip:
		return "gzip"
	case DataTypeZip:
		return "zip"
	case DataTypeXZ:
		return "xz"
	case DataTypeZ:
		return "zlib"
	case DataTypeBZip2:
		return "bzip2"
	}

	return "invalid"
}

var byteCodeSigs = map[DataType][]byte{
	DataTypeGzip:  {0x1f, 0x8b, 0x08},
	DataTypeZip:   {0x50, 0x4b, 0x03, 0x04},
	DataTypeXZ:    {0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00},
	DataTypeZ:     {0x78},
	DataTypeBZip2: {0x42, 0x5a, 0x68},
}

// DetectDataType attempts to detect the data type of a stream from its first
// bytes by checking against a set of known signatures. Byte code signatures
// from https://stackoverflow.com/a/19127748/199475
func DetectDataType(head []byte) DataType {
	if len(head) == 0 {
		return DataTypeInvalid
	}

Outer:
	for dt, sig := range byteCodeSigs {
		if len(head) < len(sig) {
			continue
		}
		for position := range sig {
			if head[position] != sig[position] {
				continue Outer
			}
		}

		// A lone 0x78 is also the letter 'x'. Only accept it as zlib when the
		// header checksum is valid.
		if dt == DataTypeZ && (len(head) < 2 || (uint16(head[0])<<8|uint16(head[1]))%31 != 0) {
			continue
		}

		return dt
	}

	return DataTypeNoCompression
}

// MaybeDecompressReader peeks at the start of r and, if it carries a known
// compression signature, wraps it in the matching decompressor. Unlike a file
// based check this never seeks, so it also works for object storage streams.
func MaybeDecompressReader(r io.Reader) (io.Reader, DataType, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(6)
	if err != nil && err != io.EOF {
		return nil, DataTypeInvalid, err
	}

	dt := DetectDataType(head)
	switch dt {
	case DataTypeInvalid:
		return nil, dt, fmt.Errorf("empty input")
	case DataTypeGzip:
		gz, err := gzip.NewReader(br)
		return gz, dt, err
	case DataTypeZip:
		// Expression tables are shipped as single-member archives; read the
		// first member.
		zr := zipstream.NewReader(br)
		if _, err := zr.Next(); err != nil {
			return nil, dt, err
		}
		return zr, dt, nil
	case DataTypeBZip2:
		return bzip2.NewReader(br), dt, nil
	case DataTypeXZ:
		reader, err := xz.NewReader(br, 0)
		return reader, dt, err
	case DataTypeZ:
		zl, err := zlib.NewReader(br)
		return zl, dt, err
	}

	// No data type detected. For now, we assume this is uncompressed.
	return br, dt, nil
}
