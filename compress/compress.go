// Package compress provides the pluggable fragment-byte transformers
// backends may apply before Commit and after Retrieve (§4.4's optional
// compression stage). Two codecs are wired in from the pack: gzip via the
// klauspost fork (the same package the teacher uses throughout its BAM/BGZF
// code, see encoding/bam/gindex.go) for a general-purpose ratio/speed
// tradeoff, and snappy for a fast, low-ratio codec suited to backends that
// are bandwidth-bound rather than capacity-bound.
package compress

import (
	"bytes"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
)

// Codec name.
type Codec int

const (
	// None passes bytes through unchanged.
	None Codec = iota
	Gzip
	Snappy
)

func (c Codec) String() string {
	switch c {
	case Gzip:
		return "gzip"
	case Snappy:
		return "snappy"
	default:
		return "none"
	}
}

// Encode compresses src with codec.
func Encode(codec Codec, src []byte) ([]byte, error) {
	switch codec {
	case None:
		return src, nil
	case Snappy:
		return snappy.Encode(nil, src), nil
	case Gzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(src); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, errUnknownCodec(codec)
	}
}

// Decode decompresses src, which must have been produced by Encode with the
// same codec. dstLen, if non-zero, pre-sizes the output buffer for Gzip;
// None and Snappy ignore it.
func Decode(codec Codec, src []byte, dstLen int) ([]byte, error) {
	switch codec {
	case None:
		return src, nil
	case Snappy:
		return snappy.Decode(nil, src)
	case Gzip:
		r, err := gzip.NewReader(bytes.NewReader(src))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		out := make([]byte, 0, dstLen)
		buf := bytes.NewBuffer(out)
		if _, err := io.Copy(buf, r); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, errUnknownCodec(codec)
	}
}

type errUnknownCodec Codec

func (e errUnknownCodec) Error() string { return "compress: unknown codec" }
