package codec

import (
	"bytes"
	"encoding/binary"
	"reflect"

	"github.com/vmihailenco/msgpack/v4"
	"github.com/vmihailenco/msgpack/v4/codes"

	"github.com/icon-project/goagree/common/errors"
)

const (
	// FrameVersion is the only frame version this node speaks.
	FrameVersion byte = 1

	FrameHeaderSize = 5
	MaxPayloadSize  = 16 * 1024 * 1024
)

var (
	ErrFrameVersion = errors.NewBase(errors.IllegalArgumentError, "UnsupportedFrameVersion")
	ErrFrameLength  = errors.NewBase(errors.IllegalArgumentError, "InvalidFrameLength")
)

// Frame prefixes the payload with [version:1][length:4 big-endian].
func Frame(payload []byte) []byte {
	bs := make([]byte, FrameHeaderSize+len(payload))
	bs[0] = FrameVersion
	binary.BigEndian.PutUint32(bs[1:FrameHeaderSize], uint32(len(payload)))
	copy(bs[FrameHeaderSize:], payload)
	return bs
}

// Unframe checks the header and returns the payload. Trailing bytes after
// the declared payload are rejected.
func Unframe(bs []byte) ([]byte, error) {
	if len(bs) < FrameHeaderSize {
		return nil, errors.WithStack(ErrFrameLength)
	}
	if bs[0] != FrameVersion {
		return nil, errors.Wrapc(ErrFrameVersion, errors.IllegalArgumentError,
			"unsupported frame version")
	}
	size := binary.BigEndian.Uint32(bs[1:FrameHeaderSize])
	if size > MaxPayloadSize || int(size) != len(bs)-FrameHeaderSize {
		return nil, errors.Wrapcf(ErrFrameLength, errors.IllegalArgumentError,
			"frame length mismatch declared=%d actual=%d", size, len(bs)-FrameHeaderSize)
	}
	return bs[FrameHeaderSize:], nil
}

// EncodeFrame encodes v with MP and frames the result.
func EncodeFrame(v interface{}) ([]byte, error) {
	payload, err := MP.MarshalToBytes(v)
	if err != nil {
		return nil, err
	}
	return Frame(payload), nil
}

func MustEncodeFrame(v interface{}) []byte {
	return Frame(MP.MustMarshalToBytes(v))
}

// DecodeFrame unframes bs and decodes exactly one value from its payload.
// A struct target needs an array with one element per field.
func DecodeFrame(bs []byte, v interface{}) error {
	payload, err := Unframe(bs)
	if err != nil {
		return err
	}
	if err := checkArrayLen(payload, v); err != nil {
		return err
	}
	remain, err := MP.UnmarshalFromBytes(payload, v)
	if err != nil {
		return err
	}
	if len(remain) != 0 {
		return errors.IllegalArgumentError.Errorf("trailing %d bytes after payload", len(remain))
	}
	return nil
}

func checkArrayLen(payload []byte, v interface{}) error {
	t := reflect.TypeOf(v)
	if t == nil || t.Kind() != reflect.Ptr || t.Elem().Kind() != reflect.Struct {
		return nil
	}
	d := msgpack.NewDecoder(bytes.NewReader(payload))
	c, err := d.PeekCode()
	if err != nil {
		return nil
	}
	if !codes.IsFixedArray(c) && c != codes.Array16 && c != codes.Array32 {
		return nil
	}
	n, err := d.DecodeArrayLen()
	if err != nil {
		return errors.IllegalArgumentError.Wrap(err, "array length")
	}
	if want := encodedFields(t.Elem()); n != want {
		return errors.IllegalArgumentError.Errorf("%s has %d fields, payload has %d",
			t.Elem().Name(), want, n)
	}
	return nil
}

// encodedFields counts the fields msgpack writes for a struct of type t.
func encodedFields(t reflect.Type) int {
	var n int
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		tag := f.Tag.Get("msgpack")
		if tag == "-" {
			continue
		}
		if f.Anonymous && tag == "" && f.Type.Kind() == reflect.Struct {
			n += encodedFields(f.Type)
			continue
		}
		if f.PkgPath != "" {
			continue
		}
		n++
	}
	return n
}
