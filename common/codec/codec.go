package codec

import (
	"bytes"
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v4"

	"github.com/icon-project/goagree/common/errors"
	"github.com/icon-project/goagree/common/log"
)

type Codec interface {
	Marshal(w io.Writer, v interface{}) error
	Unmarshal(r io.Reader, v interface{}) error
	MarshalToBytes(v interface{}) ([]byte, error)
	UnmarshalFromBytes(b []byte, v interface{}) ([]byte, error)
}

// MP encodes structures as msgpack arrays. Keys are sorted only for
// map[string]string and map[string]interface{}; other map types encode in
// iteration order and must stay out of signed content.
var MP = newMPCodec()

type mpEncoder struct {
	*msgpack.Encoder
	buffer *bytes.Buffer
}

type mpCodec struct {
	encoders sync.Pool
}

func newMPEncoder(w io.Writer) *msgpack.Encoder {
	e := msgpack.NewEncoder(w)
	e.StructAsArray(true)
	e.SortMapKeys(true)
	e.UseCompactEncoding(true)
	return e
}

func newMPCodec() *mpCodec {
	return &mpCodec{
		encoders: sync.Pool{
			New: func() interface{} {
				buffer := bytes.NewBuffer(nil)
				return &mpEncoder{
					Encoder: newMPEncoder(buffer),
					buffer:  buffer,
				}
			},
		},
	}
}

func (c *mpCodec) Marshal(w io.Writer, v interface{}) error {
	return newMPEncoder(w).Encode(v)
}

func (c *mpCodec) Unmarshal(r io.Reader, v interface{}) error {
	return msgpack.NewDecoder(r).Decode(v)
}

func (c *mpCodec) MarshalToBytes(v interface{}) ([]byte, error) {
	e := c.encoders.Get().(*mpEncoder)
	defer c.encoders.Put(e)

	e.buffer.Reset()
	if err := e.Encode(v); err != nil {
		return nil, err
	}
	return bytesDup(e.buffer.Bytes()), nil
}

// UnmarshalFromBytes decodes one value and returns the remaining bytes.
func (c *mpCodec) UnmarshalFromBytes(b []byte, v interface{}) ([]byte, error) {
	buf := bytes.NewBuffer(b)
	if err := msgpack.NewDecoder(buf).Decode(v); err != nil {
		return b, errors.IllegalArgumentError.Wrap(err, "msgpack decode")
	}
	return buf.Bytes(), nil
}

func (c *mpCodec) MustMarshalToBytes(v interface{}) []byte {
	bs, err := c.MarshalToBytes(v)
	if err != nil {
		log.Panicf("MustMarshalToBytes() fails for object=%T err=%+v", v, err)
	}
	return bs
}

func bytesDup(bs []byte) []byte {
	if len(bs) == 0 {
		return []byte{}
	}
	nbs := make([]byte, len(bs))
	copy(nbs, bs)
	return nbs
}

func MarshalToBytes(v interface{}) ([]byte, error) {
	return MP.MarshalToBytes(v)
}

func MustMarshalToBytes(v interface{}) []byte {
	return MP.MustMarshalToBytes(v)
}

func UnmarshalFromBytes(b []byte, v interface{}) ([]byte, error) {
	return MP.UnmarshalFromBytes(b, v)
}
