package osc

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

const (
	bundleTag = "#bundle\x00"

	// maxBundleDepth bounds how deeply bundles may nest inside one datagram.
	maxBundleDepth = 16
)

// ParseDatagram parses one UDP payload. A plain message yields a single
// element; a bundle is flattened depth-first into the messages it carries,
// without regard to its time tag. Any malformed input is reported as a
// *DecodeError.
//
// Blobs may be any length the datagram can hold, including zero.
func ParseDatagram(data []byte) ([]Message, error) {
	if len(data) == 0 {
		return nil, decodeErrorf("empty datagram")
	}
	return parsePacket(data, nil, 0)
}

func parsePacket(data []byte, out []Message, depth int) ([]Message, error) {
	switch {
	case data[0] == '/':
		msg, err := parseMessage(data)
		if err != nil {
			return nil, err
		}
		return append(out, msg), nil
	case bytes.HasPrefix(data, []byte(bundleTag)):
		return parseBundle(data, out, depth)
	default:
		return nil, decodeErrorf("malformed OSC packet: starts with %q", data[0])
	}
}

func parseBundle(data []byte, out []Message, depth int) ([]Message, error) {
	if depth >= maxBundleDepth {
		return nil, decodeErrorf("bundles nested deeper than %d", maxBundleDepth)
	}

	r := wireReader{data: data, pos: len(bundleTag)}
	if _, err := r.uint64("bundle time tag"); err != nil {
		return nil, err
	}

	for r.remaining() > 0 {
		size, err := r.int32("bundle element size")
		if err != nil {
			return nil, err
		}
		if size <= 0 || int(size) > r.remaining() {
			return nil, decodeErrorf("bundle element size %d with %d bytes remaining", size, r.remaining())
		}
		var perr error
		if out, perr = parsePacket(r.next(int(size)), out, depth+1); perr != nil {
			return nil, perr
		}
	}
	return out, nil
}

func parseMessage(data []byte) (Message, error) {
	r := wireReader{data: data}

	address, err := r.string("address")
	if err != nil {
		return Message{}, err
	}

	// Messages from OSC 1.0 senders that predate type tags carry no arguments.
	if r.remaining() == 0 {
		return Message{Address: address, Arguments: []Value{}}, nil
	}

	tags, err := r.string("type tags")
	if err != nil {
		return Message{}, err
	}
	if !strings.HasPrefix(tags, ",") {
		return Message{}, decodeErrorf("%s: type tags %q do not start with ','", address, tags)
	}

	args := make([]Value, 0, len(tags)-1)
	for i, tag := range []byte(tags[1:]) {
		arg, err := r.argument(tag)
		if err != nil {
			return Message{}, decodeErrorf("argument %d of %s: %s", i, address, err.Reason)
		}
		args = append(args, arg)
	}

	return Message{Address: address, Arguments: args}, nil
}

type wireReader struct {
	data []byte
	pos  int
}

func (r *wireReader) remaining() int { return len(r.data) - r.pos }

func (r *wireReader) next(n int) []byte {
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *wireReader) need(n int, what string) *DecodeError {
	if n > r.remaining() {
		return decodeErrorf("truncated %s: need %d bytes, have %d", what, n, r.remaining())
	}
	return nil
}

func (r *wireReader) int32(what string) (int32, *DecodeError) {
	if err := r.need(4, what); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(r.next(4))), nil
}

func (r *wireReader) uint64(what string) (uint64, *DecodeError) {
	if err := r.need(8, what); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(r.next(8)), nil
}

func (r *wireReader) string(what string) (string, *DecodeError) {
	end := bytes.IndexByte(r.data[r.pos:], 0)
	if end < 0 {
		return "", decodeErrorf("unterminated %s", what)
	}
	if err := r.need(padded(end+1), what); err != nil {
		return "", err
	}
	s := string(r.data[r.pos : r.pos+end])
	r.pos += padded(end + 1)
	return s, nil
}

func (r *wireReader) blob() ([]byte, *DecodeError) {
	size, err := r.int32("blob size")
	if err != nil {
		return nil, err
	}
	if size < 0 {
		return nil, decodeErrorf("negative blob size %d", size)
	}
	if err := r.need(padded(int(size)), "blob"); err != nil {
		return nil, err
	}
	b := r.data[r.pos : r.pos+int(size)]
	r.pos += padded(int(size))
	return b, nil
}

func (r *wireReader) argument(tag byte) (Value, *DecodeError) {
	switch tag {
	case 'i':
		v, err := r.int32("int32")
		return Int32(v), err
	case 'f':
		v, err := r.int32("float32")
		return Float32(math.Float32frombits(uint32(v))), err
	case 's', 'S':
		v, err := r.string("string")
		return String(v), err
	case 'b':
		v, err := r.blob()
		return Bytes(v), err
	case 'h':
		v, err := r.uint64("int64")
		return Int64(int64(v)), err
	case 'd':
		v, err := r.uint64("float64")
		return Float64(math.Float64frombits(v)), err
	case 't':
		v, err := r.uint64("time tag")
		return Timetag(v), err
	case 'T':
		return Bool(true), nil
	case 'F':
		return Bool(false), nil
	case 'N':
		return Nil(), nil
	default:
		return Value{}, decodeErrorf("unsupported OSC type tag %q", tag)
	}
}

// padded rounds n up to the next multiple of four.
func padded(n int) int {
	return (n + 3) &^ 3
}

// MarshalBinary encodes the message in the OSC 1.0 binary format.
func (m Message) MarshalBinary() ([]byte, error) {
	if strings.IndexByte(m.Address, 0) >= 0 {
		return nil, fmt.Errorf("failed to encode OSC message %q: address contains NUL", m.Address)
	}

	tags := make([]byte, 1, len(m.Arguments)+1)
	tags[0] = ','
	for i, arg := range m.Arguments {
		tag, err := arg.typeTag()
		if err != nil {
			return nil, fmt.Errorf("failed to encode OSC message %s: argument %d: %w", m.Address, i, err)
		}
		tags = append(tags, tag)
	}

	b := appendString(nil, m.Address)
	b = appendString(b, string(tags))
	for _, arg := range m.Arguments {
		b = arg.appendBinary(b)
	}
	return b, nil
}

func (v Value) typeTag() (byte, error) {
	switch v.kind {
	case KindInt32:
		return 'i', nil
	case KindFloat32:
		return 'f', nil
	case KindString:
		if strings.IndexByte(v.s, 0) >= 0 {
			return 0, fmt.Errorf("string %q contains NUL", v.s)
		}
		return 's', nil
	case KindBytes:
		if len(v.b) > math.MaxInt32 {
			return 0, fmt.Errorf("blob of %d bytes is too large", len(v.b))
		}
		return 'b', nil
	case KindInt64:
		return 'h', nil
	case KindFloat64:
		return 'd', nil
	case KindBool:
		if v.Bool() {
			return 'T', nil
		}
		return 'F', nil
	case KindNil:
		return 'N', nil
	case KindTimetag:
		return 't', nil
	default:
		return 0, fmt.Errorf("unsupported kind %s", v.kind)
	}
}

func (v Value) appendBinary(b []byte) []byte {
	switch v.kind {
	case KindInt32:
		return binary.BigEndian.AppendUint32(b, uint32(v.Int32()))
	case KindFloat32:
		return binary.BigEndian.AppendUint32(b, math.Float32bits(v.Float32()))
	case KindString:
		return appendString(b, v.s)
	case KindBytes:
		b = binary.BigEndian.AppendUint32(b, uint32(len(v.b)))
		b = append(b, v.b...)
		return appendPadding(b, len(v.b))
	case KindInt64, KindTimetag:
		return binary.BigEndian.AppendUint64(b, uint64(v.i))
	case KindFloat64:
		return binary.BigEndian.AppendUint64(b, math.Float64bits(v.f))
	default:
		return b
	}
}

func appendString(b []byte, s string) []byte {
	b = append(b, s...)
	b = append(b, 0)
	return appendPadding(b, len(s)+1)
}

func appendPadding(b []byte, n int) []byte {
	for range padded(n) - n {
		b = append(b, 0)
	}
	return b
}
