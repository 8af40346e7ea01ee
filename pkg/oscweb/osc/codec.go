package osc

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// DecodeOSC converts a message into its JSON document. It never fails: every
// kind has a JSON form. Blobs are wrapped with WrapBytes; float kinds always
// carry a decimal point or exponent; NaN and infinities, which JSON cannot
// express, become null.
func DecodeOSC(msg Message) Document {
	values := make([]any, len(msg.Arguments))
	for i, arg := range msg.Arguments {
		values[i] = jsonValue(arg)
	}
	return Document{Address: msg.Address, V: values}
}

func jsonValue(v Value) any {
	switch v.kind {
	case KindInt32, KindInt64:
		return json.Number(strconv.FormatInt(v.i, 10))
	case KindFloat32:
		return floatNumber(v.f, 32)
	case KindFloat64:
		return floatNumber(v.f, 64)
	case KindString:
		return v.s
	case KindBytes:
		return WrapBytes(v.b)
	case KindBool:
		return v.Bool()
	case KindTimetag:
		return json.Number(strconv.FormatUint(uint64(v.i), 10))
	default:
		return nil
	}
}

func floatNumber(f float64, bitSize int) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}

	abs := math.Abs(f)
	format := byte('f')
	if abs != 0 && (abs < 1e-4 || abs >= 1e21) {
		format = 'g'
	}

	s := strconv.FormatFloat(f, format, -1, bitSize)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return json.Number(s)
}

// EncodeOSC converts a document into a message for the downstream peer.
//
// JSON integers become Int32, or Int64 outside the int32 range; numbers with a
// fraction or exponent become Float32; strings, booleans and null map to
// String, Bool and Nil. Objects and arrays, including blob wrappers, are not
// transmissible and yield a *DecodeError, as does an address that does not
// start with "/".
func EncodeOSC(doc Document) (Message, error) {
	if !strings.HasPrefix(doc.Address, "/") {
		return Message{}, decodeErrorf("address %q must start with \"/\"", doc.Address)
	}

	args := make([]Value, len(doc.V))
	for i, v := range doc.V {
		arg, err := oscValue(v)
		if err != nil {
			err.Reason = "argument " + strconv.Itoa(i) + ": " + err.Reason
			return Message{}, err
		}
		args[i] = arg
	}

	return Message{Address: doc.Address, Arguments: args}, nil
}

func oscValue(v any) (Value, *DecodeError) {
	switch t := v.(type) {
	case json.Number:
		return numberValue(string(t))
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case nil:
		return Nil(), nil
	case float64:
		return Float32(float32(t)), nil
	case float32:
		return Float32(t), nil
	case int:
		return intValue(int64(t)), nil
	case int32:
		return Int32(t), nil
	case int64:
		return intValue(t), nil
	case map[string]any:
		return Value{}, decodeErrorf("objects are not transmissible as OSC arguments")
	case []any:
		return Value{}, decodeErrorf("arrays are not transmissible as OSC arguments")
	default:
		return Value{}, decodeErrorf("unsupported argument type %T", v)
	}
}

func numberValue(s string) (Value, *DecodeError) {
	if !strings.ContainsAny(s, ".eE") {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return intValue(i), nil
		}
	}

	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return Value{}, &DecodeError{Reason: "invalid number " + strconv.Quote(s), Err: err}
	}
	return Float32(float32(f)), nil
}

func intValue(i int64) Value {
	if i >= math.MinInt32 && i <= math.MaxInt32 {
		return Int32(int32(i))
	}
	return Int64(i)
}
