package jsonx

import (
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"unicode"
	"unsafe"

	jsoniter "github.com/json-iterator/go"
)

var (
	bigIntType   = reflect.TypeOf((*big.Int)(nil))
	bigFloatType = reflect.TypeOf((*big.Float)(nil))
)

type fieldExtension struct {
	jsoniter.DummyExtension
}

func (e *fieldExtension) UpdateStructDescriptor(desc *jsoniter.StructDescriptor) {
	for _, binding := range desc.Fields {
		tag := binding.Field.Tag().Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		if name == "" {
			name = binding.Field.Name()
		}
		if camel := toLowerCamel(name); camel != name {
			binding.ToNames = []string{camel}
			binding.FromNames = []string{camel, name}
		}

		if strings.Contains(opts, "string") {
			continue
		}
		switch typ := binding.Field.Type(); {
		case typ.Kind() == reflect.Int64:
			binding.Encoder, binding.Decoder = int64Codec{}, int64Codec{}
		case typ.Kind() == reflect.Uint64:
			binding.Encoder, binding.Decoder = uint64Codec{}, uint64Codec{}
		case typ.Type1() == bigIntType:
			binding.Encoder, binding.Decoder = bigIntCodec{}, bigIntCodec{}
		case typ.Type1() == bigFloatType:
			binding.Encoder, binding.Decoder = bigFloatCodec{}, bigFloatCodec{}
		}
	}
}

// toLowerCamel turns snake_case and PascalCase names into lowerCamelCase.
func toLowerCamel(s string) string {
	var sb strings.Builder
	upper := false
	for _, r := range s {
		if r == '_' {
			upper = sb.Len() > 0
			continue
		}
		switch {
		case sb.Len() == 0:
			sb.WriteRune(unicode.ToLower(r))
		case upper:
			sb.WriteRune(unicode.ToUpper(r))
		default:
			sb.WriteRune(r)
		}
		upper = false
	}
	return sb.String()
}

type int64Codec struct{}

func (int64Codec) IsEmpty(ptr unsafe.Pointer) bool { return *(*int64)(ptr) == 0 }

func (int64Codec) Encode(ptr unsafe.Pointer, stream *jsoniter.Stream) {
	stream.WriteString(strconv.FormatInt(*(*int64)(ptr), 10))
}

func (int64Codec) Decode(ptr unsafe.Pointer, iter *jsoniter.Iterator) {
	switch iter.WhatIsNext() {
	case jsoniter.StringValue:
		v, err := strconv.ParseInt(iter.ReadString(), 10, 64)
		if err != nil {
			iter.ReportError("decode int64", err.Error())
			return
		}
		*(*int64)(ptr) = v
	case jsoniter.NumberValue:
		*(*int64)(ptr) = iter.ReadInt64()
	default:
		iter.Skip()
	}
}

type uint64Codec struct{}

func (uint64Codec) IsEmpty(ptr unsafe.Pointer) bool { return *(*uint64)(ptr) == 0 }

func (uint64Codec) Encode(ptr unsafe.Pointer, stream *jsoniter.Stream) {
	stream.WriteString(strconv.FormatUint(*(*uint64)(ptr), 10))
}

func (uint64Codec) Decode(ptr unsafe.Pointer, iter *jsoniter.Iterator) {
	switch iter.WhatIsNext() {
	case jsoniter.StringValue:
		v, err := strconv.ParseUint(iter.ReadString(), 10, 64)
		if err != nil {
			iter.ReportError("decode uint64", err.Error())
			return
		}
		*(*uint64)(ptr) = v
	case jsoniter.NumberValue:
		*(*uint64)(ptr) = iter.ReadUint64()
	default:
		iter.Skip()
	}
}

// bigIntCodec writes a decimal string.
type bigIntCodec struct{}

func (bigIntCodec) IsEmpty(ptr unsafe.Pointer) bool { return *(**big.Int)(ptr) == nil }

func (bigIntCodec) Encode(ptr unsafe.Pointer, stream *jsoniter.Stream) {
	v := *(**big.Int)(ptr)
	if v == nil {
		stream.WriteNil()
		return
	}
	stream.WriteString(v.String())
}

func (bigIntCodec) Decode(ptr unsafe.Pointer, iter *jsoniter.Iterator) {
	switch iter.WhatIsNext() {
	case jsoniter.NilValue:
		iter.ReadNil()
		*(**big.Int)(ptr) = nil
	case jsoniter.StringValue, jsoniter.NumberValue:
		var s string
		if iter.WhatIsNext() == jsoniter.StringValue {
			s = iter.ReadString()
		} else {
			s = string(iter.ReadNumber())
		}
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			iter.ReportError("decode big.Int", "malformed integer "+s)
			return
		}
		*(**big.Int)(ptr) = v
	default:
		iter.Skip()
	}
}

// bigFloatCodec writes the exact hexadecimal mantissa/exponent text ('p' format),
// so a decoded value is bit-identical to the encoded one.
type bigFloatCodec struct{}

func (bigFloatCodec) IsEmpty(ptr unsafe.Pointer) bool { return *(**big.Float)(ptr) == nil }

func (bigFloatCodec) Encode(ptr unsafe.Pointer, stream *jsoniter.Stream) {
	v := *(**big.Float)(ptr)
	if v == nil {
		stream.WriteNil()
		return
	}
	stream.WriteString(FloatText(v))
}

func (bigFloatCodec) Decode(ptr unsafe.Pointer, iter *jsoniter.Iterator) {
	switch iter.WhatIsNext() {
	case jsoniter.NilValue:
		iter.ReadNil()
		*(**big.Float)(ptr) = nil
	case jsoniter.StringValue:
		s := iter.ReadString()
		v, err := ParseFloatText(s)
		if err != nil {
			iter.ReportError("decode big.Float", err.Error())
			return
		}
		*(**big.Float)(ptr) = v
	default:
		iter.Skip()
	}
}

func FloatText(v *big.Float) string {
	return v.Text('p', 0)
}

func ParseFloatText(s string) (*big.Float, error) {
	prec := uint(max(64, 4*len(s)))
	v, _, err := big.ParseFloat(s, 0, prec, big.ToNearestEven)
	return v, err
}
