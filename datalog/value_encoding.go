package datalog

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Value tags in the canonical encoding. Numbers split by representation
// so decoding restores the exact normalized value.
//
// Integers and time seconds are stored big-endian with the sign bit
// flipped, so within one tag, byte order follows numeric order. Times keep
// whole seconds and nanoseconds apart so every representable time.Time
// round-trips, not only the UnixNano range.
const (
	tagInt    byte = 'i'
	tagFloat  byte = 'f'
	tagString byte = 's'
	tagBool   byte = 'b'
	tagTime   byte = 't'
)

const signBit = uint64(1) << 63

// EncodeRecord serializes a record canonically: fields in sorted order,
// each value tagged with its representation. Structurally equal records
// always produce identical bytes, so the encoding doubles as a set key.
//
// Values must already be normalized (see Normalize).
func EncodeRecord(r Record) []byte {
	fields := r.Fields()
	buf := make([]byte, 0, 16*len(fields)+1)
	buf = binary.AppendUvarint(buf, uint64(len(fields)))
	for _, f := range fields {
		buf = binary.AppendUvarint(buf, uint64(len(f)))
		buf = append(buf, f...)
		buf = AppendValue(buf, r[f])
	}
	return buf
}

// AppendValue appends the tagged encoding of one normalized value
func AppendValue(buf []byte, v Value) []byte {
	switch val := v.(type) {
	case int64:
		buf = append(buf, tagInt)
		return binary.BigEndian.AppendUint64(buf, uint64(val)^signBit)
	case float64:
		buf = append(buf, tagFloat)
		return binary.BigEndian.AppendUint64(buf, math.Float64bits(val))
	case string:
		buf = append(buf, tagString)
		buf = binary.AppendUvarint(buf, uint64(len(val)))
		return append(buf, val...)
	case bool:
		buf = append(buf, tagBool)
		if val {
			return append(buf, 1)
		}
		return append(buf, 0)
	case time.Time:
		buf = append(buf, tagTime)
		buf = binary.BigEndian.AppendUint64(buf, uint64(val.Unix())^signBit)
		return binary.BigEndian.AppendUint32(buf, uint32(val.Nanosecond()))
	default:
		panic(fmt.Sprintf("cannot encode value type: %T", v))
	}
}

// DecodeRecord reverses EncodeRecord
func DecodeRecord(data []byte) (Record, error) {
	n, off := binary.Uvarint(data)
	if off <= 0 {
		return nil, fmt.Errorf("decode record: bad field count")
	}
	r := make(Record, n)
	for i := uint64(0); i < n; i++ {
		l, k := binary.Uvarint(data[off:])
		if k <= 0 || off+k+int(l) > len(data) {
			return nil, fmt.Errorf("decode record: bad field name at offset %d", off)
		}
		off += k
		name := string(data[off : off+int(l)])
		off += int(l)
		v, used, err := decodeValue(data[off:])
		if err != nil {
			return nil, fmt.Errorf("decode record: field %q: %w", name, err)
		}
		off += used
		r[name] = v
	}
	if off != len(data) {
		return nil, fmt.Errorf("decode record: %d trailing bytes", len(data)-off)
	}
	return r, nil
}

func decodeValue(data []byte) (Value, int, error) {
	if len(data) == 0 {
		return nil, 0, fmt.Errorf("missing value tag")
	}
	tag, body := data[0], data[1:]
	switch tag {
	case tagInt, tagFloat:
		if len(body) < 8 {
			return nil, 0, fmt.Errorf("value must be 8 bytes, got %d", len(body))
		}
		bits := binary.BigEndian.Uint64(body)
		if tag == tagInt {
			return int64(bits ^ signBit), 9, nil
		}
		return math.Float64frombits(bits), 9, nil
	case tagTime:
		if len(body) < 12 {
			return nil, 0, fmt.Errorf("time value must be 12 bytes, got %d", len(body))
		}
		sec := int64(binary.BigEndian.Uint64(body) ^ signBit)
		nsec := binary.BigEndian.Uint32(body[8:])
		if nsec >= 1e9 {
			return nil, 0, fmt.Errorf("time nanoseconds out of range: %d", nsec)
		}
		return time.Unix(sec, int64(nsec)).UTC(), 13, nil
	case tagString:
		l, k := binary.Uvarint(body)
		if k <= 0 || k+int(l) > len(body) {
			return nil, 0, fmt.Errorf("bad string length")
		}
		return string(body[k : k+int(l)]), 1 + k + int(l), nil
	case tagBool:
		if len(body) < 1 {
			return nil, 0, fmt.Errorf("bool value must be 1 byte")
		}
		return body[0] != 0, 2, nil
	}
	return nil, 0, fmt.Errorf("unknown value tag %q", tag)
}
