package record

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrPayloadSize = errors.New("record: unexpected payload size")
	ErrBadMagic    = errors.New("record: bad magic")
)

// Kind is the wire type of a field.
type Kind uint8

const (
	KindUint16 Kind = iota + 1
	KindUint32
	KindInt64
	KindFloat32
)

// Width returns the encoded size of k in bytes.
func (k Kind) Width() int {
	switch k {
	case KindUint16:
		return 2
	case KindUint32, KindFloat32:
		return 4
	case KindInt64:
		return 8
	default:
		return 0
	}
}

// Field is one entry of a Schema.
type Field struct {
	ID   FieldID
	Kind Kind
}

// Layout selects which fields a schema carries.
type Layout int

const (
	// LayoutFull carries the magic header and timestamp before the payload.
	LayoutFull Layout = iota
	// LayoutBare carries the sensor payload only.
	LayoutBare
)

func (l Layout) String() string {
	switch l {
	case LayoutFull:
		return "full"
	case LayoutBare:
		return "bare"
	default:
		return fmt.Sprintf("Layout(%d)", int(l))
	}
}

// ParseLayout parses "full" or "bare".
func ParseLayout(s string) (Layout, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full":
		return LayoutFull, nil
	case "bare":
		return LayoutBare, nil
	default:
		return LayoutFull, fmt.Errorf("invalid record layout %q (allowed: full, bare)", s)
	}
}

var (
	headerFields = []Field{
		{ID: FieldMagic, Kind: KindUint32},
		{ID: FieldTimestamp, Kind: KindInt64},
	}
	payloadFields = []Field{
		{ID: FieldWeatherTemperature, Kind: KindFloat32},
		{ID: FieldWeatherPressure, Kind: KindFloat32},
		{ID: FieldWeatherHumidity, Kind: KindFloat32},
		{ID: FieldAirTemperature, Kind: KindFloat32},
		{ID: FieldAirECO2, Kind: KindUint16},
		{ID: FieldAirTVOC, Kind: KindUint16},
		{ID: FieldHumidityTemperature, Kind: KindFloat32},
		{ID: FieldHumidityHumidity, Kind: KindFloat32},
	}
)

// Schema is an ordered field list with a fixed byte order.
// All numbers are little-endian.
type Schema struct {
	layout Layout
	fields []Field
	size   int
}

var (
	Full = newSchema(LayoutFull, append(append([]Field(nil), headerFields...), payloadFields...))
	Bare = newSchema(LayoutBare, payloadFields)
)

func newSchema(l Layout, fields []Field) Schema {
	size := 0
	for _, f := range fields {
		size += f.Kind.Width()
	}
	return Schema{layout: l, fields: fields, size: size}
}

// SchemaFor returns the schema for a layout.
func SchemaFor(l Layout) Schema {
	if l == LayoutBare {
		return Bare
	}
	return Full
}

func (s Schema) Layout() Layout { return s.layout }

// Size is the encoded length of every record in this schema.
func (s Schema) Size() int { return s.size }

// Fields returns a copy of the field list.
func (s Schema) Fields() []Field {
	return append([]Field(nil), s.fields...)
}

// Encode returns the wire form of r.
func (s Schema) Encode(r Record) []byte {
	return s.Append(make([]byte, 0, s.size), r)
}

// Append appends the wire form of r to dst.
func (s Schema) Append(dst []byte, r Record) []byte {
	le := binary.LittleEndian
	for _, f := range s.fields {
		bits := r.bits(f.ID)
		switch f.Kind {
		case KindUint16:
			dst = le.AppendUint16(dst, uint16(bits))
		case KindUint32, KindFloat32:
			dst = le.AppendUint32(dst, uint32(bits))
		case KindInt64:
			dst = le.AppendUint64(dst, bits)
		}
	}
	return dst
}

// Decode parses b, which must be exactly Size bytes long.
// All decoded sensor fields are marked available.
func (s Schema) Decode(b []byte) (Record, error) {
	if len(b) != s.size {
		return Record{}, fmt.Errorf("%w: got %d bytes, want %d for %s layout", ErrPayloadSize, len(b), s.size, s.layout)
	}
	le := binary.LittleEndian
	var r Record
	off := 0
	for _, f := range s.fields {
		var bits uint64
		switch f.Kind {
		case KindUint16:
			bits = uint64(le.Uint16(b[off:]))
		case KindUint32, KindFloat32:
			bits = uint64(le.Uint32(b[off:]))
		case KindInt64:
			bits = le.Uint64(b[off:])
		}
		off += f.Kind.Width()

		if f.ID == FieldMagic {
			if uint32(bits) != Magic {
				return Record{}, fmt.Errorf("%w: 0x%08X", ErrBadMagic, uint32(bits))
			}
			continue
		}
		r.setBits(f.ID, bits)
		r.Available.Set(f.ID)
	}
	return r, nil
}

// Decode detects the layout of b from its length and decodes it.
func Decode(b []byte) (Record, Layout, error) {
	switch len(b) {
	case Full.size:
		r, err := Full.Decode(b)
		return r, LayoutFull, err
	case Bare.size:
		r, err := Bare.Decode(b)
		return r, LayoutBare, err
	default:
		return Record{}, LayoutFull, fmt.Errorf("%w: %d bytes (want %d or %d)", ErrPayloadSize, len(b), Full.size, Bare.size)
	}
}

func (r *Record) bits(id FieldID) uint64 {
	switch id {
	case FieldMagic:
		return uint64(Magic)
	case FieldTimestamp:
		return uint64(r.Timestamp)
	case FieldWeatherTemperature:
		return uint64(math.Float32bits(r.WeatherTemperature))
	case FieldWeatherPressure:
		return uint64(math.Float32bits(r.WeatherPressure))
	case FieldWeatherHumidity:
		return uint64(math.Float32bits(r.WeatherHumidity))
	case FieldAirTemperature:
		return uint64(math.Float32bits(r.AirTemperature))
	case FieldAirECO2:
		return uint64(r.AirECO2)
	case FieldAirTVOC:
		return uint64(r.AirTVOC)
	case FieldHumidityTemperature:
		return uint64(math.Float32bits(r.HumidityTemperature))
	case FieldHumidityHumidity:
		return uint64(math.Float32bits(r.HumidityHumidity))
	}
	return 0
}

func (r *Record) setBits(id FieldID, bits uint64) {
	switch id {
	case FieldTimestamp:
		r.Timestamp = int64(bits)
	case FieldWeatherTemperature:
		r.WeatherTemperature = math.Float32frombits(uint32(bits))
	case FieldWeatherPressure:
		r.WeatherPressure = math.Float32frombits(uint32(bits))
	case FieldWeatherHumidity:
		r.WeatherHumidity = math.Float32frombits(uint32(bits))
	case FieldAirTemperature:
		r.AirTemperature = math.Float32frombits(uint32(bits))
	case FieldAirECO2:
		r.AirECO2 = uint16(bits)
	case FieldAirTVOC:
		r.AirTVOC = uint16(bits)
	case FieldHumidityTemperature:
		r.HumidityTemperature = math.Float32frombits(uint32(bits))
	case FieldHumidityHumidity:
		r.HumidityHumidity = math.Float32frombits(uint32(bits))
	}
}
