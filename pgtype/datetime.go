package pgtype

import (
	"encoding/binary"
	"fmt"
	"time"
)

// postgresEpoch is 2000-01-01 00:00:00 UTC, the zero point for date,
// timestamp and timestamptz binary values.
var postgresEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// dateCodec encodes/decodes date as a 4-byte signed day count relative to
// postgresEpoch.
type dateCodec struct{}

func (dateCodec) Encode(dst []byte, v any) ([]byte, error) {
	t, err := toTime(v)
	if err != nil {
		return nil, err
	}
	days := int32(t.UTC().Sub(postgresEpoch).Hours() / 24)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(days))
	return append(dst, b[:]...), nil
}

func (dateCodec) Decode(src []byte) (any, error) {
	if len(src) != 4 {
		return nil, fmt.Errorf("pgtype: date: expected 4 bytes, got %d", len(src))
	}
	days := int32(binary.BigEndian.Uint32(src))
	return postgresEpoch.AddDate(0, 0, int(days)), nil
}

// timeCodec encodes/decodes time (without time zone) as an 8-byte
// microsecond-of-day count.
type timeCodec struct{}

func (timeCodec) Encode(dst []byte, v any) ([]byte, error) {
	t, err := toTime(v)
	if err != nil {
		return nil, err
	}
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	micros := int64(t.Sub(midnight) / time.Microsecond)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(micros))
	return append(dst, b[:]...), nil
}

func (timeCodec) Decode(src []byte) (any, error) {
	if len(src) != 8 {
		return nil, fmt.Errorf("pgtype: time: expected 8 bytes, got %d", len(src))
	}
	micros := int64(binary.BigEndian.Uint64(src))
	return time.Duration(micros) * time.Microsecond, nil
}

// timestampCodec encodes/decodes timestamp (without time zone) as an
// 8-byte microsecond count relative to postgresEpoch.
type timestampCodec struct{}

func (timestampCodec) Encode(dst []byte, v any) ([]byte, error) {
	t, err := toTime(v)
	if err != nil {
		return nil, err
	}
	micros := t.UTC().Sub(postgresEpoch).Microseconds()
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(micros))
	return append(dst, b[:]...), nil
}

func (timestampCodec) Decode(src []byte) (any, error) {
	if len(src) != 8 {
		return nil, fmt.Errorf("pgtype: timestamp: expected 8 bytes, got %d", len(src))
	}
	micros := int64(binary.BigEndian.Uint64(src))
	return postgresEpoch.Add(time.Duration(micros) * time.Microsecond), nil
}

// intervalCodec encodes/decodes interval as (microseconds int64, days
// int32, months int32), returned to the caller as a time.Duration using
// the lossy but conventional approximation of 24h days and 30-day months.
// Encode splits a time.Duration into whole 24h days plus a microsecond
// remainder and always writes months = 0, so Encode then Decode gives the
// same duration back to the microsecond. The approximation only affects
// server-produced intervals with a day or month component (e.g. '1 month'
// decodes as 720h), since the wire format keeps microseconds, days and
// months as distinct fields but this codec folds them into a single Go
// duration.
type intervalCodec struct{}

func (intervalCodec) Encode(dst []byte, v any) ([]byte, error) {
	d, ok := v.(time.Duration)
	if !ok {
		return nil, fmt.Errorf("pgtype: interval: unsupported value type %T", v)
	}

	days := d / (24 * time.Hour)
	rem := d % (24 * time.Hour)
	micros := rem.Microseconds()

	buf := dst
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(micros))
	buf = append(buf, b[:]...)
	buf = appendInt32(buf, int32(days))
	buf = appendInt32(buf, 0)
	return buf, nil
}

func (intervalCodec) Decode(src []byte) (any, error) {
	if len(src) != 16 {
		return nil, fmt.Errorf("pgtype: interval: expected 16 bytes, got %d", len(src))
	}
	micros := int64(binary.BigEndian.Uint64(src[0:8]))
	days := int32(binary.BigEndian.Uint32(src[8:12]))
	months := int32(binary.BigEndian.Uint32(src[12:16]))

	d := time.Duration(micros) * time.Microsecond
	d += time.Duration(days) * 24 * time.Hour
	d += time.Duration(months) * 30 * 24 * time.Hour
	return d, nil
}

func appendInt32(dst []byte, v int32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(v))
	return append(dst, b[:]...)
}

func toTime(v any) (time.Time, error) {
	t, ok := v.(time.Time)
	if !ok {
		return time.Time{}, fmt.Errorf("pgtype: unsupported time value type %T", v)
	}
	return t, nil
}
