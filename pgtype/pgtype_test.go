package pgtype

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/elbaro/pyros/protocol"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestScalarRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		oid  protocol.OID
		in   any
		want any
	}{
		{"int2", protocol.OIDInt2, int16(-1234), int16(-1234)},
		{"int4", protocol.OIDInt4, int32(123456789), int32(123456789)},
		{"int8", protocol.OIDInt8, int64(-9223372036854775808), int64(-9223372036854775808)},
		{"bool true", protocol.OIDBool, true, true},
		{"bool false", protocol.OIDBool, false, false},
		{"float4", protocol.OIDFloat4, float32(3.5), float32(3.5)},
		{"float8", protocol.OIDFloat8, float64(2.71828), float64(2.71828)},
		{"text", protocol.OIDText, "hello, world", "hello, world"},
		{"bytea", protocol.OIDBytea, []byte{1, 2, 3, 0, 255}, []byte{1, 2, 3, 0, 255}},
		{"oid", protocol.OIDOID, uint32(16384), uint32(16384)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire, err := Encode(tt.oid, tt.in)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := Decode(tt.oid, wire)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if gotBytes, ok := got.([]byte); ok {
				wantBytes := tt.want.([]byte)
				if string(gotBytes) != string(wantBytes) {
					t.Fatalf("got %v, want %v", gotBytes, wantBytes)
				}
				return
			}
			if got != tt.want {
				t.Fatalf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestNullRoundTrip(t *testing.T) {
	wire, err := Encode(protocol.OIDInt4, nil)
	if err != nil {
		t.Fatal(err)
	}
	if wire != nil {
		t.Fatalf("expected nil wire representation for nil value, got %+v", wire)
	}

	got, err := Decode(protocol.OIDInt4, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected nil decode result for NULL column, got %+v", got)
	}
}

func TestUnregisteredOID(t *testing.T) {
	if _, err := Encode(protocol.OID(999999), "x"); err == nil {
		t.Fatal("expected an error encoding an unregistered OID")
	}
	if _, err := Decode(protocol.OID(999999), []byte("x")); err == nil {
		t.Fatal("expected an error decoding an unregistered OID")
	}
	if _, ok := Lookup(protocol.OID(999999)); ok {
		t.Fatal("expected Lookup to report not-found for an unregistered OID")
	}
}

func TestDateRoundTrip(t *testing.T) {
	in := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	wire, err := Encode(protocol.OIDDate, in)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(protocol.OIDDate, wire)
	if err != nil {
		t.Fatal(err)
	}
	gotTime := got.(time.Time)
	if !gotTime.Equal(in) {
		t.Fatalf("got %v, want %v", gotTime, in)
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	in := time.Date(2024, 3, 15, 9, 30, 45, 123000000, time.UTC)
	wire, err := Encode(protocol.OIDTimestamp, in)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(protocol.OIDTimestamp, wire)
	if err != nil {
		t.Fatal(err)
	}
	gotTime := got.(time.Time)
	if !gotTime.Equal(in) {
		t.Fatalf("got %v, want %v", gotTime, in)
	}
}

func TestIntervalRoundTripNoDaysOrMonths(t *testing.T) {
	in := 90 * time.Minute
	wire, err := Encode(protocol.OIDInterval, in)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(protocol.OIDInterval, wire)
	if err != nil {
		t.Fatal(err)
	}
	if got.(time.Duration) != in {
		t.Fatalf("got %v, want %v", got, in)
	}
}

func TestUUIDRoundTrip(t *testing.T) {
	in := uuid.New()
	wire, err := Encode(protocol.OIDUUID, in)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(protocol.OIDUUID, wire)
	if err != nil {
		t.Fatal(err)
	}
	if got.(uuid.UUID) != in {
		t.Fatalf("got %v, want %v", got, in)
	}
}

func TestNumericRoundTrip(t *testing.T) {
	tests := []string{"0", "123", "-123", "123.456", "-0.001", "1000000", "0.1", "99999.99999"}
	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			in, err := decimal.NewFromString(raw)
			if err != nil {
				t.Fatal(err)
			}
			wire, err := Encode(protocol.OIDNumeric, in)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			got, err := Decode(protocol.OIDNumeric, wire)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			gotDec := got.(decimal.Decimal)
			if !gotDec.Equal(in) {
				t.Fatalf("got %s, want %s", gotDec.String(), in.String())
			}
		})
	}
}

func TestJSONRoundTrip(t *testing.T) {
	in := json.RawMessage(`{"a":1,"b":[true,null]}`)

	wire, err := Encode(protocol.OIDJSON, in)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(protocol.OIDJSON, wire)
	if err != nil {
		t.Fatal(err)
	}
	if string(got.(json.RawMessage)) != string(in) {
		t.Fatalf("got %s, want %s", got, in)
	}
}

func TestJSONBVersionByte(t *testing.T) {
	in := json.RawMessage(`{"x":true}`)

	wire, err := Encode(protocol.OIDJSONB, in)
	if err != nil {
		t.Fatal(err)
	}
	if wire[0] != jsonbVersion {
		t.Fatalf("unexpected jsonb version byte %d, expected %d", wire[0], jsonbVersion)
	}

	got, err := Decode(protocol.OIDJSONB, wire)
	if err != nil {
		t.Fatal(err)
	}
	if string(got.(json.RawMessage)) != string(in) {
		t.Fatalf("got %s, want %s", got, in)
	}

	if _, err := Decode(protocol.OIDJSONB, []byte{99, 'x'}); err == nil {
		t.Fatal("expected an error decoding an unsupported jsonb version byte")
	}
}

func TestInferOID(t *testing.T) {
	tests := []struct {
		name string
		v    any
		want protocol.OID
	}{
		{"bool", true, protocol.OIDBool},
		{"bytes", []byte{1}, protocol.OIDBytea},
		{"int", 1, protocol.OIDInt4},
		{"int16", int16(1), protocol.OIDInt2},
		{"int64", int64(1), protocol.OIDInt8},
		{"float32", float32(1), protocol.OIDFloat4},
		{"float64", float64(1), protocol.OIDFloat8},
		{"string", "s", protocol.OIDText},
		{"uuid", uuid.New(), protocol.OIDUUID},
		{"decimal", decimal.NewFromInt(1), protocol.OIDNumeric},
		{"time", time.Now(), protocol.OIDTimestamp},
		{"duration", time.Second, protocol.OIDInterval},
		{"unmapped struct", struct{}{}, protocol.OIDUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InferOID(tt.v); got != tt.want {
				t.Fatalf("InferOID(%T) = %s, want %s", tt.v, got, tt.want)
			}
		})
	}
}
