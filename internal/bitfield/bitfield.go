// Package bitfield packs and unpacks struct fields into a single integer
// using `bitfield:"<bits>"` struct tags. Adapted from the teacher's
// src/bitfield/bitfield.go (itself a simplified version of
// golang.org/x/text/internal/gen/bitfield), extended with the Unpack
// direction the teacher's page-flag call sites needed but never defined.
package bitfield

import (
	"fmt"
	"reflect"
)

// Config determines settings for packing and unpacking.
type Config struct {
	// NumBits caps the total number of bits the packed fields may occupy.
	// Zero means unbounded (limited only by the 64-bit word itself).
	NumBits uint
}

// Pack compacts the tagged fields of the struct x, in declaration order,
// into a uint64: the first field occupies the low bits.
func Pack(x interface{}, c *Config) (uint64, error) {
	if c == nil {
		c = &Config{NumBits: 64}
	}
	v := reflect.ValueOf(x)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return 0, fmt.Errorf("bitfield: Pack expected struct, got %v", v.Kind())
	}

	t := v.Type()
	var packed uint64
	var bitOffset uint

	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		bits, ok, err := fieldBits(field)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}

		fieldValue, err := bitsOf(v.Field(i), field.Name, bits)
		if err != nil {
			return 0, err
		}
		packed |= fieldValue << bitOffset
		bitOffset += bits
	}

	if c.NumBits > 0 && bitOffset > c.NumBits {
		return 0, fmt.Errorf("bitfield: Pack total bits %d exceeds NumBits %d", bitOffset, c.NumBits)
	}
	return packed, nil
}

// Unpack is the inverse of Pack: it distributes the low bits of packed back
// into the tagged fields of the struct pointed to by x, in declaration
// order.
func Unpack(packed uint64, x interface{}) error {
	v := reflect.ValueOf(x)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("bitfield: Unpack expected pointer to struct")
	}
	v = v.Elem()
	t := v.Type()
	var bitOffset uint

	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		bits, ok, err := fieldBits(field)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}

		mask := uint64(1)<<bits - 1
		raw := (packed >> bitOffset) & mask
		bitOffset += bits

		fv := v.Field(i)
		switch fv.Kind() {
		case reflect.Bool:
			fv.SetBool(raw != 0)
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			fv.SetUint(raw)
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			fv.SetInt(int64(raw))
		default:
			return fmt.Errorf("bitfield: Unpack unsupported field type %v for field %s", fv.Kind(), field.Name)
		}
	}
	return nil
}

func fieldBits(field reflect.StructField) (bits uint, tagged bool, err error) {
	tag := field.Tag.Get("bitfield")
	if tag == "" {
		return 0, false, nil
	}
	var n uint
	if _, scanErr := fmt.Sscanf(tag, "%d", &n); scanErr != nil {
		return 0, false, fmt.Errorf("bitfield: invalid tag %q on field %s", tag, field.Name)
	}
	if n == 0 {
		return 0, false, nil
	}
	return n, true, nil
}

func bitsOf(fv reflect.Value, name string, bits uint) (uint64, error) {
	var raw uint64
	switch fv.Kind() {
	case reflect.Bool:
		if fv.Bool() {
			raw = 1
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		raw = fv.Uint()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		val := fv.Int()
		if val < 0 {
			return 0, fmt.Errorf("bitfield: negative value %d for field %s", val, name)
		}
		raw = uint64(val)
	default:
		return 0, fmt.Errorf("bitfield: unsupported field type %v for field %s", fv.Kind(), name)
	}

	maxValue := uint64(1)<<bits - 1
	if raw > maxValue {
		return 0, fmt.Errorf("bitfield: value %d exceeds %d bits for field %s", raw, bits, name)
	}
	return raw, nil
}
