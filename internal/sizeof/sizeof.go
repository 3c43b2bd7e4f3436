package sizeof

import (
	"reflect"
)

const (
	wordSize        = 8
	stringHeader    = int64(2 * wordSize)
	sliceHeader     = int64(3 * wordSize)
	interfaceHeader = int64(2 * wordSize)
	mapOverhead     = int64(6 * wordSize)
	mapEntryFixed   = int64(2 * wordSize)

	// sampleLimit bounds how many container elements are walked; larger
	// containers are extrapolated from the sampled average.
	sampleLimit = 128

	maxDepth = 32
)

// Estimate returns an approximate deep size in bytes of v. Shared and cyclic
// references are counted once.
func Estimate(v any) int64 {
	if v == nil {
		return interfaceHeader
	}
	seen := make(map[uintptr]struct{})
	return interfaceHeader + deepSize(reflect.ValueOf(v), seen, 0)
}

func deepSize(v reflect.Value, seen map[uintptr]struct{}, depth int) int64 {
	if depth > maxDepth {
		return 0
	}

	switch v.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return int64(v.Type().Size())

	case reflect.String:
		return stringHeader + int64(v.Len())

	case reflect.Slice:
		if v.IsNil() {
			return sliceHeader
		}
		if marked(v.Pointer(), seen) {
			return sliceHeader
		}
		return sliceHeader + containerSize(v, seen, depth)

	case reflect.Array:
		return arraySize(v, seen, depth)

	case reflect.Map:
		if v.IsNil() {
			return wordSize
		}
		if marked(v.Pointer(), seen) {
			return wordSize
		}
		return mapOverhead + mapSize(v, seen, depth)

	case reflect.Pointer:
		if v.IsNil() {
			return wordSize
		}
		if marked(v.Pointer(), seen) {
			return wordSize
		}
		return wordSize + deepSize(v.Elem(), seen, depth+1)

	case reflect.Interface:
		if v.IsNil() {
			return interfaceHeader
		}
		return interfaceHeader + deepSize(v.Elem(), seen, depth+1)

	case reflect.Struct:
		var n int64
		for i := 0; i < v.NumField(); i++ {
			n += deepSize(v.Field(i), seen, depth+1)
		}
		// Account for padding the field walk cannot see.
		if shallow := int64(v.Type().Size()); n < shallow {
			n = shallow
		}
		return n

	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return wordSize

	default:
		return int64(v.Type().Size())
	}
}

// containerSize sizes slice contents, sampling long slices.
func containerSize(v reflect.Value, seen map[uintptr]struct{}, depth int) int64 {
	n := v.Len()
	if n == 0 {
		return int64(v.Cap()) * int64(v.Type().Elem().Size())
	}

	sampled := n
	if sampled > sampleLimit {
		sampled = sampleLimit
	}
	var total int64
	for i := 0; i < sampled; i++ {
		total += deepSize(v.Index(i), seen, depth+1)
	}
	avg := total / int64(sampled)
	// Unused capacity holds zeroed element slots.
	spare := int64(v.Cap()-n) * int64(v.Type().Elem().Size())
	return avg*int64(n) + spare
}

func arraySize(v reflect.Value, seen map[uintptr]struct{}, depth int) int64 {
	n := v.Len()
	if n == 0 {
		return 0
	}
	sampled := n
	if sampled > sampleLimit {
		sampled = sampleLimit
	}
	var total int64
	for i := 0; i < sampled; i++ {
		total += deepSize(v.Index(i), seen, depth+1)
	}
	return total / int64(sampled) * int64(n)
}

func mapSize(v reflect.Value, seen map[uintptr]struct{}, depth int) int64 {
	n := v.Len()
	if n == 0 {
		return 0
	}
	var total int64
	sampled := 0
	iter := v.MapRange()
	for iter.Next() && sampled < sampleLimit {
		total += deepSize(iter.Key(), seen, depth+1)
		total += deepSize(iter.Value(), seen, depth+1)
		total += mapEntryFixed
		sampled++
	}
	return total / int64(sampled) * int64(n)
}

func marked(ptr uintptr, seen map[uintptr]struct{}) bool {
	if _, ok := seen[ptr]; ok {
		return true
	}
	seen[ptr] = struct{}{}
	return false
}
