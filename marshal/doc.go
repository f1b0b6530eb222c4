// Package marshal converts between native Go values and value.Value.
//
// Generated bindings call these helpers with statically known types: every
// Encode function is total, and every Decode function fails with a
// decode-phase type_mismatch error when the value's tag is not the expected
// one. Decoding never coerces between tags.
//
//	v := marshal.EncodeList(value.U32Type, []uint32{1, 2}, marshal.EncodeU32)
//	xs, err := marshal.DecodeList(v, marshal.DecodeU32)
package marshal
