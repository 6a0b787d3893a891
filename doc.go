// Package hdrpq converts linear-light scRGB HDR pixels into BT.2100 PQ encoded
// 16-bit RGB and derives the static HDR metadata (MaxCLL and MaxPALL) describing
// the content.
//
// The conversion is a pure, deterministic per-pixel pipeline (fixed gamut matrix,
// hard clip, SMPTE ST 2084 inverse EOTF, two-stage quantization) executed by
// parallel row workers. Decoders for OpenEXR and TIFF and a PNG writer with
// cICP/cLLi chunks are provided around the core.
package hdrpq
