// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

// renderFunc draws frame number frame into pixels, which holds
// width*height RGBA pixels.
type renderFunc func(pixels []byte, width, height int, frame uint64)

// patterns maps config.MixerConfig.Pattern values to renderers.
var patterns = map[string]renderFunc{
	"bars":     renderBars,
	"gradient": renderGradient,
}

// barColors are the classic 75% color bars, left to right.
var barColors = [8][4]byte{
	{191, 191, 191, 255}, // gray
	{191, 191, 0, 255},   // yellow
	{0, 191, 191, 255},   // cyan
	{0, 191, 0, 255},     // green
	{191, 0, 191, 255},   // magenta
	{191, 0, 0, 255},     // red
	{0, 0, 191, 255},     // blue
	{16, 16, 16, 255},    // black
}

// renderBars draws eight vertical bars that scroll one bar per frame.
// Every row is identical, so the first row is drawn and copied down.
func renderBars(pixels []byte, width, height int, frame uint64) {
	stride := width * 4
	if len(pixels) < stride*height || width == 0 || height == 0 {
		return
	}
	row := pixels[:stride]
	for x := range width {
		bar := (uint64(x*len(barColors)/width) + frame) % uint64(len(barColors))
		copy(row[x*4:x*4+4], barColors[bar][:])
	}
	for y := 1; y < height; y++ {
		copy(pixels[y*stride:(y+1)*stride], row)
	}
}

// renderGradient draws a red ramp across and a green ramp down, with
// the red ramp shifted by the frame number and blue cycling per frame.
func renderGradient(pixels []byte, width, height int, frame uint64) {
	stride := width * 4
	if len(pixels) < stride*height || width == 0 || height == 0 {
		return
	}
	blue := byte(frame)
	for y := range height {
		green := byte(y * 255 / max(height-1, 1))
		offset := y * stride
		for x := range width {
			red := byte((uint64(x) + frame) * 255 / uint64(max(width-1, 1)))
			pixels[offset] = red
			pixels[offset+1] = green
			pixels[offset+2] = blue
			pixels[offset+3] = 255
			offset += 4
		}
	}
}
