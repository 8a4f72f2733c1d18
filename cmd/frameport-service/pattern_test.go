// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"testing"
)

func pixel(pixels []byte, width, x, y int) [4]byte {
	offset := (y*width + x) * 4
	return [4]byte(pixels[offset : offset+4])
}

func TestRenderBars(t *testing.T) {
	const width, height = 16, 4
	pixels := make([]byte, width*height*4)

	renderBars(pixels, width, height, 0)
	if got := pixel(pixels, width, 0, 0); got != barColors[0] {
		t.Errorf("frame 0 left edge = %v, want %v", got, barColors[0])
	}
	if got := pixel(pixels, width, width-1, 0); got != barColors[7] {
		t.Errorf("frame 0 right edge = %v, want %v", got, barColors[7])
	}
	for y := 1; y < height; y++ {
		if !bytes.Equal(pixels[y*width*4:(y+1)*width*4], pixels[:width*4]) {
			t.Errorf("row %d differs from row 0", y)
		}
	}

	renderBars(pixels, width, height, 1)
	if got := pixel(pixels, width, 0, height-1); got != barColors[1] {
		t.Errorf("frame 1 left edge = %v, want %v", got, barColors[1])
	}
	if got := pixel(pixels, width, width-1, 0); got != barColors[0] {
		t.Errorf("frame 1 right edge = %v, want %v (bars wrap)", got, barColors[0])
	}
}

func TestRenderGradient(t *testing.T) {
	const width, height = 8, 5
	pixels := make([]byte, width*height*4)

	renderGradient(pixels, width, height, 0)
	if got := pixel(pixels, width, 0, 0); got != [4]byte{0, 0, 0, 255} {
		t.Errorf("top-left = %v", got)
	}
	if got := pixel(pixels, width, width-1, height-1); got != [4]byte{255, 255, 0, 255} {
		t.Errorf("bottom-right = %v", got)
	}
	for i := 3; i < len(pixels); i += 4 {
		if pixels[i] != 255 {
			t.Fatalf("alpha at byte %d = %d, want opaque", i, pixels[i])
		}
	}

	previous := bytes.Clone(pixels)
	renderGradient(pixels, width, height, 3)
	if bytes.Equal(previous, pixels) {
		t.Error("frame 3 identical to frame 0")
	}
	if got := pixel(pixels, width, 0, 0)[2]; got != 3 {
		t.Errorf("blue channel at frame 3 = %d, want 3", got)
	}
}

func TestRenderShortBufferIgnored(t *testing.T) {
	for name, render := range patterns {
		t.Run(name, func(t *testing.T) {
			pixels := make([]byte, 10)
			render(pixels, 4, 4, 1)
			if !bytes.Equal(pixels, make([]byte, 10)) {
				t.Error("renderer wrote into a buffer smaller than the frame")
			}
		})
	}
}
