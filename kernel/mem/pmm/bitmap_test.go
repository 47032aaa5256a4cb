package pmm

import "testing"

func TestBitmapFillUsedThenClear(t *testing.T) {
	var bm bitmap
	bm.frameCount = 128
	bm.words = make([]uint64, bm.wordsNeeded(bm.frameCount))
	bm.fillUsed()

	for f := Frame(0); f < 128; f++ {
		if bm.isFree(f) {
			t.Fatalf("frame %d expected used after fillUsed", f)
		}
	}

	bm.markRange(10, 5, false)
	for f := Frame(10); f < 15; f++ {
		if !bm.isFree(f) {
			t.Fatalf("frame %d expected free after markRange(free)", f)
		}
	}
	if !bm.isUsed(9) || !bm.isUsed(15) {
		t.Fatalf("markRange leaked past its bounds")
	}

	if !bm.rangeFree(10, 5) {
		t.Fatalf("rangeFree should report true over an all-free range")
	}
	bm.setUsed(12)
	if bm.rangeFree(10, 5) {
		t.Fatalf("rangeFree should report false once one frame is used")
	}
}

func TestBitmapUsedCount(t *testing.T) {
	var bm bitmap
	bm.frameCount = 64
	bm.words = make([]uint64, bm.wordsNeeded(bm.frameCount))
	bm.fillUsed()
	bm.markRange(0, 20, false)

	if got := bm.usedCount(); got != 44 {
		t.Fatalf("usedCount() = %d, want 44", got)
	}
}
