package simhash

import (
	"testing"
)

func TestFingerprint_IdenticalTexts(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog"
	fp1 := Fingerprint(text)
	fp2 := Fingerprint(text)

	if fp1 != fp2 {
		t.Errorf("identical texts produced different fingerprints: %064b vs %064b", fp1, fp2)
	}
}

func TestFingerprint_SimilarTexts(t *testing.T) {
	text1 := "the quick brown fox jumps over the lazy dog"
	text2 := "the quick brown fox leaps over the lazy dog"

	fp1 := Fingerprint(text1)
	fp2 := Fingerprint(text2)

	dist := Distance(fp1, fp2)
	if dist > 10 {
		t.Errorf("similar texts have too large distance: %d (fingerprints: %064b, %064b)", dist, fp1, fp2)
	}
}

func TestFingerprint_DifferentTexts(t *testing.T) {
	text1 := "the quick brown fox jumps over the lazy dog"
	text2 := "completely unrelated content about quantum physics and mathematics"

	fp1 := Fingerprint(text1)
	fp2 := Fingerprint(text2)

	dist := Distance(fp1, fp2)
	if dist < 5 {
		t.Errorf("very different texts have too small distance: %d", dist)
	}
}

func TestFingerprint_EmptyInput(t *testing.T) {
	fp := Fingerprint("")
	if fp != 0 {
		t.Errorf("empty input should produce fingerprint 0, got: %064b", fp)
	}
}

func TestFingerprint_SingleWord(t *testing.T) {
	fp := Fingerprint("hello")
	if fp == 0 {
		t.Error("single word should produce a non-zero fingerprint")
	}

	// Same single word should be deterministic.
	fp2 := Fingerprint("hello")
	if fp != fp2 {
		t.Errorf("same single word produced different fingerprints: %d vs %d", fp, fp2)
	}
}

func TestFingerprint_WhitespaceOnly(t *testing.T) {
	fp := Fingerprint("   \t\n  ")
	if fp != 0 {
		t.Errorf("whitespace-only input should produce fingerprint 0, got: %064b", fp)
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
		want int
	}{
		{"identical", 0xFF, 0xFF, 0},
		{"all different", 0, ^uint64(0), 64},
		{"one bit", 0, 1, 1},
		{"two bits", 0, 3, 2},
		{"zero zero", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.a, tt.b)
			if got != tt.want {
				t.Errorf("Distance(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSimilar(t *testing.T) {
	fp1 := Fingerprint("the quick brown fox")
	fp2 := Fingerprint("the quick brown fox")

	if !Similar(fp1, fp2, 0) {
		t.Error("identical fingerprints should be similar at threshold 0")
	}

	fp3 := Fingerprint("a completely different text about nothing related")
	dist := Distance(fp1, fp3)

	if Similar(fp1, fp3, dist-1) {
		t.Errorf("different texts should not be similar at threshold %d (distance is %d)", dist-1, dist)
	}
	if !Similar(fp1, fp3, dist) {
		t.Errorf("should be similar at threshold equal to distance (%d)", dist)
	}
}

const office = "Сдается офис в бизнес-центре класса B, 50 м², отдельный вход, " +
	"охрана круглосуточно, парковка для арендаторов, рядом метро. Звоните 8 900 123-45-67."

func TestDescription_IgnoresDigitsAndPunctuation(t *testing.T) {
	repost := "СДАЕТСЯ офис в бизнес центре класса B 75 м² отдельный вход " +
		"охрана круглосуточно; парковка для арендаторов... рядом метро! Звоните +7 999 000-00-00"

	if d := Distance(Description(office), Description(repost)); d != 0 {
		t.Errorf("repost with new figures differs by %d bits", d)
	}
}

func TestDescription_DifferentTexts(t *testing.T) {
	other := "Продается земельный участок под ИЖС, коммуникации по границе, " +
		"асфальтированный подъезд, до реки пятьсот метров, документы готовы"

	if d := Distance(Description(office), Description(other)); d < 5 {
		t.Errorf("unrelated descriptions too close: %d", d)
	}
}

func TestWords(t *testing.T) {
	got := Words("Офис, 50 м²; ОТДЕЛЬНЫЙ-вход")
	want := []string{"офис", "м", "отдельный", "вход"}
	if len(got) != len(want) {
		t.Fatalf("Words = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("word[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestIndex(t *testing.T) {
	x := NewIndex(3)

	if _, dup := x.Add("https://www.avito.ru/a_1", office); dup {
		t.Fatal("first description reported as duplicate")
	}
	dupOf, dup := x.Add("https://www.cian.ru/rent/commercial/2/", office+" Без комиссии!")
	if dup {
		// Two extra words shift a few shingles; either outcome is fine as
		// long as a match names the first key.
		if dupOf != "https://www.avito.ru/a_1" {
			t.Errorf("dupOf = %q", dupOf)
		}
	}
	dupOf, dup = x.Add("https://www.avito.ru/a_3", office)
	if !dup || dupOf != "https://www.avito.ru/a_1" {
		t.Errorf("identical text: dupOf = %q, dup = %v", dupOf, dup)
	}
	if x.Len() != 3 {
		t.Errorf("Len = %d, want 3", x.Len())
	}
}

func TestIndex_ShortAndSameKey(t *testing.T) {
	x := NewIndex(3)
	x.Add("a", "Сдам офис")
	if _, dup := x.Add("b", "Сдам офис"); dup {
		t.Error("short text matched")
	}
	x.Add("a", office)
	if _, dup := x.Add("a", office); dup {
		t.Error("a listing matched itself")
	}
}

func TestIndex_Disabled(t *testing.T) {
	x := NewIndex(-1)
	x.Add("a", office)
	if _, dup := x.Add("b", office); dup {
		t.Error("disabled index matched")
	}
}

func TestMakeShingles(t *testing.T) {
	tokens := []string{"a", "b", "c", "d"}

	shingles := makeShingles(tokens, 3)
	expected := []string{"a_b_c", "b_c_d"}

	if len(shingles) != len(expected) {
		t.Fatalf("expected %d shingles, got %d: %v", len(expected), len(shingles), shingles)
	}

	for i, s := range shingles {
		if s != expected[i] {
			t.Errorf("shingle[%d] = %q, want %q", i, s, expected[i])
		}
	}
}

func TestMakeShingles_TooFewTokens(t *testing.T) {
	shingles := makeShingles([]string{"a", "b"}, 3)
	if shingles != nil {
		t.Errorf("expected nil for fewer tokens than n, got: %v", shingles)
	}
}
