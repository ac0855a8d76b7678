package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
)

// --- fixtures ---

// squareImage draws a dark square on a light background.
func squareImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: 240, G: 240, B: 240, A: 255}
			if x > w/4 && x < 3*w/4 && y > h/4 && y < 3*h/4 {
				c = color.RGBA{R: 20, G: 20, B: 20, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

// stripeImage draws light vertical stripes on a dark background.
func stripeImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.RGBA{R: 15, G: 15, B: 15, A: 255}
			if (x/8)%2 == 0 {
				c = color.RGBA{R: 230, G: 230, B: 230, A: 255}
			}
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image, quality int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		t.Fatalf("jpeg encode: %v", err)
	}
	return buf.Bytes()
}

// --- tests ---

func TestComputeEmbedding_Dimension(t *testing.T) {
	vec, err := ComputeEmbeddingBytes(encodePNG(t, squareImage(64, 64)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != Dim {
		t.Errorf("len = %d, want %d", len(vec), Dim)
	}
}

func TestComputeEmbedding_Deterministic(t *testing.T) {
	data := encodePNG(t, stripeImage(100, 80))
	a, err := ComputeEmbeddingBytes(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := ComputeEmbeddingBytes(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestComputeEmbedding_ReencodeStaysSimilar(t *testing.T) {
	img := squareImage(120, 120)
	a, err := ComputeEmbeddingBytes(encodePNG(t, img))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := ComputeEmbeddingBytes(encodeJPEG(t, img, 75))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sim, err := CosineSimilarity(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sim <= 0.95 {
		t.Errorf("re-encode similarity = %.4f, want > 0.95", sim)
	}
}

func TestComputeEmbedding_DistinctImagesDiverge(t *testing.T) {
	a, err := ComputeEmbeddingBytes(encodePNG(t, squareImage(96, 96)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := ComputeEmbeddingBytes(encodePNG(t, stripeImage(96, 96)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sim, err := CosineSimilarity(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sim >= 0.7 {
		t.Errorf("distinct-image similarity = %.4f, want < 0.7", sim)
	}
}

func TestComputeEmbedding_ScaleInvariance(t *testing.T) {
	a, err := ComputeEmbeddingBytes(encodePNG(t, squareImage(64, 64)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := ComputeEmbeddingBytes(encodePNG(t, squareImage(256, 256)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sim, err := CosineSimilarity(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sim <= 0.9 {
		t.Errorf("rescaled similarity = %.4f, want > 0.9", sim)
	}
}

func TestComputeEmbedding_DecodeError(t *testing.T) {
	_, err := ComputeEmbedding(strings.NewReader("definitely not an image"))
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("error = %v, want ErrDecode", err)
	}
}

func TestCosineSimilarity_DimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity(make([]float32, Dim), make([]float32, 3))
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("error = %v, want ErrDimensionMismatch", err)
	}
}

func TestCosineSimilarity_ZeroVector(t *testing.T) {
	a := make([]float32, 4)
	b := []float32{1, 0, 0, 0}
	sim, err := CosineSimilarity(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sim != 0 {
		t.Errorf("similarity = %v, want 0", sim)
	}
}
