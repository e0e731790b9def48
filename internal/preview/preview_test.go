package preview

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/internal/category"
	"github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Digitization-Platform/pkg/errors"
)

// fakePdftoppm writes pages gray PNGs next to the prefix argument, naming
// them like pdftoppm does for documents with 10 or more pages.
type fakePdftoppm struct {
	pages int
	calls atomic.Int32
}

func (f *fakePdftoppm) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.calls.Add(1)
	prefix := args[len(args)-1]
	for p := 1; p <= f.pages; p++ {
		img := image.NewGray(image.Rect(0, 0, 4, 4))
		for i := range img.Pix {
			img.Pix[i] = 200
		}
		out, err := os.Create(fmt.Sprintf("%s-%02d.png", prefix, p))
		if err != nil {
			return nil, nil, err
		}
		png.Encode(out, img)
		out.Close()
	}
	return nil, nil, nil
}

func previewConfig(regenerate bool) config.PreviewConfig {
	return config.PreviewConfig{Pdftoppm: "pdftoppm", DPI: 72, Contrast: 0.85, Sharpen: true, Regenerate: regenerate}
}

func TestRenderAndLookup(t *testing.T) {
	root := t.TempDir()
	runner := &fakePdftoppm{pages: 3}
	r := NewRasterizer(runner, previewConfig(false), root, 1)

	res := r.Render(context.Background(), category.Contracts, "lease.pdf", "/corpus/contracts/lease.pdf")
	if res.Err != nil || res.Pages != 3 || res.Skipped {
		t.Fatalf("Render() = %+v", res)
	}
	path, err := Lookup(root, category.Contracts, "lease.pdf", 2)
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(root, "contracts", "lease", "2.png") {
		t.Errorf("path = %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	// 200 * 0.85 = 170; a flat image is unchanged by a kernel summing to 1.
	if r, _, _, _ := img.At(1, 1).RGBA(); r>>8 != 170 {
		t.Errorf("pixel = %d, want 170", r>>8)
	}
}

func TestRenderIsIdempotentUnlessRegenerating(t *testing.T) {
	root := t.TempDir()
	runner := &fakePdftoppm{pages: 1}
	ctx := context.Background()

	r := NewRasterizer(runner, previewConfig(false), root, 1)
	r.Render(ctx, category.Policies, "p.pdf", "p.pdf")
	if res := r.Render(ctx, category.Policies, "p.pdf", "p.pdf"); !res.Skipped {
		t.Errorf("second render not skipped: %+v", res)
	}
	if runner.calls.Load() != 1 {
		t.Errorf("pdftoppm calls = %d, want 1", runner.calls.Load())
	}

	regen := NewRasterizer(runner, previewConfig(true), root, 1)
	if res := regen.Render(ctx, category.Policies, "p.pdf", "p.pdf"); res.Skipped || res.Err != nil {
		t.Errorf("regenerate = %+v", res)
	}
	if runner.calls.Load() != 2 {
		t.Errorf("pdftoppm calls = %d, want 2", runner.calls.Load())
	}
}

func TestRenderCorpus(t *testing.T) {
	corpus := t.TempDir()
	for _, f := range []string{"contracts/a.pdf", "records/b.PDF", "records/notes.txt"} {
		path := filepath.Join(corpus, f)
		os.MkdirAll(filepath.Dir(path), 0o755)
		if err := os.WriteFile(path, []byte("%PDF"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	r := NewRasterizer(&fakePdftoppm{pages: 2}, previewConfig(false), t.TempDir(), 2)
	sum, err := r.RenderCorpus(context.Background(), corpus)
	if err != nil {
		t.Fatal(err)
	}
	if sum.Rendered != 2 || sum.Failed != 0 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestLookupMissing(t *testing.T) {
	root := t.TempDir()
	for _, tc := range []struct {
		name string
		file string
		page int
	}{
		{"absent", "none.pdf", 1},
		{"page zero", "none.pdf", 0},
		{"traversal", "../x.pdf", 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Lookup(root, category.Records, tc.file, tc.page); !errors.Is(err, apperrors.ErrNotFound) {
				t.Errorf("err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestEnhanceSharpensEdges(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 3, 1))
	src.SetGray(0, 0, color.Gray{Y: 100})
	src.SetGray(1, 0, color.Gray{Y: 200})
	src.SetGray(2, 0, color.Gray{Y: 100})

	out := Enhance(src, 1, true)
	// Centre: 3*200 - 0.5*(100+100) - 0.5*(200+200) = 300. A single row
	// reflects onto itself vertically.
	if got := out.RGBAAt(1, 0).R; got != 255 {
		t.Errorf("centre = %d, want saturated 255", got)
	}
	// Left edge reflects to x=1: 3*100 - 0.5*(200+200) - 0.5*(100+100) = 0.
	if got := out.RGBAAt(0, 0).R; got != 0 {
		t.Errorf("left = %d, want 0", got)
	}
}

func TestReflect101(t *testing.T) {
	for _, tc := range []struct{ i, n, want int }{
		{-1, 5, 1}, {5, 5, 3}, {0, 5, 0}, {-1, 1, 0}, {2, 2, 0},
	} {
		if got := reflect101(tc.i, tc.n); got != tc.want {
			t.Errorf("reflect101(%d, %d) = %d, want %d", tc.i, tc.n, got, tc.want)
		}
	}
}
