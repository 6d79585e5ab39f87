package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
)

type fakeRunner struct {
	args   []string
	pngs   int
	stderr string
	err    error
}

func (r *fakeRunner) Run(_ context.Context, _ string, args ...string) ([]byte, []byte, error) {
	r.args = args
	if r.err != nil {
		return nil, []byte(r.stderr), r.err
	}
	prefix := args[len(args)-1]
	for i := 1; i <= r.pngs; i++ {
		if err := os.WriteFile(fmt.Sprintf("%s-%02d.png", prefix, i), []byte{byte(i)}, 0o600); err != nil {
			return nil, nil, err
		}
	}
	return nil, nil, nil
}

func TestPdftoppmRasterize(t *testing.T) {
	tests := []struct {
		name    string
		runner  *fakeRunner
		pages   int
		want    int
		wantErr bool
	}{
		{name: "three pages", runner: &fakeRunner{pngs: 3}, pages: 3, want: 3},
		{name: "capped to requested pages", runner: &fakeRunner{pngs: 5}, pages: 2, want: 2},
		{name: "no images", runner: &fakeRunner{}, pages: 3, wantErr: true},
		{name: "command fails", runner: &fakeRunner{err: errors.New("exit status 1"), stderr: "Syntax Error"}, pages: 3, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Pdftoppm{Runner: tt.runner}
			images, err := p.Rasterize(context.Background(), []byte("%PDF-1.4"), tt.pages, 200)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Rasterize: %v", err)
			}
			if len(images) != tt.want {
				t.Fatalf("got %d images, want %d", len(images), tt.want)
			}
			for i, img := range images {
				if len(img) != 1 || img[0] != byte(i+1) {
					t.Errorf("image %d out of order: %v", i, img)
				}
			}
			if tt.runner.args[1] != "200" || tt.runner.args[6] != fmt.Sprint(tt.pages) {
				t.Errorf("unexpected args %v", tt.runner.args)
			}
		})
	}
}
