package pdfdoc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageImageSerializers(t *testing.T) {
	img := PageImage{Page: 1, MIMEType: "image/png", Data: []byte("png")}

	assert.Equal(t, "cG5n", img.Base64())
	assert.Equal(t, "data:image/png;base64,cG5n", img.DataURL())
}

func TestRasterizerDPI(t *testing.T) {
	assert.Equal(t, 144, NewRasterizer().DPI())
	assert.Equal(t, 144, (&Rasterizer{}).DPI())
	assert.Equal(t, 72, (&Rasterizer{Scale: 1}).DPI())
}

func TestRender_MissingBinary(t *testing.T) {
	r := &Rasterizer{Binary: "pdftoppm-does-not-exist-here"}

	_, err := r.Render(context.Background(), []byte("%PDF-1.4"), "")

	assert.ErrorIs(t, err, ErrRendererUnavailable)
	assert.False(t, r.IsAvailable())
}

func TestCollectPages_NumericOrder(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{
		"page-10.png": "ten",
		"page-02.png": "two",
		"page-1.png":  "one",
		"input.pdf":   "ignored",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}

	pages, err := collectPages(dir)

	require.NoError(t, err)
	require.Len(t, pages, 3)
	assert.Equal(t, []int{1, 2, 10}, []int{pages[0].Page, pages[1].Page, pages[2].Page})
	assert.Equal(t, "one", string(pages[0].Data))
	assert.Equal(t, "image/png", pages[2].MIMEType)
}

func TestCollectPages_Empty(t *testing.T) {
	_, err := collectPages(t.TempDir())
	assert.Error(t, err)
}

func TestIsPasswordFailure(t *testing.T) {
	assert.True(t, isPasswordFailure("Command Line Error: Incorrect password"))
	assert.False(t, isPasswordFailure("Syntax Error: Couldn't read xref table"))
}
