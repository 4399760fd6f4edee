package recognize

import (
	"image"

	"smart-attendance-backend/internal/store"
)

// TemplatesFromImage converts one captured face image into reference
// templates, one per configured size. Registering the same capture at
// several raster sizes is what makes the later scale-free matching work:
// the face region is resized to each template's dimensions at match time.
func TemplatesFromImage(img image.Image, sizes []int) []store.Template {
	gray := ToGray(img)
	templates := make([]store.Template, 0, len(sizes))
	for _, size := range sizes {
		if size <= 0 {
			continue
		}
		resized := resizeGray(gray, size, size)
		pixels := make([]byte, 0, size*size)
		for y := 0; y < size; y++ {
			pixels = append(pixels, grayRow(resized, y, size)...)
		}
		templates = append(templates, store.Template{
			Width:  size,
			Height: size,
			Pixels: pixels,
		})
	}
	return templates
}
