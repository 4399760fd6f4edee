package model

// FaceTemplate is one grayscale reference raster for a student.
// Pixels are row-major, one byte per pixel, Width*Height long.
type FaceTemplate struct {
	ID        uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	StudentID string `gorm:"index;size:64;not null" json:"student_id"`
	Width     int    `gorm:"not null" json:"width"`
	Height    int    `gorm:"not null" json:"height"`
	Pixels    []byte `gorm:"not null" json:"-"`
}
