package api

import (
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"smart-attendance-backend/internal/recognize"
	"smart-attendance-backend/internal/store"
)

// studentResponse is a student plus the number of stored templates, as the
// original registry view showed.
type studentResponse struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	RegistrationDate time.Time `json:"registration_date"`
	TemplateCount    int       `json:"template_count"`
}

// GetStudents handles GET /api/students.
func (h *Handler) GetStudents(c *gin.Context) {
	ctx := c.Request.Context()

	students, err := h.store.ListStudents(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve students"})
		return
	}
	byStudent, err := h.store.TemplatesByStudent(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve templates"})
		return
	}

	responses := make([]studentResponse, 0, len(students))
	for _, s := range students {
		responses = append(responses, studentResponse{
			ID:               s.ID,
			Name:             s.Name,
			RegistrationDate: s.RegistrationDate,
			TemplateCount:    len(byStudent[s.ID]),
		})
	}
	c.JSON(http.StatusOK, gin.H{"students": responses, "total": len(responses)})
}

// RegisterStudent handles POST /api/students. The request is multipart:
// a required name field, an optional student_id (a uuid is assigned when
// omitted) and the captured face images, each reduced to one template per
// configured size.
func (h *Handler) RegisterStudent(c *gin.Context) {
	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	studentID := strings.TrimSpace(c.PostForm("student_id"))
	if studentID == "" {
		studentID = uuid.NewString()
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart form required"})
		return
	}

	var templates []store.Template
	for _, fh := range form.File["images"] {
		img, err := decodeUpload(fh)
		if err != nil {
			log.Printf("Skipping undecodable registration image %s: %v", fh.Filename, err)
			continue
		}
		templates = append(templates, recognize.TemplatesFromImage(img, h.templateSizes)...)
	}

	student, err := h.store.RegisterStudent(c.Request.Context(), studentID, name, templates)
	switch {
	case errors.Is(err, store.ErrDuplicateStudent):
		c.JSON(http.StatusConflict, gin.H{"error": "student id already exists"})
		return
	case errors.Is(err, store.ErrTooFewTemplates):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.index.Reload(c.Request.Context(), h.store); err != nil {
		log.Printf("Failed to reload template index after registration: %v", err)
	}

	c.JSON(http.StatusCreated, studentResponse{
		ID:               student.ID,
		Name:             student.Name,
		RegistrationDate: student.RegistrationDate,
		TemplateCount:    len(templates),
	})
}

// DeleteStudent handles DELETE /api/students/:id. Attendance records are
// left in place; their denormalized name stays valid.
func (h *Handler) DeleteStudent(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.RemoveStudent(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := h.index.Reload(c.Request.Context(), h.store); err != nil {
		log.Printf("Failed to reload template index after removal: %v", err)
	}
	c.Status(http.StatusNoContent)
}

// GetStudent handles GET /api/students/:id.
func (h *Handler) GetStudent(c *gin.Context) {
	student, err := h.store.GetStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if student == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "student not found"})
		return
	}
	c.JSON(http.StatusOK, student)
}

func decodeUpload(fh *multipart.FileHeader) (image.Image, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	return img, err
}
