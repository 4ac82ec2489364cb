package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"

	"rental_inspections_backend/internal/evidence"
	"rental_inspections_backend/platform/httpkit"
	"rental_inspections_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidID        = "invalid id"
)

var errEmptyBody = errors.New("empty body")

// upload is the decoded body of a request that may carry files.
type upload struct {
	files []evidence.File
	form  *multipart.Form
}

// Close releases the opened parts and any temporary files.
func (u *upload) Close() {
	for _, f := range u.files {
		if closer, ok := f.Content.(io.Closer); ok {
			_ = closer.Close()
		}
	}
	if u.form != nil {
		_ = u.form.RemoveAll()
	}
}

// bind decodes a JSON or multipart body into req and validates it.
// Multipart text fields are reassembled into a JSON document so both
// encodings share one request type. On failure the response is written
// and ok is false; callers must Close the returned upload otherwise.
func (h *Handler) bind(c *gin.Context, req any, allowEmpty bool) (*upload, bool) {
	u := &upload{}
	var body []byte
	var err error

	h.limitBody(c)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		if err := c.Request.ParseMultipartForm(h.maxUploadMemory); err != nil {
			if tooLarge(c, err) {
				return nil, false
			}
			httpkit.Error(c, http.StatusBadRequest, "unable to parse form data", nil)
			return nil, false
		}
		u.form = c.Request.MultipartForm
		u.files, err = collectFiles(u.form)
		if err != nil {
			u.Close()
			httpkit.Error(c, http.StatusBadRequest, "unable to read uploaded file", nil)
			return nil, false
		}
		body, err = formToJSON(u.form.Value)
	} else {
		body, err = readBody(c)
	}
	if err != nil && !(errors.Is(err, errEmptyBody) && allowEmpty) {
		u.Close()
		if tooLarge(c, err) {
			return nil, false
		}
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return nil, false
	}

	if len(body) > 0 {
		if err := json.Unmarshal(body, req); err != nil {
			u.Close()
			httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
			return nil, false
		}
	}
	if err := h.val.Struct(req); err != nil {
		u.Close()
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return nil, false
	}
	return u, true
}

// bindJSON is bind for endpoints that never accept files.
func (h *Handler) bindJSON(c *gin.Context, req any) bool {
	h.limitBody(c)
	if err := c.ShouldBindJSON(req); err != nil {
		if tooLarge(c, err) {
			return false
		}
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return false
	}
	return true
}

// bindQuery binds and validates query parameters.
func (h *Handler) bindQuery(c *gin.Context, req any) bool {
	if err := c.ShouldBindQuery(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, validator.FieldErrors(err))
		return false
	}
	return true
}

func (h *Handler) limitBody(c *gin.Context) {
	if c.Request.Body != nil {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodySize)
	}
}

// tooLarge writes a 413 when err comes from the body limit.
func tooLarge(c *gin.Context, err error) bool {
	var maxErr *http.MaxBytesError
	if !errors.As(err, &maxErr) {
		return false
	}
	httpkit.Error(c, http.StatusRequestEntityTooLarge, "request body too large", map[string]int64{"limit": maxErr.Limit})
	return true
}

func readBody(c *gin.Context) ([]byte, error) {
	if c.Request.Body == nil {
		return nil, errEmptyBody
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errEmptyBody
	}
	return body, nil
}

// collectFiles opens every uploaded part, ordered by field name and then
// by position within the field.
func collectFiles(form *multipart.Form) ([]evidence.File, error) {
	fields := make([]string, 0, len(form.File))
	for name := range form.File {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	var files []evidence.File
	for _, name := range fields {
		for _, fh := range form.File[name] {
			f, err := fh.Open()
			if err != nil {
				for _, opened := range files {
					_ = opened.Content.(io.Closer).Close()
				}
				return nil, err
			}
			files = append(files, evidence.File{
				Name:        fh.Filename,
				ContentType: fh.Header.Get("Content-Type"),
				Size:        fh.Size,
				Content:     f,
			})
		}
	}
	return files, nil
}

// formToJSON turns multipart text fields into a JSON object. Values that
// are JSON objects, arrays or booleans are embedded as-is; anything else is
// a string. Repeated fields become string arrays.
func formToJSON(values map[string][]string) ([]byte, error) {
	doc := make(map[string]json.RawMessage, len(values))
	for key, vals := range values {
		switch len(vals) {
		case 0:
			continue
		case 1:
			raw, err := formValue(vals[0])
			if err != nil {
				return nil, err
			}
			doc[key] = raw
		default:
			raw, err := json.Marshal(vals)
			if err != nil {
				return nil, err
			}
			doc[key] = raw
		}
	}
	if len(doc) == 0 {
		return nil, nil
	}
	return json.Marshal(doc)
}

func formValue(v string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(v)
	switch {
	case trimmed == "true" || trimmed == "false":
		return json.RawMessage(trimmed), nil
	case (strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")) && json.Valid([]byte(trimmed)):
		return json.RawMessage(trimmed), nil
	}
	return json.Marshal(v)
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidID, map[string]string{name: "uuid"})
		return uuid.UUID{}, false
	}
	return id, true
}
