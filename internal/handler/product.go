package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/tshirt-store/internal/domain/apperr"
	"github.com/xenking/tshirt-store/internal/domain/product"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	req, err := pageRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	f := product.Filter{
		Category: strings.TrimSpace(q.Get("category")),
		Search:   q.Get("search"),
		Page:     req,
	}
	if f.MinPrice, err = queryDecimal(q.Get("min_price"), "min_price"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.MaxPrice, err = queryDecimal(q.Get("max_price"), "max_price"); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.catalog.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodePage(e, res, h.encodeProduct) })
}

func queryDecimal(raw, name string) (*decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, invalidInput(err, name+" must be a number")
	}
	return &d, nil
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProduct(e, p) })
}

// productInput is the product payload of create and update requests, sent
// either as JSON or as multipart form fields next to image files.
type productInput struct {
	Name          *string          `json:"name"`
	Description   *string          `json:"description"`
	Price         *decimal.Decimal `json:"price"`
	Discount      *decimal.Decimal `json:"discount"`
	Category      *string          `json:"category"`
	Variants      json.RawMessage  `json:"variants"`
	Featured      *bool            `json:"featured"`
	ReplaceImages bool             `json:"replaceImages"`
}

// variants parses the variants field. Multipart clients send the JSON array
// as a form value; JSON clients may send the array itself or a string
// holding it.
func (in *productInput) variants() (*[]product.Variant, error) {
	raw := bytes.TrimSpace(in.Variants)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, invalidInput(err, "invalid variants")
		}
		raw = []byte(s)
	}
	v, err := product.ParseVariants(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (in *productInput) createRequest(uploads []product.Upload) (product.CreateRequest, error) {
	req := product.CreateRequest{Images: uploads}
	if in.Name != nil {
		req.Name = *in.Name
	}
	if in.Description != nil {
		req.Description = *in.Description
	}
	if in.Price != nil {
		req.Price = *in.Price
	}
	if in.Discount != nil {
		req.Discount = *in.Discount
	}
	if in.Category != nil {
		req.Category = *in.Category
	}
	if in.Featured != nil {
		req.Featured = *in.Featured
	}
	v, err := in.variants()
	if err != nil {
		return product.CreateRequest{}, err
	}
	if v != nil {
		req.Variants = *v
	}
	return req, nil
}

func (in *productInput) updateRequest(uploads []product.Upload) (product.UpdateRequest, error) {
	v, err := in.variants()
	if err != nil {
		return product.UpdateRequest{}, err
	}
	return product.UpdateRequest{
		Name:          in.Name,
		Description:   in.Description,
		Price:         in.Price,
		Discount:      in.Discount,
		Category:      in.Category,
		Variants:      v,
		Featured:      in.Featured,
		ReplaceImages: in.ReplaceImages,
		Images:        uploads,
	}, nil
}

// productUpload is a parsed create or update request. Close releases the
// opened image files and any temporary files of the multipart form.
type productUpload struct {
	input   productInput
	uploads []product.Upload
	form    *multipart.Form
	files   []io.Closer
}

func (u *productUpload) Close() {
	for _, f := range u.files {
		_ = f.Close()
	}
	if u.form != nil {
		_ = u.form.RemoveAll()
	}
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

func (h *Handler) readProduct(w http.ResponseWriter, r *http.Request) (*productUpload, error) {
	if !isMultipart(r) {
		u := &productUpload{}
		if err := decodeJSON(r, &u.input); err != nil {
			return nil, err
		}
		return u, nil
	}

	form, err := h.parseMultipart(w, r)
	if err != nil {
		return nil, err
	}
	u := &productUpload{form: form}
	if err := u.input.fromForm(form); err != nil {
		u.Close()
		return nil, err
	}
	if err := u.openImages(); err != nil {
		u.Close()
		return nil, err
	}
	return u, nil
}

func (h *Handler) parseMultipart(w http.ResponseWriter, r *http.Request) (*multipart.Form, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.Wrap(apperr.InvalidInput, err, "request body too large")
		}
		return nil, invalidInput(err, "invalid multipart form")
	}
	return r.MultipartForm, nil
}

func (u *productUpload) openImages() error {
	for _, fh := range u.form.File["images"] {
		f, err := fh.Open()
		if err != nil {
			return errors.Wrapf(err, "open upload %q", fh.Filename)
		}
		u.files = append(u.files, f)
		u.uploads = append(u.uploads, product.Upload{Filename: fh.Filename, Content: f})
	}
	return nil
}

func (in *productInput) fromForm(form *multipart.Form) error {
	value := func(name string) (string, bool) {
		vs, ok := form.Value[name]
		if !ok || len(vs) == 0 {
			return "", false
		}
		return vs[0], true
	}

	if s, ok := value("name"); ok {
		in.Name = &s
	}
	if s, ok := value("description"); ok {
		in.Description = &s
	}
	if s, ok := value("category"); ok {
		in.Category = &s
	}
	for _, f := range []struct {
		name string
		dst  **decimal.Decimal
	}{
		{"price", &in.Price},
		{"discount", &in.Discount},
	} {
		s, ok := value(f.name)
		if !ok {
			continue
		}
		d, err := decimal.NewFromString(strings.TrimSpace(s))
		if err != nil {
			return invalidInput(err, f.name+" must be a number")
		}
		*f.dst = &d
	}
	if s, ok := value("featured"); ok {
		b, err := parseFormBool(s)
		if err != nil {
			return invalidInput(err, "featured must be a boolean")
		}
		in.Featured = &b
	}
	if s, ok := value("replaceImages"); ok {
		b, err := parseFormBool(s)
		if err != nil {
			return invalidInput(err, "replaceImages must be a boolean")
		}
		in.ReplaceImages = b
	}
	if s, ok := value("variants"); ok {
		in.Variants = json.RawMessage(s)
	}
	return nil
}

// parseFormBool accepts the strconv forms plus the "on" value of HTML
// checkboxes.
func parseFormBool(s string) (bool, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "on") {
		return true, nil
	}
	return strconv.ParseBool(s)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	u, err := h.readProduct(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer u.Close()

	req, err := u.input.createRequest(u.uploads)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.catalog.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { h.encodeProduct(e, p) })
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	u, err := h.readProduct(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer u.Close()

	req, err := u.input.updateRequest(u.uploads)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.catalog.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProduct(e, p) })
}

func (h *Handler) addProductImages(w http.ResponseWriter, r *http.Request) {
	if !isMultipart(r) {
		writeError(w, r, apperr.New(apperr.InvalidInput, "images must be sent as multipart/form-data"))
		return
	}
	form, err := h.parseMultipart(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	u := &productUpload{form: form}
	defer u.Close()
	if err := u.openImages(); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.catalog.AddImages(r.Context(), chi.URLParam(r, "id"), u.uploads)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeProduct(e, p) })
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "product deleted")
}
