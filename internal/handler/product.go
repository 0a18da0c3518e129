package handler

import (
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/product-catalog/internal/domain/product"
)

// ListProducts handles GET /api/products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	views, err := h.products.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for _, v := range views {
			encodeView(e, v)
		}
		e.ArrEnd()
	})
}

// GetProduct handles GET /api/products/{id}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, r, &product.InvalidInputError{Field: "id", Reason: "must be an integer"})
		return
	}

	v, err := h.products.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeView(e, *v)
	})
}

// CreateProduct handles POST /api/products. Multipart bodies carry the
// fields name, description, price and an optional image file; JSON and
// urlencoded bodies carry the fields only.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBody)

	req, err := h.parseCreate(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	v, err := h.products.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	zctx.From(r.Context()).Info("Product created",
		zap.Int64("product_id", v.ID),
		zap.Bool("with_image", v.ImageKey != nil),
	)
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeView(e, *v)
	})
}

// errBodyTooLarge is mapped to 413.
var errBodyTooLarge = errors.New("request body too large")

func (h *Handler) parseCreate(r *http.Request) (product.CreateRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/json":
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return product.CreateRequest{}, bodyError(err)
		}
		req, err := decodeCreateJSON(data)
		if err != nil {
			return product.CreateRequest{}, &product.InvalidInputError{Reason: "invalid JSON body: " + err.Error()}
		}
		return req, nil

	case "multipart/form-data":
		if err := r.ParseMultipartForm(h.maxMultipartMemory); err != nil {
			return product.CreateRequest{}, bodyError(err)
		}
		req := formRequest(r)

		file, fh, err := r.FormFile("image")
		switch {
		case errors.Is(err, http.ErrMissingFile):
			return req, nil
		case err != nil:
			return product.CreateRequest{}, &product.InvalidInputError{Field: "image", Reason: "could not be read"}
		}
		defer func() { _ = file.Close() }()

		data, err := io.ReadAll(file)
		if err != nil {
			return product.CreateRequest{}, bodyError(err)
		}
		req.Image = &product.Image{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		}
		return req, nil

	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return product.CreateRequest{}, bodyError(err)
		}
		return formRequest(r), nil

	default:
		return product.CreateRequest{}, &product.InvalidInputError{
			Reason: "content type must be multipart/form-data, application/json or application/x-www-form-urlencoded",
		}
	}
}

func formRequest(r *http.Request) product.CreateRequest {
	return product.CreateRequest{
		Name:        r.PostFormValue("name"),
		Description: r.PostFormValue("description"),
		Price:       r.PostFormValue("price"),
	}
}

// bodyError classifies a failure to read the request body.
func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) || errors.Is(err, multipart.ErrMessageTooLarge) {
		return errBodyTooLarge
	}
	return &product.InvalidInputError{Reason: "malformed request body"}
}

// decodeCreateJSON reads {"name", "description", "price"}. Price may be a
// JSON string or number.
func decodeCreateJSON(data []byte) (product.CreateRequest, error) {
	var req product.CreateRequest
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "name":
			s, err := d.Str()
			req.Name = s
			return err
		case "description":
			if d.Next() == jx.Null {
				return d.Null()
			}
			s, err := d.Str()
			req.Description = s
			return err
		case "price":
			switch d.Next() {
			case jx.String:
				s, err := d.Str()
				req.Price = s
				return err
			case jx.Number:
				n, err := d.Num()
				req.Price = n.String()
				return err
			default:
				return errors.New("price must be a string or number")
			}
		default:
			return d.Skip()
		}
	})
	return req, err
}
