package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/agrobid/agrobid/internal/adapters/media"
	"github.com/agrobid/agrobid/internal/domain/products"
	"github.com/agrobid/agrobid/pkg/auth"
)

const maxImageSize = 5 << 20 // per file

// ProductHandler exposes listing management. Create and update are multipart
// so image blobs ride along with the document fields.
type ProductHandler struct {
	service *products.Service
	store   media.Store
	logger  *slog.Logger
}

func NewProductHandler(service *products.Service, store media.Store, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{service: service, store: store, logger: logger}
}

// productForm is the non-file part of a create request. Nested blocks arrive
// as JSON-encoded form values.
type productForm struct {
	Name                string    `form:"name"`
	Category            string    `form:"category"`
	Description         string    `form:"description"`
	Quantity            string    `form:"quantity"`
	BasePrice           int64     `form:"base_price"`
	MinimumBidIncrement int64     `form:"minimum_bid_increment"`
	Location            string    `form:"location"`
	Quality             string    `form:"quality"`
	HarvestDate         time.Time `form:"harvest_date" time_format:"2006-01-02"`
	AvailableFrom       time.Time `form:"available_from" time_format:"2006-01-02"`
	AvailableUntil      time.Time `form:"available_until" time_format:"2006-01-02"`
	BiddingEndTime      time.Time `form:"bidding_end_time"`
	Tags                []string  `form:"tags"`
}

func (h *ProductHandler) Create(c *gin.Context) {
	var form productForm
	if err := c.ShouldBind(&form); err != nil {
		respondBadRequest(c, err)
		return
	}

	var quantity products.Quantity
	if form.Quantity != "" {
		if err := json.Unmarshal([]byte(form.Quantity), &quantity); err != nil {
			respondBadRequest(c, fmt.Errorf("invalid quantity: %w", err))
			return
		}
	}
	var location products.Location
	if form.Location != "" {
		if err := json.Unmarshal([]byte(form.Location), &location); err != nil {
			respondBadRequest(c, fmt.Errorf("invalid location: %w", err))
			return
		}
	}
	var quality products.Quality
	if form.Quality != "" {
		if err := json.Unmarshal([]byte(form.Quality), &quality); err != nil {
			respondBadRequest(c, fmt.Errorf("invalid quality: %w", err))
			return
		}
	}

	refs, err := h.saveImages(c)
	if err != nil {
		respondBadRequest(c, err)
		return
	}

	product, err := h.service.Create(c.Request.Context(), products.CreateCommand{
		FarmerID:            auth.MustGetUserID(c),
		Name:                form.Name,
		Category:            products.Category(form.Category),
		Description:         form.Description,
		Quantity:            quantity,
		BasePrice:           form.BasePrice,
		MinimumBidIncrement: form.MinimumBidIncrement,
		Images:              refs,
		Location:            location,
		Quality:             quality,
		HarvestDate:         form.HarvestDate,
		AvailableFrom:       form.AvailableFrom,
		AvailableUntil:      form.AvailableUntil,
		BiddingEndTime:      form.BiddingEndTime,
		Tags:                form.Tags,
	})
	if err != nil {
		// The document was rejected; the blobs are orphans now.
		for _, ref := range refs {
			if delErr := h.store.Delete(c.Request.Context(), ref); delErr != nil {
				h.logger.Warn("failed to delete orphaned image", slog.String("ref", ref))
			}
		}
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": product})
}

func (h *ProductHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBadRequest(c, err)
		return
	}

	product, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": product})
}

func (h *ProductHandler) List(c *gin.Context) {
	filter := products.ListFilter{
		Category: products.Category(c.Query("category")),
		Status:   products.Status(c.Query("status")),
		City:     c.Query("city"),
		State:    c.Query("state"),
		MinPrice: int64(queryInt(c, "min_price", 0)),
		MaxPrice: int64(queryInt(c, "max_price", 0)),
		Search:   c.Query("search"),
		Sort:     c.Query("sort"),
		Limit:    queryInt(c, "limit", 0),
		Offset:   queryInt(c, "offset", 0),
	}
	if v := c.Query("featured"); v != "" {
		featured := v == "true"
		filter.Featured = &featured
	}

	items, total, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(items),
		"total":   total,
		"data":    items,
	})
}

func (h *ProductHandler) ListFeatured(c *gin.Context) {
	items, err := h.service.ListFeatured(c.Request.Context(), queryInt(c, "limit", 0))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "count": len(items), "data": items})
}

func (h *ProductHandler) ListMine(c *gin.Context) {
	items, total, err := h.service.ListMine(c.Request.Context(),
		auth.MustGetUserID(c),
		products.Status(c.Query("status")),
		queryInt(c, "limit", 0),
		queryInt(c, "offset", 0),
	)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(items),
		"total":   total,
		"data":    items,
	})
}

type updateProductForm struct {
	Name        string   `form:"name"`
	Description string   `form:"description"`
	Quantity    string   `form:"quantity"`
	Location    string   `form:"location"`
	Quality     string   `form:"quality"`
	Tags        []string `form:"tags"`
}

func (h *ProductHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBadRequest(c, err)
		return
	}

	var form updateProductForm
	if err := c.ShouldBind(&form); err != nil {
		respondBadRequest(c, err)
		return
	}

	cmd := products.UpdateCommand{
		ProductID:   id,
		FarmerID:    auth.MustGetUserID(c),
		Name:        form.Name,
		Description: form.Description,
		Tags:        form.Tags,
	}
	if form.Quantity != "" {
		var quantity products.Quantity
		if err := json.Unmarshal([]byte(form.Quantity), &quantity); err != nil {
			respondBadRequest(c, fmt.Errorf("invalid quantity: %w", err))
			return
		}
		cmd.Quantity = &quantity
	}
	if form.Location != "" {
		var location products.Location
		if err := json.Unmarshal([]byte(form.Location), &location); err != nil {
			respondBadRequest(c, fmt.Errorf("invalid location: %w", err))
			return
		}
		cmd.Location = &location
	}
	if form.Quality != "" {
		var quality products.Quality
		if err := json.Unmarshal([]byte(form.Quality), &quality); err != nil {
			respondBadRequest(c, fmt.Errorf("invalid quality: %w", err))
			return
		}
		cmd.Quality = &quality
	}

	refs, err := h.saveImages(c)
	if err != nil {
		respondBadRequest(c, err)
		return
	}
	cmd.Images = refs

	product, err := h.service.Update(c.Request.Context(), cmd)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": product})
}

func (h *ProductHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBadRequest(c, err)
		return
	}

	cancelled, err := h.service.Delete(c.Request.Context(), id, auth.MustGetUserID(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	message := "product deleted"
	if cancelled {
		message = "product cancelled"
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": message})
}

// saveImages stores every uploaded file under the "images" field and returns
// their blob references. Returns nil when the request carries no files.
func (h *ProductHandler) saveImages(c *gin.Context) ([]string, error) {
	form, err := c.MultipartForm()
	if err != nil {
		if err == http.ErrNotMultipart {
			return nil, nil
		}
		return nil, err
	}

	files := form.File["images"]
	refs := make([]string, 0, len(files))
	for _, file := range files {
		ref, err := h.saveImage(c, file)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (h *ProductHandler) saveImage(c *gin.Context, file *multipart.FileHeader) (string, error) {
	if file.Size > maxImageSize {
		return "", fmt.Errorf("image %s exceeds the 5MB limit", file.Filename)
	}

	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	return h.store.Save(c.Request.Context(), file.Filename, file.Header.Get("Content-Type"), src)
}
