package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/vendibot/vendibot-backend/internal/models"
	"github.com/vendibot/vendibot-backend/internal/storage"
)

// ProductHandler handles catalog management for merchants
type ProductHandler struct {
	store storage.Store
}

// NewProductHandler creates a new product handler
func NewProductHandler(store storage.Store) *ProductHandler {
	return &ProductHandler{
		store: store,
	}
}

type productRequest struct {
	SKU           string   `json:"sku"`
	ShortName     string   `json:"short_name"`
	LongName      string   `json:"long_name"`
	Price         float64  `json:"price"`
	Stock         int      `json:"stock"`
	Category      string   `json:"category"`
	Photos        []string `json:"photos"`
	Presentations []struct {
		Name  string  `json:"name"`
		Price float64 `json:"price"`
		Stock int     `json:"stock"`
	} `json:"presentations"`
}

// Create adds a product to a merchant's catalog
func (h *ProductHandler) Create(c *fiber.Ctx) error {
	merchantID := c.Params("id")
	if _, err := h.store.GetMerchant(merchantID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Merchant not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get merchant",
		})
	}

	var req productRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.SKU == "" || req.ShortName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "SKU and short_name are required",
		})
	}
	if len(req.Presentations) > 0 && (req.Price != 0 || req.Stock != 0) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "A product has either flat price/stock or presentations, not both",
		})
	}

	product := &models.Product{
		MerchantID: merchantID,
		SKU:        req.SKU,
		ShortName:  req.ShortName,
		LongName:   req.LongName,
		Price:      req.Price,
		Stock:      req.Stock,
		Category:   req.Category,
		Photos:     req.Photos,
	}
	for _, p := range req.Presentations {
		product.Presentations = append(product.Presentations, models.Presentation{
			Name:  p.Name,
			Price: p.Price,
			Stock: p.Stock,
		})
	}

	created, err := h.store.CreateProduct(product)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create product",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Product created successfully",
		"product": created,
	})
}

// List returns a merchant's full catalog
func (h *ProductHandler) List(c *fiber.Ctx) error {
	merchantID := c.Params("id")

	if category := c.Query("category"); category != "" {
		products, err := h.store.GetProductsByCategory(merchantID, category)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to list products",
			})
		}
		return c.JSON(fiber.Map{
			"products": products,
			"count":    len(products),
		})
	}

	products, err := h.store.GetProductsByMerchant(merchantID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list products",
		})
	}

	return c.JSON(fiber.Map{
		"products": products,
		"count":    len(products),
	})
}

// Get retrieves one product by SKU
func (h *ProductHandler) Get(c *fiber.Ctx) error {
	product, err := h.store.GetProduct(c.Params("id"), c.Params("sku"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Product not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get product",
		})
	}

	return c.JSON(fiber.Map{
		"product": product,
	})
}

// Update changes price, stock or category of a product
func (h *ProductHandler) Update(c *fiber.Ctx) error {
	product, err := h.store.GetProduct(c.Params("id"), c.Params("sku"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Product not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get product",
		})
	}

	var req struct {
		ShortName *string  `json:"short_name"`
		LongName  *string  `json:"long_name"`
		Price     *float64 `json:"price"`
		Stock     *int     `json:"stock"`
		Category  *string  `json:"category"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.ShortName != nil {
		product.ShortName = *req.ShortName
	}
	if req.LongName != nil {
		product.LongName = *req.LongName
	}
	if req.Price != nil {
		product.Price = *req.Price
	}
	if req.Stock != nil {
		product.Stock = *req.Stock
	}
	if req.Category != nil {
		product.Category = *req.Category
	}

	if err := h.store.UpdateProduct(product); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update product",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Product updated successfully",
		"product": product,
	})
}
