package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/catalog"
	"github.com/vasiliy-maslov/ecommerce-storefront/internal/pagecache"
)

type ProductResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Price int64     `json:"price"`
}

type CatalogHandler struct {
	service catalog.Service
	cache   pagecache.Cache
}

func NewCatalogHandler(service catalog.Service, cache pagecache.Cache) *CatalogHandler {
	return &CatalogHandler{service: service, cache: cache}
}

func (h *CatalogHandler) RegisterRoutes(router chi.Router) {
	router.Route("/products", func(r chi.Router) {
		r.Use(pagecache.Middleware(h.cache))
		r.Get("/{id}", h.handleGetProduct)
	})
}

func (h *CatalogHandler) handleGetProduct(w http.ResponseWriter, r *http.Request) {
	productID, ok := parseIDParam(w, r)
	if !ok {
		return
	}

	product, err := h.service.GetProduct(r.Context(), productID)
	if err != nil {
		respondWithServiceError(w, r, err, "Failed to get product")
		return
	}
	respondWithJSON(w, http.StatusOK, ProductResponse{
		ID:    product.ID,
		Name:  product.Name,
		Price: product.Price,
	})
}
