package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"otsopos/backend/internal/domain"
)

type setStockRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

func (a *API) handleListProducts(c *gin.Context) {
	items, err := a.service.ListCatalog(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": items})
}

func (a *API) handleGetProduct(c *gin.Context) {
	item, err := a.service.GetCatalogItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product": item})
}

func (a *API) handleCreateProduct(c *gin.Context) {
	var req domain.Product
	if !bindJSON(c, &req) {
		return
	}
	req.ID = ""
	product, err := a.service.CreateProduct(c.Request.Context(), operator(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"product": product})
}

func (a *API) handleUpdateProduct(c *gin.Context) {
	var req domain.Product
	if !bindJSON(c, &req) {
		return
	}
	req.ID = c.Param("id")
	product, err := a.service.UpdateProduct(c.Request.Context(), operator(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product": product})
}

func (a *API) handleDeleteProduct(c *gin.Context) {
	if err := a.service.DeleteProduct(c.Request.Context(), operator(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (a *API) handleListCategories(c *gin.Context) {
	out, err := a.service.ListCategories(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": out})
}

func (a *API) handleCreateCategory(c *gin.Context) {
	var req domain.Category
	if !bindJSON(c, &req) {
		return
	}
	req.ID = ""
	category, err := a.service.CreateCategory(c.Request.Context(), operator(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"category": category})
}

func (a *API) handleUpdateCategory(c *gin.Context) {
	var req domain.Category
	if !bindJSON(c, &req) {
		return
	}
	req.ID = c.Param("id")
	category, err := a.service.UpdateCategory(c.Request.Context(), operator(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"category": category})
}

func (a *API) handleDeleteCategory(c *gin.Context) {
	if err := a.service.DeleteCategory(c.Request.Context(), operator(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (a *API) handleListSuppliers(c *gin.Context) {
	out, err := a.service.ListSuppliers(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suppliers": out})
}

func (a *API) handleCreateSupplier(c *gin.Context) {
	var req domain.Supplier
	if !bindJSON(c, &req) {
		return
	}
	req.ID = ""
	supplier, err := a.service.CreateSupplier(c.Request.Context(), operator(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"supplier": supplier})
}

func (a *API) handleUpdateSupplier(c *gin.Context) {
	var req domain.Supplier
	if !bindJSON(c, &req) {
		return
	}
	req.ID = c.Param("id")
	supplier, err := a.service.UpdateSupplier(c.Request.Context(), operator(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"supplier": supplier})
}

func (a *API) handleDeleteSupplier(c *gin.Context) {
	if err := a.service.DeleteSupplier(c.Request.Context(), operator(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (a *API) handleListInventory(c *gin.Context) {
	out, err := a.service.ListInventory(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"inventory": out})
}

func (a *API) handleSetStock(c *gin.Context) {
	var req setStockRequest
	if !bindJSON(c, &req) {
		return
	}
	record, err := a.service.SetStock(c.Request.Context(), operator(c), c.Param("productId"), *req.Quantity)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"inventory": record})
}
