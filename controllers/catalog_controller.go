package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/printhouse-api/models"
	"github.com/shopspring/decimal"
)

// ListPrintLocations handles GET /api/v1/catalog/locations
func ListPrintLocations(c *gin.Context) {
	svc, ok := core(c)
	if !ok {
		return
	}
	rows, err := svc.Catalog.ListLocations(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, rows)
}

// ListClothingSections handles GET /api/v1/catalog/sections
func ListClothingSections(c *gin.Context) {
	svc, ok := core(c)
	if !ok {
		return
	}
	rows, err := svc.Catalog.ListSections(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, rows)
}

// ListDesigns handles GET /api/v1/catalog/designs
func ListDesigns(c *gin.Context) {
	svc, ok := core(c)
	if !ok {
		return
	}
	rows, err := svc.Catalog.ListDesigns(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusOK, rows)
}

// GetCatalogEnums handles GET /api/v1/catalog/enums
func GetCatalogEnums(c *gin.Context) {
	svc, ok := core(c)
	if !ok {
		return
	}
	respondData(c, http.StatusOK, svc.Catalog.Enums())
}

// PrintLocationRequest describes a new print location; an omitted price modifier means 1
type PrintLocationRequest struct {
	Code              string          `json:"code" binding:"required"`
	Name              string          `json:"name" binding:"required"`
	ClothingSectionID *string         `json:"clothing_section_id"`
	PriceModifier     decimal.Decimal `json:"price_modifier"`
	MaxWidth          int             `json:"max_width" binding:"required,gt=0"`
	MaxHeight         int             `json:"max_height" binding:"required,gt=0"`
}

// ClothingSectionRequest describes a new garment area
type ClothingSectionRequest struct {
	Code string `json:"code" binding:"required"`
	Name string `json:"name" binding:"required"`
}

// DesignRequest describes a new catalog design; designs are active unless is_active is false
type DesignRequest struct {
	Title               string          `json:"title" binding:"required"`
	BasePrice           decimal.Decimal `json:"base_price"`
	RequiresComposition bool            `json:"requires_composition"`
	ImageKey            string          `json:"image_key"`
	IsActive            *bool           `json:"is_active"`
}

// CreatePrintLocation handles POST /api/v1/catalog/locations (operators only)
func CreatePrintLocation(c *gin.Context) {
	svc, ok := core(c)
	if !ok {
		return
	}
	var req PrintLocationRequest
	if !bindJSON(c, &req) {
		return
	}
	sectionID, ok := parseOptionalUUID(c, req.ClothingSectionID, "clothing_section_id")
	if !ok {
		return
	}
	modifier := req.PriceModifier
	if modifier.IsZero() {
		modifier = decimal.NewFromInt(1)
	}
	loc := models.PrintLocation{
		Code:              req.Code,
		Name:              req.Name,
		ClothingSectionID: sectionID,
		PriceModifier:     modifier,
		MaxWidth:          req.MaxWidth,
		MaxHeight:         req.MaxHeight,
	}
	if err := svc.Catalog.CreatePrintLocation(c.Request.Context(), &loc); err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, loc)
}

// CreateClothingSection handles POST /api/v1/catalog/sections (operators only)
func CreateClothingSection(c *gin.Context) {
	svc, ok := core(c)
	if !ok {
		return
	}
	var req ClothingSectionRequest
	if !bindJSON(c, &req) {
		return
	}
	sec := models.ClothingSection{Code: req.Code, Name: req.Name}
	if err := svc.Catalog.CreateClothingSection(c.Request.Context(), &sec); err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, sec)
}

// CreateDesign handles POST /api/v1/catalog/designs (operators only)
func CreateDesign(c *gin.Context) {
	svc, ok := core(c)
	if !ok {
		return
	}
	var req DesignRequest
	if !bindJSON(c, &req) {
		return
	}
	design := models.Design{
		Title:               req.Title,
		BasePrice:           req.BasePrice,
		RequiresComposition: req.RequiresComposition,
		ImageKey:            req.ImageKey,
		IsActive:            req.IsActive == nil || *req.IsActive,
	}
	if err := svc.Catalog.CreateDesign(c.Request.Context(), &design); err != nil {
		respondError(c, err)
		return
	}
	respondData(c, http.StatusCreated, design)
}
