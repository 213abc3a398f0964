package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/printhouse-api/services"
)

// UploadArtwork handles POST /api/v1/uploads/artwork - stores a multipart "file"
// and returns its storage key plus a time-limited URL
// Pass kind=preview to store a preview rendering instead of source artwork
func UploadArtwork(c *gin.Context) {
	svc, ok := core(c)
	if !ok {
		return
	}
	if svc.Artwork == nil {
		respondFailure(c, http.StatusServiceUnavailable, "MEDIA_STORE_UNAVAILABLE", "File storage is not configured")
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondFailure(c, http.StatusBadRequest, "NO_FILE", "No file provided")
		return
	}

	folder := services.ArtworkFolderSource
	if c.Query("kind") == "preview" {
		folder = services.ArtworkFolderPreview
	}

	key, err := svc.Artwork.UploadArtwork(c.Request.Context(), fileHeader, folder)
	if err != nil {
		respondError(c, err)
		return
	}
	url, err := svc.Artwork.ArtworkURL(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}

	respondData(c, http.StatusCreated, gin.H{
		"key": key,
		"url": url,
	})
}
