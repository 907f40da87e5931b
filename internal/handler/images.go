package handler

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/KubaBaniak/image-storage/internal/apperr"
	"github.com/KubaBaniak/image-storage/internal/service"
)

type PresignRequest struct {
	MimeType  string `json:"mimeType"`
	SizeBytes int64  `json:"sizeBytes"`
}

type VerifyRequest struct {
	ImageID string `json:"imageId"`
}

type DeleteRequest struct {
	ImageID string `json:"imageId"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId"`
}

type ImageHandler struct {
	service *service.ImageService
	log     *zap.Logger
}

func NewImageHandler(svc *service.ImageService, log *zap.Logger) *ImageHandler {
	return &ImageHandler{service: svc, log: log}
}

func (h *ImageHandler) Register(e *echo.Echo) {
	e.POST("/images/presign", h.Presign)
	e.POST("/images/verify", h.Verify)
	e.GET("/images/preview", h.ListPreviews)
	e.GET("/images/original", h.GetOriginalURL)
	e.DELETE("/images", h.Delete)
	e.POST("/images/:id/embed", h.AttachEmbedding)
}

func (h *ImageHandler) Presign(c echo.Context) error {
	var req PresignRequest
	if err := c.Bind(&req); err != nil {
		return h.fail(c, apperr.Wrap(apperr.KindInvalidInput, "invalid request body", err))
	}

	intent, err := h.service.IssueUploadIntent(c.Request().Context(), req.MimeType, req.SizeBytes)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, intent)
}

func (h *ImageHandler) Verify(c echo.Context) error {
	var req VerifyRequest
	if err := c.Bind(&req); err != nil {
		return h.fail(c, apperr.Wrap(apperr.KindInvalidInput, "invalid request body", err))
	}

	imageID, err := uuid.Parse(req.ImageID)
	if err != nil {
		return h.fail(c, apperr.Wrap(apperr.KindInvalidInput, "invalid image id", err))
	}

	result, err := h.service.ValidateUpload(c.Request().Context(), imageID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *ImageHandler) ListPreviews(c echo.Context) error {
	limit := 0
	if limitStr := c.QueryParam("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil {
			return h.fail(c, apperr.Wrap(apperr.KindInvalidInput, "invalid limit", err))
		}
		limit = parsed
	}

	page, err := h.service.ListPreviews(
		c.Request().Context(),
		c.QueryParam("q"),
		c.QueryParam("after"),
		limit,
	)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

func (h *ImageHandler) GetOriginalURL(c echo.Context) error {
	url, err := h.service.GetOriginalURL(c.Request().Context(), c.QueryParam("filename"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"signedUrl": url})
}

func (h *ImageHandler) Delete(c echo.Context) error {
	var req DeleteRequest
	if err := c.Bind(&req); err != nil {
		return h.fail(c, apperr.Wrap(apperr.KindInvalidInput, "invalid request body", err))
	}

	imageID, err := uuid.Parse(req.ImageID)
	if err != nil {
		return h.fail(c, apperr.Wrap(apperr.KindInvalidInput, "invalid image id", err))
	}

	if err := h.service.DeleteImage(c.Request().Context(), imageID); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ImageHandler) AttachEmbedding(c echo.Context) error {
	imageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return h.fail(c, apperr.Wrap(apperr.KindInvalidInput, "invalid image id", err))
	}

	if err := h.service.AttachEmbedding(c.Request().Context(), imageID); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"status": "ok"})
}

func (h *ImageHandler) fail(c echo.Context, err error) error {
	kind := apperr.KindOf(err)
	status := statusFor(kind)

	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}

	return c.JSON(status, ErrorResponse{
		Error: ErrorDetail{
			Code:      kind.String(),
			Message:   apperr.MessageOf(err),
			RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
		},
	})
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindValidationFailed:
		return http.StatusUnprocessableEntity
	case apperr.KindUnsupportedType:
		return http.StatusUnsupportedMediaType
	case apperr.KindDependencyFailure:
		return http.StatusBadGateway
	case apperr.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
